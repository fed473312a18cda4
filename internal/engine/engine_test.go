package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakeboard/internal/crypto"
	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/vault"
)

const (
	requester = "0xaaa0000000000000000000000000000000000001"
	deliverer = "0xbbb0000000000000000000000000000000000002"
	stranger  = "0xccc0000000000000000000000000000000000003"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	engine *Engine
	vault  *vault.Vault
	tokens *vault.MemoryLedger
	clock  *domain.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens := vault.NewMemoryLedger()
	tokens.Mint(requester, 10_000)
	tokens.Mint(deliverer, 10_000)
	v := vault.New(tokens)
	clock := domain.NewManualClock(baseTime)
	return &fixture{
		engine: New(v, clock),
		vault:  v,
		tokens: tokens,
		clock:  clock,
	}
}

func (f *fixture) create(t *testing.T, stake uint64, scheme domain.ProofScheme) domain.Market {
	t.Helper()
	m, err := f.engine.Create(requester, "build the thing", stake,
		f.clock.Now().Add(24*time.Hour), 2*time.Hour, scheme)
	require.NoError(t, err)
	return m
}

func TestCreateGuards(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(requester, "x", 0, baseTime.Add(time.Hour), time.Hour, domain.ProofSchemeDirect)
	assert.ErrorIs(t, err, domain.ErrAmountZero)

	_, err = f.engine.Create(requester, "x", 100, baseTime, time.Hour, domain.ProofSchemeDirect)
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)

	_, err = f.engine.Create(requester, "x", 100, baseTime.Add(time.Hour), time.Hour, domain.ProofScheme("bogus"))
	assert.Error(t, err)

	m := f.create(t, 100, domain.ProofSchemeDirect)
	assert.Equal(t, uint64(1), m.ID)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
	assert.Equal(t, uint64(100), f.vault.Held(vault.MarketKey(m.ID)))
	assert.Equal(t, uint64(9_900), f.tokens.BalanceOf(requester))
}

func TestHappyPathDirectSettle(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 100, domain.ProofSchemeDirect)

	m, err := f.engine.Take(m.ID, deliverer, "")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusTaken, m.Status)
	assert.Equal(t, uint64(200), f.vault.Held(vault.MarketKey(m.ID)))

	m, err = f.engine.SubmitProof(m.ID, deliverer, []byte("result"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClaimed, m.Status)
	require.NotNil(t, m.DisputeDeadline)
	assert.Equal(t, f.clock.Now().Add(2*time.Hour), *m.DisputeDeadline)

	// Settle is gated on the dispute window.
	_, err = f.engine.Settle(m.ID)
	assert.ErrorIs(t, err, domain.ErrDisputeWindowOpen)

	f.clock.Advance(2*time.Hour + time.Second)
	m, err = f.engine.Settle(m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusCompleted, m.Status)

	// Deliverer walks away with the full combined stake.
	assert.Equal(t, uint64(10_100), f.tokens.BalanceOf(deliverer))
	assert.Equal(t, uint64(0), f.vault.Held(vault.MarketKey(m.ID)))

	// Settle happens at most once.
	_, err = f.engine.Settle(m.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestExpireTakenButUnproved(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 100, domain.ProofSchemeDirect)
	_, err := f.engine.Take(m.ID, deliverer, "")
	require.NoError(t, err)

	_, err = f.engine.Expire(m.ID)
	assert.ErrorIs(t, err, domain.ErrDeadlineNotReached)

	f.clock.Advance(25 * time.Hour)
	m, err = f.engine.Expire(m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusExpired, m.Status)

	// Requester recovers both stakes; the deliverer forfeits theirs.
	assert.Equal(t, uint64(10_100), f.tokens.BalanceOf(requester))
	assert.Equal(t, uint64(9_900), f.tokens.BalanceOf(deliverer))
	assert.Equal(t, uint64(0), f.vault.Held(vault.MarketKey(m.ID)))
}

func TestExpireUntaken(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 100, domain.ProofSchemeDirect)

	f.clock.Advance(25 * time.Hour)
	m, err := f.engine.Expire(m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusExpired, m.Status)
	assert.Equal(t, uint64(10_000), f.tokens.BalanceOf(requester))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 250, domain.ProofSchemeDirect)

	_, err := f.engine.Cancel(m.ID, stranger)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	m, err = f.engine.Cancel(m.ID, requester)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusCancelled, m.Status)
	assert.Equal(t, uint64(10_000), f.tokens.BalanceOf(requester))

	// Not cancellable once terminal.
	_, err = f.engine.Cancel(m.ID, requester)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCancelAfterTakeRejected(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 100, domain.ProofSchemeDirect)
	_, err := f.engine.Take(m.ID, deliverer, "")
	require.NoError(t, err)

	_, err = f.engine.Cancel(m.ID, requester)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCommitRevealRoundTrip(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 100, domain.ProofSchemeCommitReveal)

	proof := []byte("the answer is 42")
	salt := []byte("nonce-7")
	commitment := crypto.Commitment(proof, salt).Hex()

	// Commit-reveal take requires a well-formed commitment.
	_, err := f.engine.Take(m.ID, deliverer, "")
	assert.Error(t, err)

	m, err = f.engine.Take(m.ID, deliverer, commitment)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusLocked, m.Status)

	// A wrong reveal is fatal with no state change and no fund movement.
	held := f.vault.Held(vault.MarketKey(m.ID))
	_, err = f.engine.SubmitProof(m.ID, deliverer, proof, []byte("wrong-salt"))
	assert.ErrorIs(t, err, domain.ErrCommitMismatch)
	got, err := f.engine.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusLocked, got.Status)
	assert.Equal(t, held, f.vault.Held(vault.MarketKey(m.ID)))

	m, err = f.engine.SubmitProof(m.ID, deliverer, proof, salt)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusRevealed, m.Status)
	assert.Equal(t, crypto.HashProof(proof).Hex(), m.ProofHash)

	f.clock.Advance(3 * time.Hour)
	m, err = f.engine.Settle(m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusCompleted, m.Status)
	assert.Equal(t, uint64(10_100), f.tokens.BalanceOf(deliverer))
}

func TestSubmitGuards(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 100, domain.ProofSchemeDirect)

	// No proof before take.
	_, err := f.engine.SubmitProof(m.ID, deliverer, []byte("p"), nil)
	assert.Error(t, err)

	_, err = f.engine.Take(m.ID, deliverer, "")
	require.NoError(t, err)

	_, err = f.engine.SubmitProof(m.ID, stranger, []byte("p"), nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	f.clock.Advance(25 * time.Hour)
	_, err = f.engine.SubmitProof(m.ID, deliverer, []byte("p"), nil)
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)
}

func TestTakeGuards(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 100, domain.ProofSchemeDirect)

	f.clock.Advance(24 * time.Hour)
	_, err := f.engine.Take(m.ID, deliverer, "")
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)

	_, err = f.engine.Take(99, deliverer, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_ = m
}

func TestDisputeNotSupported(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 100, domain.ProofSchemeDirect)

	err := f.engine.Dispute(m.ID, requester)
	assert.ErrorIs(t, err, domain.ErrNotSupported)

	// The hook must not touch state.
	got, err2 := f.engine.Get(m.ID)
	require.NoError(t, err2)
	assert.Equal(t, domain.MarketStatusOpen, got.Status)
}

func TestVaultBalanceMatchesUnsettledStakes(t *testing.T) {
	f := newFixture(t)

	a := f.create(t, 100, domain.ProofSchemeDirect)
	b := f.create(t, 300, domain.ProofSchemeDirect)

	_, err := f.engine.Take(a.ID, deliverer, "")
	require.NoError(t, err)

	assert.Equal(t, uint64(200), f.vault.Held(vault.MarketKey(a.ID)))
	assert.Equal(t, uint64(300), f.vault.Held(vault.MarketKey(b.ID)))
	assert.Equal(t, uint64(500), f.vault.TotalHeld())

	_, err = f.engine.Cancel(b.ID, requester)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f.vault.Held(vault.MarketKey(b.ID)))
	assert.Equal(t, uint64(200), f.vault.TotalHeld())
}

func TestReentrancyGuard(t *testing.T) {
	g := newReentrancyGuard()

	release, err := g.enter(7)
	require.NoError(t, err)

	_, err = g.enter(7)
	assert.ErrorIs(t, err, domain.ErrReentrancy)

	// Other entities are unaffected.
	release2, err := g.enter(8)
	require.NoError(t, err)
	release2()

	release()
	release3, err := g.enter(7)
	require.NoError(t, err)
	release3()

	// Release is idempotent.
	release()
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, 100, domain.ProofSchemeDirect)
	f.create(t, 100, domain.ProofSchemeDirect)

	_, err := f.engine.Take(a.ID, deliverer, "")
	require.NoError(t, err)

	assert.Len(t, f.engine.List(""), 2)
	assert.Len(t, f.engine.List(domain.MarketStatusOpen), 1)
	assert.Len(t, f.engine.List(domain.MarketStatusTaken), 1)
}
