package bounty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/vault"
)

const (
	creator   = "0xcc00000000000000000000000000000000000001"
	worker1   = "0x1100000000000000000000000000000000000001"
	worker2   = "0x1100000000000000000000000000000000000002"
	verifierA = "0x2200000000000000000000000000000000000001"
	verifierB = "0x2200000000000000000000000000000000000002"
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
	for _, h := range []string{creator, worker1, worker2, verifierA, verifierB} {
		tokens.Mint(h, 100_000)
	}
	v := vault.New(tokens)
	clock := domain.NewManualClock(baseTime)
	return &fixture{engine: New(v, clock), vault: v, tokens: tokens, clock: clock}
}

// create opens a bounty with 3 ranges, 50 stake per range, a 10_000 pool, a
// 10-day deadline, and a 6-hour claim window.
func (f *fixture) create(t *testing.T) domain.Bounty {
	t.Helper()
	b, err := f.engine.Create(creator, "factor the range", 3, 50, 10_000,
		f.clock.Now().Add(240*time.Hour), 6*time.Hour)
	require.NoError(t, err)
	return b
}

// solveRange claims, submits, and double-verifies one range for a worker.
func (f *fixture) solveRange(t *testing.T, bountyID uint64, worker string, idx uint64) {
	t.Helper()
	_, err := f.engine.Claim(bountyID, worker, idx)
	require.NoError(t, err)
	_, err = f.engine.Submit(bountyID, worker, idx, "0xdeadbeef")
	require.NoError(t, err)
	_, err = f.engine.Verify(bountyID, verifierA, idx, true)
	require.NoError(t, err)
	_, err = f.engine.Verify(bountyID, verifierB, idx, true)
	require.NoError(t, err)
}

func TestCreateGuards(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(creator, "x", 0, 50, 1000, baseTime.Add(time.Hour), time.Hour)
	assert.Error(t, err)

	_, err = f.engine.Create(creator, "x", 3, 50, 0, baseTime.Add(time.Hour), time.Hour)
	assert.ErrorIs(t, err, domain.ErrAmountZero)

	_, err = f.engine.Create(creator, "x", 3, 50, 1000, baseTime, time.Hour)
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)

	b := f.create(t)
	assert.Equal(t, uint64(1), b.ID)
	assert.Equal(t, uint64(10_000), f.vault.Held(vault.BountyKey(b.ID)))
}

func TestFullSolve(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	f.solveRange(t, b.ID, worker1, 0)
	f.solveRange(t, b.ID, worker1, 1)
	f.solveRange(t, b.ID, worker2, 2)

	got, err := f.engine.Get(b.ID)
	require.NoError(t, err)
	assert.True(t, got.Solved)
	assert.Equal(t, uint64(3), got.CompletedRanges)

	c1, err := f.engine.GetContribution(b.ID, worker1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c1.RangesCompleted)

	c2, err := f.engine.GetContribution(b.ID, worker2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c2.RangesCompleted)
}

func TestVerifiedFlagIsMonotonic(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	f.solveRange(t, b.ID, worker1, 0)

	r, err := f.engine.GetRange(b.ID, 0)
	require.NoError(t, err)
	assert.True(t, r.Verified)

	// A verified range can no longer be claimed by anyone.
	_, err = f.engine.Claim(b.ID, worker2, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestTimeoutSlashAndReclaim(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(99_950), f.tokens.BalanceOf(worker1))

	// Active claim blocks everyone else.
	_, err = f.engine.Claim(b.ID, worker2, 0)
	assert.ErrorIs(t, err, domain.ErrRangeBusy)

	// Past the claim window the stake is forfeited to the pool and the new
	// claim proceeds.
	f.clock.Advance(7 * time.Hour)
	res, err := f.engine.Claim(b.ID, worker2, 0)
	require.NoError(t, err)
	assert.Equal(t, worker1, res.SlashedWorker)
	assert.Equal(t, uint64(50), res.SlashedAmount)
	assert.Equal(t, worker2, res.Range.Worker)

	got, err := f.engine.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_050), got.RewardPool)

	c1, err := f.engine.GetContribution(b.ID, worker1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c1.StakedAmount)
}

func TestSubmitGuards(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 1)
	require.NoError(t, err)

	_, err = f.engine.Submit(b.ID, worker2, 1, "0x01")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.engine.Submit(b.ID, worker1, 1, "0x01")
	require.NoError(t, err)

	// Once per claim cycle.
	_, err = f.engine.Submit(b.ID, worker1, 1, "0x02")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// Submitted work blocks re-claim even after the window lapses.
	f.clock.Advance(8 * time.Hour)
	_, err = f.engine.Claim(b.ID, worker2, 1)
	assert.ErrorIs(t, err, domain.ErrRangeBusy)
}

func TestSubmitAfterWindowRejected(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 0)
	require.NoError(t, err)

	f.clock.Advance(6*time.Hour + time.Minute)
	_, err = f.engine.Submit(b.ID, worker1, 0, "0x01")
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)
}

func TestVerifyGuards(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 0)
	require.NoError(t, err)

	// Nothing to verify before submission.
	_, err = f.engine.Verify(b.ID, verifierA, 0, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.engine.Submit(b.ID, worker1, 0, "0x01")
	require.NoError(t, err)

	_, err = f.engine.Verify(b.ID, worker1, 0, true)
	assert.ErrorIs(t, err, domain.ErrSelfVerification)

	res, err := f.engine.Verify(b.ID, verifierA, 0, true)
	require.NoError(t, err)
	assert.False(t, res.Range.Verified)
	assert.Equal(t, uint64(1), res.Range.Verifications)

	_, err = f.engine.Verify(b.ID, verifierA, 0, true)
	assert.ErrorIs(t, err, domain.ErrAlreadyVerified)

	res, err = f.engine.Verify(b.ID, verifierB, 0, true)
	require.NoError(t, err)
	assert.True(t, res.Range.Verified)
}

func TestNegativeVoteIsFraudSignalOnly(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 0)
	require.NoError(t, err)
	_, err = f.engine.Submit(b.ID, worker1, 0, "0x01")
	require.NoError(t, err)

	res, err := f.engine.Verify(b.ID, verifierA, 0, false)
	require.NoError(t, err)
	assert.True(t, res.Fraud)

	// No counter moved; the same verifier may still vote positively later.
	r, err := f.engine.GetRange(b.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.Verifications)

	_, err = f.engine.Verify(b.ID, verifierA, 0, true)
	require.NoError(t, err)
}

func TestClaimRewardsGatedWhileOpen(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 0)
	require.NoError(t, err)

	// A live claim's stake cannot be pulled back early.
	_, _, err = f.engine.ClaimRewards(b.ID, worker1)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, uint64(99_950), f.tokens.BalanceOf(worker1))

	// The abandoned claim still funds the timeout slash.
	f.clock.Advance(7 * time.Hour)
	res, err := f.engine.Claim(b.ID, worker2, 0)
	require.NoError(t, err)
	assert.Equal(t, worker1, res.SlashedWorker)
	assert.Equal(t, uint64(50), res.SlashedAmount)

	got, err := f.engine.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_050), got.RewardPool)
}

func TestClaimRewardsAfterDeadline(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 0)
	require.NoError(t, err)

	f.clock.Advance(241 * time.Hour)
	reward, stake, err := f.engine.ClaimRewards(b.ID, worker1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), reward)
	assert.Equal(t, uint64(50), stake)
	assert.Equal(t, uint64(100_000), f.tokens.BalanceOf(worker1))
}

func TestCancelUnlocksStakes(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 0)
	require.NoError(t, err)
	_, err = f.engine.Cancel(b.ID, creator)
	require.NoError(t, err)

	_, stake, err := f.engine.ClaimRewards(b.ID, worker1)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), stake)
	assert.Equal(t, uint64(100_000), f.tokens.BalanceOf(worker1))
}

// A worker holding several live claims loses only the timed-out one.
func TestTimeoutSlashClampsToOneClaim(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 0)
	require.NoError(t, err)
	f.clock.Advance(3 * time.Hour)
	_, err = f.engine.Claim(b.ID, worker1, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(b.ID, worker1, 1, "0x01")
	require.NoError(t, err)

	// Range 0 timed out; range 1 is submitted and stays funded.
	f.clock.Advance(4 * time.Hour)
	res, err := f.engine.Claim(b.ID, worker2, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), res.SlashedAmount)

	c, err := f.engine.GetContribution(b.ID, worker1)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), c.StakedAmount)
}

func TestFirstContributionStampedAtClaimOnly(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 0)
	require.NoError(t, err)
	_, err = f.engine.Submit(b.ID, worker1, 0, "0x01")
	require.NoError(t, err)

	// worker2's first touch is a verification vote; it does not start the
	// early-bonus clock.
	_, err = f.engine.Verify(b.ID, worker2, 0, true)
	require.NoError(t, err)

	c, err := f.engine.GetContribution(b.ID, worker2)
	require.NoError(t, err)
	assert.True(t, c.FirstContributionAt.IsZero())
	assert.Equal(t, uint64(1), c.VerificationsDone)

	f.clock.Advance(50 * time.Hour)
	_, err = f.engine.Claim(b.ID, worker2, 1)
	require.NoError(t, err)

	c, err = f.engine.GetContribution(b.ID, worker2)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), c.FirstContributionAt)
}

func TestClaimRewardsOnce(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	f.solveRange(t, b.ID, worker1, 0)
	f.solveRange(t, b.ID, worker1, 1)
	f.solveRange(t, b.ID, worker2, 2)

	before := f.tokens.BalanceOf(worker2)
	reward, stake, err := f.engine.ClaimRewards(b.ID, worker2)
	require.NoError(t, err)
	assert.Positive(t, reward)
	assert.Equal(t, uint64(50), stake)
	assert.Equal(t, before+reward+stake, f.tokens.BalanceOf(worker2))

	_, _, err = f.engine.ClaimRewards(b.ID, worker2)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, before+reward+stake, f.tokens.BalanceOf(worker2))
}

func TestRewardConservation(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	f.solveRange(t, b.ID, worker1, 0)
	f.solveRange(t, b.ID, worker1, 1)
	f.solveRange(t, b.ID, worker2, 2)

	var sum uint64
	for _, p := range []string{worker1, worker2, verifierA, verifierB} {
		r, err := f.engine.CalculateReward(b.ID, p)
		require.NoError(t, err)
		sum += r
	}
	got, err := f.engine.Get(b.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, sum, got.RewardPool)
}

func TestCancelBounty(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Cancel(b.ID, worker1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	got, err := f.engine.Cancel(b.ID, creator)
	require.NoError(t, err)
	assert.True(t, got.Cancelled)

	_, err = f.engine.Claim(b.ID, worker1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.engine.Cancel(b.ID, creator)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestClaimGuards(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.engine.Claim(b.ID, worker1, 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.clock.Advance(241 * time.Hour)
	_, err = f.engine.Claim(b.ID, worker1, 0)
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)
}
