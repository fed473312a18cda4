package ledger

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/vault"
)

const (
	reporter   = "0x0aaa000000000000000000000000000000000001"
	alice      = "0x1aaa000000000000000000000000000000000001"
	bob        = "0x1aaa000000000000000000000000000000000002"
	collateral = "USDS"
	questionID = "0x00000000000000000000000000000000000000000000000000000000000000aa"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ledger *Ledger
	vault  *vault.Vault
	tokens *vault.MemoryLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens := vault.NewMemoryLedger()
	tokens.Mint(alice, 10_000)
	tokens.Mint(bob, 10_000)
	v := vault.New(tokens)
	return &fixture{
		ledger: New(v, domain.NewManualClock(baseTime), collateral),
		vault:  v,
		tokens: tokens,
	}
}

func (f *fixture) prepare(t *testing.T) domain.Condition {
	t.Helper()
	c, err := f.ledger.Prepare(reporter, questionID, 2)
	require.NoError(t, err)
	return c
}

func TestIDDerivationIsDeterministic(t *testing.T) {
	qid := common.HexToHash(questionID)

	c1 := ConditionID(reporter, qid, 2)
	c2 := ConditionID(reporter, qid, 2)
	assert.Equal(t, c1, c2)

	// Any input change moves the id.
	assert.NotEqual(t, c1, ConditionID(reporter, qid, 3))
	assert.NotEqual(t, c1, ConditionID(alice, qid, 2))

	yes := CollectionID(c1, 1)
	no := CollectionID(c1, 2)
	assert.NotEqual(t, yes, no)

	assert.NotEqual(t, PositionID(collateral, yes), PositionID("other", yes))
}

func TestPrepareOnce(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)
	assert.Equal(t, reporter, c.Oracle)
	assert.Equal(t, uint(2), c.OutcomeCount)

	_, err := f.ledger.Prepare(reporter, questionID, 2)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestPrepareGuards(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Prepare(reporter, "not-hex", 2)
	assert.Error(t, err)

	_, err = f.ledger.Prepare(reporter, questionID, 1)
	assert.Error(t, err)
}

func TestSplitMintsFullPartition(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)

	require.NoError(t, f.ledger.Split(alice, c.ConditionID, 100))

	assert.Equal(t, uint64(100), f.ledger.BalanceOf(alice, c.ConditionID, 0))
	assert.Equal(t, uint64(100), f.ledger.BalanceOf(alice, c.ConditionID, 1))
	assert.Equal(t, uint64(100), f.ledger.CollateralOf(c.ConditionID))
	assert.Equal(t, uint64(9_900), f.tokens.BalanceOf(alice))
}

func TestMergeRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)

	require.NoError(t, f.ledger.Split(alice, c.ConditionID, 100))
	require.NoError(t, f.ledger.Merge(alice, c.ConditionID, 40))

	assert.Equal(t, uint64(60), f.ledger.BalanceOf(alice, c.ConditionID, 0))
	assert.Equal(t, uint64(60), f.ledger.BalanceOf(alice, c.ConditionID, 1))
	assert.Equal(t, uint64(60), f.ledger.CollateralOf(c.ConditionID))
	assert.Equal(t, uint64(9_940), f.tokens.BalanceOf(alice))

	// Merge needs the full partition.
	require.NoError(t, f.ledger.Transfer(alice, bob, c.ConditionID, 0, 60))
	err := f.ledger.Merge(alice, c.ConditionID, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestBuySellAgainstReserve(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)

	// No reserve yet: buys fail.
	err := f.ledger.Buy(bob, c.ConditionID, 0, 10)
	assert.ErrorIs(t, err, domain.ErrInsufficientReserve)

	require.NoError(t, f.ledger.AddLiquidity(alice, c.ConditionID, 200))
	assert.Equal(t, uint64(200), f.ledger.ReserveOf(c.ConditionID, 0))
	assert.Equal(t, uint64(200), f.ledger.ReserveOf(c.ConditionID, 1))

	require.NoError(t, f.ledger.Buy(bob, c.ConditionID, 0, 150))
	assert.Equal(t, uint64(150), f.ledger.BalanceOf(bob, c.ConditionID, 0))
	assert.Equal(t, uint64(50), f.ledger.ReserveOf(c.ConditionID, 0))
	assert.Equal(t, uint64(9_850), f.tokens.BalanceOf(bob))

	// Reserve exhaustion is the only trading limit.
	err = f.ledger.Buy(bob, c.ConditionID, 0, 51)
	assert.ErrorIs(t, err, domain.ErrInsufficientReserve)

	require.NoError(t, f.ledger.Sell(bob, c.ConditionID, 0, 150))
	assert.Equal(t, uint64(0), f.ledger.BalanceOf(bob, c.ConditionID, 0))
	assert.Equal(t, uint64(10_000), f.tokens.BalanceOf(bob))

	err = f.ledger.Sell(bob, c.ConditionID, 0, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestReportOnce(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)

	_, err := f.ledger.Report(reporter, questionID, []uint64{0, 0})
	assert.Error(t, err)

	got, err := f.ledger.Report(reporter, questionID, []uint64{1, 0})
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Equal(t, uint64(1), got.PayoutDenominator)
	assert.Equal(t, c.ConditionID, got.ConditionID)

	_, err = f.ledger.Report(reporter, questionID, []uint64{0, 1})
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

// A different reporter derives a different condition id, so an unauthorized
// report addresses a condition that does not exist.
func TestReportWrongReporter(t *testing.T) {
	f := newFixture(t)
	f.prepare(t)

	_, err := f.ledger.Report(alice, questionID, []uint64{1, 0})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMergeForbiddenAfterResolution(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)

	require.NoError(t, f.ledger.Split(alice, c.ConditionID, 100))
	_, err := f.ledger.Report(reporter, questionID, []uint64{1, 0})
	require.NoError(t, err)

	err = f.ledger.Merge(alice, c.ConditionID, 100)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

// Resolution only redistributes; no path may cash a losing side out 1:1
// against the collateral backing the winners.
func TestTradingFrozenAfterResolution(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)

	require.NoError(t, f.ledger.AddLiquidity(alice, c.ConditionID, 200))
	require.NoError(t, f.ledger.Buy(bob, c.ConditionID, 1, 100))

	_, err := f.ledger.Report(reporter, questionID, []uint64{1, 0})
	require.NoError(t, err)

	err = f.ledger.Sell(bob, c.ConditionID, 1, 100)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	err = f.ledger.Buy(bob, c.ConditionID, 0, 10)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	err = f.ledger.Split(bob, c.ConditionID, 10)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	err = f.ledger.AddLiquidity(alice, c.ConditionID, 10)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	// Nothing moved.
	assert.Equal(t, uint64(300), f.ledger.CollateralOf(c.ConditionID))
	assert.Equal(t, uint64(100), f.ledger.BalanceOf(bob, c.ConditionID, 1))
}

// A redeem that cannot be paid must not burn the holder's units.
func TestRedeemFailureLeavesUnitsIntact(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)

	require.NoError(t, f.ledger.Split(alice, c.ConditionID, 100))
	_, err := f.ledger.Report(reporter, questionID, []uint64{1, 0})
	require.NoError(t, err)

	// Drain the condition's backing out of band.
	require.NoError(t, f.vault.Release(vault.ConditionKey(c.ConditionID), bob, 100))

	_, err = f.ledger.Redeem(alice, c.ConditionID, []uint64{1})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, uint64(100), f.ledger.BalanceOf(alice, c.ConditionID, 0))
}

func TestRedeemWinnersAndLosers(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)

	require.NoError(t, f.ledger.Split(alice, c.ConditionID, 100))
	// Alice keeps outcome 0, hands outcome 1 to Bob.
	require.NoError(t, f.ledger.Transfer(alice, bob, c.ConditionID, 1, 100))

	// No redemption before resolution.
	_, err := f.ledger.Redeem(alice, c.ConditionID, []uint64{1})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.ledger.Report(reporter, questionID, []uint64{1, 0})
	require.NoError(t, err)

	// Full weight on outcome 0: Alice collects 100.
	paid, err := f.ledger.Redeem(alice, c.ConditionID, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), paid)
	assert.Equal(t, uint64(10_000), f.tokens.BalanceOf(alice))
	assert.Equal(t, uint64(0), f.ledger.BalanceOf(alice, c.ConditionID, 0))

	// The losing side pays zero but still burns.
	paid, err = f.ledger.Redeem(bob, c.ConditionID, []uint64{2})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), paid)
	assert.Equal(t, uint64(0), f.ledger.BalanceOf(bob, c.ConditionID, 1))

	assert.Equal(t, uint64(0), f.ledger.CollateralOf(c.ConditionID))
}

func TestRedeemIsIdempotentPerHolder(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)

	require.NoError(t, f.ledger.Split(alice, c.ConditionID, 100))
	_, err := f.ledger.Report(reporter, questionID, []uint64{1, 0})
	require.NoError(t, err)

	paid, err := f.ledger.Redeem(alice, c.ConditionID, []uint64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), paid)

	// Units are burned; a second redeem pays nothing.
	paid, err = f.ledger.Redeem(alice, c.ConditionID, []uint64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), paid)
}

// Resolution redistributes collateral across holders but never changes the
// ledger's total until redemption.
func TestCollateralConservation(t *testing.T) {
	f := newFixture(t)
	c := f.prepare(t)

	require.NoError(t, f.ledger.AddLiquidity(alice, c.ConditionID, 300))
	require.NoError(t, f.ledger.Split(bob, c.ConditionID, 100))
	require.NoError(t, f.ledger.Buy(bob, c.ConditionID, 0, 50))
	assert.Equal(t, uint64(450), f.ledger.CollateralOf(c.ConditionID))

	_, err := f.ledger.Report(reporter, questionID, []uint64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(450), f.ledger.CollateralOf(c.ConditionID))

	// Even split: each side redeems at half weight.
	paid, err := f.ledger.Redeem(bob, c.ConditionID, []uint64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(125), paid) // 150/2 + 100/2
	assert.Equal(t, uint64(325), f.ledger.CollateralOf(c.ConditionID))
}
