package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

func TestDepositAndRelease(t *testing.T) {
	tokens := NewMemoryLedger()
	tokens.Mint("alice", 500)
	v := New(tokens)

	require.NoError(t, v.Deposit("market:1", "alice", 300))
	assert.Equal(t, uint64(300), v.Held("market:1"))
	assert.Equal(t, uint64(300), v.TotalHeld())
	assert.Equal(t, uint64(200), tokens.BalanceOf("alice"))

	require.NoError(t, v.Release("market:1", "bob", 300))
	assert.Equal(t, uint64(0), v.Held("market:1"))
	assert.Equal(t, uint64(300), tokens.BalanceOf("bob"))
}

func TestDepositAllOrNothing(t *testing.T) {
	tokens := NewMemoryLedger()
	tokens.Mint("alice", 100)
	v := New(tokens)

	err := v.Deposit("market:1", "alice", 101)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, uint64(0), v.Held("market:1"))
	assert.Equal(t, uint64(100), tokens.BalanceOf("alice"))
}

func TestReleaseCappedByAttribution(t *testing.T) {
	tokens := NewMemoryLedger()
	tokens.Mint("alice", 500)
	v := New(tokens)

	require.NoError(t, v.Deposit("market:1", "alice", 200))
	require.NoError(t, v.Deposit("market:2", "alice", 300))

	// One market can never drain another's collateral.
	err := v.Release("market:1", "bob", 201)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, uint64(200), v.Held("market:1"))
	assert.Equal(t, uint64(300), v.Held("market:2"))
}

func TestZeroAmountRejected(t *testing.T) {
	v := New(NewMemoryLedger())
	assert.ErrorIs(t, v.Deposit("k", "a", 0), domain.ErrAmountZero)
	assert.ErrorIs(t, v.Release("k", "a", 0), domain.ErrAmountZero)
}

func TestAttributionKeys(t *testing.T) {
	assert.Equal(t, "market:7", MarketKey(7))
	assert.Equal(t, "bounty:7", BountyKey(7))
	assert.Equal(t, "condition:0xab", ConditionKey("0xab"))
}
