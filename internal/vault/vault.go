// Package vault custodies all staked collateral. Every movement is an atomic
// transfer against the value-transfer collaborator; the vault additionally
// attributes its holdings to the coordination entity that locked them, so the
// per-market and per-bounty balance invariants can be checked at any time.
package vault

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// TokenLedger is the value-transfer collaborator. Implementations must be
// atomic: either the full amount moves or the call fails with no effect. Calls
// never block; they run inside the engines' serialized critical sections.
type TokenLedger interface {
	TransferIn(from string, amount uint64) error
	TransferOut(to string, amount uint64) error
	BalanceOf(holder string) uint64
}

// Vault tracks collateral custody per attribution key (e.g. "market:7").
type Vault struct {
	mu     sync.Mutex
	ledger TokenLedger
	held   map[string]uint64
	total  uint64
}

// New creates a Vault backed by the given token ledger.
func New(ledger TokenLedger) *Vault {
	return &Vault{
		ledger: ledger,
		held:   make(map[string]uint64),
	}
}

// Deposit pulls amount from the payer and attributes it to key. On transfer
// failure nothing is recorded.
func (v *Vault) Deposit(key, from string, amount uint64) error {
	if amount == 0 {
		return domain.ErrAmountZero
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ledger.TransferIn(from, amount); err != nil {
		return fmt.Errorf("vault: deposit %s: %w", key, err)
	}
	v.held[key] += amount
	v.total += amount
	return nil
}

// Release pays amount to the recipient out of key's attribution. It fails
// before any transfer if the attribution does not cover the amount, so the
// vault can never pay out more than an entity locked.
func (v *Vault) Release(key, to string, amount uint64) error {
	if amount == 0 {
		return domain.ErrAmountZero
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.held[key] < amount {
		return fmt.Errorf("vault: release %s: %w", key, domain.ErrInsufficientFunds)
	}
	if err := v.ledger.TransferOut(to, amount); err != nil {
		return fmt.Errorf("vault: release %s: %w", key, err)
	}
	v.held[key] -= amount
	v.total -= amount
	if v.held[key] == 0 {
		delete(v.held, key)
	}
	return nil
}

// Held returns the collateral currently attributed to key.
func (v *Vault) Held(key string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.held[key]
}

// TotalHeld returns the vault's total custodied collateral.
func (v *Vault) TotalHeld() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.total
}

// MarketKey is the attribution key for an escrow market's stakes.
func MarketKey(id uint64) string { return fmt.Sprintf("market:%d", id) }

// BountyKey is the attribution key for a bounty's pool and worker stakes.
func BountyKey(id uint64) string { return fmt.Sprintf("bounty:%d", id) }

// ConditionKey is the attribution key for collateral backing a condition's
// outstanding outcome positions.
func ConditionKey(conditionID string) string { return "condition:" + conditionID }
