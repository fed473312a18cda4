package vault

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// vaultAccount is the ledger account holding all vault-custodied funds.
const vaultAccount = "__vault__"

// MemoryLedger is an in-process TokenLedger for local mode and tests. Real
// deployments put the collateral token behind the same interface.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
}

// NewMemoryLedger creates an empty in-memory token ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]uint64)}
}

// Mint credits a holder out of thin air. Test and local-mode setup only.
func (l *MemoryLedger) Mint(holder string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[holder] += amount
}

// TransferIn moves amount from the holder into vault custody, all or nothing.
func (l *MemoryLedger) TransferIn(from string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("token: %s: %w", from, domain.ErrInsufficientFunds)
	}
	l.balances[from] -= amount
	l.balances[vaultAccount] += amount
	return nil
}

// TransferOut moves amount from vault custody to the recipient.
func (l *MemoryLedger) TransferOut(to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[vaultAccount] < amount {
		return fmt.Errorf("token: vault: %w", domain.ErrInsufficientFunds)
	}
	l.balances[vaultAccount] -= amount
	l.balances[to] += amount
	return nil
}

// BalanceOf returns the holder's free (non-custodied) balance.
func (l *MemoryLedger) BalanceOf(holder string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[holder]
}

var _ TokenLedger = (*MemoryLedger)(nil)
