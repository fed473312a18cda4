// Package engine implements the per-task escrow state machine. All transitions
// are serialized and atomic: a call either completes fully (state change plus
// fund movement) or leaves the market and all balances untouched.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/stakeboard/internal/crypto"
	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/vault"
)

// Engine owns the arena of market records. Records are created append-only and
// mutated in place; history is never deleted.
type Engine struct {
	mu      sync.Mutex
	clock   domain.Clock
	vault   *vault.Vault
	guard   *reentrancyGuard
	markets []*domain.Market // arena; handle = index + 1
}

// New creates an Engine custodying stakes in the given vault.
func New(v *vault.Vault, clock domain.Clock) *Engine {
	return &Engine{
		clock: clock,
		vault: v,
		guard: newReentrancyGuard(),
	}
}

// get returns the arena record for id. Caller must hold e.mu.
func (e *Engine) get(id uint64) (*domain.Market, error) {
	if id == 0 || id > uint64(len(e.markets)) {
		return nil, domain.ErrNotFound
	}
	return e.markets[id-1], nil
}

// Get returns a snapshot of the market.
func (e *Engine) Get(id uint64) (domain.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}
	return *m, nil
}

// List returns snapshots of all markets, optionally filtered by status.
func (e *Engine) List(status domain.MarketStatus) []domain.Market {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Market, 0, len(e.markets))
	for _, m := range e.markets {
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, *m)
	}
	return out
}

// Create opens a new market: pulls the requester's stake into the vault and
// allocates the next sequential handle. The deadline must be strictly in the
// future and the stake positive.
func (e *Engine) Create(requester, description string, stake uint64, deadline time.Time, window time.Duration, scheme domain.ProofScheme) (domain.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if stake == 0 {
		return domain.Market{}, domain.ErrAmountZero
	}
	if !deadline.After(now) {
		return domain.Market{}, fmt.Errorf("engine: create: %w", domain.ErrDeadlinePassed)
	}
	switch scheme {
	case domain.ProofSchemeDirect, domain.ProofSchemeCommitReveal:
	default:
		return domain.Market{}, fmt.Errorf("engine: create: unknown proof scheme %q", scheme)
	}

	id := uint64(len(e.markets)) + 1
	if err := e.vault.Deposit(vault.MarketKey(id), requester, stake); err != nil {
		return domain.Market{}, err
	}

	m := &domain.Market{
		ID:            id,
		Requester:     requester,
		Description:   description,
		Stake:         stake,
		Scheme:        scheme,
		Status:        domain.MarketStatusOpen,
		CreatedAt:     now,
		Deadline:      deadline,
		DisputeWindow: window,
		UpdatedAt:     now,
	}
	e.markets = append(e.markets, m)
	return *m, nil
}

// Take stakes the deliverer side. Commit-reveal markets must supply the
// commitment hash here and move to Locked; direct markets move to Taken.
func (e *Engine) Take(id uint64, deliverer, commitment string) (domain.Market, error) {
	release, err := e.guard.enter(id)
	if err != nil {
		return domain.Market{}, err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}
	now := e.clock.Now()
	if m.Status != domain.MarketStatusOpen {
		return domain.Market{}, fmt.Errorf("engine: take market %d: %w", id, domain.ErrInvalidState)
	}
	if !now.Before(m.Deadline) {
		return domain.Market{}, fmt.Errorf("engine: take market %d: %w", id, domain.ErrDeadlinePassed)
	}

	next := domain.MarketStatusTaken
	if m.Scheme == domain.ProofSchemeCommitReveal {
		if _, ok := crypto.ParseHash(commitment); !ok {
			return domain.Market{}, fmt.Errorf("engine: take market %d: invalid commitment hash", id)
		}
		next = domain.MarketStatusLocked
	}

	if err := e.vault.Deposit(vault.MarketKey(id), deliverer, m.Stake); err != nil {
		return domain.Market{}, err
	}

	m.Deliverer = deliverer
	if m.Scheme == domain.ProofSchemeCommitReveal {
		m.Commitment = commitment
	}
	m.Status = next
	m.UpdatedAt = now
	return *m, nil
}

// SubmitProof records the deliverer's proof and opens the dispute window.
// For commit-reveal markets the revealed (proof, salt) pair must hash to the
// stored commitment; a mismatch is fatal with no state change and the stakes
// stay locked pending expiry. For direct markets any proof hash is accepted.
func (e *Engine) SubmitProof(id uint64, caller string, proof, salt []byte) (domain.Market, error) {
	release, err := e.guard.enter(id)
	if err != nil {
		return domain.Market{}, err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}
	now := e.clock.Now()
	if caller != m.Deliverer {
		return domain.Market{}, fmt.Errorf("engine: submit market %d: %w", id, domain.ErrUnauthorized)
	}
	if !now.Before(m.Deadline) {
		return domain.Market{}, fmt.Errorf("engine: submit market %d: %w", id, domain.ErrDeadlinePassed)
	}

	var next domain.MarketStatus
	switch m.Status {
	case domain.MarketStatusTaken:
		next = domain.MarketStatusClaimed
	case domain.MarketStatusLocked:
		commitment, ok := crypto.ParseHash(m.Commitment)
		if !ok || !crypto.VerifyReveal(commitment, proof, salt) {
			return domain.Market{}, fmt.Errorf("engine: submit market %d: %w", id, domain.ErrCommitMismatch)
		}
		next = domain.MarketStatusRevealed
	default:
		return domain.Market{}, fmt.Errorf("engine: submit market %d: %w", id, domain.ErrInvalidState)
	}

	dd := now.Add(m.DisputeWindow)
	m.ProofHash = crypto.HashProof(proof).Hex()
	m.DisputeDeadline = &dd
	m.Status = next
	m.UpdatedAt = now
	return *m, nil
}

// Settle pays the full combined stake to the deliverer once the dispute window
// has elapsed without a successful challenge. This is the sole payout path;
// there is no partial payout.
func (e *Engine) Settle(id uint64) (domain.Market, error) {
	release, err := e.guard.enter(id)
	if err != nil {
		return domain.Market{}, err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}
	now := e.clock.Now()
	if !m.Proved() {
		return domain.Market{}, fmt.Errorf("engine: settle market %d: %w", id, domain.ErrInvalidState)
	}
	if m.DisputeDeadline == nil || now.Before(*m.DisputeDeadline) {
		return domain.Market{}, fmt.Errorf("engine: settle market %d: %w", id, domain.ErrDisputeWindowOpen)
	}

	if err := e.vault.Release(vault.MarketKey(id), m.Deliverer, 2*m.Stake); err != nil {
		return domain.Market{}, err
	}

	m.Status = domain.MarketStatusCompleted
	m.SettledAt = &now
	m.UpdatedAt = now
	return *m, nil
}

// Cancel returns the requester's stake. Only the requester may cancel, and
// only while the market is still Open.
func (e *Engine) Cancel(id uint64, caller string) (domain.Market, error) {
	release, err := e.guard.enter(id)
	if err != nil {
		return domain.Market{}, err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}
	if m.Status != domain.MarketStatusOpen {
		return domain.Market{}, fmt.Errorf("engine: cancel market %d: %w", id, domain.ErrInvalidState)
	}
	if caller != m.Requester {
		return domain.Market{}, fmt.Errorf("engine: cancel market %d: %w", id, domain.ErrUnauthorized)
	}

	now := e.clock.Now()
	if err := e.vault.Release(vault.MarketKey(id), m.Requester, m.Stake); err != nil {
		return domain.Market{}, err
	}

	m.Status = domain.MarketStatusCancelled
	m.UpdatedAt = now
	return *m, nil
}

// Expire closes out a market whose deadline passed without an accepted proof.
// Callable by anyone. A deliverer who took but never proved forfeits their
// stake to the requester; an untaken market simply refunds the requester.
func (e *Engine) Expire(id uint64) (domain.Market, error) {
	release, err := e.guard.enter(id)
	if err != nil {
		return domain.Market{}, err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}
	now := e.clock.Now()
	if now.Before(m.Deadline) {
		return domain.Market{}, fmt.Errorf("engine: expire market %d: %w", id, domain.ErrDeadlineNotReached)
	}

	var refund uint64
	switch m.Status {
	case domain.MarketStatusOpen:
		refund = m.Stake
	case domain.MarketStatusTaken, domain.MarketStatusLocked:
		refund = 2 * m.Stake
	default:
		return domain.Market{}, fmt.Errorf("engine: expire market %d: %w", id, domain.ErrInvalidState)
	}

	if err := e.vault.Release(vault.MarketKey(id), m.Requester, refund); err != nil {
		return domain.Market{}, err
	}

	m.Status = domain.MarketStatusExpired
	m.UpdatedAt = now
	return *m, nil
}

// Dispute is the slashing hook for the dispute window. A real implementation
// needs a fraud-proof or voting mechanism before any transition to Slashed can
// exist, so this always returns ErrNotSupported and changes nothing.
func (e *Engine) Dispute(id uint64, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.get(id); err != nil {
		return err
	}
	_ = caller
	return fmt.Errorf("engine: dispute market %d: %w", id, domain.ErrNotSupported)
}
