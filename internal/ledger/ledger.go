// Package ledger implements the outcome-position ledger: vault collateral is
// split into a full partition of outcome positions, the positions trade 1:1
// against the ledger's own reserve, and after oracle resolution minting and
// trading freeze and the winning side redeems 1:1 against the remaining
// collateral. There is no price curve; reserve exhaustion is the only trading
// limit.
package ledger

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/vault"
)

// reserveHolder is the synthetic balance holder for the ledger's own reserve
// of each side, sourced by AddLiquidity and drawn down by Buy.
const reserveHolder = "__reserve__"

// Ledger owns condition records and all outcome-position balances. Collateral
// backing each condition is custodied by the vault under the condition's
// attribution key, so the conservation invariant is directly observable.
type Ledger struct {
	mu         sync.Mutex
	clock      domain.Clock
	vault      *vault.Vault
	collateral string // collateral token identity folded into position ids
	conditions map[string]*domain.Condition
	balances   map[common.Hash]map[string]uint64 // positionID -> holder -> units
	inFlight   map[string]bool                   // per-condition re-entrancy flag
}

// New creates a Ledger for one collateral identity.
func New(v *vault.Vault, clock domain.Clock, collateral string) *Ledger {
	return &Ledger{
		clock:      clock,
		vault:      v,
		collateral: collateral,
		conditions: make(map[string]*domain.Condition),
		balances:   make(map[common.Hash]map[string]uint64),
		inFlight:   make(map[string]bool),
	}
}

func (l *Ledger) enter(conditionID string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight[conditionID] {
		return nil, domain.ErrReentrancy
	}
	l.inFlight[conditionID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.inFlight, conditionID)
	}, nil
}

// positionOf returns the position id for one outcome index of a condition.
func (l *Ledger) positionOf(conditionID common.Hash, outcome uint) common.Hash {
	return PositionID(l.collateral, CollectionID(conditionID, 1<<outcome))
}

func (l *Ledger) credit(pos common.Hash, holder string, amount uint64) {
	m, ok := l.balances[pos]
	if !ok {
		m = make(map[string]uint64)
		l.balances[pos] = m
	}
	m[holder] += amount
}

func (l *Ledger) debit(pos common.Hash, holder string, amount uint64) error {
	if l.balances[pos][holder] < amount {
		return domain.ErrInsufficientFunds
	}
	l.balances[pos][holder] -= amount
	return nil
}

// Prepare registers a condition exactly once. outcomeCount must be at least 2.
func (l *Ledger) Prepare(oracle, questionID string, outcomeCount uint) (domain.Condition, error) {
	qid, ok := parseQuestionID(questionID)
	if !ok {
		return domain.Condition{}, fmt.Errorf("ledger: prepare: invalid question id %q", questionID)
	}
	if outcomeCount < 2 || outcomeCount > 64 {
		return domain.Condition{}, fmt.Errorf("ledger: prepare: outcome count %d out of range", outcomeCount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := ConditionID(oracle, qid, outcomeCount).Hex()
	if _, exists := l.conditions[id]; exists {
		return domain.Condition{}, fmt.Errorf("ledger: prepare %s: %w", id, domain.ErrAlreadyExists)
	}

	c := &domain.Condition{
		ConditionID:  id,
		Oracle:       oracle,
		QuestionID:   qid.Hex(),
		OutcomeCount: outcomeCount,
		CreatedAt:    l.clock.Now(),
	}
	l.conditions[id] = c
	return *c, nil
}

// Condition returns a snapshot of a prepared condition.
func (l *Ledger) Condition(conditionID string) (domain.Condition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.conditions[conditionID]
	if !ok {
		return domain.Condition{}, domain.ErrNotFound
	}
	return *c, nil
}

// Split locks amount collateral and mints amount units of every outcome
// position in the partition to the holder. Forbidden once the condition is
// resolved.
func (l *Ledger) Split(holder, conditionID string, amount uint64) error {
	release, err := l.enter(conditionID)
	if err != nil {
		return err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Resolved {
		return fmt.Errorf("ledger: split %s: %w", conditionID, domain.ErrAlreadyResolved)
	}
	if amount == 0 {
		return domain.ErrAmountZero
	}
	if err := l.vault.Deposit(vault.ConditionKey(conditionID), holder, amount); err != nil {
		return err
	}

	cid := common.HexToHash(conditionID)
	for i := uint(0); i < c.OutcomeCount; i++ {
		l.credit(l.positionOf(cid, i), holder, amount)
	}
	return nil
}

// Merge is the inverse of Split: burns amount units of every outcome position
// held by the holder and releases amount collateral. Forbidden once the
// condition is resolved.
func (l *Ledger) Merge(holder, conditionID string, amount uint64) error {
	release, err := l.enter(conditionID)
	if err != nil {
		return err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Resolved {
		return fmt.Errorf("ledger: merge %s: %w", conditionID, domain.ErrAlreadyResolved)
	}
	if amount == 0 {
		return domain.ErrAmountZero
	}

	cid := common.HexToHash(conditionID)
	// Check the full partition before burning anything.
	for i := uint(0); i < c.OutcomeCount; i++ {
		if l.balances[l.positionOf(cid, i)][holder] < amount {
			return fmt.Errorf("ledger: merge %s: %w", conditionID, domain.ErrInsufficientFunds)
		}
	}
	if err := l.vault.Release(vault.ConditionKey(conditionID), holder, amount); err != nil {
		return err
	}
	for i := uint(0); i < c.OutcomeCount; i++ {
		_ = l.debit(l.positionOf(cid, i), holder, amount)
	}
	return nil
}

// AddLiquidity splits the funder's collateral into the ledger's own reserve of
// every side, seeding 1:1 Buy inventory. Typically called by a market creator
// at setup. Forbidden once the condition is resolved.
func (l *Ledger) AddLiquidity(funder, conditionID string, amount uint64) error {
	release, err := l.enter(conditionID)
	if err != nil {
		return err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Resolved {
		return fmt.Errorf("ledger: add liquidity %s: %w", conditionID, domain.ErrAlreadyResolved)
	}
	if amount == 0 {
		return domain.ErrAmountZero
	}
	if err := l.vault.Deposit(vault.ConditionKey(conditionID), funder, amount); err != nil {
		return err
	}

	cid := common.HexToHash(conditionID)
	for i := uint(0); i < c.OutcomeCount; i++ {
		l.credit(l.positionOf(cid, i), reserveHolder, amount)
	}
	return nil
}

// Buy exchanges amount collateral for amount units of one outcome, drawn from
// the ledger's reserve. Fails if the reserve cannot cover it. Forbidden once
// the condition is resolved.
func (l *Ledger) Buy(holder, conditionID string, outcome uint, amount uint64) error {
	release, err := l.enter(conditionID)
	if err != nil {
		return err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Resolved {
		return fmt.Errorf("ledger: buy %s: %w", conditionID, domain.ErrAlreadyResolved)
	}
	if outcome >= c.OutcomeCount {
		return fmt.Errorf("ledger: buy %s: outcome %d out of range", conditionID, outcome)
	}
	if amount == 0 {
		return domain.ErrAmountZero
	}

	pos := l.positionOf(common.HexToHash(conditionID), outcome)
	if l.balances[pos][reserveHolder] < amount {
		return fmt.Errorf("ledger: buy %s: %w", conditionID, domain.ErrInsufficientReserve)
	}
	if err := l.vault.Deposit(vault.ConditionKey(conditionID), holder, amount); err != nil {
		return err
	}
	_ = l.debit(pos, reserveHolder, amount)
	l.credit(pos, holder, amount)
	return nil
}

// Sell is the inverse of Buy: returns amount units of one outcome to the
// reserve in exchange for amount collateral. Forbidden once the condition is
// resolved; a losing side must go through Redeem, not cash out 1:1 against the
// collateral backing the winners.
func (l *Ledger) Sell(holder, conditionID string, outcome uint, amount uint64) error {
	release, err := l.enter(conditionID)
	if err != nil {
		return err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Resolved {
		return fmt.Errorf("ledger: sell %s: %w", conditionID, domain.ErrAlreadyResolved)
	}
	if outcome >= c.OutcomeCount {
		return fmt.Errorf("ledger: sell %s: outcome %d out of range", conditionID, outcome)
	}
	if amount == 0 {
		return domain.ErrAmountZero
	}

	pos := l.positionOf(common.HexToHash(conditionID), outcome)
	if l.balances[pos][holder] < amount {
		return fmt.Errorf("ledger: sell %s: %w", conditionID, domain.ErrInsufficientFunds)
	}
	if err := l.vault.Release(vault.ConditionKey(conditionID), holder, amount); err != nil {
		return err
	}
	_ = l.debit(pos, holder, amount)
	l.credit(pos, reserveHolder, amount)
	return nil
}

// Report records the payout vector for a condition, exactly once,
// irreversibly. Only the oracle named at Prepare may report: the condition id
// is re-derived from the caller's identity, so a different reporter simply
// addresses a condition that does not exist.
func (l *Ledger) Report(oracle, questionID string, payouts []uint64) (domain.Condition, error) {
	qid, ok := parseQuestionID(questionID)
	if !ok {
		return domain.Condition{}, fmt.Errorf("ledger: report: invalid question id %q", questionID)
	}

	id := ConditionID(oracle, qid, uint(len(payouts))).Hex()
	release, err := l.enter(id)
	if err != nil {
		return domain.Condition{}, err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok2 := l.conditions[id]
	if !ok2 {
		return domain.Condition{}, domain.ErrNotFound
	}
	if c.Resolved {
		return domain.Condition{}, fmt.Errorf("ledger: report %s: %w", id, domain.ErrAlreadyResolved)
	}

	var denom uint64
	for _, p := range payouts {
		denom += p
	}
	if denom == 0 {
		return domain.Condition{}, fmt.Errorf("ledger: report %s: payout vector is all zero", id)
	}

	now := l.clock.Now()
	c.PayoutNumerators = append([]uint64(nil), payouts...)
	c.PayoutDenominator = denom
	c.Resolved = true
	c.ResolvedAt = &now
	return *c, nil
}

// Redeem pays the holder balance × payout-weight for each index set they hold
// units of, then burns those units whether or not the payout was nonzero. An
// index set with no matching payout bit contributes zero. Units burn only
// after the payout clears; a failed release leaves every balance untouched.
func (l *Ledger) Redeem(holder, conditionID string, indexSets []uint64) (uint64, error) {
	release, err := l.enter(conditionID)
	if err != nil {
		return 0, err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if !c.Resolved {
		return 0, fmt.Errorf("ledger: redeem %s: %w", conditionID, domain.ErrInvalidState)
	}

	cid := common.HexToHash(conditionID)
	var payout uint64
	burns := make([]common.Hash, 0, len(indexSets))
	for _, set := range indexSets {
		if set == 0 || set >= 1<<c.OutcomeCount {
			return 0, fmt.Errorf("ledger: redeem %s: index set %d out of range", conditionID, set)
		}
		pos := PositionID(l.collateral, CollectionID(cid, set))
		bal := l.balances[pos][holder]
		if bal == 0 {
			continue
		}

		var numerator uint64
		for i := uint(0); i < c.OutcomeCount; i++ {
			if set&(1<<i) != 0 {
				numerator += c.PayoutNumerators[i]
			}
		}
		payout += mulDiv(bal, numerator, c.PayoutDenominator)
		burns = append(burns, pos)
	}

	if payout > 0 {
		if err := l.vault.Release(vault.ConditionKey(conditionID), holder, payout); err != nil {
			return 0, err
		}
	}
	// Burn regardless of payout, but never before the payout is out.
	for _, pos := range burns {
		delete(l.balances[pos], holder)
	}
	return payout, nil
}

// mulDiv computes a*b/div with a 128-bit intermediate so large unit balances
// cannot wrap. The payout numerator never exceeds the denominator, so the
// quotient always fits uint64.
func mulDiv(a, b, div uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, div)
	return q
}

// BalanceOf returns a holder's units of one outcome position.
func (l *Ledger) BalanceOf(holder, conditionID string, outcome uint) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[l.positionOf(common.HexToHash(conditionID), outcome)][holder]
}

// ReserveOf returns the ledger's own tradable reserve of one outcome.
func (l *Ledger) ReserveOf(conditionID string, outcome uint) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[l.positionOf(common.HexToHash(conditionID), outcome)][reserveHolder]
}

// Transfer moves units of one outcome position between holders.
func (l *Ledger) Transfer(from, to, conditionID string, outcome uint, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == 0 {
		return domain.ErrAmountZero
	}
	pos := l.positionOf(common.HexToHash(conditionID), outcome)
	if err := l.debit(pos, from, amount); err != nil {
		return fmt.Errorf("ledger: transfer %s: %w", conditionID, err)
	}
	l.credit(pos, to, amount)
	return nil
}

// CollateralOf returns the collateral the vault holds for a condition:
// unsplit liquidity plus collateral reserved for unresolved, unmerged pairs.
func (l *Ledger) CollateralOf(conditionID string) uint64 {
	return l.vault.Held(vault.ConditionKey(conditionID))
}

func parseQuestionID(s string) (common.Hash, bool) {
	raw := common.FromHex(s)
	if len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}
