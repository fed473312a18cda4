package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/ledger"
	"github.com/alanyoungcy/stakeboard/internal/oracle"
)

// LedgerService fronts the outcome position ledger and the oracle hook with
// persistence and event fan-out. Conditions are mirrored to PostgreSQL on
// prepare and on resolution; position balances stay in the ledger.
type LedgerService struct {
	ledger     *ledger.Ledger
	hook       *oracle.Hook
	conditions domain.ConditionStore
	locks      domain.LockManager
	pub        *Publisher
	logger     *slog.Logger
}

// NewLedgerService creates a LedgerService with all required dependencies.
// conditions and locks may be nil.
func NewLedgerService(
	l *ledger.Ledger,
	hook *oracle.Hook,
	conditions domain.ConditionStore,
	locks domain.LockManager,
	pub *Publisher,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		ledger:     l,
		hook:       hook,
		conditions: conditions,
		locks:      locks,
		pub:        pub,
		logger:     logger.With(slog.String("component", "ledger_service")),
	}
}

// persistCondition mirrors a condition row; best-effort.
func (s *LedgerService) persistCondition(ctx context.Context, c domain.Condition) {
	if s.conditions == nil {
		return
	}
	if err := s.conditions.Upsert(ctx, c); err != nil {
		s.logger.ErrorContext(ctx, "condition upsert failed",
			slog.String("condition_id", c.ConditionID),
			slog.String("error", err.Error()),
		)
	}
}

// Prepare registers a new condition under the configured reporter.
func (s *LedgerService) Prepare(ctx context.Context, questionID string, outcomeCount uint) (domain.Condition, error) {
	c, err := s.hook.Prepare(questionID, outcomeCount)
	if err != nil {
		return domain.Condition{}, err
	}

	s.persistCondition(ctx, c)
	s.pub.emit(ctx, domain.EventConditionPrepared, c.ConditionID, map[string]any{
		"question_id":   c.QuestionID,
		"outcome_count": c.OutcomeCount,
	})
	return c, nil
}

// Report records the payout vector for a condition, exactly once. The caller
// must be the configured reporter.
func (s *LedgerService) Report(ctx context.Context, caller, questionID string, payouts []uint64) (domain.Condition, error) {
	var c domain.Condition
	err := withLock(ctx, s.locks, "condition:"+questionID, func() error {
		var err error
		c, err = s.hook.Report(caller, questionID, payouts)
		return err
	})
	if err != nil {
		return domain.Condition{}, err
	}

	s.persistCondition(ctx, c)
	s.pub.emit(ctx, domain.EventConditionResolved, c.ConditionID, map[string]any{
		"payouts":     c.PayoutNumerators,
		"denominator": c.PayoutDenominator,
	})
	return c, nil
}

// Condition returns one condition from the ledger.
func (s *LedgerService) Condition(ctx context.Context, conditionID string) (domain.Condition, error) {
	return s.ledger.Condition(conditionID)
}

// Split locks collateral and mints the full outcome partition to the holder.
func (s *LedgerService) Split(ctx context.Context, holder, conditionID string, amount uint64) error {
	return withLock(ctx, s.locks, "condition:"+conditionID, func() error {
		return s.ledger.Split(holder, conditionID, amount)
	})
}

// Merge burns a full partition and releases the matching collateral.
func (s *LedgerService) Merge(ctx context.Context, holder, conditionID string, amount uint64) error {
	return withLock(ctx, s.locks, "condition:"+conditionID, func() error {
		return s.ledger.Merge(holder, conditionID, amount)
	})
}

// AddLiquidity mints a full partition into the trading reserve.
func (s *LedgerService) AddLiquidity(ctx context.Context, funder, conditionID string, amount uint64) error {
	return withLock(ctx, s.locks, "condition:"+conditionID, func() error {
		return s.ledger.AddLiquidity(funder, conditionID, amount)
	})
}

// Buy purchases outcome units from the reserve at par.
func (s *LedgerService) Buy(ctx context.Context, holder, conditionID string, outcome uint, amount uint64) error {
	return withLock(ctx, s.locks, "condition:"+conditionID, func() error {
		return s.ledger.Buy(holder, conditionID, outcome, amount)
	})
}

// Sell returns outcome units to the reserve at par.
func (s *LedgerService) Sell(ctx context.Context, holder, conditionID string, outcome uint, amount uint64) error {
	return withLock(ctx, s.locks, "condition:"+conditionID, func() error {
		return s.ledger.Sell(holder, conditionID, outcome, amount)
	})
}

// Redeem burns the holder's units in the given index sets and pays out per the
// reported payout vector.
func (s *LedgerService) Redeem(ctx context.Context, holder, conditionID string, indexSets []uint64) (uint64, error) {
	var paid uint64
	err := withLock(ctx, s.locks, "condition:"+conditionID, func() error {
		var err error
		paid, err = s.ledger.Redeem(holder, conditionID, indexSets)
		return err
	})
	return paid, err
}

// BalanceOf returns a holder's units of one outcome.
func (s *LedgerService) BalanceOf(ctx context.Context, holder, conditionID string, outcome uint) uint64 {
	return s.ledger.BalanceOf(holder, conditionID, outcome)
}

// ListUnresolved returns persisted conditions awaiting a report.
func (s *LedgerService) ListUnresolved(ctx context.Context, opts domain.ListOpts) ([]domain.Condition, error) {
	if s.conditions == nil {
		return nil, nil
	}
	return s.conditions.ListUnresolved(ctx, opts)
}
