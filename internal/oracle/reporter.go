// Package oracle is the trusted-reporter hook for resolving conditions. There
// is no internal consensus: one authorized reporter per condition declares the
// winning outcome vector, exactly once, and the ledger takes it from there.
package oracle

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/stakeboard/internal/crypto"
	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/ledger"
)

// Hook binds a reporter identity to the position ledger.
type Hook struct {
	ledger   *ledger.Ledger
	reporter string
	logger   *slog.Logger
}

// New creates a Hook for the given reporter identity. The reporter's signing
// key is resolved via crypto.LoadReporterKey at wiring time; only the derived
// identity lives here.
func New(l *ledger.Ledger, reporter string, logger *slog.Logger) *Hook {
	return &Hook{
		ledger:   l,
		reporter: reporter,
		logger:   logger.With(slog.String("component", "oracle")),
	}
}

// Reporter returns the hook's reporter identity.
func (h *Hook) Reporter() string { return h.reporter }

// Prepare registers a new condition under this hook's reporter identity and
// returns it.
func (h *Hook) Prepare(questionID string, outcomeCount uint) (domain.Condition, error) {
	return h.ledger.Prepare(h.reporter, questionID, outcomeCount)
}

// Report declares the payout vector for a question. The caller must be the
// hook's own reporter; reporting twice on the same condition fails inside the
// ledger with ErrAlreadyResolved.
func (h *Hook) Report(caller, questionID string, payouts []uint64) (domain.Condition, error) {
	if caller != h.reporter {
		return domain.Condition{}, fmt.Errorf("oracle: report %s: %w", questionID, domain.ErrUnauthorized)
	}
	if _, ok := crypto.ParseHash(questionID); !ok {
		return domain.Condition{}, fmt.Errorf("oracle: report: invalid question id %q", questionID)
	}

	c, err := h.ledger.Report(h.reporter, questionID, payouts)
	if err != nil {
		return domain.Condition{}, err
	}
	h.logger.Info("condition resolved",
		slog.String("condition_id", c.ConditionID),
		slog.String("question_id", c.QuestionID),
		slog.Uint64("payout_denominator", c.PayoutDenominator),
	)
	return c, nil
}
