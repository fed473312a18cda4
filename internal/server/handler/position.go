package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// LedgerService defines the methods that the position handler requires from
// the service layer.
type LedgerService interface {
	Prepare(ctx context.Context, questionID string, outcomeCount uint) (domain.Condition, error)
	Report(ctx context.Context, caller, questionID string, payouts []uint64) (domain.Condition, error)
	Condition(ctx context.Context, conditionID string) (domain.Condition, error)
	Split(ctx context.Context, holder, conditionID string, amount uint64) error
	Merge(ctx context.Context, holder, conditionID string, amount uint64) error
	AddLiquidity(ctx context.Context, funder, conditionID string, amount uint64) error
	Buy(ctx context.Context, holder, conditionID string, outcome uint, amount uint64) error
	Sell(ctx context.Context, holder, conditionID string, outcome uint, amount uint64) error
	Redeem(ctx context.Context, holder, conditionID string, indexSets []uint64) (uint64, error)
	BalanceOf(ctx context.Context, holder, conditionID string, outcome uint) uint64
	ListUnresolved(ctx context.Context, opts domain.ListOpts) ([]domain.Condition, error)
}

// PositionHandler serves condition and outcome position HTTP endpoints.
type PositionHandler struct {
	positions LedgerService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and
// logger.
func NewPositionHandler(positions LedgerService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

type prepareConditionRequest struct {
	QuestionID   string `json:"question_id"`
	OutcomeCount uint   `json:"outcome_count"`
}

// PrepareCondition registers a new condition under the configured reporter.
// POST /api/conditions
func (h *PositionHandler) PrepareCondition(w http.ResponseWriter, r *http.Request) {
	var req prepareConditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c, err := h.positions.Prepare(r.Context(), req.QuestionID, req.OutcomeCount)
	if err != nil {
		h.writeDomainError(w, r, "prepare condition", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type reportRequest struct {
	Reporter   string   `json:"reporter"`
	QuestionID string   `json:"question_id"`
	Payouts    []uint64 `json:"payouts"`
}

// ReportPayouts records the payout vector for a question, exactly once.
// POST /api/conditions/report
func (h *PositionHandler) ReportPayouts(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c, err := h.positions.Report(r.Context(), req.Reporter, req.QuestionID, req.Payouts)
	if err != nil {
		h.writeDomainError(w, r, "report payouts", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type positionMoveRequest struct {
	Holder string `json:"holder"`
	Amount uint64 `json:"amount"`
}

// SplitPosition locks collateral and mints the full outcome partition.
// POST /api/conditions/{id}/split
func (h *PositionHandler) SplitPosition(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "split position", h.positions.Split)
}

// MergePosition burns a full partition and releases collateral.
// POST /api/conditions/{id}/merge
func (h *PositionHandler) MergePosition(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "merge position", h.positions.Merge)
}

// AddLiquidity mints a full partition into the trading reserve.
// POST /api/conditions/{id}/liquidity
func (h *PositionHandler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "add liquidity", h.positions.AddLiquidity)
}

// move handles the shared holder/amount request shape for split, merge and
// liquidity.
func (h *PositionHandler) move(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, string, string, uint64) error) {
	conditionID := pathParam(r, "id")
	var req positionMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := fn(r.Context(), req.Holder, conditionID, req.Amount); err != nil {
		h.writeDomainError(w, r, action, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tradeRequest struct {
	Holder  string `json:"holder"`
	Outcome uint   `json:"outcome"`
	Amount  uint64 `json:"amount"`
}

// BuyPosition purchases outcome units from the reserve at par.
// POST /api/conditions/{id}/buy
func (h *PositionHandler) BuyPosition(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, "buy position", h.positions.Buy)
}

// SellPosition returns outcome units to the reserve at par.
// POST /api/conditions/{id}/sell
func (h *PositionHandler) SellPosition(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, "sell position", h.positions.Sell)
}

func (h *PositionHandler) trade(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, string, string, uint, uint64) error) {
	conditionID := pathParam(r, "id")
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := fn(r.Context(), req.Holder, conditionID, req.Outcome, req.Amount); err != nil {
		h.writeDomainError(w, r, action, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type redeemRequest struct {
	Holder    string   `json:"holder"`
	IndexSets []uint64 `json:"index_sets"`
}

// RedeemPosition burns units in the given index sets and pays out per the
// reported payout vector.
// POST /api/conditions/{id}/redeem
func (h *PositionHandler) RedeemPosition(w http.ResponseWriter, r *http.Request) {
	conditionID := pathParam(r, "id")
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	paid, err := h.positions.Redeem(r.Context(), req.Holder, conditionID, req.IndexSets)
	if err != nil {
		h.writeDomainError(w, r, "redeem position", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"paid": paid})
}

// GetCondition returns one condition by its derived ID.
// GET /api/conditions/{id}
func (h *PositionHandler) GetCondition(w http.ResponseWriter, r *http.Request) {
	conditionID := pathParam(r, "id")
	c, err := h.positions.Condition(r.Context(), conditionID)
	if err != nil {
		h.writeDomainError(w, r, "get condition", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetBalance returns a holder's units of one outcome.
// GET /api/conditions/{id}/balance?holder=0x...&outcome=0
func (h *PositionHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	conditionID := pathParam(r, "id")
	q := r.URL.Query()

	holder := q.Get("holder")
	if holder == "" {
		writeError(w, http.StatusBadRequest, "missing holder")
		return
	}
	outcome, ok := queryUint(w, q.Get("outcome"), "outcome")
	if !ok {
		return
	}

	balance := h.positions.BalanceOf(r.Context(), holder, conditionID, uint(outcome))
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

// ListUnresolved returns persisted conditions awaiting a report.
// GET /api/conditions?limit=50&offset=0
func (h *PositionHandler) ListUnresolved(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	conditions, err := h.positions.ListUnresolved(r.Context(), opts)
	if err != nil {
		h.writeDomainError(w, r, "list conditions", err)
		return
	}
	if conditions == nil {
		conditions = []domain.Condition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conditions": conditions})
}

func (h *PositionHandler) writeDomainError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := domainStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "handler: "+action+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
