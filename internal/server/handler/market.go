package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	Create(ctx context.Context, requester, description string, stake uint64, deadline time.Time, disputeWindow time.Duration, scheme domain.ProofScheme) (domain.Market, error)
	Take(ctx context.Context, id uint64, deliverer, commitment string) (domain.Market, error)
	SubmitProof(ctx context.Context, id uint64, caller string, proof, salt []byte) (domain.Market, error)
	Settle(ctx context.Context, id uint64) (domain.Market, error)
	Cancel(ctx context.Context, id uint64, caller string) (domain.Market, error)
	Expire(ctx context.Context, id uint64) (domain.Market, error)
	Dispute(ctx context.Context, id uint64, caller string) error
	Get(ctx context.Context, id uint64) (domain.Market, error)
	List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
}

// MarketHandler serves escrow market HTTP endpoints.
type MarketHandler struct {
	markets              MarketService
	defaultDisputeWindow time.Duration
	logger               *slog.Logger
}

// NewMarketHandler creates a MarketHandler. defaultDisputeWindow applies when
// a create request omits its dispute window.
func NewMarketHandler(markets MarketService, defaultDisputeWindow time.Duration, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets:              markets,
		defaultDisputeWindow: defaultDisputeWindow,
		logger:               logger,
	}
}

type createMarketRequest struct {
	Requester     string `json:"requester"`
	Description   string `json:"description"`
	Stake         uint64 `json:"stake"`
	Deadline      string `json:"deadline"`       // RFC 3339
	DisputeWindow string `json:"dispute_window"` // Go duration, e.g. "24h"; empty uses the server default
	Scheme        string `json:"scheme"`         // "direct" or "commit_reveal"
}

// CreateMarket opens a new escrow market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "deadline must be RFC 3339")
		return
	}

	window := h.defaultDisputeWindow
	if req.DisputeWindow != "" {
		window, err = time.ParseDuration(req.DisputeWindow)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid dispute_window")
			return
		}
	}

	scheme := domain.ProofScheme(req.Scheme)
	if scheme == "" {
		scheme = domain.ProofSchemeDirect
	}

	m, err := h.markets.Create(r.Context(), req.Requester, req.Description, req.Stake, deadline, window, scheme)
	if err != nil {
		h.writeDomainError(w, r, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type takeMarketRequest struct {
	Deliverer  string `json:"deliverer"`
	Commitment string `json:"commitment"` // hex, commit-reveal only
}

// TakeMarket assigns a deliverer to an open market.
// POST /api/markets/{id}/take
func (h *MarketHandler) TakeMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req takeMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, err := h.markets.Take(r.Context(), id, req.Deliverer, req.Commitment)
	if err != nil {
		h.writeDomainError(w, r, "take market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type submitProofRequest struct {
	Caller string `json:"caller"`
	Proof  string `json:"proof"` // hex payload
	Salt   string `json:"salt"`  // hex, commit-reveal only
}

// SubmitProof records the deliverer's proof.
// POST /api/markets/{id}/submit
func (h *MarketHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req submitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	proof, err := decodeHexField(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, "proof must be hex")
		return
	}
	var salt []byte
	if req.Salt != "" {
		salt, err = decodeHexField(req.Salt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "salt must be hex")
			return
		}
	}

	m, err := h.markets.SubmitProof(r.Context(), id, req.Caller, proof, salt)
	if err != nil {
		h.writeDomainError(w, r, "submit proof", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// SettleMarket pays out a proved market after its dispute window.
// POST /api/markets/{id}/settle
func (h *MarketHandler) SettleMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.markets.Settle(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "settle market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type callerRequest struct {
	Caller string `json:"caller"`
}

// CancelMarket refunds an untaken market.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, err := h.markets.Cancel(r.Context(), id, req.Caller)
	if err != nil {
		h.writeDomainError(w, r, "cancel market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ExpireMarket closes a market past its deadline. Callable by anyone.
// POST /api/markets/{id}/expire
func (h *MarketHandler) ExpireMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.markets.Expire(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "expire market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DisputeMarket forwards to the dispute hook, which always rejects.
// POST /api/markets/{id}/dispute
func (h *MarketHandler) DisputeMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.markets.Dispute(r.Context(), id, req.Caller); err != nil {
		h.writeDomainError(w, r, "dispute market", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.markets.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets filtered by status with pagination.
// GET /api/markets?status=open&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.MarketStatusOpen
	}

	markets, err := h.markets.List(r.Context(), status, opts)
	if err != nil {
		h.writeDomainError(w, r, "list markets", err)
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "count markets", err)
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// writeDomainError maps domain errors to HTTP status codes, logging only the
// unexpected ones.
func (h *MarketHandler) writeDomainError(w http.ResponseWriter, r *http.Request, action string, err error) {
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

// decodeHexField decodes a hex string with or without a 0x prefix.
func decodeHexField(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
