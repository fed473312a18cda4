package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stakeboard/internal/bounty"
	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// BountyService defines the methods that the bounty handler requires from the
// service layer.
type BountyService interface {
	Create(ctx context.Context, creator, description string, totalRanges, stakePerRange, rewardPool uint64, deadline time.Time, claimWindow time.Duration) (domain.Bounty, error)
	Claim(ctx context.Context, bountyID uint64, worker string, index uint64) (bounty.ClaimResult, error)
	Submit(ctx context.Context, bountyID uint64, worker string, index uint64, proofHash string) (domain.RangeWork, error)
	Verify(ctx context.Context, bountyID uint64, verifier string, index uint64, valid bool) (bounty.VerifyResult, error)
	Cancel(ctx context.Context, bountyID uint64, caller string) (domain.Bounty, error)
	ClaimRewards(ctx context.Context, bountyID uint64, participant string) (reward, stakeReturned uint64, err error)
	CalculateReward(ctx context.Context, bountyID uint64, participant string) (uint64, error)
	Get(ctx context.Context, id uint64) (domain.Bounty, error)
	GetRange(ctx context.Context, bountyID, index uint64) (domain.RangeWork, error)
	GetContribution(ctx context.Context, bountyID uint64, participant string) (domain.Contribution, error)
	List(ctx context.Context) []domain.Bounty
}

// BountyHandler serves bounty HTTP endpoints.
type BountyHandler struct {
	bounties           BountyService
	defaultClaimWindow time.Duration
	logger             *slog.Logger
}

// NewBountyHandler creates a BountyHandler. defaultClaimWindow applies when a
// create request omits its claim window.
func NewBountyHandler(bounties BountyService, defaultClaimWindow time.Duration, logger *slog.Logger) *BountyHandler {
	return &BountyHandler{
		bounties:           bounties,
		defaultClaimWindow: defaultClaimWindow,
		logger:             logger,
	}
}

type createBountyRequest struct {
	Creator       string `json:"creator"`
	Description   string `json:"description"`
	TotalRanges   uint64 `json:"total_ranges"`
	StakePerRange uint64 `json:"stake_per_range"`
	RewardPool    uint64 `json:"reward_pool"`
	Deadline      string `json:"deadline"`     // RFC 3339
	ClaimWindow   string `json:"claim_window"` // Go duration; empty uses the server default
}

// CreateBounty opens a new range bounty.
// POST /api/bounties
func (h *BountyHandler) CreateBounty(w http.ResponseWriter, r *http.Request) {
	var req createBountyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "deadline must be RFC 3339")
		return
	}

	claimWindow := h.defaultClaimWindow
	if req.ClaimWindow != "" {
		claimWindow, err = time.ParseDuration(req.ClaimWindow)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid claim_window")
			return
		}
	}

	b, err := h.bounties.Create(r.Context(), req.Creator, req.Description,
		req.TotalRanges, req.StakePerRange, req.RewardPool, deadline, claimWindow)
	if err != nil {
		h.writeDomainError(w, r, "create bounty", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

type workerRequest struct {
	Worker string `json:"worker"`
}

// ClaimRange takes one range for a worker.
// POST /api/bounties/{id}/ranges/{idx}/claim
func (h *BountyHandler) ClaimRange(w http.ResponseWriter, r *http.Request) {
	id, idx, ok := h.rangePath(w, r)
	if !ok {
		return
	}
	var req workerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.bounties.Claim(r.Context(), id, req.Worker, idx)
	if err != nil {
		h.writeDomainError(w, r, "claim range", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type submitRangeRequest struct {
	Worker    string `json:"worker"`
	ProofHash string `json:"proof_hash"`
}

// SubmitRange records the proof hash for a claimed range.
// POST /api/bounties/{id}/ranges/{idx}/submit
func (h *BountyHandler) SubmitRange(w http.ResponseWriter, r *http.Request) {
	id, idx, ok := h.rangePath(w, r)
	if !ok {
		return
	}
	var req submitRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rng, err := h.bounties.Submit(r.Context(), id, req.Worker, idx, req.ProofHash)
	if err != nil {
		h.writeDomainError(w, r, "submit range", err)
		return
	}
	writeJSON(w, http.StatusOK, rng)
}

type verifyRangeRequest struct {
	Verifier string `json:"verifier"`
	Valid    bool   `json:"valid"`
}

// VerifyRange casts a verification vote on a submitted range.
// POST /api/bounties/{id}/ranges/{idx}/verify
func (h *BountyHandler) VerifyRange(w http.ResponseWriter, r *http.Request) {
	id, idx, ok := h.rangePath(w, r)
	if !ok {
		return
	}
	var req verifyRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.bounties.Verify(r.Context(), id, req.Verifier, idx, req.Valid)
	if err != nil {
		h.writeDomainError(w, r, "verify range", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CancelBounty stops an unsolved bounty.
// POST /api/bounties/{id}/cancel
func (h *BountyHandler) CancelBounty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := h.bounties.Cancel(r.Context(), id, req.Caller)
	if err != nil {
		h.writeDomainError(w, r, "cancel bounty", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type claimRewardsRequest struct {
	Participant string `json:"participant"`
}

type claimRewardsResponse struct {
	Reward        uint64 `json:"reward"`
	StakeReturned uint64 `json:"stake_returned"`
}

// ClaimRewards pays out a participant's reward share plus remaining stake.
// POST /api/bounties/{id}/rewards/claim
func (h *BountyHandler) ClaimRewards(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req claimRewardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reward, stake, err := h.bounties.ClaimRewards(r.Context(), id, req.Participant)
	if err != nil {
		h.writeDomainError(w, r, "claim rewards", err)
		return
	}
	writeJSON(w, http.StatusOK, claimRewardsResponse{Reward: reward, StakeReturned: stake})
}

// PreviewReward returns a participant's payout without moving funds.
// GET /api/bounties/{id}/rewards?participant=0x...
func (h *BountyHandler) PreviewReward(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	participant := r.URL.Query().Get("participant")
	if participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}

	reward, err := h.bounties.CalculateReward(r.Context(), id, participant)
	if err != nil {
		h.writeDomainError(w, r, "preview reward", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"reward": reward})
}

// GetBounty returns a single bounty by its ID.
// GET /api/bounties/{id}
func (h *BountyHandler) GetBounty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.bounties.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "get bounty", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetRange returns one range claim row.
// GET /api/bounties/{id}/ranges/{idx}
func (h *BountyHandler) GetRange(w http.ResponseWriter, r *http.Request) {
	id, idx, ok := h.rangePath(w, r)
	if !ok {
		return
	}
	rng, err := h.bounties.GetRange(r.Context(), id, idx)
	if err != nil {
		h.writeDomainError(w, r, "get range", err)
		return
	}
	writeJSON(w, http.StatusOK, rng)
}

// GetContribution returns one participant accumulator.
// GET /api/bounties/{id}/contributions/{participant}
func (h *BountyHandler) GetContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	participant := pathParam(r, "participant")
	if participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}

	c, err := h.bounties.GetContribution(r.Context(), id, participant)
	if err != nil {
		h.writeDomainError(w, r, "get contribution", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListBounties returns all bounties.
// GET /api/bounties
func (h *BountyHandler) ListBounties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"bounties": h.bounties.List(r.Context()),
	})
}

func (h *BountyHandler) rangePath(w http.ResponseWriter, r *http.Request) (id, idx uint64, ok bool) {
	id, ok = pathID(w, r)
	if !ok {
		return 0, 0, false
	}
	idx, ok = pathUint(w, r, "idx")
	if !ok {
		return 0, 0, false
	}
	return id, idx, true
}

func (h *BountyHandler) writeDomainError(w http.ResponseWriter, r *http.Request, action string, err error) {
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
