package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/stakeboard/internal/bounty"
	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/notify"
)

// BountyService fronts the bounty engine with persistence and event fan-out.
// Slash and fraud events additionally page the operator channels.
type BountyService struct {
	engine   *bounty.Engine
	store    domain.BountyStore
	locks    domain.LockManager
	pub      *Publisher
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewBountyService creates a BountyService with all required dependencies.
// locks and notifier may be nil.
func NewBountyService(
	eng *bounty.Engine,
	store domain.BountyStore,
	locks domain.LockManager,
	pub *Publisher,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *BountyService {
	return &BountyService{
		engine:   eng,
		store:    store,
		locks:    locks,
		pub:      pub,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "bounty_service")),
	}
}

func bountyLockKey(id uint64) string {
	return "bounty:" + strconv.FormatUint(id, 10)
}

func bountyEntityID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// persistBounty mirrors the bounty header row; best-effort.
func (s *BountyService) persistBounty(ctx context.Context, id uint64) {
	if s.store == nil {
		return
	}
	b, err := s.engine.Get(id)
	if err != nil {
		return
	}
	if err := s.store.Upsert(ctx, b); err != nil {
		s.logger.ErrorContext(ctx, "bounty upsert failed",
			slog.Uint64("bounty_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// persistRange mirrors one range claim row; best-effort.
func (s *BountyService) persistRange(ctx context.Context, r domain.RangeWork) {
	if s.store == nil {
		return
	}
	if err := s.store.UpsertRange(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "range upsert failed",
			slog.Uint64("bounty_id", r.BountyID),
			slog.Uint64("range_index", r.RangeIndex),
			slog.String("error", err.Error()),
		)
	}
}

// persistContribution mirrors one participant accumulator row; best-effort.
func (s *BountyService) persistContribution(ctx context.Context, bountyID uint64, participant string) {
	if s.store == nil || participant == "" {
		return
	}
	c, err := s.engine.GetContribution(bountyID, participant)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.ErrorContext(ctx, "contribution read failed",
				slog.Uint64("bounty_id", bountyID),
				slog.String("participant", participant),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if err := s.store.UpsertContribution(ctx, c); err != nil {
		s.logger.ErrorContext(ctx, "contribution upsert failed",
			slog.Uint64("bounty_id", bountyID),
			slog.String("participant", participant),
			slog.String("error", err.Error()),
		)
	}
}

// Create opens a new bounty, pulling the reward pool from the creator.
func (s *BountyService) Create(ctx context.Context, creator, description string, totalRanges, stakePerRange, rewardPool uint64, deadline time.Time, claimWindow time.Duration) (domain.Bounty, error) {
	b, err := s.engine.Create(creator, description, totalRanges, stakePerRange, rewardPool, deadline, claimWindow)
	if err != nil {
		return domain.Bounty{}, err
	}

	s.persistBounty(ctx, b.ID)
	s.pub.emit(ctx, domain.EventBountyCreated, bountyEntityID(b.ID), map[string]any{
		"creator":      b.Creator,
		"total_ranges": b.TotalRanges,
		"reward_pool":  b.RewardPool,
	})
	return b, nil
}

// Claim takes a range for a worker. A timed-out previous claim is slashed to
// the pool on the way in, which raises a slash event and an operator notice.
func (s *BountyService) Claim(ctx context.Context, bountyID uint64, worker string, index uint64) (bounty.ClaimResult, error) {
	var res bounty.ClaimResult
	err := withLock(ctx, s.locks, bountyLockKey(bountyID), func() error {
		var err error
		res, err = s.engine.Claim(bountyID, worker, index)
		return err
	})
	if err != nil {
		return bounty.ClaimResult{}, err
	}

	s.persistBounty(ctx, bountyID)
	s.persistRange(ctx, res.Range)
	s.persistContribution(ctx, bountyID, worker)

	entity := bountyEntityID(bountyID)
	if res.SlashedWorker != "" {
		s.persistContribution(ctx, bountyID, res.SlashedWorker)
		s.pub.emit(ctx, domain.EventRangeSlashed, entity, map[string]any{
			"range_index": index,
			"worker":      res.SlashedWorker,
			"amount":      res.SlashedAmount,
		})
		s.notify(ctx, domain.EventRangeSlashed, "Stake slashed",
			fmt.Sprintf("bounty %d range %d: %s forfeited %d to the pool", bountyID, index, res.SlashedWorker, res.SlashedAmount))
	}

	s.pub.emit(ctx, domain.EventRangeClaimed, entity, map[string]any{
		"range_index": index,
		"worker":      worker,
	})
	return res, nil
}

// Submit records the proof hash for a claimed range.
func (s *BountyService) Submit(ctx context.Context, bountyID uint64, worker string, index uint64, proofHash string) (domain.RangeWork, error) {
	var r domain.RangeWork
	err := withLock(ctx, s.locks, bountyLockKey(bountyID), func() error {
		var err error
		r, err = s.engine.Submit(bountyID, worker, index, proofHash)
		return err
	})
	if err != nil {
		return domain.RangeWork{}, err
	}

	s.persistRange(ctx, r)
	s.pub.emit(ctx, domain.EventRangeSubmitted, bountyEntityID(bountyID), map[string]any{
		"range_index": index,
		"worker":      worker,
		"proof_hash":  proofHash,
	})
	return r, nil
}

// Verify casts a verification vote. A negative vote raises a fraud signal
// without changing range state; the vote that crosses the threshold may also
// complete the whole bounty.
func (s *BountyService) Verify(ctx context.Context, bountyID uint64, verifier string, index uint64, valid bool) (bounty.VerifyResult, error) {
	var res bounty.VerifyResult
	err := withLock(ctx, s.locks, bountyLockKey(bountyID), func() error {
		var err error
		res, err = s.engine.Verify(bountyID, verifier, index, valid)
		return err
	})
	if err != nil {
		return bounty.VerifyResult{}, err
	}

	entity := bountyEntityID(bountyID)
	if res.Fraud {
		s.pub.emit(ctx, domain.EventFraudSignal, entity, map[string]any{
			"range_index": index,
			"verifier":    verifier,
			"worker":      res.Range.Worker,
		})
		s.notify(ctx, domain.EventFraudSignal, "Fraud signal",
			fmt.Sprintf("bounty %d range %d: %s flagged work by %s", bountyID, index, verifier, res.Range.Worker))
		return res, nil
	}

	s.persistBounty(ctx, bountyID)
	s.persistRange(ctx, res.Range)
	s.persistContribution(ctx, bountyID, verifier)
	s.persistContribution(ctx, bountyID, res.Range.Worker)

	s.pub.emit(ctx, domain.EventRangeVerified, entity, map[string]any{
		"range_index":   index,
		"verifier":      verifier,
		"verifications": res.Range.Verifications,
		"verified":      res.Range.Verified,
	})

	if res.NewlySolved {
		s.pub.emit(ctx, domain.EventBountySolved, entity, nil)
		s.notify(ctx, domain.EventBountySolved, "Bounty solved",
			fmt.Sprintf("bounty %d: all ranges verified", bountyID))
	}
	return res, nil
}

// Cancel stops an unsolved bounty; only the creator may do so.
func (s *BountyService) Cancel(ctx context.Context, bountyID uint64, caller string) (domain.Bounty, error) {
	var b domain.Bounty
	err := withLock(ctx, s.locks, bountyLockKey(bountyID), func() error {
		var err error
		b, err = s.engine.Cancel(bountyID, caller)
		return err
	})
	if err != nil {
		return domain.Bounty{}, err
	}

	s.persistBounty(ctx, bountyID)
	return b, nil
}

// ClaimRewards pays a participant's share of the pool plus their remaining
// stake, exactly once.
func (s *BountyService) ClaimRewards(ctx context.Context, bountyID uint64, participant string) (reward, stakeReturned uint64, err error) {
	err = withLock(ctx, s.locks, bountyLockKey(bountyID), func() error {
		var lockErr error
		reward, stakeReturned, lockErr = s.engine.ClaimRewards(bountyID, participant)
		return lockErr
	})
	if err != nil {
		return 0, 0, err
	}

	s.persistContribution(ctx, bountyID, participant)
	s.pub.emit(ctx, domain.EventRewardClaimed, bountyEntityID(bountyID), map[string]any{
		"participant":    participant,
		"reward":         reward,
		"stake_returned": stakeReturned,
	})
	return reward, stakeReturned, nil
}

// CalculateReward previews a participant's payout without moving funds.
func (s *BountyService) CalculateReward(ctx context.Context, bountyID uint64, participant string) (uint64, error) {
	return s.engine.CalculateReward(bountyID, participant)
}

// Get returns one bounty from the engine.
func (s *BountyService) Get(ctx context.Context, id uint64) (domain.Bounty, error) {
	return s.engine.Get(id)
}

// GetRange returns one range claim row from the engine.
func (s *BountyService) GetRange(ctx context.Context, bountyID, index uint64) (domain.RangeWork, error) {
	return s.engine.GetRange(bountyID, index)
}

// GetContribution returns one participant accumulator from the engine.
func (s *BountyService) GetContribution(ctx context.Context, bountyID uint64, participant string) (domain.Contribution, error) {
	return s.engine.GetContribution(bountyID, participant)
}

// List returns all bounties from the engine.
func (s *BountyService) List(ctx context.Context) []domain.Bounty {
	return s.engine.List()
}

func (s *BountyService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
