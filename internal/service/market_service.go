package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/engine"
	"github.com/alanyoungcy/stakeboard/internal/notify"
)

// MarketService fronts the escrow engine with persistence, caching, locking,
// and event fan-out. The engine commits each transition synchronously; this
// layer mirrors the result to PostgreSQL and Redis afterwards.
type MarketService struct {
	engine  *engine.Engine
	store   domain.MarketStore
	cache   domain.MarketCache
	locks    domain.LockManager
	archive  domain.ProofArchive
	pub      *Publisher
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
// cache, locks, and archive may be nil in reduced deployments.
func NewMarketService(
	eng *engine.Engine,
	store domain.MarketStore,
	cache domain.MarketCache,
	locks domain.LockManager,
	archive domain.ProofArchive,
	pub *Publisher,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		engine:   eng,
		store:    store,
		cache:    cache,
		locks:    locks,
		archive:  archive,
		pub:      pub,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

func marketLockKey(id uint64) string {
	return "market:" + strconv.FormatUint(id, 10)
}

// persist mirrors the committed market to the store and refreshes the cache.
// Both are best-effort: the engine already holds the authoritative state.
func (s *MarketService) persist(ctx context.Context, m domain.Market) {
	if s.store != nil {
		if err := s.store.Upsert(ctx, m); err != nil {
			s.logger.ErrorContext(ctx, "market upsert failed",
				slog.Uint64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "market cache set failed",
				slog.Uint64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Create opens a new escrow market, staking the requester's collateral.
func (s *MarketService) Create(ctx context.Context, requester, description string, stake uint64, deadline time.Time, disputeWindow time.Duration, scheme domain.ProofScheme) (domain.Market, error) {
	m, err := s.engine.Create(requester, description, stake, deadline, disputeWindow, scheme)
	if err != nil {
		return domain.Market{}, err
	}

	s.persist(ctx, m)
	s.pub.emit(ctx, domain.EventMarketCreated, strconv.FormatUint(m.ID, 10), map[string]any{
		"requester": m.Requester,
		"stake":     m.Stake,
		"scheme":    string(m.Scheme),
	})
	return m, nil
}

// Take assigns a deliverer to an open market, staking the matching amount.
// For commit-reveal markets the commitment hash is required.
func (s *MarketService) Take(ctx context.Context, id uint64, deliverer, commitment string) (domain.Market, error) {
	var m domain.Market
	err := withLock(ctx, s.locks, marketLockKey(id), func() error {
		var err error
		m, err = s.engine.Take(id, deliverer, commitment)
		return err
	})
	if err != nil {
		return domain.Market{}, err
	}

	s.persist(ctx, m)
	s.pub.emit(ctx, domain.EventMarketTaken, strconv.FormatUint(id, 10), map[string]any{
		"deliverer": m.Deliverer,
		"status":    string(m.Status),
	})
	return m, nil
}

// SubmitProof records the deliverer's proof, starting the dispute window. The
// raw payload is archived to object storage under its hash; archival failure
// does not unwind the accepted submission.
func (s *MarketService) SubmitProof(ctx context.Context, id uint64, caller string, proof, salt []byte) (domain.Market, error) {
	var m domain.Market
	err := withLock(ctx, s.locks, marketLockKey(id), func() error {
		var err error
		m, err = s.engine.SubmitProof(id, caller, proof, salt)
		return err
	})
	if err != nil {
		return domain.Market{}, err
	}

	if s.archive != nil {
		if _, archErr := s.archive.PutProof(ctx, m.ProofHash, bytes.NewReader(proof)); archErr != nil {
			s.logger.WarnContext(ctx, "proof archive failed",
				slog.Uint64("market_id", id),
				slog.String("proof_hash", m.ProofHash),
				slog.String("error", archErr.Error()),
			)
		}
	}

	s.persist(ctx, m)
	s.pub.emit(ctx, domain.EventMarketProved, strconv.FormatUint(id, 10), map[string]any{
		"proof_hash": m.ProofHash,
		"status":     string(m.Status),
	})
	return m, nil
}

// Settle pays the combined stake to the deliverer once the dispute window has
// elapsed.
func (s *MarketService) Settle(ctx context.Context, id uint64) (domain.Market, error) {
	var m domain.Market
	err := withLock(ctx, s.locks, marketLockKey(id), func() error {
		var err error
		m, err = s.engine.Settle(id)
		return err
	})
	if err != nil {
		return domain.Market{}, err
	}

	s.persist(ctx, m)
	s.pub.emit(ctx, domain.EventMarketSettled, strconv.FormatUint(id, 10), map[string]any{
		"deliverer": m.Deliverer,
		"payout":    2 * m.Stake,
	})
	if s.notifier != nil {
		if notifyErr := s.notifier.Notify(ctx, domain.EventMarketSettled, "Market settled",
			fmt.Sprintf("market %d settled to %s for %d", id, m.Deliverer, 2*m.Stake)); notifyErr != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("error", notifyErr.Error()),
			)
		}
	}
	return m, nil
}

// Cancel refunds an untaken market to its requester.
func (s *MarketService) Cancel(ctx context.Context, id uint64, caller string) (domain.Market, error) {
	var m domain.Market
	err := withLock(ctx, s.locks, marketLockKey(id), func() error {
		var err error
		m, err = s.engine.Cancel(id, caller)
		return err
	})
	if err != nil {
		return domain.Market{}, err
	}

	s.persist(ctx, m)
	s.pub.emit(ctx, domain.EventMarketCancelled, strconv.FormatUint(id, 10), nil)
	return m, nil
}

// Expire closes a market past its deadline, routing the escrow back to the
// requester. Callable by anyone.
func (s *MarketService) Expire(ctx context.Context, id uint64) (domain.Market, error) {
	var m domain.Market
	err := withLock(ctx, s.locks, marketLockKey(id), func() error {
		var err error
		m, err = s.engine.Expire(id)
		return err
	})
	if err != nil {
		return domain.Market{}, err
	}

	s.persist(ctx, m)
	s.pub.emit(ctx, domain.EventMarketExpired, strconv.FormatUint(id, 10), map[string]any{
		"requester": m.Requester,
	})
	return m, nil
}

// Dispute forwards to the engine's dispute hook, which is not implemented.
func (s *MarketService) Dispute(ctx context.Context, id uint64, caller string) error {
	return s.engine.Dispute(id, caller)
}

// Get retrieves a market, checking the cache first and falling back to the
// engine on a miss.
func (s *MarketService) Get(ctx context.Context, id uint64) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.engine.Get(id)
	if err != nil {
		return domain.Market{}, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market cache set failed",
				slog.Uint64("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// List returns persisted markets in the given status with pagination.
func (s *MarketService) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.store.ListByStatus(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list by status %s: %w", status, err)
	}
	return markets, nil
}

// Count returns the total number of persisted markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// Expirable returns engine markets whose deadline has passed and whose status
// still allows expiry. Used by the sweeper.
func (s *MarketService) Expirable(now time.Time) []domain.Market {
	var out []domain.Market
	for _, status := range []domain.MarketStatus{
		domain.MarketStatusOpen, domain.MarketStatusTaken, domain.MarketStatusLocked,
	} {
		for _, m := range s.engine.List(status) {
			if !now.Before(m.Deadline) {
				out = append(out, m)
			}
		}
	}
	return out
}
