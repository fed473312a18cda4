package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// Sweeper walks non-terminal markets on a fixed interval and expires those
// past their deadline, so escrow never stays stranded waiting for a caller.
type Sweeper struct {
	markets  *MarketService
	clock    domain.Clock
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. interval is how often to scan for expirable
// markets.
func NewSweeper(markets *MarketService, clock domain.Clock, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		markets:  markets,
		clock:    clock,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Run scans on every tick until the context is cancelled. Call in a goroutine.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep expires every market whose deadline has passed. A lock held by another
// instance just means that instance is already handling the market.
func (s *Sweeper) sweep(ctx context.Context) {
	expirable := s.markets.Expirable(s.clock.Now())
	for _, m := range expirable {
		if _, err := s.markets.Expire(ctx, m.ID); err != nil {
			if errors.Is(err, domain.ErrLockHeld) || errors.Is(err, domain.ErrInvalidState) {
				continue
			}
			s.logger.ErrorContext(ctx, "expire failed",
				slog.Uint64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(expirable) > 0 {
		s.logger.InfoContext(ctx, "sweep complete",
			slog.Int("expirable", len(expirable)),
		)
	}
}
