package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/engine"
	"github.com/alanyoungcy/stakeboard/internal/vault"
)

const (
	requester = "0xaaa0000000000000000000000000000000000001"
	deliverer = "0xbbb0000000000000000000000000000000000002"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeBus records published channels in order.
type fakeBus struct {
	mu        sync.Mutex
	published []string
	appended  int
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, channel)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appended++
	return nil
}

func (b *fakeBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published...)
}

// fakeLocks records acquired keys and can refuse all acquisitions.
type fakeLocks struct {
	mu       sync.Mutex
	acquired []string
	held     bool
}

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, fmt.Errorf("lock %s: %w", key, domain.ErrLockHeld)
	}
	l.acquired = append(l.acquired, key)
	return func() {}, nil
}

type svcFixture struct {
	svc    *MarketService
	clock  *domain.ManualClock
	tokens *vault.MemoryLedger
	bus    *fakeBus
	locks  *fakeLocks
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()
	tokens := vault.NewMemoryLedger()
	tokens.Mint(requester, 10_000)
	tokens.Mint(deliverer, 10_000)
	v := vault.New(tokens)
	clock := domain.NewManualClock(baseTime)
	eng := engine.New(v, clock)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := &fakeBus{}
	locks := &fakeLocks{}
	pub := NewPublisher(bus, nil, logger)

	svc := NewMarketService(eng, nil, nil, locks, nil, pub, nil, logger)
	return &svcFixture{svc: svc, clock: clock, tokens: tokens, bus: bus, locks: locks}
}

func (f *svcFixture) create(t *testing.T) domain.Market {
	t.Helper()
	m, err := f.svc.Create(context.Background(), requester, "index the archive", 100,
		f.clock.Now().Add(24*time.Hour), 2*time.Hour, domain.ProofSchemeDirect)
	require.NoError(t, err)
	return m
}

func TestMarketLifecycleEmitsEvents(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	m := f.create(t)

	m, err := f.svc.Take(ctx, m.ID, deliverer, "")
	require.NoError(t, err)

	m, err = f.svc.SubmitProof(ctx, m.ID, deliverer, []byte("result"), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ProofHash)

	f.clock.Advance(3 * time.Hour)
	m, err = f.svc.Settle(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusCompleted, m.Status)
	assert.Equal(t, uint64(10_100), f.tokens.BalanceOf(deliverer))

	assert.Equal(t, []string{
		domain.EventMarketCreated,
		domain.EventMarketTaken,
		domain.EventMarketProved,
		domain.EventMarketSettled,
	}, f.bus.events())
	assert.Equal(t, 4, f.bus.appended)
}

func TestMutationsRunUnderLock(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	m := f.create(t)
	_, err := f.svc.Take(ctx, m.ID, deliverer, "")
	require.NoError(t, err)

	// Create is engine-serialized and does not take the distributed lock.
	assert.Equal(t, []string{"market:1"}, f.locks.acquired)
}

func TestLockHeldBlocksMutation(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	m := f.create(t)
	f.locks.held = true

	_, err := f.svc.Take(ctx, m.ID, deliverer, "")
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// No event fans out for a refused mutation.
	assert.Equal(t, []string{domain.EventMarketCreated}, f.bus.events())
}

func TestExpirableAndSweep(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	m := f.create(t)
	assert.Empty(t, f.svc.Expirable(f.clock.Now()))

	f.clock.Advance(25 * time.Hour)
	expirable := f.svc.Expirable(f.clock.Now())
	require.Len(t, expirable, 1)
	assert.Equal(t, m.ID, expirable[0].ID)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sw := NewSweeper(f.svc, f.clock, time.Minute, logger)
	sw.sweep(ctx)

	got, err := f.svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusExpired, got.Status)
	assert.Equal(t, uint64(10_000), f.tokens.BalanceOf(requester))
	assert.Contains(t, f.bus.events(), domain.EventMarketExpired)
}
