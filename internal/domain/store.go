package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists escrow markets.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id uint64) (Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	ListExpirable(ctx context.Context, now time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// BountyStore persists bounties together with their per-range and
// per-participant records.
type BountyStore interface {
	Upsert(ctx context.Context, b Bounty) error
	GetByID(ctx context.Context, id uint64) (Bounty, error)
	List(ctx context.Context, opts ListOpts) ([]Bounty, error)

	UpsertRange(ctx context.Context, r RangeWork) error
	GetRange(ctx context.Context, bountyID, rangeIndex uint64) (RangeWork, error)
	ListRanges(ctx context.Context, bountyID uint64) ([]RangeWork, error)

	UpsertContribution(ctx context.Context, c Contribution) error
	GetContribution(ctx context.Context, bountyID uint64, participant string) (Contribution, error)
	ListContributions(ctx context.Context, bountyID uint64) ([]Contribution, error)
}

// ConditionStore persists prepared conditions and their payout vectors.
type ConditionStore interface {
	Upsert(ctx context.Context, c Condition) error
	GetByID(ctx context.Context, conditionID string) (Condition, error)
	ListUnresolved(ctx context.Context, opts ListOpts) ([]Condition, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of every state transition.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
