package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// BountyStore implements domain.BountyStore using PostgreSQL. Bounties, their
// per-range claim rows, and per-participant contribution rows live in three
// tables keyed by the bounty id.
type BountyStore struct {
	pool *pgxpool.Pool
}

// NewBountyStore creates a new BountyStore backed by the given connection pool.
func NewBountyStore(pool *pgxpool.Pool) *BountyStore {
	return &BountyStore{pool: pool}
}

// Upsert inserts or updates a single bounty.
func (s *BountyStore) Upsert(ctx context.Context, b domain.Bounty) error {
	const query = `
		INSERT INTO bounties (
			id, creator, description, total_ranges, stake_per_range,
			reward_pool, completed_ranges, solved, cancelled,
			created_at, deadline, claim_window_ns, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			reward_pool      = EXCLUDED.reward_pool,
			completed_ranges = EXCLUDED.completed_ranges,
			solved           = EXCLUDED.solved,
			cancelled        = EXCLUDED.cancelled,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(b.ID), b.Creator, b.Description, int64(b.TotalRanges), int64(b.StakePerRange),
		int64(b.RewardPool), int64(b.CompletedRanges), b.Solved, b.Cancelled,
		b.CreatedAt, b.Deadline, int64(b.ClaimWindow),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert bounty %d: %w", b.ID, err)
	}
	return nil
}

const bountyCols = `id, creator, description, total_ranges, stake_per_range,
	reward_pool, completed_ranges, solved, cancelled,
	created_at, deadline, claim_window_ns, updated_at`

func scanBounty(row pgx.Row) (domain.Bounty, error) {
	var b domain.Bounty
	var id, total, stake, pool, completed, claimWindowNs int64
	err := row.Scan(
		&id, &b.Creator, &b.Description, &total, &stake,
		&pool, &completed, &b.Solved, &b.Cancelled,
		&b.CreatedAt, &b.Deadline, &claimWindowNs, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Bounty{}, err
	}
	b.ID = uint64(id)
	b.TotalRanges = uint64(total)
	b.StakePerRange = uint64(stake)
	b.RewardPool = uint64(pool)
	b.CompletedRanges = uint64(completed)
	b.ClaimWindow = time.Duration(claimWindowNs)
	return b, nil
}

// GetByID retrieves a bounty by its primary key.
func (s *BountyStore) GetByID(ctx context.Context, id uint64) (domain.Bounty, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bountyCols+` FROM bounties WHERE id = $1`, int64(id))
	b, err := scanBounty(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bounty{}, domain.ErrNotFound
		}
		return domain.Bounty{}, fmt.Errorf("postgres: get bounty %d: %w", id, err)
	}
	return b, nil
}

// List returns bounties with pagination, most recent first.
func (s *BountyStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Bounty, error) {
	query := `SELECT ` + bountyCols + ` FROM bounties WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bounties: %w", err)
	}
	defer rows.Close()

	var bounties []domain.Bounty
	for rows.Next() {
		b, err := scanBounty(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bounty: %w", err)
		}
		bounties = append(bounties, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bounties rows: %w", err)
	}
	return bounties, nil
}

// UpsertRange inserts or updates one range claim row.
func (s *BountyStore) UpsertRange(ctx context.Context, r domain.RangeWork) error {
	const query = `
		INSERT INTO bounty_ranges (
			bounty_id, range_index, worker, claimed_at, submitted_at,
			proof_hash, verifications, verified, slashed, verifiers
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (bounty_id, range_index) DO UPDATE SET
			worker        = EXCLUDED.worker,
			claimed_at    = EXCLUDED.claimed_at,
			submitted_at  = EXCLUDED.submitted_at,
			proof_hash    = EXCLUDED.proof_hash,
			verifications = EXCLUDED.verifications,
			verified      = EXCLUDED.verified,
			slashed       = EXCLUDED.slashed,
			verifiers     = EXCLUDED.verifiers`

	verifiers := r.Verifiers
	if verifiers == nil {
		verifiers = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		int64(r.BountyID), int64(r.RangeIndex), r.Worker, r.ClaimedAt, r.SubmittedAt,
		r.ProofHash, int64(r.Verifications), r.Verified, r.Slashed, verifiers,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert range %d/%d: %w", r.BountyID, r.RangeIndex, err)
	}
	return nil
}

const rangeCols = `bounty_id, range_index, worker, claimed_at, submitted_at,
	proof_hash, verifications, verified, slashed, verifiers`

func scanRange(row pgx.Row) (domain.RangeWork, error) {
	var r domain.RangeWork
	var bountyID, rangeIndex, verifications int64
	err := row.Scan(
		&bountyID, &rangeIndex, &r.Worker, &r.ClaimedAt, &r.SubmittedAt,
		&r.ProofHash, &verifications, &r.Verified, &r.Slashed, &r.Verifiers,
	)
	if err != nil {
		return domain.RangeWork{}, err
	}
	r.BountyID = uint64(bountyID)
	r.RangeIndex = uint64(rangeIndex)
	r.Verifications = uint64(verifications)
	return r, nil
}

// GetRange retrieves one range claim row.
func (s *BountyStore) GetRange(ctx context.Context, bountyID, rangeIndex uint64) (domain.RangeWork, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+rangeCols+` FROM bounty_ranges WHERE bounty_id = $1 AND range_index = $2`,
		int64(bountyID), int64(rangeIndex))
	r, err := scanRange(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RangeWork{}, domain.ErrNotFound
		}
		return domain.RangeWork{}, fmt.Errorf("postgres: get range %d/%d: %w", bountyID, rangeIndex, err)
	}
	return r, nil
}

// ListRanges returns all range claim rows for a bounty in index order.
func (s *BountyStore) ListRanges(ctx context.Context, bountyID uint64) ([]domain.RangeWork, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rangeCols+` FROM bounty_ranges WHERE bounty_id = $1 ORDER BY range_index ASC`,
		int64(bountyID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list ranges for bounty %d: %w", bountyID, err)
	}
	defer rows.Close()

	var ranges []domain.RangeWork
	for rows.Next() {
		r, err := scanRange(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan range: %w", err)
		}
		ranges = append(ranges, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ranges rows: %w", err)
	}
	return ranges, nil
}

// UpsertContribution inserts or updates one participant accumulator row.
func (s *BountyStore) UpsertContribution(ctx context.Context, c domain.Contribution) error {
	const query = `
		INSERT INTO bounty_contributions (
			bounty_id, participant, ranges_completed, verifications_done,
			first_contribution_at, staked_amount, reward_claimed
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bounty_id, participant) DO UPDATE SET
			ranges_completed      = EXCLUDED.ranges_completed,
			verifications_done    = EXCLUDED.verifications_done,
			first_contribution_at = EXCLUDED.first_contribution_at,
			staked_amount         = EXCLUDED.staked_amount,
			reward_claimed        = EXCLUDED.reward_claimed`

	_, err := s.pool.Exec(ctx, query,
		int64(c.BountyID), c.Participant, int64(c.RangesCompleted), int64(c.VerificationsDone),
		c.FirstContributionAt, int64(c.StakedAmount), c.RewardClaimed,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert contribution %d/%s: %w", c.BountyID, c.Participant, err)
	}
	return nil
}

const contribCols = `bounty_id, participant, ranges_completed, verifications_done,
	first_contribution_at, staked_amount, reward_claimed`

func scanContribution(row pgx.Row) (domain.Contribution, error) {
	var c domain.Contribution
	var bountyID, ranges, verifications, staked int64
	err := row.Scan(
		&bountyID, &c.Participant, &ranges, &verifications,
		&c.FirstContributionAt, &staked, &c.RewardClaimed,
	)
	if err != nil {
		return domain.Contribution{}, err
	}
	c.BountyID = uint64(bountyID)
	c.RangesCompleted = uint64(ranges)
	c.VerificationsDone = uint64(verifications)
	c.StakedAmount = uint64(staked)
	return c, nil
}

// GetContribution retrieves one participant accumulator row.
func (s *BountyStore) GetContribution(ctx context.Context, bountyID uint64, participant string) (domain.Contribution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contribCols+` FROM bounty_contributions WHERE bounty_id = $1 AND participant = $2`,
		int64(bountyID), participant)
	c, err := scanContribution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contribution{}, domain.ErrNotFound
		}
		return domain.Contribution{}, fmt.Errorf("postgres: get contribution %d/%s: %w", bountyID, participant, err)
	}
	return c, nil
}

// ListContributions returns all participant rows for a bounty.
func (s *BountyStore) ListContributions(ctx context.Context, bountyID uint64) ([]domain.Contribution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contribCols+` FROM bounty_contributions WHERE bounty_id = $1 ORDER BY participant ASC`,
		int64(bountyID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list contributions for bounty %d: %w", bountyID, err)
	}
	defer rows.Close()

	var contribs []domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan contribution: %w", err)
		}
		contribs = append(contribs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list contributions rows: %w", err)
	}
	return contribs, nil
}

// Compile-time interface check.
var _ domain.BountyStore = (*BountyStore)(nil)
