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

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, requester, deliverer, description, stake,
			scheme, commitment, proof_hash, status,
			created_at, deadline, dispute_window_ns,
			dispute_deadline, settled_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			deliverer         = EXCLUDED.deliverer,
			description       = EXCLUDED.description,
			stake             = EXCLUDED.stake,
			scheme            = EXCLUDED.scheme,
			commitment        = EXCLUDED.commitment,
			proof_hash        = EXCLUDED.proof_hash,
			status            = EXCLUDED.status,
			deadline          = EXCLUDED.deadline,
			dispute_window_ns = EXCLUDED.dispute_window_ns,
			dispute_deadline  = EXCLUDED.dispute_deadline,
			settled_at        = EXCLUDED.settled_at,
			updated_at        = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(m.ID), m.Requester, m.Deliverer, m.Description, int64(m.Stake),
		string(m.Scheme), m.Commitment, m.ProofHash, string(m.Status),
		m.CreatedAt, m.Deadline, int64(m.DisputeWindow),
		m.DisputeDeadline, m.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %d: %w", m.ID, err)
	}
	return nil
}

const marketCols = `id, requester, deliverer, description, stake,
	scheme, commitment, proof_hash, status,
	created_at, deadline, dispute_window_ns,
	dispute_deadline, settled_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var id, stake, disputeWindowNs int64
	var scheme, status string
	err := row.Scan(
		&id, &m.Requester, &m.Deliverer, &m.Description, &stake,
		&scheme, &m.Commitment, &m.ProofHash, &status,
		&m.CreatedAt, &m.Deadline, &disputeWindowNs,
		&m.DisputeDeadline, &m.SettledAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.ID = uint64(id)
	m.Stake = uint64(stake)
	m.DisputeWindow = time.Duration(disputeWindowNs)
	m.Scheme = domain.ProofScheme(scheme)
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, int64(id))
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// ListByStatus returns markets in the given status with pagination and
// optional time filtering.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = $1`
	args := []any{string(status)}
	argIdx := 2

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

	return s.queryMarkets(ctx, query, args...)
}

// ListExpirable returns non-terminal markets whose deadline has passed.
func (s *MarketStore) ListExpirable(ctx context.Context, now time.Time) ([]domain.Market, error) {
	const query = `SELECT ` + marketCols + ` FROM markets
		WHERE deadline < $1 AND status IN ('open', 'taken', 'locked')
		ORDER BY deadline ASC`
	return s.queryMarkets(ctx, query, now)
}

func (s *MarketStore) queryMarkets(ctx context.Context, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
