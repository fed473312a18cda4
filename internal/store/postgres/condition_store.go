package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// ConditionStore implements domain.ConditionStore using PostgreSQL.
type ConditionStore struct {
	pool *pgxpool.Pool
}

// NewConditionStore creates a new ConditionStore backed by the given pool.
func NewConditionStore(pool *pgxpool.Pool) *ConditionStore {
	return &ConditionStore{pool: pool}
}

// Upsert inserts or updates a single condition.
func (s *ConditionStore) Upsert(ctx context.Context, c domain.Condition) error {
	const query = `
		INSERT INTO conditions (
			condition_id, oracle, question_id, outcome_count,
			resolved, payout_numerators, payout_denominator,
			created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (condition_id) DO UPDATE SET
			resolved           = EXCLUDED.resolved,
			payout_numerators  = EXCLUDED.payout_numerators,
			payout_denominator = EXCLUDED.payout_denominator,
			resolved_at        = EXCLUDED.resolved_at`

	numerators := make([]int64, len(c.PayoutNumerators))
	for i, n := range c.PayoutNumerators {
		numerators[i] = int64(n)
	}

	_, err := s.pool.Exec(ctx, query,
		c.ConditionID, c.Oracle, c.QuestionID, int32(c.OutcomeCount),
		c.Resolved, numerators, int64(c.PayoutDenominator),
		c.CreatedAt, c.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert condition %s: %w", c.ConditionID, err)
	}
	return nil
}

const conditionCols = `condition_id, oracle, question_id, outcome_count,
	resolved, payout_numerators, payout_denominator, created_at, resolved_at`

func scanCondition(row pgx.Row) (domain.Condition, error) {
	var c domain.Condition
	var outcomeCount int32
	var numerators []int64
	var denominator int64
	err := row.Scan(
		&c.ConditionID, &c.Oracle, &c.QuestionID, &outcomeCount,
		&c.Resolved, &numerators, &denominator, &c.CreatedAt, &c.ResolvedAt,
	)
	if err != nil {
		return domain.Condition{}, err
	}
	c.OutcomeCount = uint(outcomeCount)
	c.PayoutDenominator = uint64(denominator)
	if len(numerators) > 0 {
		c.PayoutNumerators = make([]uint64, len(numerators))
		for i, n := range numerators {
			c.PayoutNumerators[i] = uint64(n)
		}
	}
	return c, nil
}

// GetByID retrieves a condition by its derived id.
func (s *ConditionStore) GetByID(ctx context.Context, conditionID string) (domain.Condition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conditionCols+` FROM conditions WHERE condition_id = $1`, conditionID)
	c, err := scanCondition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Condition{}, domain.ErrNotFound
		}
		return domain.Condition{}, fmt.Errorf("postgres: get condition %s: %w", conditionID, err)
	}
	return c, nil
}

// ListUnresolved returns conditions that have not been reported yet.
func (s *ConditionStore) ListUnresolved(ctx context.Context, opts domain.ListOpts) ([]domain.Condition, error) {
	query := `SELECT ` + conditionCols + ` FROM conditions WHERE resolved = FALSE ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list unresolved conditions: %w", err)
	}
	defer rows.Close()

	var conditions []domain.Condition
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan condition: %w", err)
		}
		conditions = append(conditions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list unresolved conditions rows: %w", err)
	}
	return conditions, nil
}

// Compile-time interface check.
var _ domain.ConditionStore = (*ConditionStore)(nil)
