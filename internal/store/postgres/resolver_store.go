package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// ResolverStore implements domain.RoundResolver. It couples round resolution
// and task completion in a single transaction so a crash between the two
// writes cannot leave a RESOLVED round with a still-PENDING task.
type ResolverStore struct {
	pool *pgxpool.Pool
}

// NewResolverStore creates a ResolverStore backed by the given connection pool.
func NewResolverStore(pool *pgxpool.Pool) *ResolverStore {
	return &ResolverStore{pool: pool}
}

// ResolveRoundTask resolves the round and completes the task atomically.
// If the round was already resolved by an earlier crashed run, the stored
// final price is kept and only the task transition is applied, so replaying
// a picked-up-but-not-completed task is safe.
func (s *ResolverStore) ResolveRoundTask(ctx context.Context, roundID, taskID string, finalPrice float64, at time.Time) (domain.Round, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Round{}, fmt.Errorf("postgres: begin resolve tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE rounds
		SET final_price = $2, status = 'RESOLVED', resolved_at = $3
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING `+roundSelectCols,
		roundID, finalPrice, at,
	)

	round, err := scanRound(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Not ACTIVE: either missing or already resolved. A resolved round is
		// fine here (crash replay); a missing one is a real error.
		row = tx.QueryRow(ctx,
			`SELECT `+roundSelectCols+` FROM rounds WHERE id = $1`, roundID)
		round, err = scanRound(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, domain.ErrNotFound
		}
	}
	if err != nil {
		return domain.Round{}, fmt.Errorf("postgres: resolve round %s: %w", roundID, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE scheduled_tasks
		SET status = 'COMPLETED', completed_at = COALESCE(completed_at, $2)
		WHERE id = $1`,
		taskID, at,
	)
	if err != nil {
		return domain.Round{}, fmt.Errorf("postgres: complete task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Round{}, domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Round{}, fmt.Errorf("postgres: commit resolve tx: %w", err)
	}
	return round, nil
}

// Compile-time interface check.
var _ domain.RoundResolver = (*ResolverStore)(nil)
