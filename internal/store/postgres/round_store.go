package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a new RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

const roundSelectCols = `id, start_price, mode, final_price, status, created_at, resolved_at`

func scanRound(scanner interface{ Scan(dest ...any) error }) (domain.Round, error) {
	var r domain.Round
	var status string

	err := scanner.Scan(
		&r.ID, &r.StartPrice, &r.Mode, &r.FinalPrice,
		&status, &r.CreatedAt, &r.ResolvedAt,
	)
	if err != nil {
		return domain.Round{}, err
	}

	r.Status = domain.RoundStatus(status)
	return r, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts a new round. The partial unique index on ACTIVE rounds
// guarantees at most one open round; a violation maps to ErrActiveRound.
func (s *RoundStore) Create(ctx context.Context, r domain.Round) error {
	const query = `
		INSERT INTO rounds (id, start_price, mode, final_price, status, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.StartPrice, r.Mode, r.FinalPrice,
		string(r.Status), r.CreatedAt, r.ResolvedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActiveRound
		}
		return fmt.Errorf("postgres: create round %s: %w", r.ID, err)
	}
	return nil
}

// GetByID retrieves a single round by ID.
func (s *RoundStore) GetByID(ctx context.Context, id string) (domain.Round, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roundSelectCols+` FROM rounds WHERE id = $1`, id)

	r, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: get round %s: %w", id, err)
	}
	return r, nil
}

// Resolve performs the guarded ACTIVE -> RESOLVED transition in one statement.
// An absent round yields ErrNotFound; an already-resolved round yields
// ErrAlreadyResolved.
func (s *RoundStore) Resolve(ctx context.Context, id string, finalPrice float64, at time.Time) (domain.Round, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE rounds
		SET final_price = $2, status = 'RESOLVED', resolved_at = $3
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING `+roundSelectCols,
		id, finalPrice, at,
	)

	r, err := scanRound(row)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Round{}, fmt.Errorf("postgres: resolve round %s: %w", id, err)
	}

	// Nothing matched: distinguish a missing round from a closed one.
	if _, getErr := s.GetByID(ctx, id); getErr != nil {
		return domain.Round{}, getErr
	}
	return domain.Round{}, domain.ErrAlreadyResolved
}

// GetActive returns the ACTIVE round, or ErrNotFound when no round is open.
func (s *RoundStore) GetActive(ctx context.Context) (domain.Round, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roundSelectCols+` FROM rounds WHERE status = 'ACTIVE' LIMIT 1`)

	r, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: get active round: %w", err)
	}
	return r, nil
}

// ListResolvedBefore returns resolved rounds older than cutoff, oldest first,
// for retention archival. Rounds that still have scheduled_tasks rows are
// excluded: pruning them would trip the round_id foreign key, so they wait
// until their tasks have been archived away.
func (s *RoundStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Round, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundSelectCols+` FROM rounds
		 WHERE status = 'RESOLVED' AND resolved_at < $1
		   AND NOT EXISTS (
		     SELECT 1 FROM scheduled_tasks t WHERE t.round_id = rounds.id
		   )
		 ORDER BY resolved_at ASC
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved rounds: %w", err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan resolved round: %w", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// DeleteByIDs removes archived rounds.
func (s *RoundStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM rounds WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("postgres: delete rounds: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RoundStore = (*RoundStore)(nil)
