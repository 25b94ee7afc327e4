package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore implements Store and UsageLimiter on a researches table.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger

	// dailyQuota is the maximum runs a user may start per rolling 24h.
	// Zero disables the check.
	dailyQuota int
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string, dailyQuota int, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{db: db, logger: logger, dailyQuota: dailyQuota}, nil
}

// NewPostgresStore wraps an existing connection, used by tests.
func NewPostgresStore(db *sqlx.DB, dailyQuota int, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger, dailyQuota: dailyQuota}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Get loads one research row.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Research, error) {
	var r Research
	err := s.db.GetContext(ctx, &r, `
		SELECT id, user_id, topic, questions, status, title, report,
		       cover_url, sources, fail_reason, created_at, started_at, completed_at
		FROM researches WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get research %s: %w", id, err)
	}
	return &r, nil
}

// MarkStarted transitions a pending run to running.
func (s *PostgresStore) MarkStarted(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE researches
		SET status = $2, started_at = NOW()
		WHERE id = $1`, id, StatusRunning)
	if err != nil {
		return fmt.Errorf("mark research %s started: %w", id, err)
	}
	return s.requireRow(res, id)
}

// Complete stores the finished report and marks the run completed.
func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID, params CompleteParams) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE researches
		SET status = $2, title = $3, report = $4, cover_url = $5,
		    sources = $6, completed_at = NOW()
		WHERE id = $1`,
		id, StatusCompleted, params.Title, params.Report, params.CoverURL, params.Sources)
	if err != nil {
		return fmt.Errorf("complete research %s: %w", id, err)
	}
	return s.requireRow(res, id)
}

// MarkFailed records a terminal failure or cancellation.
func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, status Status, reason string) error {
	if status != StatusFailed && status != StatusCancelled {
		return fmt.Errorf("mark research %s failed: %q is not a terminal failure status", id, status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE researches
		SET status = $2, fail_reason = $3, completed_at = NOW()
		WHERE id = $1`, id, status, reason)
	if err != nil {
		return fmt.Errorf("mark research %s %s: %w", id, status, err)
	}
	return s.requireRow(res, id)
}

// Allow checks the user's rolling 24h run count against the daily quota.
func (s *PostgresStore) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	if s.dailyQuota <= 0 {
		return true, nil
	}
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM researches
		WHERE user_id = $1 AND created_at > NOW() - INTERVAL '24 hours'`, userID)
	if err != nil {
		return false, fmt.Errorf("count recent researches for %s: %w", userID, err)
	}
	if count >= s.dailyQuota {
		s.logger.Info("daily research quota reached",
			zap.String("user_id", userID.String()),
			zap.Int("count", count),
			zap.Int("quota", s.dailyQuota),
		)
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) requireRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for research %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
