package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Auth events worth keeping a trail of.
const (
	EventSignup        = "signup"
	EventLogin         = "login"
	EventLogout        = "logout"
	EventLogoutAll     = "logout_all"
	EventAccountDelete = "account_delete"
)

// Audit records auth events in PostgreSQL. It is write-mostly observability:
// handlers call it best-effort and never block a response on it.
type Audit struct {
	pool *pgxpool.Pool
}

func NewAudit(pool *pgxpool.Pool) *Audit {
	return &Audit{pool: pool}
}

// Migrate creates the auth_events table if it doesn't exist.
func (s *Audit) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS auth_events (
			id         UUID PRIMARY KEY,
			user_id    VARCHAR(64) NOT NULL,
			event      VARCHAR(32) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (s *Audit) Record(ctx context.Context, userID, event string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auth_events (id, user_id, event, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.New(), userID, event, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record auth event: %w", err)
	}
	return nil
}

// CountByUser returns how many events of the given kind a user has, mostly
// useful for operational queries and tests.
func (s *Audit) CountByUser(ctx context.Context, userID, event string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM auth_events WHERE user_id = $1 AND event = $2`,
		userID, event,
	).Scan(&n)
	return n, err
}
