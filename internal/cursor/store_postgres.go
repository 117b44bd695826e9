package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carelink/internal/domain"
)

// PostgresStore keeps one cursor row per endpoint. Put is a single upsert so
// both cursor fields are always replaced together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const cursorSchema = `
CREATE TABLE IF NOT EXISTS feed_cursors (
	endpoint_id    TEXT PRIMARY KEY,
	last_polled_at TIMESTAMPTZ,
	last_page      TEXT NOT NULL DEFAULT '',
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the feed_cursors table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, cursorSchema); err != nil {
		return fmt.Errorf("ensure cursor schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, endpointID string) (domain.Cursor, error) {
	var lastPolledAt sql.NullTime
	var lastPage string
	err := s.db.QueryRowContext(ctx, `
		SELECT last_polled_at, last_page FROM feed_cursors WHERE endpoint_id = $1`,
		endpointID).Scan(&lastPolledAt, &lastPage)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cursor{}, nil
	}
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("get cursor for %s: %w", endpointID, err)
	}
	c := domain.Cursor{LastPage: lastPage}
	if lastPolledAt.Valid {
		c.LastPolledAt = lastPolledAt.Time.UTC()
	}
	return c, nil
}

func (s *PostgresStore) Put(ctx context.Context, endpointID string, c domain.Cursor) error {
	var lastPolledAt sql.NullTime
	if !c.LastPolledAt.IsZero() {
		lastPolledAt = sql.NullTime{Time: c.LastPolledAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feed_cursors (endpoint_id, last_polled_at, last_page, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint_id) DO UPDATE
		SET last_polled_at = EXCLUDED.last_polled_at,
		    last_page = EXCLUDED.last_page,
		    updated_at = EXCLUDED.updated_at`,
		endpointID, lastPolledAt, c.LastPage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put cursor for %s: %w", endpointID, err)
	}
	return nil
}
