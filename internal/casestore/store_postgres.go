package casestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carelink/internal/domain"
)

// PostgresStore persists cases in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const caseSchema = `
CREATE TABLE IF NOT EXISTS cases (
	id          TEXT NOT NULL,
	domain      TEXT NOT NULL,
	case_type   TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	owner_id    TEXT NOT NULL DEFAULT '',
	properties  JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (domain, id)
);
CREATE INDEX IF NOT EXISTS cases_external_id_idx ON cases (domain, case_type, external_id);
`

// EnsureSchema creates the cases table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, caseSchema); err != nil {
		return fmt.Errorf("ensure cases schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, caseDomain, caseType, externalID string) ([]domain.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, case_type, name, external_id, owner_id, properties
		FROM cases
		WHERE domain = $1 AND case_type = $2 AND external_id = $3
		ORDER BY created_at`,
		caseDomain, caseType, externalID)
	if err != nil {
		return nil, fmt.Errorf("find cases by external id: %w", err)
	}
	defer rows.Close()

	var matches []domain.CaseRecord
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find cases by external id: %w", err)
	}
	return matches, nil
}

func (s *PostgresStore) Get(ctx context.Context, caseDomain, caseID string) (domain.CaseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain, case_type, name, external_id, owner_id, properties
		FROM cases
		WHERE domain = $1 AND id = $2`,
		caseDomain, caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CaseRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("get case %s: %w", caseID, err)
	}
	return c, nil
}

func (s *PostgresStore) Submit(ctx context.Context, write domain.CaseWrite) error {
	if write.Create {
		props, err := json.Marshal(write.Updates)
		if err != nil {
			return fmt.Errorf("marshal case properties: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO cases (id, domain, case_type, name, external_id, owner_id, properties)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			write.CaseID, write.Domain, write.CaseType, write.CaseName,
			write.ExternalID, write.OwnerID, props)
		if err != nil {
			return fmt.Errorf("create case %s: %w", write.CaseID, err)
		}
		return nil
	}

	// Update inside a transaction: read current properties, merge the
	// diff, write back. The diff is the unit of work; unchanged
	// properties are never touched.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update case %s: begin: %w", write.CaseID, err)
	}
	defer tx.Rollback()

	var rawProps []byte
	err = tx.QueryRowContext(ctx, `
		SELECT properties FROM cases WHERE domain = $1 AND id = $2 FOR UPDATE`,
		write.Domain, write.CaseID).Scan(&rawProps)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update case %s: %w", write.CaseID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update case %s: %w", write.CaseID, err)
	}

	props := make(map[string]string)
	if len(rawProps) > 0 {
		if err := json.Unmarshal(rawProps, &props); err != nil {
			return fmt.Errorf("update case %s: decode properties: %w", write.CaseID, err)
		}
	}
	for prop, value := range write.Updates {
		props[prop] = value
	}
	merged, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("update case %s: encode properties: %w", write.CaseID, err)
	}

	// Name and external id only move when the write carries them; a link
	// write sets external_id on an existing case.
	_, err = tx.ExecContext(ctx, `
		UPDATE cases SET
			properties  = $3,
			updated_at  = $4,
			name        = CASE WHEN $5 <> '' THEN $5 ELSE name END,
			external_id = CASE WHEN $6 <> '' THEN $6 ELSE external_id END
		WHERE domain = $1 AND id = $2`,
		write.Domain, write.CaseID, merged, time.Now().UTC(), write.CaseName, write.ExternalID)
	if err != nil {
		return fmt.Errorf("update case %s: %w", write.CaseID, err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (domain.CaseRecord, error) {
	var c domain.CaseRecord
	var rawProps []byte
	err := row.Scan(&c.ID, &c.Domain, &c.Type, &c.Name, &c.ExternalID, &c.OwnerID, &rawProps)
	if err != nil {
		return domain.CaseRecord{}, err
	}
	c.Properties = make(map[string]string)
	if len(rawProps) > 0 {
		if err := json.Unmarshal(rawProps, &c.Properties); err != nil {
			return domain.CaseRecord{}, fmt.Errorf("decode case properties: %w", err)
		}
	}
	return c, nil
}
