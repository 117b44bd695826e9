package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists audit events for long-lived operator review.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS sync_audit (
	id           BIGSERIAL PRIMARY KEY,
	ts           TIMESTAMPTZ NOT NULL,
	endpoint_id  TEXT NOT NULL,
	domain       TEXT NOT NULL,
	action       TEXT NOT NULL,
	patient_uuid TEXT NOT NULL DEFAULT '',
	case_id      TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	detail       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sync_audit_endpoint_idx ON sync_audit (endpoint_id, ts);
`

// EnsureSchema creates the sync_audit table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_audit (ts, endpoint_id, domain, action, patient_uuid, case_id, reason, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.Timestamp, event.EndpointID, event.Domain, string(event.Action),
		event.PatientUUID, event.CaseID, event.Reason, event.Detail)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByEndpoint(ctx context.Context, endpointID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, endpoint_id, domain, action, patient_uuid, case_id, reason, detail
		FROM sync_audit WHERE endpoint_id = $1 ORDER BY ts`,
		endpointID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var action string
		if err := rows.Scan(&event.Timestamp, &event.EndpointID, &event.Domain, &action,
			&event.PatientUUID, &event.CaseID, &event.Reason, &event.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = Action(action)
		events = append(events, event)
	}
	return events, rows.Err()
}
