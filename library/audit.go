package library

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AuditEvent records one committed mutation.
type AuditEvent struct {
	ID         uuid.UUID
	Kind       string
	OccurredAt time.Time
	Payload    []byte // JSON
}

// NewAuditEvent encodes payload as JSON under a fresh event id.
func NewAuditEvent(kind string, payload any) (*AuditEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &AuditEvent{
		ID:         uuid.New(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	}, nil
}

// Decode unmarshals the payload into v.
func (e *AuditEvent) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

func (d *Database) appendEvent(tx *sqlx.Tx, ev *AuditEvent) error {
	if _, err := tx.Stmtx(d.appendEventStmt).Exec(ev.ID.String(), ev.Kind, ev.OccurredAt, string(ev.Payload)); err != nil {
		return fmt.Errorf("append %s event: %w", ev.Kind, err)
	}
	return nil
}

type auditRow struct {
	ID         string    `db:"id"`
	Kind       string    `db:"kind"`
	OccurredAt time.Time `db:"occurred_at"`
	Payload    string    `db:"payload"`
}

// AuditEvents returns the most recent events, newest first. limit <= 0
// returns all of them.
func (d *Database) AuditEvents(limit int) ([]*AuditEvent, error) {
	query := `SELECT id, kind, occurred_at, payload FROM audit_events ORDER BY occurred_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []auditRow
	if err := d.db.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*AuditEvent, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("audit event id %q: %w", r.ID, err)
		}
		out = append(out, &AuditEvent{ID: id, Kind: r.Kind, OccurredAt: r.OccurredAt, Payload: []byte(r.Payload)})
	}
	return out, nil
}
