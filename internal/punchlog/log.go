package punchlog

import (
	"context"
	"database/sql"
	"fmt"

	"punchclock/internal/attendance"
)

// Log is the append-only punch event trail in Postgres. Rows are never
// updated or deleted, and duplicates are acceptable: the log is forensic
// evidence, not the attendance source of truth.
type Log struct {
	db *sql.DB
}

// NewLog creates the log.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Append writes one punch event.
func (l *Log) Append(ctx context.Context, p attendance.Punch) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO punch_events (id, person_id, person_kind, punch_date, occurred_at, device_id, card_number)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7)
	`, p.ID, p.PersonID, p.Kind, p.Date, p.OccurredAt, p.DeviceID, p.CardNumber)
	return err
}

// List returns punch events with basic filters, newest first.
func (l *Log) List(ctx context.Context, personID, deviceID string, limit, offset int) ([]attendance.Punch, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, person_id, person_kind, punch_date::text, occurred_at, device_id, card_number FROM punch_events`
	args := []any{}
	clauses := []string{}
	if personID != "" {
		clauses = append(clauses, "person_id = $"+itoa(len(args)+1))
		args = append(args, personID)
	}
	if deviceID != "" {
		clauses = append(clauses, "device_id = $"+itoa(len(args)+1))
		args = append(args, deviceID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY occurred_at DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []attendance.Punch
	for rows.Next() {
		var p attendance.Punch
		if err := rows.Scan(&p.ID, &p.PersonID, &p.Kind, &p.Date, &p.OccurredAt, &p.DeviceID, &p.CardNumber); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
