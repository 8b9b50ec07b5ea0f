package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/wavematch/core/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS audit_decisions (
    id TEXT PRIMARY KEY,
    ts INTEGER NOT NULL,
    grp TEXT NOT NULL,
    opportunity_id TEXT NOT NULL,
    candidate_id TEXT NOT NULL,
    record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_decisions_ts ON audit_decisions (ts);
CREATE INDEX IF NOT EXISTS audit_decisions_grp_ts ON audit_decisions (grp, ts);`

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the record. Records are write-once: a repeated id fails.
func (s *SQLiteStore) Append(ctx context.Context, rec model.DecisionAudit) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_decisions (id, ts, grp, opportunity_id, candidate_id, record) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RecordedAt.UnixNano(), rec.Group, rec.OpportunityID, rec.CandidateID, string(b))
	return err
}

// Query returns records matching q ordered by time.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]model.DecisionAudit, error) {
	var args []any
	query := `SELECT record FROM audit_decisions WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.Group != "" {
		query += ` AND grp = ?`
		args = append(args, q.Group)
	}
	if q.OpportunityID != "" {
		query += ` AND opportunity_id = ?`
		args = append(args, q.OpportunityID)
	}
	if q.CandidateID != "" {
		query += ` AND candidate_id = ?`
		args = append(args, q.CandidateID)
	}
	query += ` ORDER BY ts`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.DecisionAudit
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r model.DecisionAudit
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
