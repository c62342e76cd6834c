package persistence

import (
	"context"
	"database/sql"
	"time"
)

// SQLiteEventStore stores flow run events in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

var _ EventStore = (*SQLiteEventStore)(nil)

// NewSQLiteEventStore creates the events table if needed. The caller owns db
// and must have registered a SQLite driver (modernc.org/sqlite).
func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			flow_name TEXT NOT NULL DEFAULT '',
			node TEXT NOT NULL DEFAULT '',
			next TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_flow_events_run_id ON flow_events(run_id, id);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev Event) error {
	if ev.RunID == "" {
		return ErrMissingRunID
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_events (run_id, at, type, flow_name, node, next, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID,
		at.UnixNano(),
		string(ev.Type),
		ev.Flow,
		ev.Node,
		ev.Next,
		ev.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, type, flow_name, node, next, detail
		FROM flow_events
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			id     string
			atN    int64
			typ    string
			name   string
			node   string
			next   string
			detail string
		)
		if err := rows.Scan(&id, &atN, &typ, &name, &node, &next, &detail); err != nil {
			return nil, err
		}
		out = append(out, Event{
			RunID:  id,
			At:     time.Unix(0, atN),
			Type:   EventType(typ),
			Flow:   name,
			Node:   node,
			Next:   next,
			Detail: detail,
		})
	}
	return out, rows.Err()
}
