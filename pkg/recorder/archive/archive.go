// Package archive persists recorded events to SQLite so traffic can be
// inspected after the mocks that produced it are gone.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// ErrEmptyPath is returned by Open when no database path is given.
var ErrEmptyPath = errors.New("archive path cannot be empty")

// Archive is a recorder.Sink backed by a SQLite database.
type Archive struct {
	db *sql.DB
}

var _ recorder.Sink = (*Archive)(nil)

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Archive, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve archive path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare archive directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(absPath))
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %s: %w", stmt, err)
		}
	}

	a := &Archive{db: db}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    mock TEXT NOT NULL,
    timestamp_ns INTEGER NOT NULL,
    port INTEGER,
    method TEXT,
    path TEXT,
    duration_ms INTEGER,
    status_code INTEGER,
    request_json TEXT NOT NULL,
    response_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_mock_ts ON events(mock, timestamp_ns);
`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("init archive schema: %w", err)
	}
	return nil
}

// Write stores ev. It implements recorder.Sink.
func (a *Archive) Write(ev recorder.Event) error {
	reqJSON, err := json.Marshal(ev.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	respJSON, err := json.Marshal(ev.Response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	ts := ev.Timestamp.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = a.db.ExecContext(context.Background(), `INSERT OR REPLACE INTO events (
        id, mock, timestamp_ns, port, method, path, duration_ms, status_code,
        request_json, response_json
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.Mock,
		ts.UnixNano(),
		ev.Port,
		ev.Method,
		ev.Path,
		ev.DurationMs,
		ev.Response.StatusCode,
		string(reqJSON),
		string(respJSON),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Query filters List results.
type Query struct {
	// Mock restricts results to one mock name. Empty means all.
	Mock string
	// Since excludes events older than this time.
	Since time.Time
	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// List returns archived events, oldest first.
func (a *Archive) List(ctx context.Context, q Query) ([]recorder.Event, error) {
	stmt := `SELECT id, mock, timestamp_ns, port, method, path, duration_ms, request_json, response_json
FROM events WHERE timestamp_ns >= ?`
	args := []any{q.Since.UnixNano()}
	if q.Since.IsZero() {
		args[0] = int64(0)
	}
	if q.Mock != "" {
		stmt += " AND mock = ?"
		args = append(args, q.Mock)
	}
	stmt += " ORDER BY timestamp_ns ASC, rowid ASC"
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := a.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []recorder.Event
	for rows.Next() {
		var (
			ev                recorder.Event
			tsNano            int64
			reqJSON, respJSON string
		)
		if err := rows.Scan(&ev.ID, &ev.Mock, &tsNano, &ev.Port, &ev.Method, &ev.Path, &ev.DurationMs, &reqJSON, &respJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Timestamp = time.Unix(0, tsNano).UTC()
		var req mock.RequestReport
		if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		var resp mock.ResponseReport
		if err := json.Unmarshal([]byte(respJSON), &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		ev.Request, ev.Response = req, resp
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Count returns the number of archived events.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
