// Package logstore persists telemetry events in SQLite so that the
// diagnostic stream of a request can be inspected after it finished.
package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS log_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id   TEXT    NOT NULL,
	timestamp    TEXT    NOT NULL,
	level        TEXT    NOT NULL,
	info_type    TEXT,
	category     TEXT    NOT NULL,
	phase        TEXT,
	message      TEXT    NOT NULL,
	elapsed_ms   INTEGER NOT NULL,
	details      TEXT,
	bytes_logged INTEGER,
	truncated    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_log_events_request ON log_events(request_id, id);
`

const (
	queryTimeout = 30 * time.Second
	// fixed width so stored timestamps sort as text
	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Store is a telemetry.Sink backed by a SQLite table. Emit never fails
// the caller; insert errors are counted.
type Store struct {
	db       *sql.DB
	insert   *sql.Stmt
	failures atomic.Int64
}

// RequestSummary describes the stored events of one request.
type RequestSummary struct {
	RequestID string
	Events    int
	First     time.Time
	Last      time.Time
}

// Open opens or creates the store. path may carry a sqlite:// or sqlite:
// prefix.
func Open(path string) (*Store, error) {
	dsn := dataSource(path)
	if dsn == "" {
		return nil, apperror.New(apperror.BadRequest, "Log database path is empty")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperror.Wrap(apperror.IoError, err, "Failed to open log database")
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, apperror.Wrap(apperror.IoError, err, fmt.Sprintf("Failed to initialize log database '%s'", path))
	}

	stmt, err := db.PrepareContext(ctx, `INSERT INTO log_events
		(request_id, timestamp, level, info_type, category, phase, message, elapsed_ms, details, bytes_logged, truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, apperror.Wrap(apperror.IoError, err, "Failed to prepare log insert")
	}

	return &Store{db: db, insert: stmt}, nil
}

func dataSource(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "sqlite://") {
		return strings.TrimPrefix(path, "sqlite://")
	}
	return strings.TrimPrefix(path, "sqlite:")
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.insert != nil {
		_ = s.insert.Close()
	}
	return s.db.Close()
}

// Emit writes e. It implements telemetry.Sink.
func (s *Store) Emit(e telemetry.Event) {
	var details sql.NullString
	if len(e.Details) > 0 {
		if data, err := json.Marshal(e.Details); err == nil {
			details = sql.NullString{String: string(data), Valid: true}
		}
	}
	var bytesLogged sql.NullInt64
	if e.BytesLogged != nil {
		bytesLogged = sql.NullInt64{Int64: *e.BytesLogged, Valid: true}
	}
	var truncated sql.NullBool
	if e.Truncated != nil {
		truncated = sql.NullBool{Bool: *e.Truncated, Valid: true}
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := s.insert.ExecContext(ctx,
		e.RequestID,
		e.Timestamp.UTC().Format(timeLayout),
		string(e.Level),
		nullString(e.InfoType),
		e.Category,
		nullString(e.Phase),
		e.Message,
		e.ElapsedMs,
		details,
		bytesLogged,
		truncated,
	)
	if err != nil {
		s.failures.Add(1)
	}
}

// Failures returns the number of events that could not be stored.
func (s *Store) Failures() int64 {
	return s.failures.Load()
}

// Events returns the stored events of requestID in emission order.
func (s *Store) Events(ctx context.Context, requestID string) ([]telemetry.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT request_id, timestamp, level, info_type, category, phase,
		message, elapsed_ms, details, bytes_logged, truncated
		FROM log_events WHERE request_id = ? ORDER BY id`, requestID)
	if err != nil {
		return nil, apperror.Wrap(apperror.IoError, err, "Failed to query log events")
	}
	defer rows.Close()

	var events []telemetry.Event
	for rows.Next() {
		var (
			e           telemetry.Event
			ts, level   string
			infoType    sql.NullString
			phase       sql.NullString
			details     sql.NullString
			bytesLogged sql.NullInt64
			truncated   sql.NullBool
		)
		if err := rows.Scan(&e.RequestID, &ts, &level, &infoType, &e.Category, &phase,
			&e.Message, &e.ElapsedMs, &details, &bytesLogged, &truncated); err != nil {
			return nil, apperror.Wrap(apperror.IoError, err, "Failed to scan log event")
		}

		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.Level = telemetry.Level(level)
		e.InfoType = infoType.String
		e.Phase = phase.String
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				e.Details = telemetry.Details{"raw": details.String}
			}
		}
		if bytesLogged.Valid {
			n := bytesLogged.Int64
			e.BytesLogged = &n
		}
		if truncated.Valid {
			b := truncated.Bool
			e.Truncated = &b
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.IoError, err, "Failed to read log events")
	}
	return events, nil
}

// Requests lists the stored requests, most recent first.
func (s *Store) Requests(ctx context.Context, limit int) ([]RequestSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT request_id, COUNT(*), MIN(timestamp), MAX(timestamp), MAX(id) AS last_id
		FROM log_events GROUP BY request_id ORDER BY last_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.IoError, err, "Failed to list requests")
	}
	defer rows.Close()

	var out []RequestSummary
	for rows.Next() {
		var (
			r           RequestSummary
			first, last string
			lastID      int64
		)
		if err := rows.Scan(&r.RequestID, &r.Events, &first, &last, &lastID); err != nil {
			return nil, apperror.Wrap(apperror.IoError, err, "Failed to scan request summary")
		}
		r.First, _ = time.Parse(time.RFC3339Nano, first)
		r.Last, _ = time.Parse(time.RFC3339Nano, last)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.IoError, err, "Failed to read request summaries")
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
