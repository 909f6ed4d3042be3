// Package history keeps a SQLite log of completed exchanges so the CLI can
// list, inspect and prune past requests.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	method      TEXT NOT NULL,
	url         TEXT NOT NULL,
	final_url   TEXT NOT NULL DEFAULT '',
	status      INTEGER NOT NULL DEFAULT 0,
	redirects   INTEGER NOT NULL DEFAULT 0,
	received    INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error_kind  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS exchanges_started_at ON exchanges (started_at);
`

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("history entry not found")

// Entry is one logged exchange. Failed exchanges carry ErrorKind and Error.
type Entry struct {
	ID         string
	StartedAt  time.Time
	Method     string
	URL        string
	FinalURL   string
	StatusCode int
	Redirects  int
	Received   int64
	Duration   time.Duration
	ErrorKind  http.ErrorKind
	Error      string
}

// Failed reports whether the exchange ended in an error.
func (e Entry) Failed() bool {
	return e.ErrorKind != "" || e.Error != ""
}

// NewEntry summarizes the result of Client.Do.
func NewEntry(method, url string, started time.Time, outcome *http.Outcome, err error) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		StartedAt: started,
		Method:    method,
		URL:       url,
		Duration:  time.Since(started),
	}
	if outcome != nil {
		e.FinalURL = outcome.URL
		e.StatusCode = outcome.StatusCode
		e.Redirects = outcome.Redirects
		e.Received = outcome.Received
		if outcome.Duration > 0 {
			e.Duration = outcome.Duration
		}
	}
	if err != nil {
		e.ErrorKind = http.KindOf(err)
		e.Error = err.Error()
		var herr *http.Error
		if errors.As(err, &herr) {
			e.StatusCode = herr.StatusCode
		}
	}
	return e
}

// Stats aggregates the whole log
type Stats struct {
	Total    int64
	Failed   int64
	AvgMs    float64
	Received int64
}

// QueryResult represents the result of an ad-hoc query
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// Store is a SQLite-backed exchange log
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens or creates the log. Accepted forms are a plain file path,
// sqlite://path and sqlite:path; ":memory:" keeps the log in memory.
func Open(connectionString string) (*Store, error) {
	dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	if dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, queryTimeout: 30 * time.Second}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record appends e to the log, assigning an id when e has none.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (id, started_at, method, url, final_url, status, redirects, received, duration_ms, error_kind, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StartedAt.UnixMilli(), e.Method, e.URL, e.FinalURL, e.StatusCode, e.Redirects,
		e.Received, e.Duration.Milliseconds(), string(e.ErrorKind), e.Error)
	if err != nil {
		return "", fmt.Errorf("failed to record exchange: %w", err)
	}
	return e.ID, nil
}

const selectColumns = `SELECT id, started_at, method, url, final_url, status, redirects, received, duration_ms, error_kind, error FROM exchanges`

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	q := selectColumns + ` ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.list(ctx, q, args...)
}

// Failures returns failed entries, newest first.
func (s *Store) Failures(ctx context.Context, limit int) ([]Entry, error) {
	q := selectColumns + ` WHERE error_kind != '' OR error != '' ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.list(ctx, q, args...)
}

// Get looks up one entry by id or unique id prefix.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	entries, err := s.list(ctx, selectColumns+` WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escapeLike(id)+"%")
	if err != nil {
		return Entry{}, err
	}
	switch len(entries) {
	case 0:
		return Entry{}, ErrNotFound
	case 1:
		return entries[0], nil
	default:
		return Entry{}, fmt.Errorf("ambiguous history id prefix %q", id)
	}
}

// Prune deletes entries started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN error_kind != '' OR error != '' THEN 1 ELSE 0 END), 0),
		       AVG(duration_ms),
		       COALESCE(SUM(received), 0)
		FROM exchanges`).Scan(&st.Total, &st.Failed, &avg, &st.Received)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read history stats: %w", err)
	}
	st.AvgMs = avg.Float64
	return st, nil
}

// Query executes a read-only SQL query against the log
func (s *Store) Query(query string) (*QueryResult, error) {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(trimmed, "select") && !strings.HasPrefix(trimmed, "with") {
		return nil, fmt.Errorf("only SELECT queries are allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := &QueryResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any)
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return result, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			startedAt  int64
			durationMs int64
			kind       string
		)
		if err := rows.Scan(&e.ID, &startedAt, &e.Method, &e.URL, &e.FinalURL, &e.StatusCode,
			&e.Redirects, &e.Received, &durationMs, &kind, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedAt)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.ErrorKind = http.ErrorKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// parseConnectionString accepts:
// - sqlite://path/to/history.db
// - sqlite:./history.db
// - path/to/history.db
func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)

	switch {
	case strings.HasPrefix(connStr, "sqlite://"):
		connStr = strings.TrimPrefix(connStr, "sqlite://")
	case strings.HasPrefix(connStr, "sqlite:"):
		connStr = strings.TrimPrefix(connStr, "sqlite:")
	case strings.Contains(connStr, "://"):
		return "", fmt.Errorf("unsupported database scheme in %q", connStr)
	}

	if connStr == "" {
		return "", fmt.Errorf("empty history path")
	}
	return connStr, nil
}
