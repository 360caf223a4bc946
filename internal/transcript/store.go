// Package transcript keeps an audit log of answered queries in SQLite. The
// log is written for operators only and is never fed back into prompts.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dusk-indust/mcphost/internal/dispatch"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one answered query.
type Entry struct {
	ID        string
	Query     string
	Response  string
	Fallback  bool
	Server    string
	Tool      string
	Arguments map[string]any
	Note      string
	Duration  time.Duration
	CreatedAt time.Time
}

// FromResult builds an entry for res.
func FromResult(res *dispatch.QueryResult, elapsed time.Duration) *Entry {
	e := &Entry{
		Query:    res.Query,
		Response: res.String(),
		Fallback: res.Fallback,
		Note:     res.Note,
		Duration: elapsed,
	}
	if res.Envelope != nil {
		e.Server = res.Envelope.Server
		e.Tool = res.Envelope.ToolName
		e.Arguments = res.Envelope.Arguments
	}
	return e
}

// Store is a SQLite-backed transcript.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the transcript database at path, creating parent
// directories as needed.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "transcript")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("transcript: creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("transcript: opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: creating schema: %w", err)
	}

	logger.Debug("transcript opened", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			response TEXT NOT NULL,
			fallback INTEGER NOT NULL DEFAULT 0,
			server TEXT,
			tool TEXT,
			arguments_json TEXT,
			note TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_exchanges_created
			ON exchanges(created_at);
	`)
	return err
}

// Record appends e, assigning ID and CreatedAt when unset.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var argsJSON *string
	if e.Arguments != nil {
		data, err := json.Marshal(e.Arguments)
		if err != nil {
			return fmt.Errorf("transcript: marshaling arguments: %w", err)
		}
		str := string(data)
		argsJSON = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (id, query, response, fallback, server, tool, arguments_json, note, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.Query,
		e.Response,
		e.Fallback,
		nullable(e.Server),
		nullable(e.Tool),
		argsJSON,
		nullable(e.Note),
		e.Duration.Milliseconds(),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("transcript: inserting exchange: %w", err)
	}

	s.logger.Debug("recorded exchange", "id", e.ID, "server", e.Server, "tool", e.Tool, "fallback", e.Fallback)
	return nil
}

// normalizeLimit applies default (20) and cap (1000).
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, response, fallback, server, tool, arguments_json, note, duration_ms, created_at
		FROM exchanges
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("transcript: querying exchanges: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: iterating exchanges: %w", err)
	}
	return entries, nil
}

// Count returns the number of recorded exchanges.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exchanges").Scan(&n); err != nil {
		return 0, fmt.Errorf("transcript: counting exchanges: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var e Entry
	var server, tool, argsJSON, note sql.NullString
	var durationMS int64
	var createdAt string

	if err := scanner.Scan(&e.ID, &e.Query, &e.Response, &e.Fallback, &server, &tool, &argsJSON, &note, &durationMS, &createdAt); err != nil {
		return e, fmt.Errorf("transcript: scanning exchange: %w", err)
	}
	e.Server = server.String
	e.Tool = tool.String
	e.Note = note.String
	e.Duration = time.Duration(durationMS) * time.Millisecond

	var err error
	e.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return e, fmt.Errorf("transcript: parsing timestamp: %w", err)
	}
	if argsJSON.Valid {
		if err := json.Unmarshal([]byte(argsJSON.String), &e.Arguments); err != nil {
			return e, fmt.Errorf("transcript: unmarshaling arguments: %w", err)
		}
	}
	return e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
