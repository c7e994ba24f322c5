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

	_ "modernc.org/sqlite"
)

// Entry is one finished job, any outcome.
type Entry struct {
	ID           int64     `json:"id"`
	JobID        int64     `json:"jobId"`
	Kind         string    `json:"kind"`
	InputPath    string    `json:"inputPath"`
	OutputPath   string    `json:"outputPath,omitempty"`
	Codec        string    `json:"codec"`
	Quality      int       `json:"quality"`
	Outcome      string    `json:"outcome"`
	ErrorSummary string    `json:"errorSummary,omitempty"`
	InputBytes   int64     `json:"inputBytes,omitempty"`
	OutputBytes  int64     `json:"outputBytes,omitempty"`
	DurationMS   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store manages history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	defaultRecentLimit = 50
)

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path reports the database file backing this store.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS history_entries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            job_id INTEGER NOT NULL,
            kind TEXT NOT NULL,
            input_path TEXT NOT NULL,
            output_path TEXT,
            codec TEXT NOT NULL,
            quality INTEGER NOT NULL,
            outcome TEXT NOT NULL,
            error_summary TEXT,
            input_bytes INTEGER NOT NULL DEFAULT 0,
            output_bytes INTEGER NOT NULL DEFAULT 0,
            duration_ms INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_history_created_at ON history_entries(created_at)`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("init history schema: %w", err)
		}
	}
	return nil
}

// Record inserts a finished-job entry.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return s.execWithRetry(
		ctx,
		`INSERT INTO history_entries (
            job_id, kind, input_path, output_path, codec, quality,
            outcome, error_summary, input_bytes, output_bytes,
            duration_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.JobID,
		entry.Kind,
		entry.InputPath,
		nullableString(entry.OutputPath),
		entry.Codec,
		entry.Quality,
		entry.Outcome,
		nullableString(entry.ErrorSummary),
		entry.InputBytes,
		entry.OutputBytes,
		entry.DurationMS,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
}

const entryColumns = "id, job_id, kind, input_path, output_path, codec, quality, outcome, error_summary, input_bytes, output_bytes, duration_ms, created_at"

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM history_entries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Prune keeps only the newest keep entries. Keep values of zero or less
// clear the table.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return s.Clear(ctx)
	}
	return s.execWithRetry(ctx,
		`DELETE FROM history_entries WHERE id NOT IN (
            SELECT id FROM history_entries ORDER BY id DESC LIMIT ?
        )`, keep)
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	return s.execWithRetry(ctx, `DELETE FROM history_entries`)
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry        Entry
		outputPath   sql.NullString
		errorSummary sql.NullString
		createdRaw   string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.JobID,
		&entry.Kind,
		&entry.InputPath,
		&outputPath,
		&entry.Codec,
		&entry.Quality,
		&entry.Outcome,
		&errorSummary,
		&entry.InputBytes,
		&entry.OutputBytes,
		&entry.DurationMS,
		&createdRaw,
	); err != nil {
		return Entry{}, fmt.Errorf("scan history entry: %w", err)
	}
	entry.OutputPath = outputPath.String
	entry.ErrorSummary = errorSummary.String
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
