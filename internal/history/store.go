package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store tuning constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds for the busy_timeout pragma.
	msPerSecond = 1000

	// connectionTimeout bounds the startup connectivity check.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// defaultHistoryLimit is used when History is called with limit <= 0.
	defaultHistoryLimit = 50

	// maxHistoryLimit caps the rows a single History call can return.
	maxHistoryLimit = 200
)

// schema creates the feat_history table. Executed on every Open; the
// IF NOT EXISTS guards make it idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS feat_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	instrument TEXT NOT NULL,
	feat TEXT NOT NULL,
	value TEXT NOT NULL,
	previous TEXT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
) STRICT;
CREATE INDEX IF NOT EXISTS idx_feat_history_instrument
	ON feat_history(instrument, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_feat_history_time
	ON feat_history(created_at DESC);
`

// Config contains store configuration options.
// These map to the history section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging for better concurrent access.
	// Recommended: true (allows concurrent reads during writes).
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	// Prevents "database is locked" errors under contention.
	BusyTimeout int
}

// Entry is one recorded feat change.
type Entry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// Instrument is the name of the instrument the feat belongs to.
	Instrument string `json:"instrument"`

	// Feat is the feat name, including the key for keyed feats
	// (for example "eggs['answer']").
	Feat string `json:"feat"`

	// Value is the observed value after the change.
	Value any `json:"value"`

	// Previous is the value before the change, nil when unknown.
	Previous any `json:"previous,omitempty"`

	// CreatedAt is the timestamp of the change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Store persists feat changes to SQLite.
//
// A Store is safe for concurrent use. SQLite only supports a single
// writer, so the connection pool is capped at one connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the database file if needed, applies the schema and
// returns a ready Store.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Configures WAL mode and busy timeout
//  4. Verifies the connection with a ping
//  5. Applies the feat_history schema
//
// Parameters:
//   - cfg: Store configuration
//
// Returns:
//   - *Store: Connected store ready for use
//   - error: If connection, configuration or schema setup fails
func Open(cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	// Build connection string with pragmas
	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying history database connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	// Owner read/write only. The file might not exist until the first
	// write, so the error is ignored.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later

	return &Store{db: db, path: cfg.Path}, nil
}

// OpenDB wraps an already open connection, applying the schema.
// Used by tests with in-memory databases.
func OpenDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
// It should be called when the application shuts down.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing history database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (s *Store) Path() string {
	return s.path
}

// HealthCheck verifies the database is accessible and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("history health check failed: %w", err)
	}
	return nil
}

// Record inserts one feat change row.
//
// Entry.Value and Entry.Previous are stored as JSON. A nil Previous is
// stored as SQL NULL, distinguishing "no prior value" from an explicit
// JSON null.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - e: Entry to persist; Instrument and Feat are required
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s.db == nil {
		return ErrClosed
	}
	if e.Instrument == "" || e.Feat == "" {
		return ErrInvalidEntry
	}

	valueJSON, err := json.Marshal(e.Value)
	if err != nil {
		return fmt.Errorf("marshalling value: %w", err)
	}

	var previous any
	if e.Previous != nil {
		prevJSON, err := json.Marshal(e.Previous)
		if err != nil {
			return fmt.Errorf("marshalling previous value: %w", err)
		}
		previous = string(prevJSON)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO feat_history (instrument, feat, value, previous) VALUES (?, ?, ?, ?)",
		e.Instrument,
		e.Feat,
		string(valueJSON),
		previous,
	)
	if err != nil {
		return fmt.Errorf("inserting feat history: %w", err)
	}

	return nil
}

// History returns recent entries for an instrument, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - instrument: Instrument name to query
//   - feat: Feat name to filter by, or "" for all feats
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Entry: History entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (s *Store) History(ctx context.Context, instrument, feat string, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `SELECT id, instrument, feat, value, previous, created_at
		FROM feat_history
		WHERE instrument = ?`
	args := []any{instrument}
	if feat != "" {
		query += " AND feat = ?"
		args = append(args, feat)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying feat history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var valueJSON string
		var prevJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.Instrument, &entry.Feat,
			&valueJSON, &prevJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning feat history: %w", err)
		}

		if err := json.Unmarshal([]byte(valueJSON), &entry.Value); err != nil {
			return nil, fmt.Errorf("unmarshalling value: %w", err)
		}
		if prevJSON.Valid {
			if err := json.Unmarshal([]byte(prevJSON.String), &entry.Previous); err != nil {
				return nil, fmt.Errorf("unmarshalling previous value: %w", err)
			}
		}

		timestamp, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feat history: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Retention window (entries older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM feat_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting feat history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseTimestamp parses a created_at value stored by SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
