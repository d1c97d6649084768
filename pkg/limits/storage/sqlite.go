package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go SQLite driver, registered as "sqlite"
)

// SQLite driver names accepted by SQLiteBackendConfig.Driver.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// SQLiteBackend implements Backend using SQLite.
// It is suitable for single-instance deployments that want the journal to
// survive restarts.
//
// SQLiteBackend uses a write-ahead log (WAL) and checkpoints it periodically.
type SQLiteBackend struct {
	db                 *sql.DB
	dbPath             string
	driver             string
	checkpointInterval time.Duration
	done               chan struct{}
	mu                 sync.RWMutex
	closeOnce          sync.Once
	closed             bool

	recordStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// Driver is DriverModernc (default) or DriverMattn.
	Driver string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn, err := sqliteDSN(cfg)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." && cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:                 db,
		dbPath:             cfg.DBPath,
		driver:             cfg.Driver,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go backend.checkpointLoop()

	return backend, nil
}

// sqliteDSN builds the connection string; the two drivers spell pragmas
// differently.
func sqliteDSN(cfg SQLiteBackendConfig) (string, error) {
	// SQLite percent-decodes URI filenames, so a '?' or '#' in the path
	// must not end it.
	path := (&url.URL{Path: cfg.DBPath}).EscapedPath()
	busy := cfg.BusyTimeout.Milliseconds()
	switch cfg.Driver {
	case DriverModernc:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
			path, busy), nil
	case DriverMattn:
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
			path, busy), nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q (want %q or %q)", cfg.Driver, DriverModernc, DriverMattn)
	}
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		at INTEGER NOT NULL,
		policy TEXT NOT NULL,
		tenant_key TEXT NOT NULL,
		admitted INTEGER NOT NULL,
		allowed INTEGER NOT NULL,
		action TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_at ON decisions(at);
	CREATE INDEX IF NOT EXISTS idx_decisions_policy_key ON decisions(policy, tenant_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.recordStmt, err = s.db.Prepare(`
		INSERT INTO decisions (id, at, policy, tenant_key, admitted, allowed, action, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`DELETE FROM decisions WHERE at < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// Record inserts one event.
func (s *SQLiteBackend) Record(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	_, err := s.recordStmt.ExecContext(ctx,
		event.ID,
		event.At.UnixNano(),
		event.Policy,
		event.Key,
		boolToInt(event.Admitted),
		boolToInt(event.Allowed),
		event.Action,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *SQLiteBackend) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	where, args := filterClause(filter)
	query := `SELECT id, at, policy, tenant_key, admitted, allowed, action, request_id FROM decisions` +
		where + ` ORDER BY at DESC LIMIT ?`
	args = append(args, filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e                 Event
			at                int64
			admitted, allowed int
		)
		if err := rows.Scan(&e.ID, &at, &e.Policy, &e.Key, &admitted, &allowed, &e.Action, &e.RequestID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.At = time.Unix(0, at)
		e.Admitted = admitted != 0
		e.Allowed = allowed != 0
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// Summary aggregates matching events with GROUP BY.
func (s *SQLiteBackend) Summary(ctx context.Context, filter Filter) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	where, args := filterClause(filter)
	query := `SELECT policy, tenant_key, admitted, COUNT(*) FROM decisions` +
		where + ` GROUP BY policy, tenant_key, admitted`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize events: %w", err)
	}
	defer rows.Close()

	summary := NewSummary()
	for rows.Next() {
		var (
			policy, key string
			admitted    int
			n           int64
		)
		if err := rows.Scan(&policy, &key, &admitted, &n); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		addCounts(&summary.Counts, admitted != 0, n)
		addCounts(summary.bucket(summary.ByPolicy, policy), admitted != 0, n)
		addCounts(summary.bucket(summary.ByKey, key), admitted != 0, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary: %w", err)
	}

	return summary, nil
}

// Cleanup removes events recorded before olderThan.
func (s *SQLiteBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// Ping checks the database connection.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Driver returns the database/sql driver name in use.
func (s *SQLiteBackend) Driver() string {
	return s.driver
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true

		if s.recordStmt != nil {
			s.recordStmt.Close()
		}
		if s.cleanupStmt != nil {
			s.cleanupStmt.Close()
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.RLock()
			if !s.closed {
				_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
			}
			s.mu.RUnlock()
		case <-s.done:
			return
		}
	}
}

// filterClause renders filter as a WHERE clause with positional args.
func filterClause(filter Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Policy != "" {
		conds = append(conds, "policy = ?")
		args = append(args, filter.Policy)
	}
	if filter.Key != "" {
		conds = append(conds, "tenant_key = ?")
		args = append(args, filter.Key)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "at >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "at < ?")
		args = append(args, filter.Until.UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func addCounts(c *Counts, admitted bool, n int64) {
	if admitted {
		c.Admitted += n
	} else {
		c.Rejected += n
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
