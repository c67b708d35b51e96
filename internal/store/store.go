// Package store implements the SDK's durable local storage: the event outbox,
// the session index used to recover abandoned sessions, cross-session
// key-value state and progression attempt counters.
//
// The backing file is a single SQLite database per game-key namespace. All
// access happens on the SDK's worker goroutine; the store itself only
// guarantees statement-level atomicity (writes run inside an IMMEDIATE
// transaction) and never crashes the process on SQL failure — errors are
// logged and surfaced for callers to degrade on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gamesignals/beacon/internal/logging"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	// MaxSizeBytes is the hard ceiling: above this, event inserts are
	// refused for all but the priority categories.
	MaxSizeBytes = 6291456

	// TrimThresholdBytes triggers the startup trim pass.
	TrimThresholdBytes = 5242880

	dbFileName = "ga.sqlite3"
)

var writeStmtRe = regexp.MustCompile(`^(?i)\s*(UPDATE|INSERT|DELETE)`)

var memdbSeq atomic.Int64

// Row is one result row keyed by column name. Integer and float columns come
// back as int64 and float64; everything else as string.
type Row map[string]any

// Store owns the SQLite database file. Safe for use from a single goroutine;
// the ready flag may be read from anywhere.
type Store struct {
	log    *logging.Logger
	db     *sql.DB
	dbPath string
	ready  atomic.Bool
}

// Open creates the namespace directory under writableDir and opens the
// database file inside it. Passing ":memory:" as writableDir opens an
// in-memory database (tests).
func Open(writableDir, namespaceKey string, log *logging.Logger) (*Store, error) {
	var connStr, dbPath string
	if writableDir == ":memory:" {
		// A named shared-cache memory database survives connection churn in
		// the pool; the unique name isolates concurrent test stores.
		dbPath = ":memory:"
		connStr = fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", memdbSeq.Add(1))
	} else {
		dir := filepath.Join(writableDir, namespaceKey)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dbPath = filepath.Join(dir, dbFileName)
		connStr = "file:" + dbPath + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The worker goroutine is the only user; a single connection keeps the
	// implicit-transaction discipline simple and makes :memory: behave.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log.Infof("Database opened: %s", dbPath)
	return &Store{log: log, db: db, dbPath: dbPath}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.ready.Store(false)
	return s.db.Close()
}

// Ready reports whether Ensure has completed successfully. All operations are
// refused until it has.
func (s *Store) Ready() bool {
	return s.ready.Load()
}

// Path returns the backing file path (empty for in-memory databases).
func (s *Store) Path() string {
	if s.dbPath == ":memory:" {
		return ""
	}
	return s.dbPath
}

// Ensure idempotently creates the four tables, recreating any single table
// whose shape probe fails (corruption), then runs the startup trim. It must
// succeed before any other store operation. With drop set, all tables are
// dropped first.
func (s *Store) Ensure(drop bool) error {
	if drop {
		s.log.Debug("Drop tables")
		_, _ = s.Execute("DROP TABLE ga_events")
		_, _ = s.Execute("DROP TABLE ga_state")
		_, _ = s.Execute("DROP TABLE ga_session")
		_, _ = s.Execute("DROP TABLE ga_progression")
		_, _ = s.Execute("VACUUM")
	}

	tables := []struct {
		name   string
		create string
		probe  string
	}{
		{
			name:   "ga_events",
			create: "CREATE TABLE IF NOT EXISTS ga_events(status CHAR(50) NOT NULL, category CHAR(50) NOT NULL, session_id CHAR(50) NOT NULL, client_ts CHAR(50) NOT NULL, event TEXT NOT NULL);",
			probe:  "SELECT status FROM ga_events LIMIT 0,1",
		},
		{
			name:   "ga_session",
			create: "CREATE TABLE IF NOT EXISTS ga_session(session_id CHAR(50) PRIMARY KEY NOT NULL, timestamp CHAR(50) NOT NULL, event TEXT NOT NULL);",
			probe:  "SELECT session_id FROM ga_session LIMIT 0,1",
		},
		{
			name:   "ga_state",
			create: "CREATE TABLE IF NOT EXISTS ga_state(key CHAR(255) PRIMARY KEY NOT NULL, value TEXT);",
			probe:  "SELECT key FROM ga_state LIMIT 0,1",
		},
		{
			name:   "ga_progression",
			create: "CREATE TABLE IF NOT EXISTS ga_progression(progression CHAR(255) PRIMARY KEY NOT NULL, tries CHAR(255));",
			probe:  "SELECT progression FROM ga_progression LIMIT 0,1",
		},
	}

	for _, tbl := range tables {
		if _, err := s.Execute(tbl.create); err != nil {
			return fmt.Errorf("create %s: %w", tbl.name, err)
		}
		if _, err := s.Execute(tbl.probe); err != nil {
			s.log.Debugf("%s corrupt, recreating.", tbl.name)
			_, _ = s.Execute("DROP TABLE " + tbl.name)
			if _, err := s.Execute(tbl.create); err != nil {
				s.log.Warningf("%s corrupt, could not recreate it.", tbl.name)
				return fmt.Errorf("recreate %s: %w", tbl.name, err)
			}
			if _, err := s.Execute(tbl.probe); err != nil {
				s.log.Warningf("%s corrupt, could not recreate it.", tbl.name)
				return fmt.Errorf("recreate %s: %w", tbl.name, err)
			}
		}
	}

	s.Trim()

	s.ready.Store(true)
	s.log.Debug("Database tables ensured present")
	return nil
}

// Execute runs one statement. UPDATE/INSERT/DELETE statements are wrapped in
// an IMMEDIATE transaction whether or not the caller asked for one; SELECTs
// run directly. Query rows are returned fully materialized. An error means
// the statement may or may not have taken effect; callers must not assume
// either way.
func (s *Store) Execute(query string, args ...any) ([]Row, error) {
	return s.execute(query, writeStmtRe.MatchString(query), args...)
}

// ExecuteTx is Execute with transaction wrapping forced on.
func (s *Store) ExecuteTx(query string, args ...any) ([]Row, error) {
	return s.execute(query, true, args...)
}

func (s *Store) execute(query string, useTx bool, args ...any) ([]Row, error) {
	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		s.log.Errorf("SQLITE3 CONNECTION ERROR: %v", err)
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if useTx {
		if err := beginImmediate(ctx, conn); err != nil {
			s.log.Errorf("SQLITE3 BEGIN ERROR: %v", err)
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
	}

	rows, err := queryRows(ctx, conn, query, args...)
	if err != nil {
		s.log.Errorf("SQLITE3 STEP ERROR: %v", err)
		if useTx {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
		return nil, fmt.Errorf("execute statement: %w", err)
	}

	if useTx {
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			s.log.Errorf("SQLITE3 COMMIT ERROR: %v", err)
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
			return nil, fmt.Errorf("commit transaction: %w", err)
		}
	}

	return rows, nil
}

func queryRows(ctx context.Context, conn *sql.Conn, query string, args ...any) ([]Row, error) {
	rs, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rs.Close() }()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			switch v := vals[i].(type) {
			case []byte:
				row[col] = string(v)
			case nil:
				// omit NULL columns, callers probe with ok-checks
			default:
				row[col] = v
			}
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

// beginImmediate starts an IMMEDIATE transaction, retrying on SQLITE_BUSY
// with exponential backoff. database/sql's BeginTx only offers DEFERRED, so
// the statement is issued raw.
func beginImmediate(ctx context.Context, conn *sql.Conn) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second
	return backoff.Retry(func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err != nil && !isBusyError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// SetState persists one key-value pair in ga_state. An empty value deletes
// the key: absence means "use default" and keeps the table minimal.
func (s *Store) SetState(key, value string) {
	if !s.Ready() {
		return
	}
	var err error
	if value == "" {
		_, err = s.Execute("DELETE FROM ga_state WHERE key = ?;", key)
	} else {
		_, err = s.ExecuteTx("INSERT OR REPLACE INTO ga_state (key, value) VALUES(?, ?);", key, value)
	}
	if err != nil {
		s.log.Warningf("Could not persist state %q: %v", key, err)
	}
}

// SizeOnDisk stats the backing file. In-memory databases report zero.
func (s *Store) SizeOnDisk() int64 {
	if s.dbPath == ":memory:" {
		return 0
	}
	fi, err := os.Stat(s.dbPath)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// TooLargeForEvents reports whether the database has crossed the hard size
// ceiling. When true, only user/session_end/business events are accepted.
func (s *Store) TooLargeForEvents() bool {
	return s.SizeOnDisk() > MaxSizeBytes
}

// Trim is the startup-time size remediation: when the file exceeds the trim
// threshold, the events of the three least-recently-active sessions (by max
// client_ts) are deleted in one pass and the file is compacted. It is not a
// steady-state eviction mechanism.
func (s *Store) Trim() bool {
	if s.SizeOnDisk() <= TrimThresholdBytes {
		return true
	}

	sessions, err := s.Execute("SELECT session_id, MAX(client_ts) AS last_ts FROM ga_events GROUP BY session_id ORDER BY last_ts ASC LIMIT 3;")
	if err != nil || len(sessions) == 0 {
		return false
	}

	ids := make([]any, 0, len(sessions))
	marks := make([]string, 0, len(sessions))
	for _, row := range sessions {
		id, _ := row["session_id"].(string)
		ids = append(ids, id)
		marks = append(marks, "?")
	}

	s.log.Warning("Database too large when initializing. Deleting the oldest 3 sessions.")
	_, _ = s.Execute("DELETE FROM ga_events WHERE session_id IN ("+strings.Join(marks, ",")+");", ids...)
	_, _ = s.Execute("VACUUM")
	return true
}
