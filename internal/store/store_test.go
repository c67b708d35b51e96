package store

import (
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamesignals/beacon/internal/logging"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", "test", logging.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ensure(false))
	require.NoError(t, s.Ensure(false))
	assert.True(t, s.Ready())
}

func TestEnsureRecreatesCorruptTable(t *testing.T) {
	s := openTestStore(t)

	// A pre-existing table with the wrong shape fails the probe and must be
	// rebuilt, not crash initialization.
	_, err := s.Execute("CREATE TABLE ga_events(foo TEXT);")
	require.NoError(t, err)

	require.NoError(t, s.Ensure(false))
	_, err = s.Execute(
		"INSERT INTO ga_events (status, category, session_id, client_ts, event) VALUES(?, ?, ?, ?, ?);",
		"new", "design", "sid", "1500000000", "{}")
	assert.NoError(t, err)
}

func TestEnsureWithDropClearsData(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ensure(false))

	_, err := s.Execute(
		"INSERT INTO ga_events (status, category, session_id, client_ts, event) VALUES(?, ?, ?, ?, ?);",
		"new", "design", "sid", "1500000000", "{}")
	require.NoError(t, err)

	require.NoError(t, s.Ensure(true))
	rows, err := s.Execute("SELECT * FROM ga_events;")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSetState(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ensure(false))

	s.SetState("default_user_id", "abc")
	rows, err := s.Execute("SELECT value FROM ga_state WHERE key = ?;", "default_user_id")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "abc", rows[0]["value"])

	s.SetState("default_user_id", "def")
	rows, err = s.Execute("SELECT value FROM ga_state WHERE key = ?;", "default_user_id")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "def", rows[0]["value"])

	// Empty value deletes the key.
	s.SetState("default_user_id", "")
	rows, err = s.Execute("SELECT value FROM ga_state WHERE key = ?;", "default_user_id")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSetStateRefusedBeforeEnsure(t *testing.T) {
	s := openTestStore(t)
	s.SetState("key", "value")
	assert.False(t, s.Ready())
}

func TestOutboxClaimPutbackDelete(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ensure(false))

	for i := 0; i < 3; i++ {
		_, err := s.Execute(
			"INSERT INTO ga_events (status, category, session_id, client_ts, event) VALUES(?, ?, ?, ?, ?);",
			"new", "design", "sid", "1500000000", "{}")
		require.NoError(t, err)
	}

	// Claim under a batch id.
	_, err := s.ExecuteTx("UPDATE ga_events SET status = 'batch-1' WHERE status = 'new';")
	require.NoError(t, err)
	rows, err := s.Execute("SELECT * FROM ga_events WHERE status = 'new';")
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Put back.
	_, err = s.ExecuteTx("UPDATE ga_events SET status = 'new' WHERE status = ?;", "batch-1")
	require.NoError(t, err)
	rows, err = s.Execute("SELECT * FROM ga_events WHERE status = 'new';")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// Claim again and delete (definite answer).
	_, err = s.ExecuteTx("UPDATE ga_events SET status = 'batch-2' WHERE status = 'new';")
	require.NoError(t, err)
	_, err = s.ExecuteTx("DELETE FROM ga_events WHERE status = ?;", "batch-2")
	require.NoError(t, err)
	rows, err = s.Execute("SELECT * FROM ga_events;")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExecuteReturnsTypedRows(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ensure(false))

	rows, err := s.Execute("SELECT 1 AS n, 'x' AS s, 1.5 AS f;")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["n"])
	assert.Equal(t, "x", rows[0]["s"])
	assert.Equal(t, 1.5, rows[0]["f"])
}

func TestExecuteOmitsNullColumns(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ensure(false))

	rows, err := s.Execute("SELECT NULL AS missing, 'x' AS present;")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotContains(t, rows[0], "missing")
	assert.Contains(t, rows[0], "present")
}

func TestSizeChecksOnMemoryDatabase(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ensure(false))

	assert.Zero(t, s.SizeOnDisk())
	assert.False(t, s.TooLargeForEvents())
	assert.True(t, s.Trim(), "trim on a small database is a no-op success")
}

func TestTrimDeletesLeastRecentSessions(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "gamekey", logging.New(io.Discard))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Ensure(false))

	// Four sessions with strictly increasing last-activity timestamps, each
	// holding a 2 MiB payload, pushing the file past both thresholds.
	payload := strings.Repeat("x", 2<<20)
	for i := 0; i < 4; i++ {
		_, err := s.Execute(
			"INSERT INTO ga_events (status, category, session_id, client_ts, event) VALUES(?, ?, ?, ?, ?);",
			"new", "design", "session-"+strconv.Itoa(i), strconv.Itoa(1500000000+i), payload)
		require.NoError(t, err)
	}
	require.True(t, s.TooLargeForEvents())

	require.True(t, s.Trim())

	// The three least-recently-active sessions are gone; the newest stays.
	rows, err := s.Execute("SELECT DISTINCT session_id FROM ga_events;")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "session-3", rows[0]["session_id"])
	assert.False(t, s.TooLargeForEvents(), "vacuum reclaimed the space")
}

func TestOpenCreatesNamespaceDirectory(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "gamekey", logging.New(io.Discard))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Ensure(false))
	assert.Equal(t, filepath.Join(dir, "gamekey", "ga.sqlite3"), s.Path())
	assert.Greater(t, s.SizeOnDisk(), int64(0))
}
