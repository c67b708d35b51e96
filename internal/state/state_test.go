package state

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamesignals/beacon/internal/device"
	"github.com/gamesignals/beacon/internal/logging"
	"github.com/gamesignals/beacon/internal/store"
)

func testState(t *testing.T) *State {
	t.Helper()
	log := logging.New(io.Discard)
	s := New(device.Detect(), log)

	st, err := store.Open(":memory:", "test", log)
	require.NoError(t, err)
	require.NoError(t, st.Ensure(false))
	t.Cleanup(func() { _ = st.Close() })
	s.AttachStore(st)
	return s
}

func TestIdentityPrecedence(t *testing.T) {
	s := testState(t)

	s.SetDefaultUserID("generated-uuid")
	assert.Equal(t, "generated-uuid", s.Identifier())

	// An explicit user id beats the generated default, regardless of order.
	s.SetUserID("player-42")
	assert.Equal(t, "player-42", s.Identifier())

	s.SetDefaultUserID("other-uuid")
	assert.Equal(t, "player-42", s.Identifier())
}

func TestEnsurePersistedStatesGeneratesDefaultUserID(t *testing.T) {
	s := testState(t)
	s.EnsurePersistedStates()
	s.PersistDefaultUserID()

	first := s.Identifier()
	require.NotEmpty(t, first)

	// A second state over the same store sees the persisted id.
	s2 := New(device.Detect(), logging.New(io.Discard))
	s2.AttachStore(s.store)
	s2.EnsurePersistedStates()
	assert.Equal(t, first, s2.Identifier())
}

func TestCountersSurviveReload(t *testing.T) {
	s := testState(t)
	s.EnsurePersistedStates()

	s.IncrementSessionNum()
	s.IncrementSessionNum()
	s.store.SetState("session_num", "2")
	s.IncrementTransactionNum()
	s.store.SetState("transaction_num", "1")

	s2 := New(device.Detect(), logging.New(io.Discard))
	s2.AttachStore(s.store)
	s2.EnsurePersistedStates()
	assert.Equal(t, int64(2), s2.SessionNum())
	assert.Equal(t, int64(1), s2.TransactionNum())
}

func TestDimensionWhitelistReValidation(t *testing.T) {
	s := testState(t)

	s.SetAvailableCustomDimensions01([]string{"ninja", "samurai"})
	s.SetCustomDimension01("ninja")
	require.Equal(t, "ninja", s.CurrentDimension01())

	// Shrinking the whitelist clears a now-invalid selection.
	s.SetAvailableCustomDimensions01([]string{"samurai"})
	assert.Empty(t, s.CurrentDimension01())
}

func TestDimensionAllowedEmptyClears(t *testing.T) {
	s := testState(t)
	s.SetAvailableCustomDimensions02([]string{"easy", "hard"})
	assert.True(t, s.DimensionAllowed02(""))
	assert.True(t, s.DimensionAllowed02("hard"))
	assert.False(t, s.DimensionAllowed02("nightmare"))
}

func TestProgressionTries(t *testing.T) {
	s := testState(t)

	assert.Zero(t, s.ProgressionTries("world01:level01"))
	s.IncrementProgressionTries("world01:level01")
	s.IncrementProgressionTries("world01:level01")
	assert.Equal(t, 2, s.ProgressionTries("world01:level01"))

	// Tries survive a reload through ga_progression.
	s2 := New(device.Detect(), logging.New(io.Discard))
	s2.AttachStore(s.store)
	s2.EnsurePersistedStates()
	assert.Equal(t, 2, s2.ProgressionTries("world01:level01"))

	s.ClearProgressionTries("world01:level01")
	assert.Zero(t, s.ProgressionTries("world01:level01"))
}

func TestBeginAndEndSession(t *testing.T) {
	s := testState(t)
	assert.False(t, s.SessionIsStarted())

	s.BeginSession()
	assert.True(t, s.SessionIsStarted())
	first := s.SessionID()
	assert.NotEmpty(t, first)

	s.EndSession()
	assert.False(t, s.SessionIsStarted())
	// The id survives session end so recovery can exclude it.
	assert.Equal(t, first, s.SessionID())

	s.BeginSession()
	assert.NotEqual(t, first, s.SessionID())
}
