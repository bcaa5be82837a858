package services

import (
	"testing"
	"time"

	"trivia-kiosk/internal/status"
	"trivia-kiosk/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(id, sessionStatus string, updated time.Time) *models.Session {
	return &models.Session{
		ID:        id,
		AdminID:   "admin-1",
		Status:    sessionStatus,
		CreatedAt: updated.Add(-time.Minute),
		UpdatedAt: updated,
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{models.SessionPendingRegistration, models.SessionPlayerRegistered, true},
		{models.SessionPlayerRegistered, models.SessionPlaying, true},
		{models.SessionPlayerRegistered, models.SessionPendingRegistration, true},
		{models.SessionPlaying, models.SessionPendingRegistration, true},
		{models.SessionPlaying, models.SessionCompleted, true},
		{models.SessionPlaying, models.SessionArchived, true},

		// closed is reachable from any non-terminal state only
		{models.SessionPendingRegistration, models.SessionClosed, true},
		{models.SessionPlaying, models.SessionClosed, true},
		{models.SessionCompleted, models.SessionClosed, false},
		{models.SessionArchived, models.SessionClosed, false},

		{models.SessionPendingRegistration, models.SessionPlaying, false},
		{models.SessionCompleted, models.SessionPlaying, false},
		{models.SessionClosed, models.SessionPendingRegistration, false},
		{models.SessionPlaying, models.SessionPlaying, false},
	}

	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestStateMachine_ApplyAdvances(t *testing.T) {
	base := time.Now().UTC()
	sm := NewStateMachine()
	sm.Bind(testSession("sess-1", models.SessionPendingRegistration, base))

	err := sm.Apply(testSession("sess-1", models.SessionPlayerRegistered, base.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, models.SessionPlayerRegistered, sm.Status())

	err = sm.Apply(testSession("sess-1", models.SessionPlaying, base.Add(2*time.Second)))
	require.NoError(t, err)
	assert.Equal(t, models.SessionPlaying, sm.Status())
}

func TestStateMachine_ApplyRejectsStaleTimestamp(t *testing.T) {
	base := time.Now().UTC()
	sm := NewStateMachine()
	sm.Bind(testSession("sess-1", models.SessionPlaying, base))

	// A row from before the bound snapshot must never roll the
	// projection backwards.
	err := sm.Apply(testSession("sess-1", models.SessionPlayerRegistered, base.Add(-time.Second)))
	assert.ErrorIs(t, err, status.ErrStaleEvent)
	assert.Equal(t, models.SessionPlaying, sm.Status())

	// Equal timestamps are duplicates, not progress.
	err = sm.Apply(testSession("sess-1", models.SessionPlaying, base))
	assert.ErrorIs(t, err, status.ErrStaleEvent)
}

func TestStateMachine_ApplyConvergesAfterMissedEvent(t *testing.T) {
	base := time.Now().UTC()
	sm := NewStateMachine()
	sm.Bind(testSession("sess-1", models.SessionPendingRegistration, base))

	// The registered-state event never arrived; the next observed row is
	// already playing. A newer row applies even across a skipped state,
	// otherwise the projection re-rejects the same row on every poll.
	err := sm.Apply(testSession("sess-1", models.SessionPlaying, base.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, models.SessionPlaying, sm.Status())
}

func TestStateMachine_ApplyWrongSession(t *testing.T) {
	base := time.Now().UTC()
	sm := NewStateMachine()
	sm.Bind(testSession("sess-1", models.SessionPendingRegistration, base))

	err := sm.Apply(testSession("sess-2", models.SessionPlayerRegistered, base.Add(time.Second)))
	assert.ErrorIs(t, err, status.ErrStaleEvent)
}

func TestStateMachine_MarkRegistered(t *testing.T) {
	base := time.Now().UTC()
	sm := NewStateMachine()
	sm.Bind(testSession("sess-1", models.SessionPendingRegistration, base))

	p := &models.Participant{
		ID:        "part-1",
		SessionID: "sess-1",
		Name:      "Dr. Vega",
		Email:     "vega@example.com",
		Specialty: "cardiology",
		Status:    models.ParticipantRegistered,
		CreatedAt: base,
	}

	require.True(t, sm.MarkRegistered(p))
	session := sm.Session()
	assert.Equal(t, models.SessionPlayerRegistered, session.Status)
	assert.Equal(t, "Dr. Vega", session.PlayerName)
	assert.Equal(t, "vega@example.com", session.PlayerEmail)
	assert.Equal(t, "cardiology", session.PlayerSpecialty)

	// Second registration arrives while a player already holds the slot.
	assert.False(t, sm.MarkRegistered(p))

	// Wrong session never binds.
	other := *p
	other.SessionID = "sess-2"
	sm.ForceStatus(models.SessionPendingRegistration, base.Add(time.Second))
	assert.False(t, sm.MarkRegistered(&other))
}

func TestStateMachine_ForceStatusClearsPlayerFields(t *testing.T) {
	base := time.Now().UTC()
	session := testSession("sess-1", models.SessionPlaying, base)
	session.PlayerName = "Dr. Vega"
	session.PlayerEmail = "vega@example.com"

	sm := NewStateMachine()
	sm.Bind(session)

	sm.ForceStatus(models.SessionPendingRegistration, base.Add(time.Second))
	got := sm.Session()
	assert.Equal(t, models.SessionPendingRegistration, got.Status)
	assert.Empty(t, got.PlayerName)
	assert.Empty(t, got.PlayerEmail)

	// The forced timestamp moves the stale cutoff forward.
	err := sm.Apply(testSession("sess-1", models.SessionPlayerRegistered, base.Add(500*time.Millisecond)))
	assert.ErrorIs(t, err, status.ErrStaleEvent)
}

func TestStateMachine_Terminal(t *testing.T) {
	base := time.Now().UTC()
	sm := NewStateMachine()
	assert.False(t, sm.Terminal())

	sm.Bind(testSession("sess-1", models.SessionPlaying, base))
	assert.False(t, sm.Terminal())

	sm.ForceStatus(models.SessionClosed, base.Add(time.Second))
	assert.True(t, sm.Terminal())
}
