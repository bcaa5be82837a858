package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeEvent_Validate(t *testing.T) {
	body := json.RawMessage(`{"id":"x","status":"registered","session_id":"s"}`)

	cases := []struct {
		name  string
		event ChangeEvent
		ok    bool
	}{
		{"valid insert", ChangeEvent{Table: TableParticipants, Action: ActionInsert, RecordID: "x", Record: body}, true},
		{"valid delete without body", ChangeEvent{Table: TableSessions, Action: ActionDelete, RecordID: "x"}, true},
		{"unknown table", ChangeEvent{Table: "users", Action: ActionInsert, RecordID: "x", Record: body}, false},
		{"unknown action", ChangeEvent{Table: TableSessions, Action: "upsert", RecordID: "x", Record: body}, false},
		{"missing record id", ChangeEvent{Table: TableSessions, Action: ActionInsert, Record: body}, false},
		{"insert without body", ChangeEvent{Table: TablePlays, Action: ActionInsert, RecordID: "x"}, false},
		{"update without body", ChangeEvent{Table: TableSessions, Action: ActionUpdate, RecordID: "x"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestChangeEvent_DecodeSession(t *testing.T) {
	ev := ChangeEvent{
		Table:    TableSessions,
		Action:   ActionUpdate,
		RecordID: "sess-1",
		Record: json.RawMessage(`{
			"id": "sess-1",
			"admin_id": "admin-1",
			"status": "player_registered",
			"player_name": "Dr. Vega",
			"created": "2026-08-29 10:00:00.000Z",
			"updated": "2026-08-29 10:05:30.123Z"
		}`),
	}

	session, err := ev.DecodeSession()
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.Equal(t, SessionPlayerRegistered, session.Status)
	assert.Equal(t, "Dr. Vega", session.PlayerName)
	assert.Equal(t, 2026, session.UpdatedAt.Year())
	assert.True(t, session.UpdatedAt.After(session.CreatedAt))
}

func TestChangeEvent_DecodeSessionRejectsUnknownStatus(t *testing.T) {
	ev := ChangeEvent{
		Table:    TableSessions,
		Action:   ActionUpdate,
		RecordID: "sess-1",
		Record:   json.RawMessage(`{"id":"sess-1","status":"paused"}`),
	}

	_, err := ev.DecodeSession()
	assert.Error(t, err)
}

func TestChangeEvent_DecodeParticipant(t *testing.T) {
	ev := ChangeEvent{
		Table:    TableParticipants,
		Action:   ActionInsert,
		RecordID: "part-1",
		Record: json.RawMessage(`{
			"id": "part-1",
			"session_id": "sess-1",
			"name": "Dr. Vega",
			"status": "registered",
			"created": "2026-08-29T10:00:00.000Z",
			"updated": "2026-08-29T10:00:00.000Z"
		}`),
	}

	p, err := ev.DecodeParticipant()
	require.NoError(t, err)
	assert.Equal(t, "part-1", p.ID)
	assert.Equal(t, "sess-1", p.SessionID)
	assert.Equal(t, ParticipantRegistered, p.Status)
	assert.Nil(t, p.CompletedAt)
	assert.True(t, p.Waiting())
}

func TestChangeEvent_DecodeParticipantCompleted(t *testing.T) {
	ev := ChangeEvent{
		Table:    TableParticipants,
		Action:   ActionUpdate,
		RecordID: "part-1",
		Record: json.RawMessage(`{
			"id": "part-1",
			"session_id": "sess-1",
			"status": "completed",
			"completed_at": "2026-08-29T11:00:00.000Z"
		}`),
	}

	p, err := ev.DecodeParticipant()
	require.NoError(t, err)
	require.NotNil(t, p.CompletedAt)
	assert.False(t, p.Waiting())
}

func TestChangeEvent_DecodeParticipantRejectsBadStatus(t *testing.T) {
	ev := ChangeEvent{
		Table:    TableParticipants,
		Action:   ActionInsert,
		RecordID: "part-1",
		Record:   json.RawMessage(`{"id":"part-1","session_id":"sess-1","status":"ghost"}`),
	}

	_, err := ev.DecodeParticipant()
	assert.Error(t, err)
}

func TestParticipant_Waiting(t *testing.T) {
	now := time.Now()
	p := Participant{Status: ParticipantRegistered}
	assert.True(t, p.Waiting())

	p.Status = ParticipantPlaying
	assert.True(t, p.Waiting())

	p.Status = ParticipantDisqualified
	assert.False(t, p.Waiting())

	p.Status = ParticipantPlaying
	p.CompletedAt = &now
	assert.False(t, p.Waiting())
}

func TestParticipant_VersionKey(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	updated := time.Now()

	p := Participant{Status: ParticipantRegistered, CreatedAt: created}
	ts, rowStatus := p.VersionKey()
	assert.Equal(t, created, ts)
	assert.Equal(t, ParticipantRegistered, rowStatus)

	p.UpdatedAt = updated
	ts, _ = p.VersionKey()
	assert.Equal(t, updated, ts)
}

func TestValidateProfile(t *testing.T) {
	assert.NoError(t, ValidateProfile(&RegistrationProfile{Name: "Dr. Vega"}))
	assert.NoError(t, ValidateProfile(&RegistrationProfile{Name: "Dr. Vega", Email: "vega@example.com", Specialty: "cardiology"}))

	assert.Error(t, ValidateProfile(&RegistrationProfile{}))
	assert.Error(t, ValidateProfile(&RegistrationProfile{Name: "Dr. Vega", Email: "not-an-email"}))
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(SessionCompleted))
	assert.True(t, IsTerminalStatus(SessionArchived))
	assert.True(t, IsTerminalStatus(SessionClosed))
	assert.False(t, IsTerminalStatus(SessionPlaying))
	assert.False(t, IsTerminalStatus(SessionPendingRegistration))
}
