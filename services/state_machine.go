package services

import (
	"fmt"
	"log/slog"
	"time"

	"trivia-kiosk/internal/status"
	"trivia-kiosk/models"
)

// allowedTransitions lists the forward edges of the session lifecycle.
// It gates locally initiated transitions (admin console, turn flow);
// observed rows from the store apply by timestamp alone. The closed
// side-exit is handled separately: it is reachable from any
// non-terminal state by explicit admin action.
var allowedTransitions = map[string][]string{
	models.SessionPendingRegistration: {models.SessionPlayerRegistered, models.SessionCompleted, models.SessionArchived},
	models.SessionPlayerRegistered:    {models.SessionPlaying, models.SessionPendingRegistration, models.SessionCompleted, models.SessionArchived},
	models.SessionPlaying:             {models.SessionPendingRegistration, models.SessionCompleted, models.SessionArchived},
}

// StateMachine owns the canonical in-memory projection of the bound
// session. It is mutated only from the reconciler's apply loop.
type StateMachine struct {
	session     *models.Session
	lastApplied time.Time
}

func NewStateMachine() *StateMachine {
	return &StateMachine{}
}

// Bind replaces the projection with a fresh snapshot row.
func (sm *StateMachine) Bind(session *models.Session) {
	sm.session = session
	sm.lastApplied = time.Time{}
	if session != nil {
		sm.lastApplied = session.UpdatedAt
	}
}

// Session returns a copy of the current projection, nil when unbound.
func (sm *StateMachine) Session() *models.Session {
	if sm.session == nil {
		return nil
	}
	copied := *sm.session
	return &copied
}

func (sm *StateMachine) Status() string {
	if sm.session == nil {
		return ""
	}
	return sm.session.Status
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	if to == models.SessionClosed {
		return !models.IsTerminalStatus(from)
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Apply folds an observed session row into the projection. Rows whose
// updated_at is not newer than the last applied one are rejected as
// stale; per-row updated_at is the only ordering the design trusts. A
// newer row always wins, even when the projection never saw the
// intermediate states: delivery is at-least-once and possibly zero,
// so the polled row may be several transitions ahead.
func (sm *StateMachine) Apply(row *models.Session) error {
	if sm.session == nil || sm.session.ID != row.ID {
		return fmt.Errorf("%w: session %s not bound", status.ErrStaleEvent, row.ID)
	}
	if !row.UpdatedAt.After(sm.lastApplied) {
		slog.Debug("discarding stale session event",
			"session", row.ID,
			"status", row.Status,
			"event_updated", row.UpdatedAt,
			"last_applied", sm.lastApplied,
		)
		return status.ErrStaleEvent
	}

	sm.session = row
	sm.lastApplied = row.UpdatedAt
	return nil
}

// MarkRegistered advances pending_player_registration once a matching
// registered participant is observed. A no-op when the session has
// already moved past that state.
func (sm *StateMachine) MarkRegistered(p *models.Participant) bool {
	if sm.session == nil || sm.session.ID != p.SessionID {
		return false
	}
	if sm.session.Status != models.SessionPendingRegistration {
		return false
	}
	if p.Status != models.ParticipantRegistered {
		return false
	}

	sm.session.Status = models.SessionPlayerRegistered
	sm.session.PlayerName = p.Name
	sm.session.PlayerEmail = p.Email
	sm.session.PlayerSpecialty = p.Specialty
	return true
}

// ForceStatus applies an admin-forced status without edge checking
// against observed timestamps; the write already happened upstream.
func (sm *StateMachine) ForceStatus(to string, at time.Time) {
	if sm.session == nil {
		return
	}
	sm.session.Status = to
	if to == models.SessionPendingRegistration {
		sm.session.PlayerName = ""
		sm.session.PlayerEmail = ""
		sm.session.PlayerSpecialty = ""
	}
	if at.After(sm.lastApplied) {
		sm.lastApplied = at
	}
}

// Terminal reports whether the bound session permits no further play.
func (sm *StateMachine) Terminal() bool {
	return sm.session != nil && models.IsTerminalStatus(sm.session.Status)
}
