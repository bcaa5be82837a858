package models

import (
	"time"
)

const (
	ParticipantRegistered   = "registered"
	ParticipantPlaying      = "playing"
	ParticipantCompleted    = "completed"
	ParticipantDisqualified = "disqualified"
)

type Participant struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	Specialty   string     `json:"specialty,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RegistrationProfile is the payload a handheld device submits when a
// player signs up for a session.
type RegistrationProfile struct {
	Name      string `json:"name" validate:"required,max=120"`
	Email     string `json:"email" validate:"omitempty,email"`
	Specialty string `json:"specialty" validate:"omitempty,max=120"`
}

// Waiting reports whether the participant still belongs in the queue.
func (p *Participant) Waiting() bool {
	if p.CompletedAt != nil {
		return false
	}
	return p.Status == ParticipantRegistered || p.Status == ParticipantPlaying
}

// VersionKey returns the pair the dedup ledger tracks for this row.
// Rows that were never updated fall back to their creation time.
func (p *Participant) VersionKey() (time.Time, string) {
	ts := p.UpdatedAt
	if ts.IsZero() {
		ts = p.CreatedAt
	}
	return ts, p.Status
}
