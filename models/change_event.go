package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	TableSessions     = "sessions"
	TableParticipants = "participants"
	TablePlays        = "plays"

	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

var validate = validator.New()

// ChangeEvent is the row-change envelope carried over the notification
// feed. Record holds the raw row and is decoded per table after the
// envelope itself validates; nothing is routed on a half-parsed payload.
type ChangeEvent struct {
	Table    string          `json:"table" validate:"required,oneof=sessions participants plays"`
	Action   string          `json:"action" validate:"required,oneof=insert update delete"`
	RecordID string          `json:"record_id" validate:"required"`
	Origin   string          `json:"origin,omitempty"`
	Record   json.RawMessage `json:"record,omitempty"`
}

// Validate checks the envelope against the tagged-union schema. Deletes
// may carry no record body; inserts and updates must.
func (e *ChangeEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("change envelope: %w", err)
	}
	if e.Action != ActionDelete && len(e.Record) == 0 {
		return fmt.Errorf("change envelope: %s/%s without record body", e.Table, e.Action)
	}
	return nil
}

type sessionRow struct {
	ID              string `json:"id" validate:"required"`
	AdminID         string `json:"admin_id"`
	JoinCode        string `json:"join_code"`
	Status          string `json:"status" validate:"required"`
	PlayerName      string `json:"player_name"`
	PlayerEmail     string `json:"player_email"`
	PlayerSpecialty string `json:"player_specialty"`
	Created         string `json:"created"`
	Updated         string `json:"updated"`
}

type participantRow struct {
	ID          string `json:"id" validate:"required"`
	SessionID   string `json:"session_id" validate:"required"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Specialty   string `json:"specialty"`
	Status      string `json:"status" validate:"required,oneof=registered playing completed disqualified"`
	CompletedAt string `json:"completed_at"`
	Created     string `json:"created"`
	Updated     string `json:"updated"`
}

// DecodeSession parses and validates the record body as a session row.
func (e *ChangeEvent) DecodeSession() (*Session, error) {
	var row sessionRow
	if err := json.Unmarshal(e.Record, &row); err != nil {
		return nil, fmt.Errorf("session row: %w", err)
	}
	if err := validate.Struct(&row); err != nil {
		return nil, fmt.Errorf("session row: %w", err)
	}
	if !IsSessionStatus(row.Status) {
		return nil, fmt.Errorf("session row: unknown status %q", row.Status)
	}
	return &Session{
		ID:              row.ID,
		AdminID:         row.AdminID,
		JoinCode:        row.JoinCode,
		Status:          row.Status,
		PlayerName:      row.PlayerName,
		PlayerEmail:     row.PlayerEmail,
		PlayerSpecialty: row.PlayerSpecialty,
		CreatedAt:       parseRowTime(row.Created),
		UpdatedAt:       parseRowTime(row.Updated),
	}, nil
}

// DecodeParticipant parses and validates the record body as a
// participant row.
func (e *ChangeEvent) DecodeParticipant() (*Participant, error) {
	var row participantRow
	if err := json.Unmarshal(e.Record, &row); err != nil {
		return nil, fmt.Errorf("participant row: %w", err)
	}
	if err := validate.Struct(&row); err != nil {
		return nil, fmt.Errorf("participant row: %w", err)
	}
	p := &Participant{
		ID:        row.ID,
		SessionID: row.SessionID,
		Name:      row.Name,
		Email:     row.Email,
		Specialty: row.Specialty,
		Status:    row.Status,
		CreatedAt: parseRowTime(row.Created),
		UpdatedAt: parseRowTime(row.Updated),
	}
	if row.CompletedAt != "" {
		ts := parseRowTime(row.CompletedAt)
		p.CompletedAt = &ts
	}
	return p, nil
}

// ValidateProfile checks a registration payload before it is persisted.
func ValidateProfile(profile *RegistrationProfile) error {
	return validate.Struct(profile)
}

// parseRowTime accepts the timestamp layouts the store emits. A zero
// time on failure is intentional: the dedup ledger treats zero as
// "older than anything applied".
func parseRowTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999Z07:00", "2006-01-02 15:04:05.999Z"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts
		}
	}
	return time.Time{}
}
