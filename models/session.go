package models

import (
	"time"
)

const (
	SessionPendingRegistration = "pending_player_registration"
	SessionPlayerRegistered    = "player_registered"
	SessionPlaying             = "playing"
	SessionCompleted           = "completed"
	SessionArchived            = "archived"
	SessionClosed              = "closed"
)

type Session struct {
	ID              string    `json:"id"`
	AdminID         string    `json:"admin_id"`
	JoinCode        string    `json:"join_code,omitempty"`
	Status          string    `json:"status"`
	PlayerName      string    `json:"player_name,omitempty"`
	PlayerEmail     string    `json:"player_email,omitempty"`
	PlayerSpecialty string    `json:"player_specialty,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsTerminal reports whether status permits no further transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case SessionCompleted, SessionArchived, SessionClosed:
		return true
	}
	return false
}

func IsSessionStatus(status string) bool {
	switch status {
	case SessionPendingRegistration, SessionPlayerRegistered, SessionPlaying,
		SessionCompleted, SessionArchived, SessionClosed:
		return true
	}
	return false
}
