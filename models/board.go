package models

const (
	BoardIdle       = "idle"
	BoardTransition = "transition"
	BoardInGame     = "in_game"
)

// BoardView is the read-only projection the display renders. It is a
// copy; mutations go through the orchestrator.
type BoardView struct {
	SessionID           string         `json:"session_id,omitempty"`
	SessionStatus       string         `json:"session_status,omitempty"`
	BoardPhase          string         `json:"board_phase"`
	CurrentParticipant  *Participant   `json:"current_participant,omitempty"`
	NextParticipant     *Participant   `json:"next_participant,omitempty"`
	TransitionConfirmed bool           `json:"transition_confirmed"`
	WaitingQueue        []Participant  `json:"waiting_queue"`
	PrizeFeedback       *PrizeFeedback `json:"prize_feedback,omitempty"`
}
