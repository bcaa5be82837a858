package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Play struct {
	ID                string          `json:"id"`
	ParticipantID     string          `json:"participant_id"`
	SessionID         string          `json:"session_id"`
	QuestionID        string          `json:"question_id"`
	AnsweredCorrectly bool            `json:"answered_correctly"`
	PrizeWon          string          `json:"prize_won,omitempty"`
	Score             decimal.Decimal `json:"score"`
	GameDetails       map[string]any  `json:"game_details,omitempty"`
	Origin            string          `json:"origin,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// PlayResult wraps a recorded play with the prize-invariant outcome.
// AlreadyWonPrize is true when a candidate prize was dropped because the
// participant had won one on an earlier play.
type PlayResult struct {
	Play            Play `json:"play"`
	AlreadyWonPrize bool `json:"already_won_prize"`
}

// PrizeFeedback is the slice of the board projection that tells the
// display what to celebrate after a play lands.
type PrizeFeedback struct {
	ParticipantID   string `json:"participant_id"`
	PrizeWon        string `json:"prize_won,omitempty"`
	AlreadyWonPrize bool   `json:"already_won_prize"`
}
