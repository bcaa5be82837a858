package services

import (
	"context"
	"fmt"
	"log/slog"

	"trivia-kiosk/models"
	"trivia-kiosk/monitoring"

	"github.com/shopspring/decimal"
)

// PrizeService records plays while enforcing the one-prize-per-
// participant invariant. The check-then-record sequence is not backed
// by a storage constraint; it is safe because the queue and state
// machine bind exactly one active participant at a time, so a given
// participant's plays are serialized.
type PrizeService struct {
	store  Store
	origin string
}

func NewPrizeService(store Store, origin string) *PrizeService {
	return &PrizeService{store: store, origin: origin}
}

// RecordPlay persists one question attempt. When the participant has
// already won a prize on any earlier play, the attempt is still
// recorded — the answer and score are real — but the candidate prize is
// forced empty and the result says so.
func (s *PrizeService) RecordPlay(ctx context.Context, participantID, sessionID, questionID string, answeredCorrectly bool, prizeCandidate string, score decimal.Decimal, details map[string]any) (*models.PlayResult, error) {
	alreadyWon := false
	if prizeCandidate != "" {
		count, err := s.store.CountAwardedPrizes(ctx, participantID)
		if err != nil {
			return nil, fmt.Errorf("prize check: %w", err)
		}
		if count > 0 {
			alreadyWon = true
			slog.Info("prize candidate dropped, participant already won",
				"participant", participantID,
				"candidate", prizeCandidate,
			)
			monitoring.TrackPrizeBlocked(sessionID)
			prizeCandidate = ""
		}
	}

	play := &models.Play{
		ParticipantID:     participantID,
		SessionID:         sessionID,
		QuestionID:        questionID,
		AnsweredCorrectly: answeredCorrectly,
		PrizeWon:          prizeCandidate,
		Score:             score,
		GameDetails:       details,
		Origin:            s.origin,
	}

	saved, err := s.store.CreatePlay(ctx, play)
	if err != nil {
		return nil, fmt.Errorf("record play: %w", err)
	}

	return &models.PlayResult{
		Play:            *saved,
		AlreadyWonPrize: alreadyWon,
	}, nil
}

// TotalScore sums the participant's recorded plays.
func (s *PrizeService) TotalScore(ctx context.Context, participantID string) (decimal.Decimal, error) {
	plays, err := s.store.ListPlays(ctx, participantID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, p := range plays {
		total = total.Add(p.Score)
	}
	return total, nil
}
