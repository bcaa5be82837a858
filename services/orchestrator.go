package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trivia-kiosk/config"
	"trivia-kiosk/internal/status"
	"trivia-kiosk/models"
	"trivia-kiosk/monitoring"

	"github.com/shopspring/decimal"
)

// Orchestrator is the facade the admin console and the board talk to.
// It owns the transition handshake and the per-turn prize feedback and
// funnels every projection mutation through the reconciler's loop.
type Orchestrator struct {
	store     Store
	rec       *Reconciler
	prizes    *PrizeService
	handshake *Handshake
	cfg       *config.Config

	mu       sync.Mutex
	feedback *models.PrizeFeedback
}

func NewOrchestrator(store Store, rec *Reconciler, prizes *PrizeService, cfg *config.Config) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		rec:    rec,
		prizes: prizes,
		cfg:    cfg,
	}
	o.handshake = NewHandshake(cfg.HandshakeTimeout, o.commitActivation)
	return o
}

// Bind points the orchestrator and its reconciler at a session.
func (o *Orchestrator) Bind(ctx context.Context, sessionID string) error {
	o.handshake.Reset()
	o.mu.Lock()
	o.feedback = nil
	o.mu.Unlock()
	return o.rec.Bind(ctx, sessionID)
}

// SessionBound reports whether the orchestrator is projecting the
// given session.
func (o *Orchestrator) SessionBound(sessionID string) bool {
	return sessionID != "" && o.rec.SessionID() == sessionID
}

// Snapshot merges the reconciler projection with handshake state and
// the latest prize feedback into the view the display renders.
func (o *Orchestrator) Snapshot() models.BoardView {
	view := o.rec.Snapshot()

	phase, next, confirmed := o.handshake.State()
	view.BoardPhase = phase
	view.NextParticipant = next
	view.TransitionConfirmed = confirmed

	o.mu.Lock()
	view.PrizeFeedback = o.feedback
	o.mu.Unlock()
	return view
}

// ActivateNext starts the next-participant transition: the head of the
// queue becomes the pending participant and the board gets its
// interstitial. With an empty queue and a participant already playing
// this is a no-op. The actual switch commits when the board confirms
// the interstitial, or when the handshake timeout fires.
func (o *Orchestrator) ActivateNext(ctx context.Context) (models.BoardView, error) {
	if o.rec.SessionID() == "" {
		return models.BoardView{}, status.ErrSessionNotBound
	}

	var next, current *models.Participant
	if err := o.rec.Do(ctx, func() {
		next = o.rec.queue.Peek()
		current = o.rec.queue.Current()
	}); err != nil {
		return models.BoardView{}, err
	}

	if next == nil {
		if current != nil {
			return o.Snapshot(), nil
		}
		return models.BoardView{}, status.ErrQueueEmpty
	}

	o.handshake.Begin(next)
	return o.Snapshot(), nil
}

// ConfirmTransitionVisible is the board's half of the handshake.
func (o *Orchestrator) ConfirmTransitionVisible() bool {
	return o.handshake.Confirm()
}

// commitActivation runs once per handshake, after confirmation or
// timeout: persist the participant as playing, advance the session,
// then bind the participant locally. Local state only moves when both
// writes landed.
func (o *Orchestrator) commitActivation(p *models.Participant, timedOut bool) {
	if p == nil {
		return
	}
	if timedOut {
		monitoring.TrackHandshakeTimeout()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	updated, err := o.store.UpdateParticipantStatus(ctx, p.ID, models.ParticipantPlaying)
	if err != nil {
		slog.Error("activation aborted, participant write failed",
			"participant", p.ID,
			"error", err,
		)
		o.handshake.Reset()
		return
	}

	sessionID := o.rec.SessionID()
	session, err := o.store.UpdateSessionStatus(ctx, sessionID, models.SessionPlaying)
	if err != nil {
		// First half landed; the board stays put and the whole
		// activation is retried from the top.
		slog.Error("activation left partially applied, retry required",
			"participant", p.ID,
			"session", sessionID,
			"error", err,
		)
		o.handshake.Reset()
		return
	}

	if err := o.rec.Do(ctx, func() {
		if head := o.rec.queue.Peek(); head != nil && head.ID == updated.ID {
			o.rec.queue.ActivateNext()
		} else {
			// An admin reordered or dequeued during the handshake; the
			// persisted participant still takes the turn.
			o.rec.queue.Dequeue(updated.ID)
		}
		o.rec.queue.SetCurrent(updated)
		o.rec.sm.ForceStatus(models.SessionPlaying, session.UpdatedAt)
	}); err != nil {
		slog.Error("activation projection update failed", "error", err)
	}
}

// PrepareNext finalizes the current participant's turn and re-opens the
// registration slot. Two dependent writes; the projection only resets
// after both succeed, and a second-write failure surfaces as a
// retryable partial apply.
func (o *Orchestrator) PrepareNext(ctx context.Context) (models.BoardView, error) {
	sessionID := o.rec.SessionID()
	if sessionID == "" {
		return models.BoardView{}, status.ErrSessionNotBound
	}

	var current *models.Participant
	if err := o.rec.Do(ctx, func() {
		current = o.rec.queue.Current()
	}); err != nil {
		return models.BoardView{}, err
	}
	if current == nil {
		return models.BoardView{}, fmt.Errorf("prepare next: no active participant")
	}

	if _, err := o.store.CompleteParticipant(ctx, current.ID); err != nil {
		return models.BoardView{}, fmt.Errorf("complete participant: %w", err)
	}

	session, err := o.store.ResetSession(ctx, sessionID)
	if err != nil {
		return models.BoardView{}, &status.PartialApplyError{Step: "session_reset", Err: err}
	}

	o.handshake.Reset()
	o.mu.Lock()
	o.feedback = nil
	o.mu.Unlock()

	if err := o.rec.Do(ctx, func() {
		o.rec.queue.Dequeue(current.ID)
		o.rec.queue.SetCurrent(nil)
		o.rec.sm.ForceStatus(models.SessionPendingRegistration, session.UpdatedAt)
	}); err != nil {
		return models.BoardView{}, err
	}
	return o.Snapshot(), nil
}

// ForceStatus applies an admin-forced transition. Finalizing states
// cascade: every open participant of the session is completed.
func (o *Orchestrator) ForceStatus(ctx context.Context, to string) (models.BoardView, error) {
	sessionID := o.rec.SessionID()
	if sessionID == "" {
		return models.BoardView{}, status.ErrSessionNotBound
	}
	if !models.IsSessionStatus(to) {
		return models.BoardView{}, fmt.Errorf("%w: unknown status %q", status.ErrInvalidTransition, to)
	}

	from := o.rec.Snapshot().SessionStatus
	if from == to {
		return o.Snapshot(), nil
	}
	if !CanTransition(from, to) {
		return models.BoardView{}, fmt.Errorf("%w: %s -> %s", status.ErrInvalidTransition, from, to)
	}

	session, err := o.store.UpdateSessionStatus(ctx, sessionID, to)
	if err != nil {
		return models.BoardView{}, err
	}

	if models.IsTerminalStatus(to) {
		if err := o.store.ForceCompleteParticipants(ctx, sessionID); err != nil {
			return models.BoardView{}, &status.PartialApplyError{Step: "participant_cascade", Err: err}
		}
		o.handshake.Reset()
	}

	if err := o.rec.Do(ctx, func() {
		o.rec.sm.ForceStatus(to, session.UpdatedAt)
		if models.IsTerminalStatus(to) {
			o.rec.queue.Reset()
		}
	}); err != nil {
		return models.BoardView{}, err
	}
	return o.Snapshot(), nil
}

// Close is the explicit admin side-exit, legal from any non-terminal
// state.
func (o *Orchestrator) Close(ctx context.Context) (models.BoardView, error) {
	return o.ForceStatus(ctx, models.SessionClosed)
}

// RecordPlay persists a question attempt for the active participant and
// refreshes the board's prize feedback.
func (o *Orchestrator) RecordPlay(ctx context.Context, participantID, questionID string, answeredCorrectly bool, prizeCandidate string, score decimal.Decimal, details map[string]any) (*models.PlayResult, error) {
	sessionID := o.rec.SessionID()
	if sessionID == "" {
		return nil, status.ErrSessionNotBound
	}

	var current *models.Participant
	if err := o.rec.Do(ctx, func() {
		current = o.rec.queue.Current()
	}); err != nil {
		return nil, err
	}
	if current == nil || current.ID != participantID {
		return nil, fmt.Errorf("record play: participant %s is not the active player", participantID)
	}

	result, err := o.prizes.RecordPlay(ctx, participantID, sessionID, questionID, answeredCorrectly, prizeCandidate, score, details)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.feedback = &models.PrizeFeedback{
		ParticipantID:   participantID,
		PrizeWon:        result.Play.PrizeWon,
		AlreadyWonPrize: result.AlreadyWonPrize,
	}
	o.mu.Unlock()
	return result, nil
}

// Reorder replaces the waiting queue ordering (admin drag-and-drop).
func (o *Orchestrator) Reorder(ctx context.Context, orderedIDs []string) (models.BoardView, error) {
	if err := o.rec.Do(ctx, func() {
		o.rec.queue.Reorder(orderedIDs)
	}); err != nil {
		return models.BoardView{}, err
	}
	return o.Snapshot(), nil
}

// Dequeue removes a participant from the line. The removal is persisted
// as a disqualification so every client's projection converges on it.
func (o *Orchestrator) Dequeue(ctx context.Context, participantID string) (models.BoardView, error) {
	if _, err := o.store.UpdateParticipantStatus(ctx, participantID, models.ParticipantDisqualified); err != nil {
		return models.BoardView{}, err
	}
	if err := o.rec.Do(ctx, func() {
		o.rec.queue.Dequeue(participantID)
		if current := o.rec.queue.Current(); current != nil && current.ID == participantID {
			o.rec.queue.SetCurrent(nil)
		}
	}); err != nil {
		return models.BoardView{}, err
	}
	return o.Snapshot(), nil
}
