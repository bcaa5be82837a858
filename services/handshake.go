package services

import (
	"log/slog"
	"sync"
	"time"

	"trivia-kiosk/models"
)

// Handshake coordinates the visible "next participant" interstitial
// between the orchestrator and the board. Gameplay must not start until
// the board confirms the interstitial rendered, or a bounded timeout
// fires so a silent display can never wedge the session.
type Handshake struct {
	mu sync.Mutex

	phase     string
	next      *models.Participant
	confirmed bool
	timeout   time.Duration
	timer     *time.Timer
	gen       int

	// onAdvance runs outside the lock once the handshake resolves,
	// either by confirmation or by timeout.
	onAdvance func(p *models.Participant, timedOut bool)
}

func NewHandshake(timeout time.Duration, onAdvance func(p *models.Participant, timedOut bool)) *Handshake {
	return &Handshake{
		phase:     models.BoardIdle,
		timeout:   timeout,
		onAdvance: onAdvance,
	}
}

// Begin arms a fresh one-shot handshake for the given participant. Any
// handshake still in flight is abandoned; its timer can no longer fire.
func (h *Handshake) Begin(p *models.Participant) {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.phase = models.BoardTransition
	h.next = p
	h.confirmed = false
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(h.timeout, func() {
		h.resolve(gen, true)
	})
	h.mu.Unlock()
}

// Confirm is the board's confirmTransitionVisible call. Returns false
// when no transition is pending.
func (h *Handshake) Confirm() bool {
	h.mu.Lock()
	if h.phase != models.BoardTransition {
		h.mu.Unlock()
		return false
	}
	h.confirmed = true
	gen := h.gen
	h.mu.Unlock()

	h.resolve(gen, false)
	return true
}

// resolve advances transition → inGame exactly once per generation.
func (h *Handshake) resolve(gen int, timedOut bool) {
	h.mu.Lock()
	if gen != h.gen || h.phase != models.BoardTransition {
		h.mu.Unlock()
		return
	}
	h.phase = models.BoardInGame
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	p := h.next
	h.next = nil
	h.mu.Unlock()

	if timedOut {
		slog.Warn("board never confirmed transition, advancing on timeout",
			"participant", participantID(p),
			"timeout", h.timeout,
		)
	}
	if h.onAdvance != nil {
		h.onAdvance(p, timedOut)
	}
}

// Reset returns the handshake to idle, cancelling any pending timer.
func (h *Handshake) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen++
	h.phase = models.BoardIdle
	h.next = nil
	h.confirmed = false
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// State reports the phase, the pending participant and whether the
// board has confirmed, for the presentation projection.
func (h *Handshake) State() (phase string, next *models.Participant, confirmed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.next != nil {
		copied := *h.next
		next = &copied
	}
	return h.phase, next, h.confirmed
}

func participantID(p *models.Participant) string {
	if p == nil {
		return ""
	}
	return p.ID
}
