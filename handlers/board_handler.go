package handlers

import (
	"net/http"

	"trivia-kiosk/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// BoardHandler is the shared display's surface: projection reads, the
// transition handshake, queue management and play recording.
type BoardHandler struct {
	app          *pocketbase.PocketBase
	orchestrator *services.Orchestrator
}

func NewBoardHandler(app *pocketbase.PocketBase, orchestrator *services.Orchestrator) *BoardHandler {
	return &BoardHandler{
		app:          app,
		orchestrator: orchestrator,
	}
}

// State returns the reactive projection the display renders.
func (h *BoardHandler) State(e *core.RequestEvent) error {
	return e.JSON(http.StatusOK, h.orchestrator.Snapshot())
}

// ActivateNext kicks off the next-participant transition.
func (h *BoardHandler) ActivateNext(e *core.RequestEvent) error {
	view, err := h.orchestrator.ActivateNext(e.Request.Context())
	if err != nil {
		return mapOrchestratorError(err)
	}
	return e.JSON(http.StatusOK, view)
}

// ConfirmTransition is the board reporting the interstitial rendered.
func (h *BoardHandler) ConfirmTransition(e *core.RequestEvent) error {
	confirmed := h.orchestrator.ConfirmTransitionVisible()
	return e.JSON(http.StatusOK, map[string]any{
		"confirmed": confirmed,
	})
}

// Reorder replaces the waiting queue ordering wholesale.
func (h *BoardHandler) Reorder(e *core.RequestEvent) error {
	var req struct {
		Order []string `json:"order"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if len(req.Order) == 0 {
		return apis.NewBadRequestError("order must not be empty", nil)
	}

	view, err := h.orchestrator.Reorder(e.Request.Context(), req.Order)
	if err != nil {
		return mapOrchestratorError(err)
	}
	return e.JSON(http.StatusOK, view)
}

// Dequeue removes a participant from the line.
func (h *BoardHandler) Dequeue(e *core.RequestEvent) error {
	var req struct {
		ParticipantID string `json:"participant_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ParticipantID == "" {
		return apis.NewBadRequestError("participant_id required", nil)
	}

	view, err := h.orchestrator.Dequeue(e.Request.Context(), req.ParticipantID)
	if err != nil {
		return mapOrchestratorError(err)
	}
	return e.JSON(http.StatusOK, view)
}

// RecordPlay stores one question attempt; the prize invariant is
// applied before anything is written.
func (h *BoardHandler) RecordPlay(e *core.RequestEvent) error {
	var req struct {
		ParticipantID     string         `json:"participant_id"`
		QuestionID        string         `json:"question_id"`
		AnsweredCorrectly bool           `json:"answered_correctly"`
		PrizeCandidate    string         `json:"prize_candidate"`
		Score             string         `json:"score"`
		GameDetails       map[string]any `json:"game_details"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ParticipantID == "" || req.QuestionID == "" {
		return apis.NewBadRequestError("participant_id and question_id are required", nil)
	}

	score := decimal.Zero
	if req.Score != "" {
		parsed, err := decimal.NewFromString(req.Score)
		if err != nil {
			return apis.NewBadRequestError("Invalid score", err)
		}
		score = parsed
	}

	result, err := h.orchestrator.RecordPlay(
		e.Request.Context(),
		req.ParticipantID,
		req.QuestionID,
		req.AnsweredCorrectly,
		req.PrizeCandidate,
		score,
		req.GameDetails,
	)
	if err != nil {
		return mapOrchestratorError(err)
	}
	return e.JSON(http.StatusOK, result)
}
