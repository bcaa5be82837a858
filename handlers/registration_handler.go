package handlers

import (
	"fmt"
	"net/http"

	"trivia-kiosk/models"
	"trivia-kiosk/security"
	"trivia-kiosk/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RegistrationHandler is the handheld device's surface: sign up for a
// session and poll queue position.
type RegistrationHandler struct {
	app   *pocketbase.PocketBase
	store services.Store
	redis *redis.Client
}

func NewRegistrationHandler(app *pocketbase.PocketBase, store services.Store, redisClient *redis.Client) *RegistrationHandler {
	return &RegistrationHandler{
		app:   app,
		store: store,
		redis: redisClient,
	}
}

// Register signs a player up for the session. A duplicate registration
// comes back as a conflict with the existing record attached, so the
// device can decide to proceed or reset.
func (h *RegistrationHandler) Register(e *core.RequestEvent) error {
	if security.SuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
		return apis.NewForbiddenError("Access denied", nil)
	}

	sessionID := e.Request.PathValue("id")

	var profile models.RegistrationProfile
	if err := e.BindBody(&profile); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	participant, err := h.store.RegisterParticipant(e.Request.Context(), sessionID, &profile)
	if err != nil {
		return mapOrchestratorError(err)
	}

	return e.JSON(http.StatusOK, participant)
}

// ListParticipants returns every participant row of the session.
func (h *RegistrationHandler) ListParticipants(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("id")

	participants, err := h.store.ListParticipants(e.Request.Context(), sessionID)
	if err != nil {
		return apis.NewBadRequestError("Failed to list participants", err)
	}
	return e.JSON(http.StatusOK, participants)
}

// QueuePosition reads the cached position the reconciler mirrors into
// Redis; -1 means the participant is not in line.
func (h *RegistrationHandler) QueuePosition(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("id")
	participantID := e.Request.URL.Query().Get("participant_id")
	if participantID == "" {
		return apis.NewBadRequestError("participant_id required", nil)
	}

	ctx := e.Request.Context()
	posKey := fmt.Sprintf("queue:position:%s:%s", sessionID, participantID)
	position, err := h.redis.Get(ctx, posKey).Int()
	if err != nil {
		position = -1
	}

	return e.JSON(http.StatusOK, map[string]any{
		"participant_id": participantID,
		"position":       position,
	})
}
