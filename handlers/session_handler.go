package handlers

import (
	"errors"
	"net/http"

	"trivia-kiosk/internal/status"
	"trivia-kiosk/models"
	"trivia-kiosk/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// SessionHandler carries the admin-console surface: session lifecycle
// and the prepare-next / close operations.
type SessionHandler struct {
	app          *pocketbase.PocketBase
	store        services.Store
	orchestrator *services.Orchestrator
	redis        *redis.Client
}

func NewSessionHandler(app *pocketbase.PocketBase, store services.Store, orchestrator *services.Orchestrator, redisClient *redis.Client) *SessionHandler {
	return &SessionHandler{
		app:          app,
		store:        store,
		orchestrator: orchestrator,
		redis:        redisClient,
	}
}

// CreateSession opens a fresh session in pending_player_registration
// and binds the orchestrator to it.
func (h *SessionHandler) CreateSession(e *core.RequestEvent) error {
	var req struct {
		AdminID string `json:"admin_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.AdminID == "" {
		return apis.NewBadRequestError("admin_id is required", nil)
	}

	ctx := e.Request.Context()
	session, err := h.store.CreateSession(ctx, req.AdminID)
	if err != nil {
		return apis.NewBadRequestError("Failed to create session", err)
	}

	h.redis.SAdd(ctx, "active_sessions", session.ID)

	if err := h.orchestrator.Bind(ctx, session.ID); err != nil {
		return apis.NewBadRequestError("Failed to bind session", err)
	}

	return e.JSON(http.StatusOK, session)
}

func (h *SessionHandler) GetSession(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("id")

	session, err := h.store.GetSession(e.Request.Context(), sessionID)
	if err != nil {
		return apis.NewNotFoundError("Session not found", err)
	}
	return e.JSON(http.StatusOK, session)
}

// UpdateStatus applies an admin-forced lifecycle transition.
func (h *SessionHandler) UpdateStatus(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("id")

	var req struct {
		Status string `json:"status"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()
	if err := h.ensureBound(e, sessionID); err != nil {
		return err
	}

	view, err := h.orchestrator.ForceStatus(ctx, req.Status)
	if err != nil {
		return mapOrchestratorError(err)
	}

	if models.IsTerminalStatus(req.Status) {
		h.redis.SRem(ctx, "active_sessions", sessionID)
	}
	return e.JSON(http.StatusOK, view)
}

// PrepareNext completes the active participant's turn and re-opens the
// registration slot.
func (h *SessionHandler) PrepareNext(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("id")
	if err := h.ensureBound(e, sessionID); err != nil {
		return err
	}

	view, err := h.orchestrator.PrepareNext(e.Request.Context())
	if err != nil {
		return mapOrchestratorError(err)
	}
	return e.JSON(http.StatusOK, view)
}

// CloseSession is the explicit terminal side-exit.
func (h *SessionHandler) CloseSession(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("id")
	if err := h.ensureBound(e, sessionID); err != nil {
		return err
	}

	ctx := e.Request.Context()
	view, err := h.orchestrator.Close(ctx)
	if err != nil {
		return mapOrchestratorError(err)
	}

	h.redis.SRem(ctx, "active_sessions", sessionID)
	return e.JSON(http.StatusOK, view)
}

// ResetSession clears the pending registration slot without touching
// queue history.
func (h *SessionHandler) ResetSession(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("id")

	session, err := h.store.ResetSession(e.Request.Context(), sessionID)
	if err != nil {
		return mapOrchestratorError(err)
	}
	return e.JSON(http.StatusOK, session)
}

// ensureBound rebinds the orchestrator when the admin addresses a
// session other than the one currently projected (console restart,
// stale tab).
func (h *SessionHandler) ensureBound(e *core.RequestEvent, sessionID string) error {
	if h.orchestrator.SessionBound(sessionID) {
		return nil
	}
	if err := h.orchestrator.Bind(e.Request.Context(), sessionID); err != nil {
		if errors.Is(err, status.ErrSessionNotFound) {
			return apis.NewNotFoundError("Session not found", err)
		}
		return apis.NewBadRequestError("Failed to bind session", err)
	}
	return nil
}

// mapOrchestratorError turns core errors into their HTTP-equivalents.
func mapOrchestratorError(err error) error {
	var conflict *status.ConflictError
	var partial *status.PartialApplyError

	switch {
	case errors.Is(err, status.ErrSessionNotFound):
		return apis.NewNotFoundError("Session not found", err)
	case errors.As(err, &conflict):
		return apis.NewApiError(http.StatusConflict, "Participant already registered", map[string]any{
			"existing": conflict.Existing,
		})
	case errors.As(err, &partial):
		return apis.NewApiError(http.StatusServiceUnavailable, "Operation partially applied, retry the whole operation", map[string]any{
			"step": partial.Step,
		})
	case errors.Is(err, status.ErrInvalidTransition):
		return apis.NewBadRequestError("Transition not allowed", err)
	case errors.Is(err, status.ErrQueueEmpty):
		return apis.NewBadRequestError("No waiting participants", err)
	default:
		return apis.NewBadRequestError("Operation failed", err)
	}
}
