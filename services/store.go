package services

import (
	"context"
	"fmt"
	"time"

	"trivia-kiosk/internal/status"
	"trivia-kiosk/models"
	"trivia-kiosk/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// Store is the persistence contract the orchestration core consumes.
// The backing implementation is an embedded PocketBase app; tests swap
// in an in-memory fake.
type Store interface {
	CreateSession(ctx context.Context, adminID string) (*models.Session, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID, newStatus string) (*models.Session, error)
	ResetSession(ctx context.Context, sessionID string) (*models.Session, error)

	RegisterParticipant(ctx context.Context, sessionID string, profile *models.RegistrationProfile) (*models.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]models.Participant, error)
	UpdateParticipantStatus(ctx context.Context, participantID, newStatus string) (*models.Participant, error)
	CompleteParticipant(ctx context.Context, participantID string) (*models.Participant, error)
	ForceCompleteParticipants(ctx context.Context, sessionID string) error

	CreatePlay(ctx context.Context, play *models.Play) (*models.Play, error)
	ListPlays(ctx context.Context, participantID string) ([]models.Play, error)
	CountAwardedPrizes(ctx context.Context, participantID string) (int, error)
}

// PBStore implements Store on top of the embedded PocketBase app.
type PBStore struct {
	app core.App
}

func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

func (s *PBStore) CreateSession(ctx context.Context, adminID string) (*models.Session, error) {
	collection, err := s.app.FindCollectionByNameOrId("sessions")
	if err != nil {
		return nil, fmt.Errorf("find sessions collection: %w", err)
	}

	joinCode, err := utils.GenerateCode(3)
	if err != nil {
		return nil, fmt.Errorf("generate join code: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("admin_id", adminID)
	record.Set("join_code", joinCode)
	record.Set("status", models.SessionPendingRegistration)

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return recordToSession(record), nil
}

func (s *PBStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	record, err := s.app.FindRecordById("sessions", sessionID)
	if err != nil {
		return nil, status.ErrSessionNotFound
	}
	return recordToSession(record), nil
}

func (s *PBStore) UpdateSessionStatus(ctx context.Context, sessionID, newStatus string) (*models.Session, error) {
	record, err := s.app.FindRecordById("sessions", sessionID)
	if err != nil {
		return nil, status.ErrSessionNotFound
	}

	record.Set("status", newStatus)
	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("update session status: %w", err)
	}
	return recordToSession(record), nil
}

// ResetSession clears the denormalized player fields and re-opens the
// registration slot in one write.
func (s *PBStore) ResetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	record, err := s.app.FindRecordById("sessions", sessionID)
	if err != nil {
		return nil, status.ErrSessionNotFound
	}

	record.Set("status", models.SessionPendingRegistration)
	record.Set("player_name", "")
	record.Set("player_email", "")
	record.Set("player_specialty", "")
	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("reset session: %w", err)
	}
	return recordToSession(record), nil
}

func (s *PBStore) RegisterParticipant(ctx context.Context, sessionID string, profile *models.RegistrationProfile) (*models.Participant, error) {
	if err := models.ValidateProfile(profile); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrInvalidPayload, err)
	}

	session, err := s.app.FindRecordById("sessions", sessionID)
	if err != nil {
		return nil, status.ErrSessionNotFound
	}
	if models.IsTerminalStatus(session.GetString("status")) {
		return nil, fmt.Errorf("%w: session %s is %s", status.ErrInvalidTransition, sessionID, session.GetString("status"))
	}

	// The same player registering twice gets the existing record back
	// as a conflict so the device can decide to proceed or reset.
	if profile.Email != "" {
		existing, err := s.app.FindFirstRecordByFilter(
			"participants",
			"session_id = {:sid} && email = {:email} && completed_at = ''",
			dbx.Params{"sid": sessionID, "email": profile.Email},
		)
		if err == nil && existing != nil {
			return nil, &status.ConflictError{Existing: recordToParticipant(existing)}
		}
	}

	collection, err := s.app.FindCollectionByNameOrId("participants")
	if err != nil {
		return nil, fmt.Errorf("find participants collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("session_id", sessionID)
	record.Set("name", profile.Name)
	record.Set("email", profile.Email)
	record.Set("specialty", profile.Specialty)
	record.Set("status", models.ParticipantRegistered)

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("register participant: %w", err)
	}

	// The first registration claims the open slot: the session row
	// carries the bound player so every client (and the admin console's
	// session fetch) sees who holds it.
	if session.GetString("status") == models.SessionPendingRegistration {
		session.Set("status", models.SessionPlayerRegistered)
		session.Set("player_name", profile.Name)
		session.Set("player_email", profile.Email)
		session.Set("player_specialty", profile.Specialty)
		if err := s.app.Save(session); err != nil {
			return nil, fmt.Errorf("bind registration to session: %w", err)
		}
	}
	return recordToParticipant(record), nil
}

func (s *PBStore) ListParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	records, err := s.app.FindRecordsByFilter(
		"participants",
		"session_id = {:sid}",
		"created",
		0,
		0,
		dbx.Params{"sid": sessionID},
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	out := make([]models.Participant, 0, len(records))
	for _, record := range records {
		out = append(out, *recordToParticipant(record))
	}
	return out, nil
}

func (s *PBStore) UpdateParticipantStatus(ctx context.Context, participantID, newStatus string) (*models.Participant, error) {
	record, err := s.app.FindRecordById("participants", participantID)
	if err != nil {
		return nil, fmt.Errorf("participant %s: %w", participantID, err)
	}

	record.Set("status", newStatus)
	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("update participant status: %w", err)
	}
	return recordToParticipant(record), nil
}

func (s *PBStore) CompleteParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	record, err := s.app.FindRecordById("participants", participantID)
	if err != nil {
		return nil, fmt.Errorf("participant %s: %w", participantID, err)
	}

	record.Set("status", models.ParticipantCompleted)
	record.Set("completed_at", time.Now().UTC().Format(time.RFC3339Nano))
	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("complete participant: %w", err)
	}
	return recordToParticipant(record), nil
}

// ForceCompleteParticipants cascades an admin finalization: every
// registered or playing participant of the session is completed.
func (s *PBStore) ForceCompleteParticipants(ctx context.Context, sessionID string) error {
	records, err := s.app.FindRecordsByFilter(
		"participants",
		"session_id = {:sid} && (status = 'registered' || status = 'playing')",
		"created",
		0,
		0,
		dbx.Params{"sid": sessionID},
	)
	if err != nil {
		return fmt.Errorf("list open participants: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, record := range records {
		record.Set("status", models.ParticipantCompleted)
		record.Set("completed_at", now)
		if err := s.app.Save(record); err != nil {
			return fmt.Errorf("cascade complete participant %s: %w", record.Id, err)
		}
	}
	return nil
}

func (s *PBStore) CreatePlay(ctx context.Context, play *models.Play) (*models.Play, error) {
	collection, err := s.app.FindCollectionByNameOrId("plays")
	if err != nil {
		return nil, fmt.Errorf("find plays collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("participant_id", play.ParticipantID)
	record.Set("session_id", play.SessionID)
	record.Set("question_id", play.QuestionID)
	record.Set("answered_correctly", play.AnsweredCorrectly)
	record.Set("prize_won", play.PrizeWon)
	record.Set("score", play.Score.String())
	record.Set("game_details", play.GameDetails)
	record.Set("origin", play.Origin)

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("create play: %w", err)
	}
	return recordToPlay(record), nil
}

func (s *PBStore) ListPlays(ctx context.Context, participantID string) ([]models.Play, error) {
	records, err := s.app.FindRecordsByFilter(
		"plays",
		"participant_id = {:pid}",
		"created",
		0,
		0,
		dbx.Params{"pid": participantID},
	)
	if err != nil {
		return nil, fmt.Errorf("list plays: %w", err)
	}

	out := make([]models.Play, 0, len(records))
	for _, record := range records {
		out = append(out, *recordToPlay(record))
	}
	return out, nil
}

// CountAwardedPrizes counts the participant's plays that carry a prize.
// Raw SQL keeps the check a single round trip.
func (s *PBStore) CountAwardedPrizes(ctx context.Context, participantID string) (int, error) {
	var row struct {
		Total int `db:"total"`
	}
	err := s.app.DB().
		NewQuery("SELECT COUNT(*) AS total FROM plays WHERE participant_id = {:pid} AND prize_won != ''").
		Bind(dbx.Params{"pid": participantID}).
		One(&row)
	if err != nil {
		return 0, fmt.Errorf("count awarded prizes: %w", err)
	}
	return row.Total, nil
}

func recordToSession(record *core.Record) *models.Session {
	return &models.Session{
		ID:              record.Id,
		AdminID:         record.GetString("admin_id"),
		JoinCode:        record.GetString("join_code"),
		Status:          record.GetString("status"),
		PlayerName:      record.GetString("player_name"),
		PlayerEmail:     record.GetString("player_email"),
		PlayerSpecialty: record.GetString("player_specialty"),
		CreatedAt:       record.GetDateTime("created").Time(),
		UpdatedAt:       record.GetDateTime("updated").Time(),
	}
}

func recordToParticipant(record *core.Record) *models.Participant {
	p := &models.Participant{
		ID:        record.Id,
		SessionID: record.GetString("session_id"),
		Name:      record.GetString("name"),
		Email:     record.GetString("email"),
		Specialty: record.GetString("specialty"),
		Status:    record.GetString("status"),
		CreatedAt: record.GetDateTime("created").Time(),
		UpdatedAt: record.GetDateTime("updated").Time(),
	}
	if completed := record.GetDateTime("completed_at").Time(); !completed.IsZero() {
		p.CompletedAt = &completed
	}
	return p
}

func recordToPlay(record *core.Record) *models.Play {
	score, err := decimal.NewFromString(record.GetString("score"))
	if err != nil {
		score = decimal.Zero
	}

	var details map[string]any
	_ = record.UnmarshalJSONField("game_details", &details)

	return &models.Play{
		ID:                record.Id,
		ParticipantID:     record.GetString("participant_id"),
		SessionID:         record.GetString("session_id"),
		QuestionID:        record.GetString("question_id"),
		AnsweredCorrectly: record.GetBool("answered_correctly"),
		PrizeWon:          record.GetString("prize_won"),
		Score:             score,
		GameDetails:       details,
		Origin:            record.GetString("origin"),
		CreatedAt:         record.GetDateTime("created").Time(),
	}
}
