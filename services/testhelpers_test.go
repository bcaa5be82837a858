package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trivia-kiosk/config"
	"trivia-kiosk/internal/status"
	"trivia-kiosk/models"
)

func newTestConfig() *config.Config {
	return &config.Config{
		HandshakeTimeout:     80 * time.Millisecond,
		EventBufferSize:      32,
		PollIdleInterval:     time.Hour,
		PollFallbackInterval: time.Hour,
		CleanupInterval:      time.Hour,
		SnapshotCacheTTL:     30 * time.Second,
	}
}

// fakeStore is the in-memory Store used across the service tests.
type fakeStore struct {
	mu           sync.Mutex
	sessions     map[string]*models.Session
	participants map[string]*models.Participant
	plays        []*models.Play
	nextID       int

	failSessionUpdate bool
	failSessionReset  bool
	failCascade       bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:     make(map[string]*models.Session),
		participants: make(map[string]*models.Participant),
	}
}

func (f *fakeStore) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) addSession(s *models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *s
	f.sessions[s.ID] = &copied
}

func (f *fakeStore) addParticipant(p *models.Participant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *p
	f.participants[p.ID] = &copied
}

func (f *fakeStore) CreateSession(ctx context.Context, adminID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	s := &models.Session{
		ID:        f.genID("sess"),
		AdminID:   adminID,
		Status:    models.SessionPendingRegistration,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.sessions[s.ID] = s
	copied := *s
	return &copied, nil
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, status.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStore) UpdateSessionStatus(ctx context.Context, sessionID, newStatus string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSessionUpdate {
		return nil, fmt.Errorf("session write refused")
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, status.ErrSessionNotFound
	}
	s.Status = newStatus
	s.UpdatedAt = time.Now().UTC()
	copied := *s
	return &copied, nil
}

func (f *fakeStore) ResetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSessionReset {
		return nil, fmt.Errorf("session reset refused")
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, status.ErrSessionNotFound
	}
	s.Status = models.SessionPendingRegistration
	s.PlayerName = ""
	s.PlayerEmail = ""
	s.PlayerSpecialty = ""
	s.UpdatedAt = time.Now().UTC()
	copied := *s
	return &copied, nil
}

func (f *fakeStore) RegisterParticipant(ctx context.Context, sessionID string, profile *models.RegistrationProfile) (*models.Participant, error) {
	if err := models.ValidateProfile(profile); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrInvalidPayload, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return nil, status.ErrSessionNotFound
	}
	for _, p := range f.participants {
		if p.SessionID == sessionID && p.Email == profile.Email && p.CompletedAt == nil && profile.Email != "" {
			copied := *p
			return nil, &status.ConflictError{Existing: &copied}
		}
	}
	now := time.Now().UTC()
	p := &models.Participant{
		ID:        f.genID("part"),
		SessionID: sessionID,
		Name:      profile.Name,
		Email:     profile.Email,
		Specialty: profile.Specialty,
		Status:    models.ParticipantRegistered,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.participants[p.ID] = p
	if s := f.sessions[sessionID]; s.Status == models.SessionPendingRegistration {
		s.Status = models.SessionPlayerRegistered
		s.PlayerName = profile.Name
		s.PlayerEmail = profile.Email
		s.PlayerSpecialty = profile.Specialty
		s.UpdatedAt = now
	}
	copied := *p
	return &copied, nil
}

func (f *fakeStore) ListParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Participant
	for _, p := range f.participants {
		if p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdateParticipantStatus(ctx context.Context, participantID, newStatus string) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[participantID]
	if !ok {
		return nil, fmt.Errorf("participant %s not found", participantID)
	}
	p.Status = newStatus
	p.UpdatedAt = time.Now().UTC()
	copied := *p
	return &copied, nil
}

func (f *fakeStore) CompleteParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[participantID]
	if !ok {
		return nil, fmt.Errorf("participant %s not found", participantID)
	}
	now := time.Now().UTC()
	p.Status = models.ParticipantCompleted
	p.CompletedAt = &now
	p.UpdatedAt = now
	copied := *p
	return &copied, nil
}

func (f *fakeStore) ForceCompleteParticipants(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCascade {
		return fmt.Errorf("cascade refused")
	}
	now := time.Now().UTC()
	for _, p := range f.participants {
		if p.SessionID == sessionID && (p.Status == models.ParticipantRegistered || p.Status == models.ParticipantPlaying) {
			p.Status = models.ParticipantCompleted
			p.CompletedAt = &now
			p.UpdatedAt = now
		}
	}
	return nil
}

func (f *fakeStore) CreatePlay(ctx context.Context, play *models.Play) (*models.Play, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *play
	copied.ID = f.genID("play")
	copied.CreatedAt = time.Now().UTC()
	f.plays = append(f.plays, &copied)
	out := copied
	return &out, nil
}

func (f *fakeStore) ListPlays(ctx context.Context, participantID string) ([]models.Play, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Play
	for _, p := range f.plays {
		if p.ParticipantID == participantID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) CountAwardedPrizes(ctx context.Context, participantID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, p := range f.plays {
		if p.ParticipantID == participantID && p.PrizeWon != "" {
			count++
		}
	}
	return count, nil
}
