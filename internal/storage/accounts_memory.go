package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/adanyl0v/go-todo-live/internal/models"
)

// MemoryAccountStore keeps users and sessions in process memory.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	emails   map[string]string
	sessions map[string]models.Session
}

var _ AccountStore = (*MemoryAccountStore)(nil)

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		users:    make(map[string]models.User),
		emails:   make(map[string]string),
		sessions: make(map[string]models.Session),
	}
}

func (s *MemoryAccountStore) CreateUser(ctx context.Context, user *models.User, session *models.Session) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[user.Email]; exists {
		return fmt.Errorf("%w: email %s is taken", ErrConflict, user.Email)
	}
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("%w: duplicate user id %s", ErrConflict, user.ID)
	}
	if err := s.checkNewSession(session, ""); err != nil {
		return err
	}

	s.users[user.ID] = *user
	s.emails[user.Email] = user.ID
	s.sessions[session.ID] = *session
	return nil
}

func (s *MemoryAccountStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *MemoryAccountStore) UserByID(ctx context.Context, userID string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *MemoryAccountStore) ReplaceSessions(ctx context.Context, session *models.Session) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[session.UserID]; !ok {
		return fmt.Errorf("%w: unknown user %s", ErrConflict, session.UserID)
	}
	if err := s.checkNewSession(session, session.UserID); err != nil {
		return err
	}
	s.deleteSessions(session.UserID)
	s.sessions[session.ID] = *session
	return nil
}

func (s *MemoryAccountStore) SessionByID(ctx context.Context, sessionID string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

func (s *MemoryAccountStore) SessionByRefreshToken(
	ctx context.Context,
	refreshToken string,
	fingerprint string,
) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if session.RefreshToken == refreshToken && session.Fingerprint == fingerprint {
			return &session, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryAccountStore) RotateSession(ctx context.Context, session *models.Session, previousToken string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[session.ID]
	if !ok || stored.RefreshToken != previousToken {
		return ErrNotFound
	}
	stored.RefreshToken = session.RefreshToken
	stored.ExpiresAt = session.ExpiresAt
	stored.UpdatedAt = session.UpdatedAt
	s.sessions[session.ID] = stored
	return nil
}

func (s *MemoryAccountStore) DeleteSessions(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSessions(userID), nil
}

func (s *MemoryAccountStore) deleteSessions(userID string) int64 {
	var deleted int64
	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted
}

// checkNewSession mirrors the primary key and refresh token constraints.
// Sessions of replacedUserID are about to be dropped and are ignored.
func (s *MemoryAccountStore) checkNewSession(session *models.Session, replacedUserID string) error {
	for _, other := range s.sessions {
		if other.UserID == replacedUserID {
			continue
		}
		if other.ID == session.ID {
			return fmt.Errorf("%w: duplicate session id %s", ErrConflict, session.ID)
		}
		if other.RefreshToken == session.RefreshToken {
			return fmt.Errorf("%w: duplicate refresh token", ErrConflict)
		}
	}
	return nil
}
