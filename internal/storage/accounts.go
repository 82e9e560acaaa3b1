package storage

import (
	"context"

	"github.com/adanyl0v/go-todo-live/internal/models"
)

// AccountStore persists users and their login sessions.
//
// Lookups return ErrNotFound for unknown rows. A duplicate email yields
// ErrConflict.
type AccountStore interface {
	// CreateUser inserts user together with its first session.
	CreateUser(ctx context.Context, user *models.User, session *models.Session) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)

	// ReplaceSessions drops every session of session.UserID and
	// inserts session in one step.
	ReplaceSessions(ctx context.Context, session *models.Session) error
	SessionByID(ctx context.Context, sessionID string) (*models.Session, error)
	// SessionByRefreshToken only matches a session opened with the
	// same fingerprint.
	SessionByRefreshToken(ctx context.Context, refreshToken, fingerprint string) (*models.Session, error)
	// RotateSession writes the new refresh token and expiry of session,
	// but only while the stored token still equals previousToken. A token
	// that was rotated in the meantime yields ErrNotFound.
	RotateSession(ctx context.Context, session *models.Session, previousToken string) error
	// DeleteSessions returns the number of sessions removed.
	DeleteSessions(ctx context.Context, userID string) (int64, error)
}
