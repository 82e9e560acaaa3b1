package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adanyl0v/go-todo-live/internal/models"
)

func newSession(id, userID, token string) *models.Session {
	return &models.Session{
		ID:           id,
		UserID:       userID,
		Fingerprint:  "fp",
		RefreshToken: token,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestMemoryAccountStoreCreateUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()

	alice := &models.User{ID: "u1", Email: "alice@example.com"}
	require.NoError(t, s.CreateUser(ctx, alice, newSession("s1", "u1", "r1")))

	user, err := s.UserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	err = s.CreateUser(ctx, &models.User{ID: "u2", Email: "alice@example.com"}, newSession("s2", "u2", "r2"))
	assert.ErrorIs(t, err, ErrConflict)

	// A clashing session leaves no user behind.
	err = s.CreateUser(ctx, &models.User{ID: "u3", Email: "carol@example.com"}, newSession("s3", "u3", "r1"))
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.UserByID(ctx, "u3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAccountStoreReplaceSessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", Email: "a"}, newSession("s1", "u1", "r1")))
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u2", Email: "b"}, newSession("s2", "u2", "r2")))

	err := s.ReplaceSessions(ctx, newSession("s3", "u1", "r2"))
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.SessionByID(ctx, "s1")
	assert.NoError(t, err, "failed replace must keep the old session")

	require.NoError(t, s.ReplaceSessions(ctx, newSession("s3", "u1", "r3")))
	_, err = s.SessionByID(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.SessionByID(ctx, "s2")
	assert.NoError(t, err)

	err = s.ReplaceSessions(ctx, newSession("s4", "nobody", "r4"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryAccountStoreRotateSession(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", Email: "a"}, newSession("s1", "u1", "r1")))

	session, err := s.SessionByRefreshToken(ctx, "r1", "fp")
	require.NoError(t, err)
	_, err = s.SessionByRefreshToken(ctx, "r1", "other")
	assert.ErrorIs(t, err, ErrNotFound)

	session.RefreshToken = "r2"
	require.NoError(t, s.RotateSession(ctx, session, "r1"))

	session.RefreshToken = "r3"
	assert.ErrorIs(t, s.RotateSession(ctx, session, "r1"), ErrNotFound)

	stored, err := s.SessionByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "r2", stored.RefreshToken)

	deleted, err := s.DeleteSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
