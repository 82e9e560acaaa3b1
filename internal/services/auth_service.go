package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-live/internal/models"
	"github.com/adanyl0v/go-todo-live/internal/storage"
)

type authServiceImpl struct {
	logger             zerolog.Logger
	accounts           storage.AccountStore
	jwtIssuer          string
	jwtSigningKey      []byte
	jwtAccessTokenTTL  time.Duration
	jwtRefreshTokenTTL time.Duration
}

func NewAuthService(
	logger zerolog.Logger,
	accounts storage.AccountStore,
	jwtIssuer string,
	jwtSigningKey []byte,
	jwtAccessTokenTTL time.Duration,
	jwtRefreshTokenTTL time.Duration,
) AuthService {
	return &authServiceImpl{
		logger:             logger,
		accounts:           accounts,
		jwtIssuer:          jwtIssuer,
		jwtSigningKey:      jwtSigningKey,
		jwtAccessTokenTTL:  jwtAccessTokenTTL,
		jwtRefreshTokenTTL: jwtRefreshTokenTTL,
	}
}

func (s *authServiceImpl) Login(ctx context.Context, params LoginParams) (*LoginResult, error) {
	user, err := s.accounts.UserByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().
				Str("email", params.Email).
				Msg("login for unknown email")
			return nil, ErrUserNotFound
		}

		s.logger.Error().
			Err(err).
			Str("email", params.Email).
			Msg("failed to look up user by email")
		return nil, err
	}

	match, err := argon2id.ComparePasswordAndHash(params.Password, user.Password)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", user.ID).
			Msg("failed to compare password")
		return nil, err
	}
	if !match {
		s.logger.Warn().
			Str("user_id", user.ID).
			Msg("wrong password")
		return nil, ErrUserPasswordMismatch
	}

	session, err := s.newSession(user.ID, params.Fingerprint)
	if err != nil {
		return nil, err
	}

	// A login ends every other session of the user.
	err = s.accounts.ReplaceSessions(ctx, session)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", user.ID).
			Msg("failed to replace sessions")
		return nil, err
	}

	result, err := s.issueTokens(session)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("user_id", user.ID).
		Str("session_id", session.ID).
		Msg("logged in")
	return result, nil
}

func (s *authServiceImpl) Register(ctx context.Context, params LoginParams) (*LoginResult, error) {
	userUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate user uuid")
		return nil, err
	}

	hash, err := argon2id.CreateHash(params.Password, argon2id.DefaultParams)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to hash password")
		return nil, err
	}

	now := time.Now()
	user := &models.User{
		ID:        userUUID.String(),
		Email:     params.Email,
		Password:  hash,
		CreatedAt: now,
		UpdatedAt: now,
	}

	session, err := s.newSession(user.ID, params.Fingerprint)
	if err != nil {
		return nil, err
	}

	err = s.accounts.CreateUser(ctx, user, session)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			s.logger.Warn().
				Str("email", user.Email).
				Msg("email already registered")
			return nil, ErrUserAlreadyExists
		}

		s.logger.Error().
			Err(err).
			Str("email", user.Email).
			Msg("failed to create user")
		return nil, err
	}

	result, err := s.issueTokens(session)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("user_id", user.ID).
		Str("session_id", session.ID).
		Msg("registered user")
	return result, nil
}

func (s *authServiceImpl) Refresh(ctx context.Context, params RefreshParams) (*LoginResult, error) {
	session, err := s.accounts.SessionByRefreshToken(ctx, params.RefreshToken, params.Fingerprint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Msg("refresh with unknown token")
			return nil, ErrSessionNotFound
		}

		s.logger.Error().
			Err(err).
			Msg("failed to look up session by refresh token")
		return nil, err
	}

	now := time.Now()
	if session.Expired(now) {
		s.logger.Warn().
			Str("session_id", session.ID).
			Time("expires_at", session.ExpiresAt).
			Msg("session expired")
		return nil, ErrSessionExpired
	}

	previousToken := session.RefreshToken
	session.RefreshToken, err = generateRefreshToken()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate refresh token")
		return nil, err
	}
	session.ExpiresAt = now.Add(s.jwtRefreshTokenTTL)
	session.UpdatedAt = now

	err = s.accounts.RotateSession(ctx, session, previousToken)
	if err != nil {
		// Lost a race with another refresh of the same token.
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().
				Str("session_id", session.ID).
				Msg("refresh token already rotated")
			return nil, ErrSessionNotFound
		}

		s.logger.Error().
			Err(err).
			Str("session_id", session.ID).
			Msg("failed to rotate session")
		return nil, err
	}

	result, err := s.issueTokens(session)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("user_id", session.UserID).
		Str("session_id", session.ID).
		Msg("refreshed session")
	return result, nil
}

func (s *authServiceImpl) Logout(ctx context.Context, userID string) error {
	deleted, err := s.accounts.DeleteSessions(ctx, userID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to delete sessions")
		return err
	}

	s.logger.Info().
		Str("user_id", userID).
		Int64("affected", deleted).
		Msg("logged out")
	return nil
}

func (s *authServiceImpl) Authenticate(ctx context.Context, params AuthenticateParams) (*models.Session, error) {
	claims, err := s.ParseJWTToken(params.AccessToken)
	if err != nil {
		return nil, err
	}

	session, err := s.accounts.SessionByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().
				Str("session_id", claims.Subject).
				Msg("session not found")
			return nil, ErrSessionNotFound
		}

		s.logger.Error().
			Err(err).
			Str("session_id", claims.Subject).
			Msg("failed to look up session")
		return nil, err
	}

	if session.Fingerprint != params.Fingerprint {
		s.logger.Warn().
			Str("session_id", session.ID).
			Msg("fingerprint mismatch")
		return nil, ErrFingerprintMismatch
	}
	return session, nil
}

func (s *authServiceImpl) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.accounts.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to look up user")
		return nil, err
	}
	user.Password = ""
	return user, nil
}

func (s *authServiceImpl) ParseJWTToken(token string) (*jwt.RegisteredClaims, error) {
	t, err := jwt.ParseWithClaims(
		token,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.jwtSigningKey, nil
		},
		jwt.WithIssuer(s.jwtIssuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := t.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	return claims, nil
}

// newSession builds an unsaved session for userID with a fresh refresh
// token.
func (s *authServiceImpl) newSession(userID, fingerprint string) (*models.Session, error) {
	sessionUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate session uuid")
		return nil, err
	}

	refreshToken, err := generateRefreshToken()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate refresh token")
		return nil, err
	}

	now := time.Now()
	return &models.Session{
		ID:           sessionUUID.String(),
		UserID:       userID,
		Fingerprint:  fingerprint,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.jwtRefreshTokenTTL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *authServiceImpl) issueTokens(session *models.Session) (*LoginResult, error) {
	accessToken, accessTokenExpiresAt, err := s.generateAccessToken(session.ID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("session_id", session.ID).
			Msg("failed to generate access token")
		return nil, err
	}

	return &LoginResult{
		UserID:                session.UserID,
		SessionID:             session.ID,
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessTokenExpiresAt,
		RefreshToken:          session.RefreshToken,
		RefreshTokenExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *authServiceImpl) generateAccessToken(sessionID string) (string, time.Time, error) {
	tokenUUID, err := uuid.NewRandom()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate id: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.jwtAccessTokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        tokenUUID.String(),
		Issuer:    s.jwtIssuer,
		Subject:   sessionID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	})

	signed, err := token.SignedString(s.jwtSigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func generateRefreshToken() (string, error) {
	const entropy = 32 // 256-bit
	bytes := make([]byte, entropy)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
