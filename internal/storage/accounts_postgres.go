package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-live/internal/models"
)

type PostgresAccountStore struct {
	logger zerolog.Logger
	pgPool *pgxpool.Pool
}

var _ AccountStore = (*PostgresAccountStore)(nil)

func NewPostgresAccountStore(
	logger zerolog.Logger,
	pgPool *pgxpool.Pool,
) *PostgresAccountStore {
	return &PostgresAccountStore{
		logger: logger,
		pgPool: pgPool,
	}
}

func (s *PostgresAccountStore) CreateUser(ctx context.Context, user *models.User, session *models.Session) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		const insertUserQuery = `
INSERT INTO users (id,
                   email,
                   password,
                   created_at,
                   updated_at)
VALUES ($1, $2, $3, $4, $5)
`
		_, err := tx.Exec(
			ctx,
			insertUserQuery,
			user.ID,
			user.Email,
			user.Password,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			return translateError(err)
		}
		return insertSession(ctx, tx, session)
	})
}

func (s *PostgresAccountStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{Email: email}

	const selectUserByEmailQuery = `
SELECT id,
       password,
       created_at,
       updated_at
FROM users
WHERE email = $1
`
	err := s.pgPool.QueryRow(
		ctx,
		selectUserByEmailQuery,
		email,
	).Scan(
		&user.ID,
		&user.Password,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

func (s *PostgresAccountStore) UserByID(ctx context.Context, userID string) (*models.User, error) {
	user := &models.User{ID: userID}

	const selectUserByIDQuery = `
SELECT email,
       password,
       created_at,
       updated_at
FROM users
WHERE id = $1
`
	err := s.pgPool.QueryRow(
		ctx,
		selectUserByIDQuery,
		userID,
	).Scan(
		&user.Email,
		&user.Password,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

func (s *PostgresAccountStore) ReplaceSessions(ctx context.Context, session *models.Session) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deleteSessionsByUserIDQuery, session.UserID)
		if err != nil {
			return translateError(err)
		}
		s.logger.Debug().
			Str("user_id", session.UserID).
			Int64("affected", tag.RowsAffected()).
			Msg("deleted sessions by user id")

		return insertSession(ctx, tx, session)
	})
}

func (s *PostgresAccountStore) SessionByID(ctx context.Context, sessionID string) (*models.Session, error) {
	const selectSessionByIDQuery = `
SELECT id,
       user_id,
       fingerprint,
       refresh_token,
       expires_at,
       created_at,
       updated_at
FROM sessions
WHERE id = $1
`
	return scanSession(s.pgPool.QueryRow(ctx, selectSessionByIDQuery, sessionID))
}

func (s *PostgresAccountStore) SessionByRefreshToken(
	ctx context.Context,
	refreshToken string,
	fingerprint string,
) (*models.Session, error) {
	const selectSessionByRefreshTokenQuery = `
SELECT id,
       user_id,
       fingerprint,
       refresh_token,
       expires_at,
       created_at,
       updated_at
FROM sessions
WHERE refresh_token = $1 AND
      fingerprint = $2
`
	return scanSession(s.pgPool.QueryRow(
		ctx,
		selectSessionByRefreshTokenQuery,
		refreshToken,
		fingerprint,
	))
}

func (s *PostgresAccountStore) RotateSession(ctx context.Context, session *models.Session, previousToken string) error {
	const updateSessionQuery = `
UPDATE sessions
SET refresh_token = $1,
    expires_at = $2,
    updated_at = $3
WHERE id = $4 AND
      refresh_token = $5
`
	tag, err := s.pgPool.Exec(
		ctx,
		updateSessionQuery,
		session.RefreshToken,
		session.ExpiresAt,
		session.UpdatedAt,
		session.ID,
		previousToken,
	)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresAccountStore) DeleteSessions(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pgPool.Exec(ctx, deleteSessionsByUserIDQuery, userID)
	if err != nil {
		return 0, translateError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresAccountStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pgPool.Begin(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to begin transaction")
		return translateError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = fn(tx)
	if err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to commit transaction")
		return translateError(err)
	}
	return nil
}

const deleteSessionsByUserIDQuery = `
DELETE FROM sessions
WHERE user_id = $1
`

func insertSession(ctx context.Context, tx pgx.Tx, session *models.Session) error {
	const insertSessionQuery = `
INSERT INTO sessions (id,
                      user_id,
                      fingerprint,
                      refresh_token,
                      expires_at,
                      created_at,
                      updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := tx.Exec(
		ctx,
		insertSessionQuery,
		session.ID,
		session.UserID,
		session.Fingerprint,
		session.RefreshToken,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	return translateError(err)
}

func scanSession(row pgx.Row) (*models.Session, error) {
	session := new(models.Session)
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Fingerprint,
		&session.RefreshToken,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return session, nil
}
