package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-live/internal/models"
)

// PostgresStore keeps tasks in the tasks table.
//
// Transactions of a user are serialized by a transaction-scoped advisory
// lock across processes and by an in-process lock that is also held while
// the AfterCommit hooks run, since the advisory lock is gone after commit.
type PostgresStore struct {
	logger zerolog.Logger
	pgPool *pgxpool.Pool
	locks  userLocks
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(
	logger zerolog.Logger,
	pgPool *pgxpool.Pool,
) *PostgresStore {
	return &PostgresStore{
		logger: logger,
		pgPool: pgPool,
	}
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) ListTasks(ctx context.Context, userID string) ([]*models.Task, error) {
	return listTasks(ctx, s.pgPool, userID)
}

func (s *PostgresStore) GetTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	return getTask(ctx, s.pgPool, userID, taskID)
}

func (s *PostgresStore) WithUserTx(ctx context.Context, userID string, fn func(tx Tx) error) error {
	lock := s.locks.get(userID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.pgPool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to begin transaction")
		return translateError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes transactions of the same user until commit or rollback.
	const lockUserQuery = `
SELECT pg_advisory_xact_lock(hashtextextended($1, 0))
`
	_, err = tx.Exec(ctx, lockUserQuery, userID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to acquire user lock")
		return translateError(err)
	}

	pgTx := &postgresTx{tx: tx, userID: userID}
	err = fn(pgTx)
	if err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to commit transaction")
		return translateError(err)
	}

	pgTx.runHooks()
	return nil
}

type postgresTx struct {
	commitHooks
	tx     pgx.Tx
	userID string
}

func (t *postgresTx) ListTasks(ctx context.Context) ([]*models.Task, error) {
	return listTasks(ctx, t.tx, t.userID)
}

func (t *postgresTx) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	return getTask(ctx, t.tx, t.userID, taskID)
}

func (t *postgresTx) MaxOrder(ctx context.Context) (float64, bool, error) {
	const selectMaxOrderQuery = `
SELECT MAX(sort_order)
FROM tasks
WHERE user_id = $1
`
	var maxOrder *float64
	err := t.tx.QueryRow(
		ctx,
		selectMaxOrderQuery,
		t.userID,
	).Scan(&maxOrder)
	if err != nil {
		return 0, false, translateError(err)
	}
	if maxOrder == nil {
		return 0, false, nil
	}
	return *maxOrder, true, nil
}

func (t *postgresTx) InsertTask(ctx context.Context, task *models.Task) error {
	const insertTaskQuery = `
INSERT INTO tasks (id,
                   user_id,
                   content,
                   completed,
                   sort_order,
                   created_at,
                   updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := t.tx.Exec(
		ctx,
		insertTaskQuery,
		task.ID,
		t.userID,
		task.Content,
		task.Completed,
		task.Order,
		task.CreatedAt,
		task.UpdatedAt,
	)
	return translateError(err)
}

func (t *postgresTx) UpdateTask(ctx context.Context, task *models.Task) error {
	const updateTaskQuery = `
UPDATE tasks
SET content = $1,
    completed = $2,
    updated_at = $3
WHERE id = $4 AND user_id = $5
`
	tag, err := t.tx.Exec(
		ctx,
		updateTaskQuery,
		task.Content,
		task.Completed,
		task.UpdatedAt,
		task.ID,
		t.userID,
	)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresTx) SetOrders(ctx context.Context, updates []OrderUpdate, updatedAt time.Time) error {
	if len(updates) == 0 {
		return nil
	}

	const updateOrderQuery = `
UPDATE tasks
SET sort_order = $1,
    updated_at = $2
WHERE id = $3 AND user_id = $4
`
	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(updateOrderQuery, u.Order, updatedAt, u.TaskID, t.userID)
	}

	results := t.tx.SendBatch(ctx, batch)
	for _, u := range updates {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return translateError(err)
		}
		if tag.RowsAffected() == 0 {
			_ = results.Close()
			return fmt.Errorf("%w: task %s is gone", ErrConflict, u.TaskID)
		}
	}
	return translateError(results.Close())
}

func (t *postgresTx) DeleteTask(ctx context.Context, taskID string) error {
	const deleteTaskQuery = `
DELETE FROM tasks
WHERE id = $1 AND user_id = $2
`
	tag, err := t.tx.Exec(
		ctx,
		deleteTaskQuery,
		taskID,
		t.userID,
	)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func listTasks(ctx context.Context, q querier, userID string) ([]*models.Task, error) {
	const selectTasksByUserIDQuery = `
SELECT id,
       user_id,
       content,
       completed,
       sort_order,
       created_at,
       updated_at
FROM tasks
WHERE user_id = $1
ORDER BY sort_order ASC, id ASC
`
	rows, err := q.Query(
		ctx,
		selectTasksByUserIDQuery,
		userID,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	tasks := make([]*models.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, translateError(err)
		}
		tasks = append(tasks, task)
	}

	err = rows.Err()
	if err != nil {
		return nil, translateError(err)
	}
	return tasks, nil
}

func getTask(ctx context.Context, q querier, userID, taskID string) (*models.Task, error) {
	const selectTaskQuery = `
SELECT id,
       user_id,
       content,
       completed,
       sort_order,
       created_at,
       updated_at
FROM tasks
WHERE id = $1 AND user_id = $2
`
	task, err := scanTask(q.QueryRow(
		ctx,
		selectTaskQuery,
		taskID,
		userID,
	))
	if err != nil {
		return nil, translateError(err)
	}
	return task, nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	task := new(models.Task)
	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Content,
		&task.Completed,
		&task.Order,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// translateError maps driver errors onto the package sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.LockNotAvailable,
			pgerrcode.UniqueViolation,
			pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
