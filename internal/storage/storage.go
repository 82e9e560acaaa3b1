// Package storage persists user task lists and the accounts that own them.
//
// Every mutation runs inside a per-user transaction (Store.WithUserTx).
// Transactions of the same user are serialized and a failed transaction
// leaves no partial writes behind. Hooks registered with Tx.AfterCommit
// run before the next transaction of the same user may start, so side
// effects observed in hook order match commit order.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/adanyl0v/go-todo-live/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the transaction could not commit because of a
	// concurrent mutation or a constraint violation. Callers should
	// refetch and retry rather than resend the same input.
	ErrConflict = errors.New("store conflict")
	// ErrUnavailable wraps driver and connectivity failures.
	ErrUnavailable = errors.New("store unavailable")
)

type Store interface {
	// ListTasks returns the user's committed tasks sorted by order, then ID.
	ListTasks(ctx context.Context, userID string) ([]*models.Task, error)

	// GetTask returns ErrNotFound when the task doesn't exist or belongs
	// to another user.
	GetTask(ctx context.Context, userID, taskID string) (*models.Task, error)

	// WithUserTx runs fn in a transaction scoped to userID. Writes made
	// through tx are committed only if fn returns nil; otherwise fn's
	// error is returned unchanged and nothing is persisted.
	//
	// After a successful commit the AfterCommit hooks run in registration
	// order while the user is still locked.
	WithUserTx(ctx context.Context, userID string, fn func(tx Tx) error) error
}

// Tx is a transaction over a single user's tasks.
type Tx interface {
	ListTasks(ctx context.Context) ([]*models.Task, error)
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	// MaxOrder returns false when the user has no tasks.
	MaxOrder(ctx context.Context) (float64, bool, error)
	InsertTask(ctx context.Context, task *models.Task) error
	// UpdateTask writes content, completion and updated_at. Order is
	// left untouched.
	UpdateTask(ctx context.Context, task *models.Task) error
	// SetOrders writes every update or none of them. A missing task
	// yields ErrConflict.
	SetOrders(ctx context.Context, updates []OrderUpdate, updatedAt time.Time) error
	DeleteTask(ctx context.Context, taskID string) error
	// AfterCommit registers fn to run once the transaction has committed.
	// It never runs for a rolled back transaction.
	AfterCommit(fn func())
}

type OrderUpdate struct {
	TaskID string
	Order  float64
}
