package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adanyl0v/go-todo-live/internal/models"
	"github.com/adanyl0v/go-todo-live/internal/realtime"
	"github.com/adanyl0v/go-todo-live/internal/storage"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrUserPasswordMismatch = errors.New("user password mismatch")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExpired       = errors.New("session expired")
	ErrFingerprintMismatch  = errors.New("session fingerprint mismatch")
	ErrInvalidToken         = errors.New("invalid token")
)

// Task store failures are passed through unchanged, so these are the
// storage sentinels under the names callers of this package use.
var (
	ErrTaskNotFound     = storage.ErrNotFound
	ErrTaskConflict     = storage.ErrConflict
	ErrStoreUnavailable = storage.ErrUnavailable
)

var (
	ErrInvalidTaskContent = errors.New("task content must be 1 to 500 characters")
	ErrEmptyTaskUpdate    = errors.New("no task fields to update")
	ErrInvalidTaskOrder   = errors.New("task order must be a finite number")
)

const MaxTaskContentLength = 500

type AuthService interface {
	// Login authenticates the user by email and password.
	//
	// It deletes all sessions with the same user ID and creates
	// a new session and generates a new JWT token pair.
	//
	// It returns ErrUserNotFound if the user with the given
	// email doesn't exist or ErrUserPasswordMismatch if the
	// given password doesn't match the user's password.
	Login(ctx context.Context, params LoginParams) (*LoginResult, error)

	// Refresh updates the session with the given refresh token.
	//
	// It returns ErrSessionNotFound if the session with the
	// given refresh token doesn't exist or ErrSessionExpired
	// if the session is expired.
	Refresh(ctx context.Context, params RefreshParams) (*LoginResult, error)

	// Register a user with the given email and password.
	//
	// It returns ErrUserAlreadyExists if the user
	// with the given email already exists.
	Register(ctx context.Context, params LoginParams) (*LoginResult, error)

	// Logout invalidates all sessions with the given user ID.
	Logout(ctx context.Context, userID string) error

	// Authenticate resolves an access token to its live session.
	//
	// It returns a jwt.ErrTokenExpired wrapped error for expired
	// tokens so HTTP callers can fall back to a refresh, and
	// ErrFingerprintMismatch when the session was opened from
	// another client.
	Authenticate(ctx context.Context, params AuthenticateParams) (*models.Session, error)

	GetUser(ctx context.Context, userID string) (*models.User, error)

	// ParseJWTToken parses the given JWT token and returns the registered
	// claims. Every failure wraps ErrInvalidToken, and expired tokens
	// also wrap jwt.ErrTokenExpired.
	ParseJWTToken(token string) (*jwt.RegisteredClaims, error)
}

// TaskService is the single entry point for task mutations.
//
// Every successful mutation is announced to the owner's live connections
// after it commits and in commit order; a failed one is never announced.
// REST and realtime handlers both call it, so they cannot diverge.
type TaskService interface {
	CreateTask(ctx context.Context, params CreateTaskParams) (*models.Task, error)
	GetTasks(ctx context.Context, userID string) ([]*models.Task, error)

	// FindTasks returns the user's tasks that match params, keeping
	// list order.
	FindTasks(ctx context.Context, params FindTasksParams) ([]*models.Task, error)

	GetTask(ctx context.Context, userID, taskID string) (*models.Task, error)
	GetTaskStatistics(ctx context.Context, userID string) (*TaskStatistics, error)
	UpdateTask(ctx context.Context, params UpdateTaskParams) (*models.Task, error)
	DeleteTask(ctx context.Context, params DeleteTaskParams) error

	// ReorderTask moves a task to the position implied by NewOrder and
	// returns the user's full list in its new order.
	//
	// NewOrder only selects the target position: the task lands
	// before the first other task whose order is >= NewOrder. The
	// persisted orders are recomputed by the server.
	ReorderTask(ctx context.Context, params ReorderTaskParams) ([]*models.Task, error)
}

// Publisher receives events for a user's live connections.
// It is implemented by *realtime.Hub.
type Publisher interface {
	Publish(userID string, event realtime.Event)
}

type LoginParams struct {
	Email       string
	Password    string
	Fingerprint string
}

type LoginResult struct {
	UserID                string
	SessionID             string
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

type RefreshParams struct {
	RefreshToken string
	Fingerprint  string
}

type AuthenticateParams struct {
	AccessToken string
	Fingerprint string
}

// FindTasksParams narrows a user's list. Zero fields match every task.
type FindTasksParams struct {
	UserID    string
	Completed *bool
	// Search matches the content case-insensitively.
	Search string
}

type TaskStatistics struct {
	Total     int
	Completed int
	Active    int
}

type CreateTaskParams struct {
	UserID  string
	Content string
}

// UpdateTaskParams only carries the fields a client may change.
// Nil fields are left as they are.
type UpdateTaskParams struct {
	ID        string
	UserID    string
	Content   *string
	Completed *bool
}

type DeleteTaskParams struct {
	ID     string
	UserID string
}

type ReorderTaskParams struct {
	UserID   string
	TaskID   string
	NewOrder float64
}
