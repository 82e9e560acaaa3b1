package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/adanyl0v/go-todo-live/internal/models"
)

// MemoryStore keeps tasks in process memory.
// Transactions work on a private copy of the user's tasks that replaces the
// committed copy only when the transaction succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]map[string]models.Task
	locks userLocks
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]map[string]models.Task),
	}
}

func (s *MemoryStore) ListTasks(ctx context.Context, userID string) ([]*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedTasks(s.users[userID]), nil
}

func (s *MemoryStore) GetTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.users[userID][taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return &task, nil
}

func (s *MemoryStore) WithUserTx(ctx context.Context, userID string, fn func(tx Tx) error) error {
	lock := s.locks.get(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.RLock()
	working := make(map[string]models.Task, len(s.users[userID]))
	for id, task := range s.users[userID] {
		working[id] = task
	}
	s.mu.RUnlock()

	tx := &memoryTx{userID: userID, tasks: working}
	err := fn(tx)
	if err != nil {
		return err
	}

	if err = ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	s.users[userID] = tx.tasks
	s.mu.Unlock()

	tx.runHooks()
	return nil
}

type memoryTx struct {
	commitHooks
	userID string
	tasks  map[string]models.Task
}

func (t *memoryTx) ListTasks(context.Context) ([]*models.Task, error) {
	return sortedTasks(t.tasks), nil
}

func (t *memoryTx) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	task, ok := t.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return &task, nil
}

func (t *memoryTx) MaxOrder(context.Context) (float64, bool, error) {
	var (
		maxOrder float64
		found    bool
	)
	for _, task := range t.tasks {
		if !found || task.Order > maxOrder {
			maxOrder = task.Order
			found = true
		}
	}
	return maxOrder, found, nil
}

func (t *memoryTx) InsertTask(_ context.Context, task *models.Task) error {
	if task.UserID != t.userID {
		return fmt.Errorf("%w: task belongs to another user", ErrConflict)
	}
	if _, exists := t.tasks[task.ID]; exists {
		return fmt.Errorf("%w: duplicate task id %s", ErrConflict, task.ID)
	}
	t.tasks[task.ID] = *task
	return nil
}

func (t *memoryTx) UpdateTask(_ context.Context, task *models.Task) error {
	stored, ok := t.tasks[task.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Content = task.Content
	stored.Completed = task.Completed
	stored.UpdatedAt = task.UpdatedAt
	t.tasks[task.ID] = stored
	return nil
}

func (t *memoryTx) SetOrders(_ context.Context, updates []OrderUpdate, updatedAt time.Time) error {
	for _, u := range updates {
		if _, ok := t.tasks[u.TaskID]; !ok {
			return fmt.Errorf("%w: task %s is gone", ErrConflict, u.TaskID)
		}
	}
	for _, u := range updates {
		task := t.tasks[u.TaskID]
		task.Order = u.Order
		task.UpdatedAt = updatedAt
		t.tasks[u.TaskID] = task
	}
	return nil
}

func (t *memoryTx) DeleteTask(_ context.Context, taskID string) error {
	if _, ok := t.tasks[taskID]; !ok {
		return ErrNotFound
	}
	delete(t.tasks, taskID)
	return nil
}

func sortedTasks(tasks map[string]models.Task) []*models.Task {
	result := make([]*models.Task, 0, len(tasks))
	for _, task := range tasks {
		task := task
		result = append(result, &task)
	}
	slices.SortFunc(result, func(a, b *models.Task) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
	return result
}
