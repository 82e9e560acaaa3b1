package services

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-live/internal/models"
	"github.com/adanyl0v/go-todo-live/internal/ordering"
	"github.com/adanyl0v/go-todo-live/internal/realtime"
	"github.com/adanyl0v/go-todo-live/internal/storage"
)

type OrderingStrategy string

const (
	// OrderingStrategyRenumber rewrites every order of the list to
	// gap, 2*gap, ... on each reorder.
	OrderingStrategyRenumber OrderingStrategy = "renumber"
	// OrderingStrategySparse writes a single midpoint key and only
	// renumbers once the gap around the target has collapsed.
	OrderingStrategySparse OrderingStrategy = "sparse"
)

type taskServiceImpl struct {
	logger    zerolog.Logger
	store     storage.Store
	publisher Publisher
	keySpace  ordering.KeySpace
	strategy  OrderingStrategy
}

func NewTaskService(
	logger zerolog.Logger,
	store storage.Store,
	publisher Publisher,
	keySpace ordering.KeySpace,
	strategy OrderingStrategy,
) TaskService {
	if strategy != OrderingStrategySparse {
		strategy = OrderingStrategyRenumber
	}
	return &taskServiceImpl{
		logger:    logger,
		store:     store,
		publisher: publisher,
		keySpace:  keySpace,
		strategy:  strategy,
	}
}

func (s *taskServiceImpl) CreateTask(ctx context.Context, params CreateTaskParams) (*models.Task, error) {
	if !isValidContent(params.Content) {
		return nil, ErrInvalidTaskContent
	}

	taskUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate task uuid")
		return nil, err
	}

	now := time.Now()
	task := &models.Task{
		ID:        taskUUID.String(),
		UserID:    params.UserID,
		Content:   params.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.WithUserTx(ctx, params.UserID, func(tx storage.Tx) error {
		maxOrder, ok, err := tx.MaxOrder(ctx)
		if err != nil {
			return err
		}
		task.Order = s.keySpace.KeyForAppend(maxOrder, ok)
		err = tx.InsertTask(ctx, task)
		if err != nil {
			return err
		}
		tx.AfterCommit(func() {
			s.publisher.Publish(params.UserID, realtime.NewTaskCreatedEvent(task))
		})
		return nil
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", params.UserID).
			Msg("failed to insert task")
		return nil, err
	}
	s.logger.Debug().
		Str("task_id", task.ID).
		Float64("order", task.Order).
		Msg("inserted task")

	s.logger.Info().
		Str("task_id", task.ID).
		Str("user_id", task.UserID).
		Msg("created task")
	return task, nil
}

func (s *taskServiceImpl) GetTasks(ctx context.Context, userID string) ([]*models.Task, error) {
	tasks, err := s.store.ListTasks(ctx, userID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to select tasks by user id")
		return nil, err
	}
	s.logger.Debug().
		Int("count", len(tasks)).
		Str("user_id", userID).
		Msg("selected tasks by user id")
	return tasks, nil
}

func (s *taskServiceImpl) FindTasks(ctx context.Context, params FindTasksParams) ([]*models.Task, error) {
	tasks, err := s.GetTasks(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(params.Search))
	return slices.DeleteFunc(tasks, func(task *models.Task) bool {
		if params.Completed != nil && task.Completed != *params.Completed {
			return true
		}
		return search != "" && !strings.Contains(strings.ToLower(task.Content), search)
	}), nil
}

func (s *taskServiceImpl) GetTaskStatistics(ctx context.Context, userID string) (*TaskStatistics, error) {
	tasks, err := s.GetTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &TaskStatistics{Total: len(tasks)}
	for _, task := range tasks {
		if task.Completed {
			stats.Completed++
		}
	}
	stats.Active = stats.Total - stats.Completed
	return stats, nil
}

func (s *taskServiceImpl) GetTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, userID, taskID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Str("user_id", userID).
			Msg("failed to select task")
		return nil, err
	}
	return task, nil
}

func (s *taskServiceImpl) UpdateTask(ctx context.Context, params UpdateTaskParams) (*models.Task, error) {
	if params.Content == nil && params.Completed == nil {
		return nil, ErrEmptyTaskUpdate
	}
	if params.Content != nil && !isValidContent(*params.Content) {
		return nil, ErrInvalidTaskContent
	}

	var task *models.Task
	err := s.store.WithUserTx(ctx, params.UserID, func(tx storage.Tx) error {
		var err error
		task, err = tx.GetTask(ctx, params.ID)
		if err != nil {
			return err
		}

		if params.Content != nil {
			task.Content = *params.Content
		}
		if params.Completed != nil {
			task.Completed = *params.Completed
		}
		task.UpdatedAt = time.Now()
		err = tx.UpdateTask(ctx, task)
		if err != nil {
			return err
		}
		tx.AfterCommit(func() {
			s.publisher.Publish(params.UserID, realtime.NewTaskUpdatedEvent(task))
		})
		return nil
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", params.ID).
			Str("user_id", params.UserID).
			Msg("failed to update task")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("user_id", task.UserID).
		Msg("updated task")
	return task, nil
}

func (s *taskServiceImpl) DeleteTask(ctx context.Context, params DeleteTaskParams) error {
	err := s.store.WithUserTx(ctx, params.UserID, func(tx storage.Tx) error {
		err := tx.DeleteTask(ctx, params.ID)
		if err != nil {
			return err
		}
		tx.AfterCommit(func() {
			s.publisher.Publish(params.UserID, realtime.NewTaskDeletedEvent(params.ID))
		})
		return nil
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", params.ID).
			Str("user_id", params.UserID).
			Msg("failed to delete task")
		return err
	}

	s.logger.Info().
		Str("task_id", params.ID).
		Str("user_id", params.UserID).
		Msg("deleted task")
	return nil
}

func (s *taskServiceImpl) ReorderTask(ctx context.Context, params ReorderTaskParams) ([]*models.Task, error) {
	if math.IsNaN(params.NewOrder) || math.IsInf(params.NewOrder, 0) {
		return nil, ErrInvalidTaskOrder
	}

	var (
		reordered  []*models.Task
		renumbered bool
	)
	err := s.store.WithUserTx(ctx, params.UserID, func(tx storage.Tx) error {
		tasks, err := tx.ListTasks(ctx)
		if err != nil {
			return err
		}

		from := slices.IndexFunc(tasks, func(task *models.Task) bool {
			return task.ID == params.TaskID
		})
		if from < 0 {
			return ErrTaskNotFound
		}
		moved := tasks[from]
		rest := slices.Delete(slices.Clone(tasks), from, from+1)

		restOrders := make([]float64, len(rest))
		for i, task := range rest {
			restOrders[i] = task.Order
		}
		to := ordering.InsertionIndex(restOrders, params.NewOrder)
		reordered = slices.Insert(rest, to, moved)

		var updates []storage.OrderUpdate
		updates, renumbered = s.assignOrders(reordered, restOrders, to)

		now := time.Now()
		err = tx.SetOrders(ctx, updates, now)
		if err != nil {
			return err
		}

		byID := make(map[string]float64, len(updates))
		for _, u := range updates {
			byID[u.TaskID] = u.Order
		}
		for _, task := range reordered {
			if order, ok := byID[task.ID]; ok {
				task.Order = order
				task.UpdatedAt = now
			}
		}

		// Published before the user is unlocked, so a later reorder can
		// never be overtaken by this list.
		tx.AfterCommit(func() {
			s.publisher.Publish(params.UserID, realtime.NewTaskReorderedEvent(reordered))
		})
		return nil
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", params.TaskID).
			Str("user_id", params.UserID).
			Msg("failed to reorder task")
		return nil, err
	}
	s.logger.Debug().
		Str("task_id", params.TaskID).
		Float64("requested_order", params.NewOrder).
		Bool("renumbered", renumbered).
		Int("count", len(reordered)).
		Msg("reordered tasks")

	s.logger.Info().
		Str("task_id", params.TaskID).
		Str("user_id", params.UserID).
		Msg("reordered task")
	return reordered, nil
}

// assignOrders computes the orders to persist for a list in which the
// moved task already sits at index to. restOrders are the orders of the
// other tasks. It reports whether the whole list was renumbered.
func (s *taskServiceImpl) assignOrders(
	reordered []*models.Task,
	restOrders []float64,
	to int,
) ([]storage.OrderUpdate, bool) {
	if s.strategy == OrderingStrategySparse {
		key, err := s.keySpace.KeyForMove(restOrders, to)
		if err == nil {
			return []storage.OrderUpdate{{TaskID: reordered[to].ID, Order: key}}, false
		}
		if !errors.Is(err, ordering.ErrPrecisionCollapse) {
			s.logger.Warn().
				Err(err).
				Int("index", to).
				Msg("unexpected key computation failure, renumbering")
		} else {
			s.logger.Debug().
				Int("index", to).
				Msg("order keys collapsed, renumbering")
		}
	}

	orders := s.keySpace.Renumber(len(reordered))
	updates := make([]storage.OrderUpdate, 0, len(reordered))
	for i, task := range reordered {
		if task.Order != orders[i] {
			updates = append(updates, storage.OrderUpdate{TaskID: task.ID, Order: orders[i]})
		}
	}
	return updates, true
}

func isValidContent(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	return utf8.RuneCountInString(content) <= MaxTaskContentLength
}
