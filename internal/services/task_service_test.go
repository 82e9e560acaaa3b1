package services

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adanyl0v/go-todo-live/internal/models"
	"github.com/adanyl0v/go-todo-live/internal/ordering"
	"github.com/adanyl0v/go-todo-live/internal/realtime"
	"github.com/adanyl0v/go-todo-live/internal/storage"
)

type published struct {
	userID string
	event  realtime.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(userID string, event realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{userID: userID, event: event})
}

func (p *recordingPublisher) kinds() []realtime.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]realtime.EventKind, len(p.events))
	for i, e := range p.events {
		kinds[i] = e.event.Kind
	}
	return kinds
}

func (p *recordingPublisher) last() published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

// gatedPublisher holds the first reordered event until release is closed.
type gatedPublisher struct {
	recordingPublisher
	once    sync.Once
	held    chan struct{}
	release chan struct{}
}

func (p *gatedPublisher) Publish(userID string, event realtime.Event) {
	if event.Kind == realtime.EventTaskReordered {
		first := false
		p.once.Do(func() { first = true })
		if first {
			close(p.held)
			<-p.release
		}
	}
	p.recordingPublisher.Publish(userID, event)
}

// failingStore runs transactions to completion and then refuses to commit.
type failingStore struct {
	*storage.MemoryStore
	err error
}

func (s *failingStore) WithUserTx(ctx context.Context, userID string, fn func(tx storage.Tx) error) error {
	return s.MemoryStore.WithUserTx(ctx, userID, func(tx storage.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return s.err
	})
}

type fixture struct {
	store     *storage.MemoryStore
	publisher *recordingPublisher
	service   TaskService
}

func newFixture(strategy OrderingStrategy) *fixture {
	store := storage.NewMemoryStore()
	publisher := &recordingPublisher{}
	return &fixture{
		store:     store,
		publisher: publisher,
		service: NewTaskService(
			zerolog.Nop(),
			store,
			publisher,
			ordering.NewKeySpace(ordering.DefaultGap),
			strategy,
		),
	}
}

func (f *fixture) create(t *testing.T, userID string, contents ...string) []*models.Task {
	t.Helper()
	tasks := make([]*models.Task, len(contents))
	for i, content := range contents {
		task, err := f.service.CreateTask(context.Background(), CreateTaskParams{
			UserID:  userID,
			Content: content,
		})
		require.NoError(t, err)
		tasks[i] = task
	}
	return tasks
}

func (f *fixture) list(t *testing.T, userID string) []*models.Task {
	t.Helper()
	tasks, err := f.service.GetTasks(context.Background(), userID)
	require.NoError(t, err)
	return tasks
}

func contents(tasks []*models.Task) []string {
	result := make([]string, len(tasks))
	for i, task := range tasks {
		result[i] = task.Content
	}
	return result
}

func orders(tasks []*models.Task) []float64 {
	result := make([]float64, len(tasks))
	for i, task := range tasks {
		result[i] = task.Order
	}
	return result
}

func TestCreateTaskAppendsWithGap(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	f.create(t, "u1", "A", "B", "C")

	tasks := f.list(t, "u1")
	assert.Equal(t, []string{"A", "B", "C"}, contents(tasks))
	assert.Equal(t, []float64{1000, 2000, 3000}, orders(tasks))

	assert.Equal(t, []realtime.EventKind{
		realtime.EventTaskCreated,
		realtime.EventTaskCreated,
		realtime.EventTaskCreated,
	}, f.publisher.kinds())
	assert.Equal(t, "u1", f.publisher.last().userID)
}

func TestCreateTaskValidatesContent(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	ctx := context.Background()

	for _, content := range []string{"", "   ", strings.Repeat("x", MaxTaskContentLength+1)} {
		_, err := f.service.CreateTask(ctx, CreateTaskParams{UserID: "u1", Content: content})
		assert.ErrorIs(t, err, ErrInvalidTaskContent)
	}

	_, err := f.service.CreateTask(ctx, CreateTaskParams{
		UserID:  "u1",
		Content: strings.Repeat("é", MaxTaskContentLength),
	})
	assert.NoError(t, err)
}

func TestCreateTaskAppendsAfterSparseKeys(t *testing.T) {
	f := newFixture(OrderingStrategySparse)
	created := f.create(t, "u1", "A", "B")

	_, err := f.service.ReorderTask(context.Background(), ReorderTaskParams{
		UserID:   "u1",
		TaskID:   created[1].ID,
		NewOrder: 1,
	})
	require.NoError(t, err)

	f.create(t, "u1", "C")
	tasks := f.list(t, "u1")
	assert.Equal(t, []string{"B", "A", "C"}, contents(tasks))
	assert.Equal(t, []float64{500, 1000, 2000}, orders(tasks))
}

func TestReorderEndToEnd(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	created := f.create(t, "u1", "A", "B", "C")

	tasks, err := f.service.ReorderTask(context.Background(), ReorderTaskParams{
		UserID:   "u1",
		TaskID:   created[2].ID,
		NewOrder: 1500,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C", "B"}, contents(tasks))
	assert.Equal(t, []float64{1000, 2000, 3000}, orders(tasks))
	assert.Equal(t, contents(tasks), contents(f.list(t, "u1")))
	assert.Equal(t, orders(tasks), orders(f.list(t, "u1")))

	last := f.publisher.last()
	require.Equal(t, realtime.EventTaskReordered, last.event.Kind)
	data, ok := last.event.Data.(realtime.TaskListData)
	require.True(t, ok)
	require.Len(t, data.Tasks, 3)
	assert.Equal(t, "C", data.Tasks[1].Content)
	assert.Equal(t, 2000.0, data.Tasks[1].Order)
}

func TestReorderTieGoesBeforeEqualKey(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	created := f.create(t, "u1", "A", "B", "C")

	tasks, err := f.service.ReorderTask(context.Background(), ReorderTaskParams{
		UserID:   "u1",
		TaskID:   created[0].ID,
		NewOrder: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, contents(tasks))
}

func TestReorderToOwnPositionKeepsPermutation(t *testing.T) {
	for _, strategy := range []OrderingStrategy{OrderingStrategyRenumber, OrderingStrategySparse} {
		t.Run(string(strategy), func(t *testing.T) {
			f := newFixture(strategy)
			f.create(t, "u1", "A", "B", "C", "D")

			for _, task := range f.list(t, "u1") {
				before := contents(f.list(t, "u1"))
				current := f.list(t, "u1")
				var order float64
				for _, c := range current {
					if c.ID == task.ID {
						order = c.Order
					}
				}

				_, err := f.service.ReorderTask(context.Background(), ReorderTaskParams{
					UserID:   "u1",
					TaskID:   task.ID,
					NewOrder: order,
				})
				require.NoError(t, err)
				assert.Equal(t, before, contents(f.list(t, "u1")))
			}
		})
	}
}

func TestReorderRandomSequenceMatchesRequestedPosition(t *testing.T) {
	for _, strategy := range []OrderingStrategy{OrderingStrategyRenumber, OrderingStrategySparse} {
		t.Run(string(strategy), func(t *testing.T) {
			f := newFixture(strategy)
			f.create(t, "u1", "A", "B", "C", "D", "E", "F", "G", "H")
			rng := rand.New(rand.NewSource(42))

			for i := 0; i < 200; i++ {
				current := f.list(t, "u1")
				moved := current[rng.Intn(len(current))]
				desired := rng.Float64() * 10000

				var rest []*models.Task
				for _, task := range current {
					if task.ID != moved.ID {
						rest = append(rest, task)
					}
				}
				at := ordering.InsertionIndex(orders(rest), desired)
				want := append([]string{}, contents(rest[:at])...)
				want = append(want, moved.Content)
				want = append(want, contents(rest[at:])...)

				got, err := f.service.ReorderTask(context.Background(), ReorderTaskParams{
					UserID:   "u1",
					TaskID:   moved.ID,
					NewOrder: desired,
				})
				require.NoError(t, err)
				require.Equal(t, want, contents(got))
				require.Equal(t, want, contents(f.list(t, "u1")))
				require.True(t, ordering.IsStrictlyIncreasing(orders(f.list(t, "u1"))))

				if strategy == OrderingStrategyRenumber {
					require.Equal(t, []float64{1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000}, orders(got))
				}
			}
		})
	}
}

func TestRepeatedInsertAfterHeadNeverCollapses(t *testing.T) {
	for _, strategy := range []OrderingStrategy{OrderingStrategyRenumber, OrderingStrategySparse} {
		t.Run(string(strategy), func(t *testing.T) {
			f := newFixture(strategy)
			ctx := context.Background()
			f.create(t, "u1", "head", "tail")

			for i := 0; i < 60; i++ {
				created := f.create(t, "u1", "new")[0]
				current := f.list(t, "u1")

				_, err := f.service.ReorderTask(ctx, ReorderTaskParams{
					UserID:   "u1",
					TaskID:   created.ID,
					NewOrder: current[0].Order + (current[1].Order-current[0].Order)/2,
				})
				require.NoError(t, err)

				after := f.list(t, "u1")
				require.Equal(t, "head", after[0].Content)
				require.Equal(t, created.ID, after[1].ID)
				require.True(t, ordering.IsStrictlyIncreasing(orders(after)),
					"orders must stay strictly increasing, got %v", orders(after))
			}

			tasks := f.list(t, "u1")
			assert.Len(t, tasks, 62)
			assert.Equal(t, "tail", tasks[len(tasks)-1].Content)
			// The sparse strategy must have renumbered at least once,
			// otherwise the gap would be far below 1.
			assert.Greater(t, tasks[1].Order-tasks[0].Order, 1.0)
		})
	}
}

func TestReorderNotFound(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	ctx := context.Background()
	created := f.create(t, "u1", "A")
	eventsBefore := len(f.publisher.kinds())

	_, err := f.service.ReorderTask(ctx, ReorderTaskParams{UserID: "u1", TaskID: "missing", NewOrder: 1})
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = f.service.ReorderTask(ctx, ReorderTaskParams{UserID: "u2", TaskID: created[0].ID, NewOrder: 1})
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.Len(t, f.publisher.kinds(), eventsBefore)
}

func TestReorderRejectsNonFiniteOrder(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	created := f.create(t, "u1", "A")

	for _, order := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := f.service.ReorderTask(context.Background(), ReorderTaskParams{
			UserID:   "u1",
			TaskID:   created[0].ID,
			NewOrder: order,
		})
		assert.ErrorIs(t, err, ErrInvalidTaskOrder)
	}
}

func TestFailedCommitPublishesNothing(t *testing.T) {
	memory := storage.NewMemoryStore()
	publisher := &recordingPublisher{}
	healthy := NewTaskService(zerolog.Nop(), memory, publisher, ordering.NewKeySpace(1000), OrderingStrategyRenumber)

	var created []*models.Task
	for _, content := range []string{"A", "B", "C"} {
		task, err := healthy.CreateTask(context.Background(), CreateTaskParams{UserID: "u1", Content: content})
		require.NoError(t, err)
		created = append(created, task)
	}
	eventsBefore := len(publisher.kinds())

	conflict := errors.Join(storage.ErrConflict, errors.New("could not serialize access"))
	broken := NewTaskService(
		zerolog.Nop(),
		&failingStore{MemoryStore: memory, err: conflict},
		publisher,
		ordering.NewKeySpace(1000),
		OrderingStrategyRenumber,
	)
	ctx := context.Background()

	_, err := broken.ReorderTask(ctx, ReorderTaskParams{UserID: "u1", TaskID: created[2].ID, NewOrder: 0})
	assert.ErrorIs(t, err, ErrTaskConflict)

	_, err = broken.CreateTask(ctx, CreateTaskParams{UserID: "u1", Content: "D"})
	assert.ErrorIs(t, err, ErrTaskConflict)

	content := "changed"
	_, err = broken.UpdateTask(ctx, UpdateTaskParams{ID: created[0].ID, UserID: "u1", Content: &content})
	assert.ErrorIs(t, err, ErrTaskConflict)

	err = broken.DeleteTask(ctx, DeleteTaskParams{ID: created[1].ID, UserID: "u1"})
	assert.ErrorIs(t, err, ErrTaskConflict)

	assert.Len(t, publisher.kinds(), eventsBefore)

	tasks, err := healthy.GetTasks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, contents(tasks))
	assert.Equal(t, []float64{1000, 2000, 3000}, orders(tasks))
}

func TestConcurrentReordersApplyInSomeSerialOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(OrderingStrategyRenumber)
		created := f.create(t, "u1", "A", "B", "C", "D")
		ctx := context.Background()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.service.ReorderTask(ctx, ReorderTaskParams{UserID: "u1", TaskID: created[3].ID, NewOrder: 1500})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.service.ReorderTask(ctx, ReorderTaskParams{UserID: "u1", TaskID: created[2].ID, NewOrder: 500})
			assert.NoError(t, err)
		}()
		wg.Wait()

		final := f.list(t, "u1")
		assert.Contains(t, [][]string{
			{"C", "A", "D", "B"},
			{"C", "D", "A", "B"},
		}, contents(final))
		assert.Equal(t, []float64{1000, 2000, 3000, 4000}, orders(final))
	}
}

func TestUpdateTaskLeavesOrderAlone(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	ctx := context.Background()
	created := f.create(t, "u1", "A", "B")

	completed := true
	task, err := f.service.UpdateTask(ctx, UpdateTaskParams{
		ID:        created[1].ID,
		UserID:    "u1",
		Completed: &completed,
	})
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.Equal(t, "B", task.Content)
	assert.Equal(t, 2000.0, task.Order)
	assert.Equal(t, realtime.EventTaskUpdated, f.publisher.last().event.Kind)

	content := "B2"
	task, err = f.service.UpdateTask(ctx, UpdateTaskParams{
		ID:      created[1].ID,
		UserID:  "u1",
		Content: &content,
	})
	require.NoError(t, err)
	assert.Equal(t, "B2", task.Content)
	assert.True(t, task.Completed)
	assert.Equal(t, 2000.0, task.Order)
}

func TestUpdateTaskErrors(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	ctx := context.Background()
	created := f.create(t, "u1", "A")

	_, err := f.service.UpdateTask(ctx, UpdateTaskParams{ID: created[0].ID, UserID: "u1"})
	assert.ErrorIs(t, err, ErrEmptyTaskUpdate)

	empty := ""
	_, err = f.service.UpdateTask(ctx, UpdateTaskParams{ID: created[0].ID, UserID: "u1", Content: &empty})
	assert.ErrorIs(t, err, ErrInvalidTaskContent)

	content := "x"
	_, err = f.service.UpdateTask(ctx, UpdateTaskParams{ID: created[0].ID, UserID: "u2", Content: &content})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestDeleteTaskDoesNotRenumber(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	ctx := context.Background()
	created := f.create(t, "u1", "A", "B", "C")

	err := f.service.DeleteTask(ctx, DeleteTaskParams{ID: created[1].ID, UserID: "u1"})
	require.NoError(t, err)

	tasks := f.list(t, "u1")
	assert.Equal(t, []string{"A", "C"}, contents(tasks))
	assert.Equal(t, []float64{1000, 3000}, orders(tasks))

	last := f.publisher.last()
	assert.Equal(t, realtime.EventTaskDeleted, last.event.Kind)
	assert.Equal(t, realtime.TaskDeletedData{ID: created[1].ID}, last.event.Data)

	err = f.service.DeleteTask(ctx, DeleteTaskParams{ID: created[1].ID, UserID: "u1"})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestUsersAreIsolated(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	ctx := context.Background()
	alice := f.create(t, "alice", "A1", "A2")
	f.create(t, "bob", "B1")

	_, err := f.service.GetTask(ctx, "bob", alice[0].ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	err = f.service.DeleteTask(ctx, DeleteTaskParams{ID: alice[0].ID, UserID: "bob"})
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.Equal(t, []string{"B1"}, contents(f.list(t, "bob")))
	assert.Equal(t, []float64{1000}, orders(f.list(t, "bob")))
	assert.Len(t, f.list(t, "alice"), 2)
}

func TestReorderBroadcastsFollowCommitOrder(t *testing.T) {
	publisher := &gatedPublisher{
		held:    make(chan struct{}),
		release: make(chan struct{}),
	}
	service := NewTaskService(
		zerolog.Nop(),
		storage.NewMemoryStore(),
		publisher,
		ordering.NewKeySpace(ordering.DefaultGap),
		OrderingStrategyRenumber,
	)
	ctx := context.Background()

	var created []*models.Task
	for _, content := range []string{"A", "B", "C"} {
		task, err := service.CreateTask(ctx, CreateTaskParams{UserID: "u1", Content: content})
		require.NoError(t, err)
		created = append(created, task)
	}

	first := make(chan error, 1)
	go func() {
		_, err := service.ReorderTask(ctx, ReorderTaskParams{UserID: "u1", TaskID: created[1].ID, NewOrder: 0})
		first <- err
	}()
	<-publisher.held

	second := make(chan error, 1)
	go func() {
		_, err := service.ReorderTask(ctx, ReorderTaskParams{UserID: "u1", TaskID: created[2].ID, NewOrder: 0})
		second <- err
	}()

	select {
	case err := <-second:
		t.Fatalf("second reorder committed before the first was announced: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(publisher.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	stored, err := service.GetTasks(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"C", "B", "A"}, contents(stored))

	last := publisher.last()
	require.Equal(t, realtime.EventTaskReordered, last.event.Kind)
	data, ok := last.event.Data.(realtime.TaskListData)
	require.True(t, ok)
	announced := make([]string, len(data.Tasks))
	for i, task := range data.Tasks {
		announced[i] = task.Content
	}
	assert.Equal(t, contents(stored), announced)
}

func TestFindTasks(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	ctx := context.Background()
	created := f.create(t, "u1", "Buy milk", "Write report", "buy bread", "Call mom")
	f.create(t, "u2", "buy nothing")

	completed := true
	for _, task := range []*models.Task{created[1], created[2]} {
		_, err := f.service.UpdateTask(ctx, UpdateTaskParams{ID: task.ID, UserID: "u1", Completed: &completed})
		require.NoError(t, err)
	}
	active := false

	tests := []struct {
		name   string
		params FindTasksParams
		want   []string
	}{
		{"no filter", FindTasksParams{}, []string{"Buy milk", "Write report", "buy bread", "Call mom"}},
		{"completed", FindTasksParams{Completed: &completed}, []string{"Write report", "buy bread"}},
		{"active", FindTasksParams{Completed: &active}, []string{"Buy milk", "Call mom"}},
		{"search ignores case", FindTasksParams{Search: " BUY "}, []string{"Buy milk", "buy bread"}},
		{"search and status", FindTasksParams{Completed: &active, Search: "buy"}, []string{"Buy milk"}},
		{"no match", FindTasksParams{Search: "gym"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.UserID = "u1"
			tasks, err := f.service.FindTasks(ctx, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, contents(tasks))
		})
	}
}

func TestGetTaskStatistics(t *testing.T) {
	f := newFixture(OrderingStrategyRenumber)
	ctx := context.Background()

	stats, err := f.service.GetTaskStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &TaskStatistics{}, stats)

	created := f.create(t, "u1", "A", "B", "C")
	f.create(t, "u2", "D")
	completed := true
	_, err = f.service.UpdateTask(ctx, UpdateTaskParams{ID: created[0].ID, UserID: "u1", Completed: &completed})
	require.NoError(t, err)

	stats, err = f.service.GetTaskStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &TaskStatistics{Total: 3, Completed: 1, Active: 2}, stats)
}
