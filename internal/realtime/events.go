package realtime

import (
	"time"

	"github.com/adanyl0v/go-todo-live/internal/models"
)

type EventKind string

const (
	EventTaskCreated   EventKind = "task:created"
	EventTaskUpdated   EventKind = "task:updated"
	EventTaskDeleted   EventKind = "task:deleted"
	EventTaskReordered EventKind = "task:reordered"
	// EventTaskList carries a full snapshot and is only sent to a
	// connection right after it registers.
	EventTaskList EventKind = "task:list"
	EventError    EventKind = "error"
)

// Kinds a client may send.
const (
	InboundTaskCreate  EventKind = "task:create"
	InboundTaskUpdate  EventKind = "task:update"
	InboundTaskDelete  EventKind = "task:delete"
	InboundTaskReorder EventKind = "task:reorder"
)

// Event is the envelope written to every realtime connection.
type Event struct {
	Kind EventKind `json:"event"`
	Data any       `json:"data"`
}

type TaskPayload struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Completed bool      `json:"completed"`
	Order     float64   `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewTaskPayload(task *models.Task) TaskPayload {
	return TaskPayload{
		ID:        task.ID,
		Content:   task.Content,
		Completed: task.Completed,
		Order:     task.Order,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
}

func NewTaskPayloads(tasks []*models.Task) []TaskPayload {
	payloads := make([]TaskPayload, len(tasks))
	for i, task := range tasks {
		payloads[i] = NewTaskPayload(task)
	}
	return payloads
}

type TaskEventData struct {
	Task TaskPayload `json:"task"`
}

type TaskDeletedData struct {
	ID string `json:"id"`
}

type TaskListData struct {
	Tasks []TaskPayload `json:"tasks"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func NewTaskCreatedEvent(task *models.Task) Event {
	return Event{Kind: EventTaskCreated, Data: TaskEventData{Task: NewTaskPayload(task)}}
}

func NewTaskUpdatedEvent(task *models.Task) Event {
	return Event{Kind: EventTaskUpdated, Data: TaskEventData{Task: NewTaskPayload(task)}}
}

func NewTaskDeletedEvent(taskID string) Event {
	return Event{Kind: EventTaskDeleted, Data: TaskDeletedData{ID: taskID}}
}

// NewTaskReorderedEvent always carries the complete list so clients resync
// the total order instead of patching it.
func NewTaskReorderedEvent(tasks []*models.Task) Event {
	return Event{Kind: EventTaskReordered, Data: TaskListData{Tasks: NewTaskPayloads(tasks)}}
}

func NewTaskListEvent(tasks []*models.Task) Event {
	return Event{Kind: EventTaskList, Data: TaskListData{Tasks: NewTaskPayloads(tasks)}}
}

func NewErrorEvent(message string) Event {
	return Event{Kind: EventError, Data: ErrorData{Message: message}}
}
