// Package ws serves the realtime task channel over WebSocket.
//
// A socket authenticates once during the upgrade and is then bound to its
// user. Inbound messages go through the same services.TaskService as the
// REST routes, so every accepted change reaches all of the user's sockets
// as a hub event. Failures are answered with an error event on the
// originating socket only.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	v1 "github.com/adanyl0v/go-todo-live/internal/delivery/http/v1"
	"github.com/adanyl0v/go-todo-live/internal/realtime"
	"github.com/adanyl0v/go-todo-live/internal/services"
)

type Config struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	// AllowedOrigins lists the origins allowed to open a socket besides
	// the server's own host.
	AllowedOrigins []string
}

// Registry tracks the live sockets of each user. *realtime.Hub implements it.
type Registry interface {
	Register(userID string, conn realtime.Conn)
	Unregister(userID string, conn realtime.Conn)
}

type Handler struct {
	logger   zerolog.Logger
	auth     services.AuthService
	tasks    services.TaskService
	registry Registry
	cfg      Config
	upgrader websocket.Upgrader
}

func New(
	logger zerolog.Logger,
	authService services.AuthService,
	taskService services.TaskService,
	registry Registry,
	cfg Config,
) *Handler {
	h := &Handler{
		logger:   logger,
		auth:     authService,
		tasks:    taskService,
		registry: registry,
		cfg:      cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) HandleConnect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = v1.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		h.logger.Error().Msg("no token for websocket")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}

	fingerprint, err := v1.GenerateFingerprint(c)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to generate fingerprint")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	session, err := h.auth.Authenticate(c, services.AuthenticateParams{
		AccessToken: token,
		Fingerprint: fingerprint,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to authenticate websocket")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied.
		h.logger.Error().
			Err(err).
			Msg("failed to upgrade connection")
		return
	}

	cl := newClient(uuid.NewString(), session.UserID, conn, h.logger, h.cfg)
	h.registry.Register(cl.userID, cl)
	defer h.registry.Unregister(cl.userID, cl)

	h.logger.Info().
		Str("conn_id", cl.id).
		Str("user_id", cl.userID).
		Msg("websocket connected")

	go cl.writePump()

	ctx := c.Request.Context()
	go func() {
		select {
		case <-ctx.Done():
			cl.close()
		case <-cl.done:
		}
	}()

	// Registered before the snapshot is taken, so no change can fall
	// between the two. An event queued ahead of the snapshot is
	// superseded by it.
	tasks, err := h.tasks.GetTasks(ctx, cl.userID)
	if err != nil {
		h.reply(cl, err)
	} else if err = cl.Send(realtime.NewTaskListEvent(tasks)); err != nil {
		h.logger.Warn().
			Err(err).
			Str("conn_id", cl.id).
			Msg("failed to send task list")
	}

	cl.readPump(func(raw []byte) {
		h.dispatch(ctx, cl, raw)
	})

	h.logger.Info().
		Str("conn_id", cl.id).
		Str("user_id", cl.userID).
		Msg("websocket disconnected")
}

type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type createMessage struct {
	Content string `json:"content" binding:"required,max=500"`
}

type updateMessage struct {
	ID      string `json:"id" binding:"required"`
	Updates struct {
		Content   *string `json:"content" binding:"omitempty,max=500"`
		Completed *bool   `json:"completed"`
	} `json:"updates"`
}

type deleteMessage struct {
	ID string `json:"id" binding:"required"`
}

type reorderMessage struct {
	TaskID   string   `json:"taskId" binding:"required"`
	NewOrder *float64 `json:"newOrder" binding:"required"`
}

var (
	errInvalidMessage = errors.New("invalid message")
	errUnknownEvent   = errors.New("unknown event")
)

func (h *Handler) dispatch(ctx context.Context, cl *client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(cl, errInvalidMessage)
		return
	}

	h.logger.Debug().
		Str("conn_id", cl.id).
		Str("event", msg.Event).
		Msg("received message")

	var err error
	switch realtime.EventKind(msg.Event) {
	case realtime.InboundTaskCreate:
		var data createMessage
		if err = bindData(msg.Data, &data); err == nil {
			_, err = h.tasks.CreateTask(ctx, services.CreateTaskParams{
				UserID:  cl.userID,
				Content: data.Content,
			})
		}
	case realtime.InboundTaskUpdate:
		var data updateMessage
		if err = bindData(msg.Data, &data); err == nil {
			_, err = h.tasks.UpdateTask(ctx, services.UpdateTaskParams{
				ID:        data.ID,
				UserID:    cl.userID,
				Content:   data.Updates.Content,
				Completed: data.Updates.Completed,
			})
		}
	case realtime.InboundTaskDelete:
		var data deleteMessage
		if err = bindData(msg.Data, &data); err == nil {
			err = h.tasks.DeleteTask(ctx, services.DeleteTaskParams{
				ID:     data.ID,
				UserID: cl.userID,
			})
		}
	case realtime.InboundTaskReorder:
		var data reorderMessage
		if err = bindData(msg.Data, &data); err == nil {
			_, err = h.tasks.ReorderTask(ctx, services.ReorderTaskParams{
				UserID:   cl.userID,
				TaskID:   data.TaskID,
				NewOrder: *data.NewOrder,
			})
		}
	default:
		err = errUnknownEvent
	}
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("conn_id", cl.id).
			Str("event", msg.Event).
			Msg("failed to handle message")
		h.reply(cl, err)
	}
}

func bindData(data json.RawMessage, obj any) error {
	if len(data) == 0 {
		return errInvalidMessage
	}
	if err := binding.JSON.BindBody(data, obj); err != nil {
		return errors.Join(errInvalidMessage, err)
	}
	return nil
}

// reply sends the error event for err to cl alone.
func (h *Handler) reply(cl *client, err error) {
	if sendErr := cl.Send(realtime.NewErrorEvent(errorMessage(err))); sendErr != nil {
		h.logger.Warn().
			Err(sendErr).
			Str("conn_id", cl.id).
			Msg("failed to send error event")
	}
}

// clientErrors are reported to the client verbatim. Joined binding
// errors are reduced to the sentinel they carry.
var clientErrors = []error{
	errInvalidMessage,
	errUnknownEvent,
	services.ErrInvalidTaskContent,
	services.ErrEmptyTaskUpdate,
	services.ErrInvalidTaskOrder,
}

func errorMessage(err error) string {
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}

	switch {
	case errors.Is(err, services.ErrTaskNotFound):
		return "task not found"
	case errors.Is(err, services.ErrTaskConflict):
		return "task was modified concurrently, retry"
	case errors.Is(err, services.ErrStoreUnavailable):
		return "service unavailable"
	default:
		return "internal error"
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.cfg.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
