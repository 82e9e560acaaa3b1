// Package realtime fans task list mutations out to every live connection
// of the user who owns the list.
package realtime

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrConnClosed       = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("connection send buffer full")
	errUnknownEventKind = errors.New("unknown event kind")
)

// Conn is a live client connection.
// Send must not block; a slow or dead connection reports an error instead
// and is expected to close itself.
type Conn interface {
	ID() string
	Send(event Event) error
}

// Hub maps users to their live connections.
// Membership changes and fan-out are mutually exclusive, so a publish never
// observes a half-registered connection.
type Hub struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	channels map[string]map[string]Conn
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		channels: make(map[string]map[string]Conn),
	}
}

// Register binds conn to userID's channel. userID must come from the
// verified identity of the connection.
func (h *Hub) Register(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channel, ok := h.channels[userID]
	if !ok {
		channel = make(map[string]Conn)
		h.channels[userID] = channel
	}
	channel[conn.ID()] = conn

	h.logger.Debug().
		Str("user_id", userID).
		Str("conn_id", conn.ID()).
		Int("connections", len(channel)).
		Msg("registered connection")
}

func (h *Hub) Unregister(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channel, ok := h.channels[userID]
	if !ok {
		return
	}
	delete(channel, conn.ID())
	if len(channel) == 0 {
		delete(h.channels, userID)
	}

	h.logger.Debug().
		Str("user_id", userID).
		Str("conn_id", conn.ID()).
		Int("connections", len(channel)).
		Msg("unregistered connection")
}

// Publish delivers event to every connection of userID. A connection that
// fails to take the event is dropped from the channel, since it has missed
// a change and must resync with a fresh snapshot. Failures never stop
// delivery to the remaining connections.
func (h *Hub) Publish(userID string, event Event) {
	if event.Kind == "" {
		h.logger.Error().
			Err(errUnknownEventKind).
			Str("user_id", userID).
			Msg("refusing to publish event")
		return
	}

	h.mu.RLock()
	channel := h.channels[userID]
	connections := len(channel)
	var failed []Conn
	for _, conn := range channel {
		err := conn.Send(event)
		if err != nil {
			h.logger.Warn().
				Err(err).
				Str("user_id", userID).
				Str("conn_id", conn.ID()).
				Str("event", string(event.Kind)).
				Msg("failed to deliver event, dropping connection")
			failed = append(failed, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range failed {
		h.Unregister(userID, conn)
	}

	h.logger.Debug().
		Str("user_id", userID).
		Str("event", string(event.Kind)).
		Int("delivered", connections-len(failed)).
		Int("connections", connections).
		Msg("published event")
}

func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[userID])
}
