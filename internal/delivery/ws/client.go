package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-live/internal/realtime"
)

// client is one live socket. Send never blocks: events are queued for the
// write pump. A full queue closes the socket, because the client has
// missed an event and only a reconnect brings it back in sync.
type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	logger zerolog.Logger
	cfg    Config

	send      chan realtime.Event
	done      chan struct{}
	closeOnce sync.Once
}

var _ realtime.Conn = (*client)(nil)

func newClient(id, userID string, conn *websocket.Conn, logger zerolog.Logger, cfg Config) *client {
	return &client{
		id:     id,
		userID: userID,
		conn:   conn,
		logger: logger,
		cfg:    cfg,
		send:   make(chan realtime.Event, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *client) ID() string { return c.id }

func (c *client) Send(event realtime.Event) error {
	select {
	case <-c.done:
		return realtime.ErrConnClosed
	default:
	}

	select {
	case c.send <- event:
		return nil
	case <-c.done:
		return realtime.ErrConnClosed
	default:
		c.logger.Warn().
			Str("conn_id", c.id).
			Str("user_id", c.userID).
			Int("buffer", cap(c.send)).
			Msg("send buffer full, closing websocket")
		c.close()
		return realtime.ErrSendBufferFull
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := c.conn.WriteJSON(event)
			if err != nil {
				c.logger.Debug().
					Err(err).
					Str("conn_id", c.id).
					Msg("failed to write event")
				return
			}
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			if err != nil {
				c.logger.Debug().
					Err(err).
					Str("conn_id", c.id).
					Msg("failed to write ping")
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout),
			)
			return
		}
	}
}

// readPump delivers inbound frames to handle until the socket fails or
// the peer goes away.
func (c *client) readPump(handle func(raw []byte)) {
	defer c.close()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().
					Err(err).
					Str("conn_id", c.id).
					Msg("unexpected socket close")
			}
			return
		}
		handle(raw)
	}
}
