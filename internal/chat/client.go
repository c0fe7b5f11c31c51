package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Close if the peer stays silent this long.
	pingPeriod     = (pongWait * 9) / 10 // Probe idle peers with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.
	authWait       = 10 * time.Second    // Time allowed for the first (auth) frame.
)

// Client is a middleman between the websocket connection and the registry.
type Client struct {
	registry *Registry
	conn     *websocket.Conn
	identity string

	// Buffered channel of outbound payloads.
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(registry *Registry, conn *websocket.Conn, identity string) *Client {
	return &Client{
		registry: registry,
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

// Enqueue hands a payload to the write pump without blocking. A full buffer
// counts as a failed send: the peer is too far behind to be live.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// CloseNormal signals the write pump to send a normal-closure frame and shut
// down. Safe to call from any goroutine, any number of times.
func (c *Client) CloseNormal() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump consumes inbound frames. The client never sends application
// traffic after auth; inbound frames only prove liveness.
func (c *Client) readPump() {
	defer func() {
		c.registry.Unregister(c.identity, c)
		c.CloseNormal()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read ended", slog.String("identity", c.identity), slog.Any("error", err))
			}
			return
		}
		// Any frame resets the liveness clock.
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump pumps payloads from the registry to the websocket connection and
// probes idle peers with a JSON ping event.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(Event{Type: EventPing}); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
