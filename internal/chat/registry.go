package chat

import (
	"sync"

	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/telemetry"
)

// Conn is the live-channel surface the registry owns. Enqueue is
// non-blocking: false means the connection is gone or its outbound buffer is
// full, and either way the peer is treated as disconnected.
type Conn interface {
	Enqueue(payload []byte) bool
	CloseNormal()
}

// Registry maps each identity to its single live connection. It owns
// connection replacement (newest wins, the old channel gets a normal-closure
// signal) and eviction of broken channels. The raw map is never exposed;
// Register, Send, and Unregister are individually atomic, but sends to
// different identities proceed concurrently.
type Registry struct {
	mu    sync.Mutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register installs the connection for the identity, replacing and closing
// any previous one. Closing the loser is best-effort and never blocks the
// newcomer.
func (r *Registry) Register(identity string, c Conn) {
	r.mu.Lock()
	old, had := r.conns[identity]
	r.conns[identity] = c
	r.mu.Unlock()

	if had && old != c {
		old.CloseNormal()
	} else if !had {
		telemetry.AddConnections(1)
	}
}

// Unregister removes the identity's mapping, but only if it still points at
// c — a replaced connection tearing itself down must not evict its
// replacement.
func (r *Registry) Unregister(identity string, c Conn) {
	r.mu.Lock()
	cur, ok := r.conns[identity]
	if ok && cur == c {
		delete(r.conns, identity)
	}
	r.mu.Unlock()
	if ok && cur == c {
		telemetry.AddConnections(-1)
	}
}

// Send pushes the payload to the identity's live connection. A missing
// connection is not an error: offline delivery is expected and the payload is
// simply dropped, persistence plus a later page load covers recovery. A
// failed send evicts the connection and reports false.
func (r *Registry) Send(identity string, payload []byte) bool {
	r.mu.Lock()
	c, ok := r.conns[identity]
	r.mu.Unlock()
	if !ok {
		return false
	}

	// The push happens outside the lock so one slow peer cannot stall
	// sends to other identities.
	if c.Enqueue(payload) {
		return true
	}

	r.Unregister(identity, c)
	c.CloseNormal()
	telemetry.Inc(telemetry.ConnectionsEvicted)
	return false
}
