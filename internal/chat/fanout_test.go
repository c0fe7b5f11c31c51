package chat

import (
	"context"
	"testing"
	"time"
)

type staticParticipants struct {
	names []string
}

func (s staticParticipants) Participants(_ context.Context, _ int) ([]string, error) {
	return s.names, nil
}

// eventually polls cond for up to a second; fan-out spawns detached
// per-recipient goroutines, so tests have to wait for the side effects.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestFanoutDeliversToParticipantsAndSender(t *testing.T) {
	registry := NewRegistry()
	alice := &fakeConn{}
	admin := &fakeConn{}
	registry.Register("alice", alice)
	registry.Register("admin", admin)

	f := NewFanout(registry, staticParticipants{names: []string{"alice", "admin"}})
	f.Deliver(context.Background(), 7, Event{Type: EventMessage, ChatID: 7, Sender: "alice", Text: "hello"})

	eventually(t, func() bool { return alice.received() == 1 && admin.received() == 1 },
		"both participants should receive exactly one payload")

	// The sender is in the participant set; echo-to-self must not duplicate.
	time.Sleep(20 * time.Millisecond)
	if alice.received() != 1 {
		t.Fatalf("sender received %d payloads, want 1", alice.received())
	}
}

func TestFanoutPartialFailure(t *testing.T) {
	registry := NewRegistry()
	broken := &fakeConn{failNext: true}
	healthy := &fakeConn{}
	registry.Register("alice", broken)
	registry.Register("admin", healthy)

	f := NewFanout(registry, staticParticipants{names: []string{"alice", "admin"}})
	f.Deliver(context.Background(), 7, Event{Type: EventMessage, ChatID: 7, Sender: "admin", Text: "hi"})

	// The healthy participant still gets the payload; the broken one is
	// closed and evicted.
	eventually(t, func() bool { return healthy.received() == 1 }, "healthy conn should receive payload")
	eventually(t, func() bool { return broken.closeCount() == 1 }, "broken conn should be closed")

	if registry.Send("alice", []byte("probe")) {
		t.Fatal("broken conn was not evicted")
	}
}

func TestFanoutOfflineTargetsDropped(t *testing.T) {
	registry := NewRegistry()
	f := NewFanout(registry, staticParticipants{names: []string{"alice", "admin"}})

	// Nobody connected: delivery is silently dropped, no panic, no error.
	f.Deliver(context.Background(), 7, Event{Type: EventTranscription, ChatID: 7, Sender: "alice", Text: "hola"})
	time.Sleep(20 * time.Millisecond)
}
