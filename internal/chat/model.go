package chat

import (
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------
// Database & API models
// ---------------------------------------------

type Chat struct {
	ID        int       `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID       int    `json:"id"`
	ChatID   int    `json:"-"`
	SenderID int    `json:"-"`
	Sender   string `json:"sender"` // denormalized via JOIN for the UI
	Text     string `json:"text"`
	// Raw stored timestamp; handlers render it with FormatDisplay.
	Timestamp string `json:"timestamp"`
}

// ChatSummary is one row of the chat list: counterpart identity, last
// message, and whether anything arrived since the viewer last looked.
type ChatSummary struct {
	ChatID      int     `json:"chat_id"`
	Username    string  `json:"username"`
	LastMessage *string `json:"last_message"`
	Timestamp   *string `json:"timestamp"`
	Unread      bool    `json:"unread"`
}

// Access and validation failures surfaced by the repository.
var (
	ErrNotParticipant  = errors.New("not a participant of this chat")
	ErrInvalidTopology = errors.New("chat is not a user/admin pair")
	ErrEmptyText       = errors.New("message text is empty")
	ErrChatNotFound    = errors.New("chat not found")
)

// ---------------------------------------------
// Live-channel protocol
// ---------------------------------------------

// Event kinds. The protocol is closed: anything else is rejected at the
// channel boundary.
const (
	EventAuth          = "auth"
	EventPing          = "ping"
	EventMessage       = "message"
	EventTranscription = "transcription"
)

// Event is the JSON frame exchanged over the live channel. Inbound traffic is
// auth (first frame) and keep-alive chatter; message and transcription flow
// outbound only.
type Event struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	ChatID    int    `json:"chat_id,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Validate checks the per-kind required fields.
func (e *Event) Validate() error {
	switch e.Type {
	case EventAuth:
		if e.Token == "" {
			return errors.New("auth event requires token")
		}
	case EventPing:
		// no payload
	case EventMessage, EventTranscription:
		if e.ChatID == 0 || e.Sender == "" {
			return fmt.Errorf("%s event requires chat_id and sender", e.Type)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}
