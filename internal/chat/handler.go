package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	myMiddleware "github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/middleware"
	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // same-origin deploys sit behind the reverse proxy
	},
}

// TokenValidator is what we need from the user service.
// This keeps packages loosely coupled.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int, string, error)
}

type Handler struct {
	repo      *Repository
	registry  *Registry
	fanout    *Fanout
	validator TokenValidator
	admin     string
}

func NewHandler(repo *Repository, registry *Registry, fanout *Fanout, validator TokenValidator, admin string) *Handler {
	return &Handler{
		repo:      repo,
		registry:  registry,
		fanout:    fanout,
		validator: validator,
		admin:     admin,
	}
}

// ServeWs upgrades the connection and runs the in-band auth handshake: the
// first frame must be an auth event carrying a valid token, or the channel is
// closed with a policy-violation code.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(authWait))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		closePolicy(conn)
		return
	}

	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil || ev.Type != EventAuth || ev.Validate() != nil {
		closePolicy(conn)
		return
	}

	_, username, err := h.validator.ValidateToken(r.Context(), ev.Token)
	if err != nil {
		closePolicy(conn)
		return
	}

	client := newClient(h.registry, conn, username)
	h.registry.Register(username, client)

	go client.writePump()
	go client.readPump()
}

// Chats lists the authenticated user's chats, newest activity first.
func (h *Handler) Chats(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	summaries, err := h.repo.ListChats(r.Context(), userID, username, h.admin)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for i := range summaries {
		if summaries[i].Timestamp != nil {
			formatted := FormatDisplay(*summaries[i].Timestamp)
			summaries[i].Timestamp = &formatted
		}
	}
	if summaries == nil {
		summaries = []ChatSummary{}
	}
	json.NewEncoder(w).Encode(summaries)
}

// GetMessages pages backward through a chat's history, presented in
// ascending id order.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	chatID, err := strconv.Atoi(r.URL.Query().Get("chat_id"))
	if err != nil || chatID <= 0 {
		http.Error(w, "missing or invalid chat_id", http.StatusBadRequest)
		return
	}
	beforeID := 0
	if v := r.URL.Query().Get("before_id"); v != "" {
		beforeID, err = strconv.Atoi(v)
		if err != nil || beforeID <= 0 {
			http.Error(w, "invalid before_id", http.StatusBadRequest)
			return
		}
	}

	if !h.authorize(w, r, chatID, userID, username) {
		return
	}

	messages, err := h.repo.PageMessages(r.Context(), chatID, beforeID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for i := range messages {
		messages[i].Timestamp = FormatDisplay(messages[i].Timestamp)
	}
	if messages == nil {
		messages = []Message{}
	}
	json.NewEncoder(w).Encode(messages)
}

type sendMessageRequest struct {
	ChatID int    `json:"chat_id"`
	Text   string `json:"text"`
}

// SendMessage persists the message and fans it out to live participants.
// Persistence is fatal to the request; delivery never is.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.ChatID <= 0 || req.Text == "" {
		http.Error(w, "missing chat_id or text", http.StatusBadRequest)
		return
	}

	if !h.authorize(w, r, req.ChatID, userID, username) {
		return
	}

	now := NowStamp()
	if _, err := h.repo.AppendMessage(r.Context(), req.ChatID, userID, req.Text, now); err != nil {
		if errors.Is(err, ErrEmptyText) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	telemetry.Inc(telemetry.MessagesPersisted)

	h.fanout.Deliver(r.Context(), req.ChatID, Event{
		Type:      EventMessage,
		ChatID:    req.ChatID,
		Sender:    username,
		Text:      req.Text,
		Timestamp: FormatDisplay(now),
	})

	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type markReadRequest struct {
	ChatID int `json:"chat_id"`
}

// MarkRead upserts the viewer's last-viewed marker for the chat.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChatID <= 0 {
		http.Error(w, "missing chat_id", http.StatusBadRequest)
		return
	}

	if err := h.repo.AuthorizeParticipant(r.Context(), req.ChatID, userID); err != nil {
		if errors.Is(err, ErrNotParticipant) {
			http.Error(w, "Not in chat", http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.repo.MarkRead(r.Context(), req.ChatID, userID, NowStamp()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// authorize runs both access checks. The participant check and the stricter
// topology check are deliberately independent; the read and send paths need
// both to hold.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, chatID, userID int, username string) bool {
	if err := h.repo.AuthorizeParticipant(r.Context(), chatID, userID); err != nil {
		if errors.Is(err, ErrNotParticipant) {
			http.Error(w, "Not in chat", http.StatusForbidden)
			return false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return false
	}
	if err := h.repo.AuthorizeTopology(r.Context(), chatID, username, h.admin); err != nil {
		if errors.Is(err, ErrInvalidTopology) {
			http.Error(w, "Access denied: invalid chat configuration", http.StatusForbidden)
			return false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return false
	}
	return true
}

func currentUser(r *http.Request) (int, string, bool) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	username, ok2 := r.Context().Value(myMiddleware.UsernameKey).(string)
	return userID, username, ok && ok2
}

func closePolicy(conn *websocket.Conn) {
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""))
	conn.Close()
}
