// Package transcribe bridges the speech-to-text pipeline into chat: it
// accepts the worker's callback, turns it into a persisted message, and fans
// it out, plus the upload-side helpers (presigned URLs, transcription
// retrieval).
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/chat"
	myMiddleware "github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/middleware"
	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/storage"
	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/telemetry"
)

// UserResolver maps usernames to ids.
type UserResolver interface {
	GetUserIDByUsername(ctx context.Context, username string) (int, error)
}

// MessageStore is the slice of the chat repository the ingest path needs.
type MessageStore interface {
	GetOrCreateChat(ctx context.Context, userA, userB int) (int, error)
	IsParticipant(ctx context.Context, chatID, userID int) (bool, error)
	AppendMessage(ctx context.Context, chatID, senderID int, text, timestamp string) (int, error)
}

// Deliverer pushes an event to a chat's live participants.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int, ev chat.Event)
}

// ObjectStore is the upload/retrieval surface of the object storage. Nil when
// storage is not configured; the endpoints then answer 503.
type ObjectStore interface {
	PresignPut(ctx context.Context, key string) (string, error)
	FindTranscription(ctx context.Context, uploadID string) (json.RawMessage, bool, error)
	ListTranscriptions(ctx context.Context) ([]storage.FeedItem, error)
}

type Handler struct {
	users    UserResolver
	messages MessageStore
	deliver  Deliverer
	store    ObjectStore
	secret   string
	admin    string
}

func NewHandler(users UserResolver, messages MessageStore, deliver Deliverer, store ObjectStore, secret, admin string) *Handler {
	return &Handler{
		users:    users,
		messages: messages,
		deliver:  deliver,
		store:    store,
		secret:   secret,
		admin:    admin,
	}
}

type callbackMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	AudioKey  string `json:"audio_key"`
}

type callbackRequest struct {
	Secret  string           `json:"secret"`
	Message *callbackMessage `json:"message"`
}

// Callback ingests one transcription from the pipeline worker. An unknown
// sender is a soft no-op: the transcription artifact still exists upstream,
// only the chat side effect is skipped.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Secret != h.secret {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if req.Message == nil || req.Message.Text == "" {
		http.Error(w, "Missing message data", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(req.Message.Text)
	sender := req.Message.Sender
	now := chat.NowStamp()

	senderID, err := h.users.GetUserIDByUsername(r.Context(), sender)
	if err != nil {
		telemetry.Inc(telemetry.TranscriptionsIgnored)
		slog.Info("transcription for unknown sender ignored", slog.String("sender", sender))
		json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
		return
	}
	adminID, err := h.users.GetUserIDByUsername(r.Context(), h.admin)
	if err != nil {
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "detail": "Admin not found"})
		return
	}

	chatID, err := h.resolveChat(r.Context(), req.Message.AudioKey, senderID, adminID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if _, err := h.messages.AppendMessage(r.Context(), chatID, senderID, text, now); err != nil {
		if errors.Is(err, chat.ErrEmptyText) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	telemetry.Inc(telemetry.TranscriptionsIngested)
	telemetry.Inc(telemetry.MessagesPersisted)

	h.deliver.Deliver(r.Context(), chatID, chat.Event{
		Type:      chat.EventTranscription,
		ChatID:    chatID,
		Sender:    sender,
		Text:      text,
		Timestamp: chat.FormatDisplay(now),
	})

	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// resolveChat honours an explicit admin-prefixed chat hint in the audio key,
// but only after verifying the sender actually belongs to that chat; an
// unverified hint falls back to the sender/admin chat.
func (h *Handler) resolveChat(ctx context.Context, audioKey string, senderID, adminID int) (int, error) {
	if hinted, ok := parseChatHint(audioKey, h.admin); ok {
		member, err := h.messages.IsParticipant(ctx, hinted, senderID)
		if err != nil {
			return 0, err
		}
		if member {
			return hinted, nil
		}
		slog.Warn("audio key chat hint does not contain sender, falling back",
			slog.Int("hinted_chat_id", hinted), slog.Int("sender_id", senderID))
	}
	return h.messages.GetOrCreateChat(ctx, senderID, adminID)
}

// parseChatHint extracts the chat id from keys shaped "<admin>/<chat_id>/...".
// Regular uploads are keyed "<username>/<uuid>.webm" and carry no hint.
func parseChatHint(audioKey, admin string) (int, bool) {
	parts := strings.Split(audioKey, "/")
	if len(parts) < 3 || parts[0] != admin {
		return 0, false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type presignRequest struct {
	ChatID int `json:"chat_id"`
}

// PresignUpload mints a presigned PUT URL for an audio upload. Admin may
// scope the key to a chat so the callback can route the transcription
// directly.
func (h *Handler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "object storage not configured", http.StatusServiceUnavailable)
		return
	}
	username, ok := r.Context().Value(myMiddleware.UsernameKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req presignRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // body is optional
	}

	keyPrefix := username
	if username == h.admin && req.ChatID > 0 {
		keyPrefix = fmt.Sprintf("%s/%d", username, req.ChatID)
	}
	key := fmt.Sprintf("%s/%s.webm", keyPrefix, uuid.New().String())

	url, err := h.store.PresignPut(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"url": url, "key": key})
}

// GetTranscription looks up the transcription for an uploaded audio key.
// Not-ready is reported as 204 so the frontend can poll.
func (h *Handler) GetTranscription(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "object storage not configured", http.StatusServiceUnavailable)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key", http.StatusBadRequest)
		return
	}

	uploadID := strings.TrimSuffix(path.Base(key), path.Ext(key))
	raw, found, err := h.store.FindTranscription(r.Context(), uploadID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	json.NewEncoder(w).Encode(map[string]json.RawMessage{"transcription": raw})
}

// TranscriptionFeed lists every stored transcription (admin debugging view).
func (h *Handler) TranscriptionFeed(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "object storage not configured", http.StatusServiceUnavailable)
		return
	}
	items, err := h.store.ListTranscriptions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []storage.FeedItem{}
	}
	json.NewEncoder(w).Encode(map[string][]storage.FeedItem{"transcriptions": items})
}
