package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/chat"
)

type fakeUsers struct {
	ids map[string]int
}

func (f *fakeUsers) GetUserIDByUsername(_ context.Context, username string) (int, error) {
	id, ok := f.ids[username]
	if !ok {
		return 0, errors.New("user not found")
	}
	return id, nil
}

type appendCall struct {
	chatID, senderID int
	text             string
}

type fakeMessages struct {
	participants map[int][]int // chatID -> userIDs
	nextChatID   int
	created      [][2]int
	appends      []appendCall
}

func (f *fakeMessages) GetOrCreateChat(_ context.Context, a, b int) (int, error) {
	f.created = append(f.created, [2]int{a, b})
	if f.nextChatID == 0 {
		f.nextChatID = 100
	}
	return f.nextChatID, nil
}

func (f *fakeMessages) IsParticipant(_ context.Context, chatID, userID int) (bool, error) {
	for _, id := range f.participants[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMessages) AppendMessage(_ context.Context, chatID, senderID int, text, _ string) (int, error) {
	if text == "" {
		return 0, chat.ErrEmptyText
	}
	f.appends = append(f.appends, appendCall{chatID, senderID, text})
	return len(f.appends), nil
}

type fakeDeliverer struct {
	events []chat.Event
	chats  []int
}

func (f *fakeDeliverer) Deliver(_ context.Context, chatID int, ev chat.Event) {
	f.chats = append(f.chats, chatID)
	f.events = append(f.events, ev)
}

func newCallbackFixture() (*Handler, *fakeMessages, *fakeDeliverer) {
	users := &fakeUsers{ids: map[string]int{"admin": 1, "bob": 2}}
	messages := &fakeMessages{participants: map[int][]int{7: {1, 2}, 9: {1, 3}}}
	deliverer := &fakeDeliverer{}
	h := NewHandler(users, messages, deliverer, nil, "hush", "admin")
	return h, messages, deliverer
}

func postCallback(t *testing.T, h *Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/transcription-callback", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.Callback(rec, req)
	return rec
}

func TestCallbackRejectsBadSecret(t *testing.T) {
	h, messages, _ := newCallbackFixture()

	rec := postCallback(t, h, map[string]any{
		"secret":  "wrong",
		"message": map[string]string{"sender": "bob", "text": "hi"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(messages.appends) != 0 {
		t.Fatal("message persisted despite bad secret")
	}
}

func TestCallbackUnknownSenderIgnored(t *testing.T) {
	h, messages, deliverer := newCallbackFixture()

	rec := postCallback(t, h, map[string]any{
		"secret":  "hush",
		"message": map[string]string{"sender": "ghost", "text": "boo"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["status"] != "ignored" {
		t.Fatalf("status field = %q, want ignored", resp["status"])
	}
	if len(messages.appends) != 0 || len(deliverer.events) != 0 {
		t.Fatal("unknown sender produced chat side effects")
	}
}

func TestCallbackPersistsThenDelivers(t *testing.T) {
	h, messages, deliverer := newCallbackFixture()

	rec := postCallback(t, h, map[string]any{
		"secret":  "hush",
		"message": map[string]string{"sender": "bob", "text": "  hello world  "},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// No audio key: falls back to the bob/admin chat.
	if len(messages.created) != 1 || messages.created[0] != [2]int{2, 1} {
		t.Fatalf("created = %v, want one bob/admin get-or-create", messages.created)
	}
	if len(messages.appends) != 1 {
		t.Fatalf("appends = %d, want 1", len(messages.appends))
	}
	if got := messages.appends[0]; got.chatID != 100 || got.senderID != 2 || got.text != "hello world" {
		t.Fatalf("append = %+v, want trimmed text into chat 100 from bob", got)
	}
	if len(deliverer.events) != 1 || deliverer.chats[0] != 100 {
		t.Fatalf("deliveries = %v, want one to chat 100", deliverer.chats)
	}
	ev := deliverer.events[0]
	if ev.Type != chat.EventTranscription || ev.Sender != "bob" || ev.Text != "hello world" {
		t.Fatalf("delivered event = %+v", ev)
	}
}

func TestCallbackHonoursVerifiedChatHint(t *testing.T) {
	h, messages, deliverer := newCallbackFixture()

	rec := postCallback(t, h, map[string]any{
		"secret": "hush",
		"message": map[string]string{
			"sender":    "bob",
			"text":      "routed",
			"audio_key": "admin/7/3e0a.webm",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(messages.created) != 0 {
		t.Fatalf("get-or-create called despite valid hint: %v", messages.created)
	}
	if messages.appends[0].chatID != 7 || deliverer.chats[0] != 7 {
		t.Fatalf("hint not honoured: append chat %d, delivery chat %d", messages.appends[0].chatID, deliverer.chats[0])
	}
}

func TestCallbackFallsBackOnUnverifiedHint(t *testing.T) {
	h, messages, _ := newCallbackFixture()

	// Chat 9 exists but bob is not a participant; the hint must not be
	// trusted.
	rec := postCallback(t, h, map[string]any{
		"secret": "hush",
		"message": map[string]string{
			"sender":    "bob",
			"text":      "misrouted",
			"audio_key": "admin/9/3e0a.webm",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(messages.created) != 1 {
		t.Fatalf("expected fallback get-or-create, got %v", messages.created)
	}
	if messages.appends[0].chatID != 100 {
		t.Fatalf("append went to chat %d, want fallback chat 100", messages.appends[0].chatID)
	}
}

func TestParseChatHint(t *testing.T) {
	tests := []struct {
		key    string
		wantID int
		wantOK bool
	}{
		{"admin/7/3e0a.webm", 7, true},
		{"admin/0007/file.webm", 7, true},
		{"bob/3e0a.webm", 0, false},        // regular upload, no hint
		{"bob/7/3e0a.webm", 0, false},      // wrong prefix
		{"admin/abc/3e0a.webm", 0, false},  // non-numeric chat id
		{"admin/7.webm", 0, false},         // too few segments
		{"admin/-3/file.webm", 0, false},   // negative id
		{"", 0, false},
	}
	for _, tt := range tests {
		id, ok := parseChatHint(tt.key, "admin")
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("parseChatHint(%q) = (%d, %v), want (%d, %v)", tt.key, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestCallbackMissingMessage(t *testing.T) {
	h, _, _ := newCallbackFixture()
	rec := postCallback(t, h, map[string]any{"secret": "hush"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
