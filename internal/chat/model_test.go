package chat

import "testing"

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{"auth with token", Event{Type: EventAuth, Token: "t"}, false},
		{"auth without token", Event{Type: EventAuth}, true},
		{"ping", Event{Type: EventPing}, false},
		{"message complete", Event{Type: EventMessage, ChatID: 1, Sender: "a"}, false},
		{"message without chat", Event{Type: EventMessage, Sender: "a"}, true},
		{"transcription without sender", Event{Type: EventTranscription, ChatID: 1}, true},
		{"unknown kind", Event{Type: "subscribe"}, true},
		{"empty kind", Event{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
