package session

import (
	"context"
	"sync"
)

// Memory is the in-process session table. Sessions live until logout or
// process restart.
type Memory struct {
	mu      sync.RWMutex
	byToken map[string]int
}

func NewMemory() *Memory {
	return &Memory{byToken: make(map[string]int)}
}

func (m *Memory) Create(_ context.Context, userID int) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.byToken[token] = userID
	m.mu.Unlock()
	return token, nil
}

func (m *Memory) Resolve(_ context.Context, token string) (int, error) {
	m.mu.RLock()
	userID, ok := m.byToken[token]
	m.mu.RUnlock()
	if !ok {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

func (m *Memory) Invalidate(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.byToken, token)
	m.mu.Unlock()
	return nil
}
