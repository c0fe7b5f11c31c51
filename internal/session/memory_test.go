package session

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryCreateResolve(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	token, err := store.Create(ctx, 42)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(token) < 43 { // 32 bytes base64url without padding
		t.Fatalf("token too short: %d chars", len(token))
	}

	userID, err := store.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if userID != 42 {
		t.Fatalf("Resolve = %d, want 42", userID)
	}
}

func TestMemoryResolveUnknown(t *testing.T) {
	store := NewMemory()
	_, err := store.Resolve(context.Background(), "nope")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Resolve unknown = %v, want ErrInvalidToken", err)
	}
}

func TestMemoryInvalidateIdempotent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	token, err := store.Create(ctx, 7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Invalidate(ctx, token); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := store.Resolve(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Resolve after Invalidate = %v, want ErrInvalidToken", err)
	}

	// Invalidating again (or an unknown token) is a no-op, not an error.
	if err := store.Invalidate(ctx, token); err != nil {
		t.Fatalf("second Invalidate: %v", err)
	}
	if err := store.Invalidate(ctx, "never-existed"); err != nil {
		t.Fatalf("Invalidate unknown: %v", err)
	}
}

func TestTokensUnique(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		token, err := store.Create(ctx, i)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token after %d creates", i)
		}
		seen[token] = true
	}
}
