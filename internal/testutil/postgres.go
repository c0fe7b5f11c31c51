// Package testutil provides shared helpers for database-backed tests.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"os"
	"testing"

	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/db"
)

// SetupTestDB opens a test database connection and runs migrations.
// It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.NewDatabase(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.AutoMigrate(); err != nil {
		database.Conn.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Conn.Close()
	})
	return database.Conn
}

// RandomID returns a short hex string for unique test fixtures.
func RandomID(t *testing.T) string {
	t.Helper()
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return hex.EncodeToString(b)
}

// CreateTestUser inserts a user with a throwaway password hash and returns
// its id.
func CreateTestUser(t *testing.T, conn *sql.DB, username string) int {
	t.Helper()
	var id int
	err := conn.QueryRowContext(context.Background(),
		"INSERT INTO users (username, password_hash) VALUES ($1, 'x') RETURNING id",
		username,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create test user %q: %v", username, err)
	}
	return id
}
