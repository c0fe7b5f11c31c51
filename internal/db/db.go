package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

// AutoMigrate applies idempotent schema changes for all required tables.
// Message and read-receipt timestamps are RFC3339 text written by the server;
// within a fixed zone offset they order lexicographically, which the unread
// derivation relies on.
func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            password_hash VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS sessions (
            user_id INT REFERENCES users(id) ON DELETE CASCADE,
            token TEXT UNIQUE NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS registration_invitations (
            id SERIAL PRIMARY KEY,
            code TEXT UNIQUE NOT NULL,
            used BOOLEAN NOT NULL DEFAULT FALSE
        )`,

		`CREATE TABLE IF NOT EXISTS chats (
            id SERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS chat_participants (
            chat_id INT REFERENCES chats(id) ON DELETE CASCADE,
            user_id INT REFERENCES users(id) ON DELETE CASCADE,
            PRIMARY KEY (chat_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            chat_id INT REFERENCES chats(id) ON DELETE CASCADE,
            sender_id INT REFERENCES users(id) ON DELETE CASCADE,
            text TEXT NOT NULL,
            timestamp TEXT NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages (chat_id, id)`,

		`CREATE TABLE IF NOT EXISTS chat_reads (
            chat_id INT REFERENCES chats(id) ON DELETE CASCADE,
            user_id INT REFERENCES users(id) ON DELETE CASCADE,
            viewed_at TEXT NOT NULL,
            PRIMARY KEY (chat_id, user_id)
        )`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
