package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// PageSize is the keyset-pagination window for message history.
const PageSize = 10

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetOrCreateChat returns the chat linking the two users, creating it if
// missing. The advisory lock on the ordered pair is the serialization point:
// concurrent calls for the same pair resolve to one row.
func (r *Repository) GetOrCreateChat(ctx context.Context, userA, userB int) (int, error) {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1, $2)", lo, hi); err != nil {
		return 0, err
	}

	var chatID int
	err = tx.QueryRowContext(ctx, `
		SELECT c.id FROM chats c
		JOIN chat_participants cp1 ON cp1.chat_id = c.id AND cp1.user_id = $1
		JOIN chat_participants cp2 ON cp2.chat_id = c.id AND cp2.user_id = $2
	`, userA, userB).Scan(&chatID)
	if err == nil {
		return chatID, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	if err := tx.QueryRowContext(ctx, "INSERT INTO chats DEFAULT VALUES RETURNING id").Scan(&chatID); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2), ($1, $3)",
		chatID, userA, userB,
	); err != nil {
		return 0, err
	}

	return chatID, tx.Commit()
}

// Participants returns the usernames in the chat.
func (r *Repository) Participants(ctx context.Context, chatID int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.username
		FROM chat_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.chat_id = $1
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Repository) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2",
		chatID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AuthorizeParticipant fails with ErrNotParticipant unless the user is one of
// the chat's participants.
func (r *Repository) AuthorizeParticipant(ctx context.Context, chatID, userID int) error {
	ok, err := r.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// AuthorizeTopology enforces the stronger structural rule: a non-admin may
// only touch a chat whose participant set is exactly {them, admin}. Admin
// always passes. Kept separate from AuthorizeParticipant so relaxing one
// check can never silently weaken the other; callers on the read and send
// paths run both.
func (r *Repository) AuthorizeTopology(ctx context.Context, chatID int, username, admin string) error {
	if username == admin {
		return nil
	}
	names, err := r.Participants(ctx, chatID)
	if err != nil {
		return err
	}
	if len(names) != 2 {
		return ErrInvalidTopology
	}
	hasSelf, hasAdmin := false, false
	for _, n := range names {
		switch n {
		case username:
			hasSelf = true
		case admin:
			hasAdmin = true
		}
	}
	if !hasSelf || !hasAdmin {
		return ErrInvalidTopology
	}
	return nil
}

// ListChats returns the viewer's chats sorted by last-message time
// descending, chats with no messages last. Non-admin viewers are filtered to
// at most their chat with admin even if the store somehow holds more.
func (r *Repository) ListChats(ctx context.Context, userID int, username, admin string) ([]ChatSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			c.id,
			u.username,
			m.text,
			m.timestamp,
			(
				SELECT COUNT(*) FROM messages msg
				WHERE msg.chat_id = c.id
				AND msg.sender_id != $1
				AND msg.timestamp > COALESCE(
					(SELECT MAX(viewed_at) FROM chat_reads cr
					 WHERE cr.chat_id = c.id AND cr.user_id = $1),
					''
				)
			) AS unread_count
		FROM chats c
		JOIN chat_participants cp ON cp.chat_id = c.id
		JOIN chat_participants cp2 ON cp2.chat_id = c.id
		JOIN users u ON u.id = cp2.user_id
		LEFT JOIN (
			SELECT DISTINCT ON (chat_id) chat_id, text, timestamp
			FROM messages
			ORDER BY chat_id, id DESC
		) m ON m.chat_id = c.id
		WHERE cp.user_id = $1 AND u.id != $1
		ORDER BY m.timestamp DESC NULLS LAST
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ChatSummary
	for rows.Next() {
		var s ChatSummary
		var lastMessage, timestamp sql.NullString
		var unread int
		if err := rows.Scan(&s.ChatID, &s.Username, &lastMessage, &timestamp, &unread); err != nil {
			return nil, err
		}
		// Defense in depth: the topology invariant says a non-admin only
		// ever has the admin chat, so anything else is dropped here too.
		if username != admin && s.Username != admin {
			continue
		}
		if lastMessage.Valid {
			s.LastMessage = &lastMessage.String
		}
		if timestamp.Valid {
			s.Timestamp = &timestamp.String
		}
		s.Unread = unread > 0
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// AppendMessage trims and persists the text, returning the storage-assigned
// id. Ids reflect append order within a chat.
func (r *Repository) AppendMessage(ctx context.Context, chatID, senderID int, text, timestamp string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyText
	}
	var id int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO messages (chat_id, sender_id, text, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, chatID, senderID, text, timestamp).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// PageMessages returns up to PageSize messages ascending by id. With
// beforeID == 0 it returns the most recent page; otherwise messages with id
// strictly below the cursor. Retrieval is latest-first then reversed, so
// pagination reads backward in time but presents forward.
func (r *Repository) PageMessages(ctx context.Context, chatID, beforeID int) ([]Message, error) {
	query := `
		SELECT m.id, u.username, m.text, m.timestamp
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = $1
		ORDER BY m.id DESC
		LIMIT $2
	`
	args := []any{chatID, PageSize}
	if beforeID > 0 {
		query = `
			SELECT m.id, u.username, m.text, m.timestamp
			FROM messages m
			JOIN users u ON u.id = m.sender_id
			WHERE m.chat_id = $1 AND m.id < $3
			ORDER BY m.id DESC
			LIMIT $2
		`
		args = append(args, beforeID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Text, &m.Timestamp); err != nil {
			return nil, err
		}
		m.ChatID = chatID
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// flip to ascending
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead upserts the viewer's last-viewed marker; last write wins.
func (r *Repository) MarkRead(ctx context.Context, chatID, userID int, viewedAt string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_reads (chat_id, user_id, viewed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, user_id)
		DO UPDATE SET viewed_at = EXCLUDED.viewed_at
	`, chatID, userID, viewedAt)
	return err
}

// UnreadCount counts messages from others strictly after the viewer's last
// viewed_at (the epoch if no receipt exists). Only the derived boolean is
// exposed externally.
func (r *Repository) UnreadCount(ctx context.Context, chatID, viewerID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages msg
		WHERE msg.chat_id = $1
		AND msg.sender_id != $2
		AND msg.timestamp > COALESCE(
			(SELECT MAX(viewed_at) FROM chat_reads cr
			 WHERE cr.chat_id = $1 AND cr.user_id = $2),
			''
		)
	`, chatID, viewerID).Scan(&count)
	return count, err
}
