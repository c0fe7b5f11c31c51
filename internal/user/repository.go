package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrInvalidInvite = errors.New("invalid invite code")
	ErrInviteUsed    = errors.New("invite code already used")
)

const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts the user and marks the invite used in one transaction,
// so a code can never be burned without an account existing.
func (r *Repository) CreateUser(ctx context.Context, username, passwordHash, inviteCode string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var inviteID int
	var used bool
	err = tx.QueryRowContext(ctx,
		"SELECT id, used FROM registration_invitations WHERE code = $1", inviteCode,
	).Scan(&inviteID, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidInvite
	}
	if err != nil {
		return 0, err
	}
	if used {
		return 0, ErrInviteUsed
	}

	var id int
	err = tx.QueryRowContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id",
		username, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE registration_invitations SET used = TRUE WHERE id = $1", inviteID,
	); err != nil {
		return 0, err
	}

	return id, tx.Commit()
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := "SELECT id, username, password_hash FROM users WHERE username = $1"

	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int) (*User, error) {
	u := &User{}
	query := "SELECT id, username, password_hash FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) GetUserIDByUsername(ctx context.Context, username string) (int, error) {
	var id int
	err := r.db.QueryRowContext(ctx, "SELECT id FROM users WHERE username = $1", username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InviteStatus reports whether an invite code exists and is still unused.
func (r *Repository) InviteStatus(ctx context.Context, code string) error {
	var used bool
	err := r.db.QueryRowContext(ctx,
		"SELECT used FROM registration_invitations WHERE code = $1", code,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidInvite
	}
	if err != nil {
		return err
	}
	if used {
		return ErrInviteUsed
	}
	return nil
}

// SaveSession records the session row for auditability. The live session
// table is the in-memory store; these rows are not consulted on resolve.
func (r *Repository) SaveSession(ctx context.Context, userID int, token string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (user_id, token) VALUES ($1, $2)", userID, token)
	return err
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = $1", token)
	return err
}
