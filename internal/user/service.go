package user

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/session"
)

type Service struct {
	repo          *Repository
	sessions      session.Store
	adminUsername string
}

func NewService(repo *Repository, sessions session.Store, adminUsername string) *Service {
	return &Service{
		repo:          repo,
		sessions:      sessions,
		adminUsername: adminUsername,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) error {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.repo.CreateUser(ctx, req.Username, string(hashedPwd), req.InviteCode)
	return err
}

// Login verifies credentials and opens a session. The session row is also
// persisted for audit history.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (string, *User, error) {
	u, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return "", nil, err
	}

	token, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return "", nil, err
	}
	if err := s.repo.SaveSession(ctx, u.ID, token); err != nil {
		return "", nil, err
	}

	return token, u, nil
}

// Logout invalidates the session; unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) {
	_ = s.sessions.Invalidate(ctx, token)
	_ = s.repo.DeleteSession(ctx, token)
}

// ValidateToken resolves a bearer token to (userID, username). It is the
// TokenValidator consumed by the auth middleware and the websocket handshake.
func (s *Service) ValidateToken(ctx context.Context, token string) (int, string, error) {
	userID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return 0, "", err
	}
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return 0, "", err
	}
	return u.ID, u.Username, nil
}

func (s *Service) IsAdmin(username string) bool {
	return username == s.adminUsername
}

func (s *Service) ValidateInvite(ctx context.Context, code string) error {
	return s.repo.InviteStatus(ctx, code)
}
