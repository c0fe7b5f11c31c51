package user

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}

type RegisterRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	InviteCode string `json:"invite_code"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type MeResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
	IsAdmin  bool   `json:"isAdmin"`
}
