package rest

import "time"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// LogoutRequest is the body of POST /auth/logout. The refresh token is
// optional: a bearer-only logout still retires the access token.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordRequest is the body of POST /auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// TokenResponse is the success body of login and refresh.
type TokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// MeResponse is the body of GET /auth/me.
type MeResponse struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Scopes   []string `json:"scopes"`
}

// SessionsResponse is the body of GET /auth/sessions.
type SessionsResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

// ErrorResponse is the uniform error envelope. It never carries internal
// messages or stack traces.
type ErrorResponse struct {
	Timestamp     time.Time `json:"timestamp"`
	Status        int       `json:"status"`
	Error         string    `json:"error"`
	Path          string    `json:"path"`
	CorrelationID string    `json:"correlationId"`
}
