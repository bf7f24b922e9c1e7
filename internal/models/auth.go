package models

import "time"

// RegisterRequest creates a password account.
type RegisterRequest struct {
	FullName string `json:"fullName" validate:"required,min=2,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=3,max=72"`
}

// LoginRequest holds credentials for authenticating a user from one device.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=3"`
	DeviceID  string `json:"deviceId" validate:"required,uuid"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshRequest exchanges a refresh token for a new token pair. The token and
// device id come from cookies or headers, never from the body.
type RefreshRequest struct {
	RefreshToken string
	DeviceID     string
	IP           string
	UserAgent    string
}

// LogoutRequest ends the caller's current session.
type LogoutRequest struct {
	UserID       string
	RefreshToken string
	DeviceID     string
}

// TokenPair is the credential set issued at login and on every refresh.
type TokenPair struct {
	AccessToken      string        `json:"-"`
	RefreshToken     string        `json:"-"`
	AccessExpiresIn  time.Duration `json:"-"`
	RefreshExpiresIn time.Duration `json:"-"`
	SessionID        string        `json:"-"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Tokens TokenPair
	User   UserInfo
	// Evicted counts sessions removed to stay within the per-user limit.
	Evicted int
}

// LoginResponse is the JSON body of a successful login.
type LoginResponse struct {
	Success bool     `json:"success"`
	User    UserInfo `json:"user"`
}

// RefreshResponse is the JSON body of a successful refresh.
type RefreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
}

// CountResponse reports how many rows an operation affected.
type CountResponse struct {
	Success bool  `json:"success"`
	Count   int64 `json:"count"`
}
