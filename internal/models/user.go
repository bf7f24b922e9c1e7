package models

import "time"

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"fullName"`
	Role         Role      `db:"role" json:"role"`
	TenantID     string    `db:"tenant_id" json:"tenantId"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"-"`
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Identity is the minimal view of the caller resolved from an access token.
type Identity struct {
	ID       string `db:"id" json:"id"`
	Email    string `db:"email" json:"email"`
	Role     Role   `db:"role" json:"role"`
	TenantID string `db:"tenant_id" json:"tenantId"`
}

// Can reports whether the identity's role grants capability.
func (i *Identity) Can(capability Capability) bool {
	return i != nil && i.Role.Can(capability)
}

// UserInfo describes the authenticated user in login responses.
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     Role   `json:"role"`
	TenantID string `json:"tenantId"`
}

// NewUserInfo projects u for API responses.
func NewUserInfo(u *User) UserInfo {
	return UserInfo{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role, TenantID: u.TenantID}
}
