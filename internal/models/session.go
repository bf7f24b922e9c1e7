package models

import "time"

// Session is a refresh-token session bound to one device. Rows are never
// updated: rotation replaces them.
type Session struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"userId"`
	RefreshTokenHash string    `db:"refresh_token_hash" json:"-"`
	DeviceID         string    `db:"device_id" json:"deviceId"`
	UserAgent        *string   `db:"user_agent" json:"userAgent"`
	IP               *string   `db:"ip" json:"ip"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
	ExpiresAt        time.Time `db:"expires_at" json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionView is a session as shown to its owner or an administrator.
type SessionView struct {
	ID        string     `json:"id"`
	DeviceID  string     `json:"deviceId"`
	UserAgent *string    `json:"userAgent"`
	IP        *string    `json:"ip"`
	Device    DeviceInfo `json:"device"`
	Current   bool       `json:"current"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// NewSessionView projects s, marking it current when it belongs to currentDeviceID.
func NewSessionView(s Session, currentDeviceID string) SessionView {
	ua := ""
	if s.UserAgent != nil {
		ua = *s.UserAgent
	}
	return SessionView{
		ID:        s.ID,
		DeviceID:  s.DeviceID,
		UserAgent: s.UserAgent,
		IP:        s.IP,
		Device:    ParseUserAgent(ua),
		Current:   currentDeviceID != "" && s.DeviceID == currentDeviceID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}
