package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Activity actions recorded in activity_logs.
const (
	ActionRegisterUser        = "register_user"
	ActionLoginUser           = "login_user"
	ActionRefreshToken        = "refresh_token"
	ActionLogoutUser          = "logout_user"
	ActionLogoutAllSessions   = "logout_all_sessions"
	ActionDeleteOtherSessions = "delete_other_sessions"
	ActionDeleteSession       = "delete_session"
	ActionViewSessions        = "view_sessions"
	ActionViewMe              = "view_me"
	ActionViewUserDevices     = "view_user_devices"
	ActionViewUserActivity    = "view_user_activity"
	ActionDeviceMismatch      = "device_mismatch"
)

// ActivityLog is one row of the per-user activity trail.
type ActivityLog struct {
	ID        int64          `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"userId"`
	Action    string         `db:"action" json:"action"`
	IP        *string        `db:"ip" json:"ip"`
	UserAgent *string        `db:"user_agent" json:"userAgent"`
	RequestID *string        `db:"request_id" json:"requestId,omitempty"`
	Method    *string        `db:"method" json:"method,omitempty"`
	URL       *string        `db:"url" json:"url,omitempty"`
	LatencyMS *float64       `db:"latency_ms" json:"latencyMs,omitempty"`
	Meta      types.JSONText `db:"meta" json:"meta"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// RequestMeta carries the HTTP details attached to an activity entry.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
	Method    string
	URL       string
	StartedAt time.Time
}
