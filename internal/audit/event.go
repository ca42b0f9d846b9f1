// Package audit records security-relevant authentication events. Logging
// is asynchronous: publishing never blocks a request, and a full buffer
// drops the oldest event rather than the newest.
package audit

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// EventType names an auditable occurrence.
type EventType string

const (
	EventLoginSuccess    EventType = "login_success"
	EventLoginFailure    EventType = "login_failure"
	EventLoginBlocked    EventType = "login_blocked"
	EventTokenRefreshed  EventType = "token_refreshed"
	EventRefreshReused   EventType = "refresh_reuse_detected"
	EventLogout          EventType = "logout"
	EventSessionRevoked  EventType = "session_revoked"
	EventPasswordChanged EventType = "password_changed"
	EventSystemStartup   EventType = "system_startup"
	EventSystemShutdown  EventType = "system_shutdown"
)

// Event is one audit record. Username may be empty when the subject could
// not be established (e.g. malformed credentials).
type Event struct {
	EventID       string         `json:"event_id"`
	EventType     EventType      `json:"event_type"`
	Timestamp     time.Time      `json:"timestamp"`
	Username      string         `json:"username,omitempty"`
	ClientIP      string         `json:"client_ip,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Detail        map[string]any `json:"detail,omitempty"`
}

func generateEventID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return "evt-" + hex.EncodeToString(b)
}
