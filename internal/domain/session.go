// Package domain contains core domain types for the Biomni session client.
package domain

import (
	"time"
)

// Session identifies one logical conversation with the backend agent.
// The session ID is opaque and stable for the conversation's lifetime;
// it is created once and never mutated.
type Session struct {
	SessionID  string    `json:"session_id"`
	Title      string    `json:"title,omitempty"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Age returns the time elapsed since the session was last used.
func (s *Session) Age() time.Duration {
	return time.Since(s.LastUsedAt)
}

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return s.Age() > ttl
}
