package models

import (
	"time"

	"gorm.io/gorm"
)

// Session represents an authenticated conversation. Expiry is checked
// lazily on use; the sweeper eventually removes expired rows.
type Session struct {
	gorm.Model

	SessionID  string    `json:"session_id" gorm:"uniqueIndex;not null"` // opaque uuid
	UserID     string    `json:"user_id" gorm:"index"`
	DeviceInfo string    `json:"device_info"` // transport sender identifier
	ExpiresAt  time.Time `json:"expires_at"`
	LastAccess time.Time `json:"last_access"`
}

// Expired reports whether the session is past its lifetime.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
