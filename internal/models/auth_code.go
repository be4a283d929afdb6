package models

import (
	"time"

	"gorm.io/gorm"
)

// AuthCode is a short-lived numeric credential. At most one row exists
// per user (upsert on issue); deleted on successful verification.
type AuthCode struct {
	gorm.Model

	UserID    string    `json:"user_id" gorm:"uniqueIndex;not null"`
	Code      string    `json:"-" gorm:"not null"` // 6 digits
	Attempts  int       `json:"attempts" gorm:"default:0"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
}

// Expired reports whether the code can no longer be verified.
func (c *AuthCode) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}
