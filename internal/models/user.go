package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Roles an operator account can hold.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// User represents a parking-facility operator allowed to talk to the bot
type User struct {
	gorm.Model

	UserID    string     `json:"user_id" gorm:"uniqueIndex"`
	Name      string     `json:"name"`
	WhatsApp  string     `json:"whatsapp" gorm:"uniqueIndex"` // registered identity, digits only
	Role      string     `json:"role" gorm:"default:operator"`
	Active    bool       `json:"active" gorm:"default:true"`
	LastLogin *time.Time `json:"last_login"`
}

// BeforeCreate hook to auto-generate UserID and normalize the identity
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == "" {
		u.UserID = fmt.Sprintf("USR%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}
	u.WhatsApp = digitsOnly(u.WhatsApp)
	if u.Role == "" {
		u.Role = RoleOperator
	}
	return nil
}

// IsAdmin reports whether the account may use administrative menu options.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func digitsOnly(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, r)
		}
	}
	return string(out)
}
