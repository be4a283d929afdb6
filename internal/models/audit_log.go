package models

import (
	"gorm.io/gorm"
)

// Audit actions published on the event bus.
const (
	AuditLogin        = "login"
	AuditLogout       = "logout"
	AuditEntry        = "parking_entry"
	AuditExit         = "parking_exit"
	AuditVehicleNew   = "vehicle_created"
	AuditDriverNew    = "driver_created"
	AuditUserNew      = "user_created"
	AuditUserDisabled = "user_disabled"
	AuditNotification = "notification_sent"
)

// AuditLog is an append-only trail of operator actions.
type AuditLog struct {
	gorm.Model

	UserID string `json:"user_id" gorm:"index"`
	Action string `json:"action" gorm:"index"`
	Detail string `json:"detail"`
}
