package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// NotificationLog records every message sent to a driver through the bot
type NotificationLog struct {
	gorm.Model

	NotificationID string `json:"notification_id" gorm:"uniqueIndex"`
	RecipientPhone string `json:"recipient_phone" gorm:"index"`
	DriverID       string `json:"driver_id"`
	Message        string `json:"message"`
	Status         string `json:"status" gorm:"default:sent"` // sent, failed
	SentBy         string `json:"sent_by"`                    // UserID of the operator
}

func (n *NotificationLog) BeforeCreate(tx *gorm.DB) error {
	if n.NotificationID == "" {
		n.NotificationID = fmt.Sprintf("NTF%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}
	return nil
}
