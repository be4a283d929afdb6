package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Driver is a vehicle owner/driver that can be notified about their car
type Driver struct {
	gorm.Model

	DriverID string `json:"driver_id" gorm:"uniqueIndex"`
	Name     string `json:"name"`
	Document string `json:"document" gorm:"uniqueIndex"` // CPF, digits only
	Phone    string `json:"phone" gorm:"index"`          // WhatsApp number for notifications
}

// BeforeCreate hook to auto-generate DriverID and normalize document/phone
func (d *Driver) BeforeCreate(tx *gorm.DB) error {
	if d.DriverID == "" {
		d.DriverID = fmt.Sprintf("DRV%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}
	d.Document = digitsOnly(d.Document)
	d.Phone = digitsOnly(d.Phone)
	return nil
}
