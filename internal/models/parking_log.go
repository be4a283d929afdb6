package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ParkingLog statuses.
const (
	ParkingOpen   = "open"
	ParkingClosed = "closed"
)

// ParkingLog records one stay of a vehicle in the facility. A vehicle
// has at most one open log at a time; exit closes it.
type ParkingLog struct {
	gorm.Model

	LogID        string     `json:"log_id" gorm:"uniqueIndex"`
	LicensePlate string     `json:"license_plate" gorm:"index"`
	VehicleID    string     `json:"vehicle_id" gorm:"index"`
	OperatorID   string     `json:"operator_id"` // UserID that confirmed the movement
	EntryAt      time.Time  `json:"entry_at"`
	ExitAt       *time.Time `json:"exit_at"`
	Status       string     `json:"status" gorm:"default:open"` // open, closed
}

// BeforeCreate hook to auto-generate LogID and normalize the plate
func (p *ParkingLog) BeforeCreate(tx *gorm.DB) error {
	if p.LogID == "" {
		p.LogID = fmt.Sprintf("LOG%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}
	p.LicensePlate = strings.ToUpper(strings.ReplaceAll(p.LicensePlate, " ", ""))
	if p.Status == "" {
		p.Status = ParkingOpen
	}
	if p.EntryAt.IsZero() {
		p.EntryAt = time.Now()
	}
	return nil
}

// Duration returns how long the vehicle stayed (or has been) inside.
func (p *ParkingLog) Duration() time.Duration {
	if p.ExitAt != nil {
		return p.ExitAt.Sub(p.EntryAt)
	}
	return time.Since(p.EntryAt)
}
