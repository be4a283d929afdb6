package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Vehicle is a registered car identified by its license plate
type Vehicle struct {
	gorm.Model

	VehicleID    string `json:"vehicle_id" gorm:"uniqueIndex"`
	LicensePlate string `json:"license_plate" gorm:"uniqueIndex"` // LLLNNNN or LLLNLNN, uppercase
	VehicleModel string `json:"model"`
	Color        string `json:"color"`
	DriverID     string `json:"driver_id" gorm:"index"`
}

// BeforeCreate hook to auto-generate VehicleID and normalize the plate
func (v *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if v.VehicleID == "" {
		v.VehicleID = fmt.Sprintf("VEH%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}
	v.LicensePlate = strings.ToUpper(strings.ReplaceAll(v.LicensePlate, " ", ""))
	return nil
}
