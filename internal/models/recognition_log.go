package models

import (
	"gorm.io/gorm"
)

// Recognition sources.
const (
	RecognitionSourceImage  = "image"
	RecognitionSourceManual = "manual"
)

// RecognitionLog records one accepted plate-recognition result,
// including how long the external recognizer took.
type RecognitionLog struct {
	gorm.Model

	LicensePlate string  `json:"license_plate" gorm:"index"`
	Source       string  `json:"source"` // image, manual
	Confidence   float64 `json:"confidence"`
	KnownVehicle bool    `json:"known_vehicle"`
	LatencyMs    int64   `json:"latency_ms"`
	OperatorID   string  `json:"operator_id"`
}
