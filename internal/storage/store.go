package storage

import (
	"errors"
	"time"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
)

// Sentinel errors shared by every backend. Callers discriminate with
// errors.Is instead of matching message text.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

var storeInstance Store

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Store defines the interface for storage operations
type Store interface {
	// User operations
	CreateUser(user *models.User) (*models.User, error)
	GetUserByWhatsApp(whatsapp string) (*models.User, error)
	GetUserByID(userID string) (*models.User, error)
	UpdateUser(user *models.User) error
	GetAllUsers() ([]*models.User, error)
	CountUsers() (int64, error)

	// Driver operations
	CreateDriver(driver *models.Driver) (*models.Driver, error)
	GetDriverByDocument(document string) (*models.Driver, error)
	GetDriverByPhone(phone string) (*models.Driver, error)
	GetDriverByID(driverID string) (*models.Driver, error)
	GetAllDrivers() ([]*models.Driver, error)

	// Vehicle operations
	CreateVehicle(vehicle *models.Vehicle) (*models.Vehicle, error)
	GetVehicleByPlate(plate string) (*models.Vehicle, error)
	GetVehicleByID(vehicleID string) (*models.Vehicle, error)
	GetAllVehicles() ([]*models.Vehicle, error)

	// Parking log operations
	CreateParkingLog(entry *models.ParkingLog) (*models.ParkingLog, error)
	GetOpenParkingLog(plate string) (*models.ParkingLog, error)
	CloseParkingLog(logID string, exitAt time.Time) (*models.ParkingLog, error)
	GetOpenParkingLogs() ([]*models.ParkingLog, error)

	// Append-only logs
	CreateNotificationLog(n *models.NotificationLog) (*models.NotificationLog, error)
	CreateRecognitionLog(r *models.RecognitionLog) error
	CreateAuditLog(a *models.AuditLog) error

	// Auth code operations (at most one row per user, upsert semantics)
	UpsertAuthCode(code *models.AuthCode) (*models.AuthCode, error)
	GetAuthCodeByUserID(userID string) (*models.AuthCode, error)
	UpdateAuthCode(code *models.AuthCode) error
	DeleteAuthCode(userID string) error
	DeleteExpiredAuthCodes(now time.Time) (int64, error)

	// Session operations
	CreateSession(s *models.Session) (*models.Session, error)
	GetSessionByID(sessionID string) (*models.Session, error)
	TouchSession(sessionID string, at time.Time) error
	DeleteSession(sessionID string) error
	DeleteExpiredSessions(now time.Time) (int64, error)
}
