package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
)

// DatabaseStore implements Store on top of GORM/Postgres.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store backed by the given GORM connection
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	default:
		return err
	}
}

// User operations

func (d *DatabaseStore) CreateUser(user *models.User) (*models.User, error) {
	user.Active = true
	if err := d.db.Create(user).Error; err != nil {
		return nil, translate(err, "user "+user.WhatsApp)
	}
	return user, nil
}

func (d *DatabaseStore) GetUserByWhatsApp(whatsapp string) (*models.User, error) {
	var user models.User
	err := d.db.Where("whats_app = ?", whatsapp).First(&user).Error
	if err != nil {
		return nil, translate(err, "user "+whatsapp)
	}
	return &user, nil
}

func (d *DatabaseStore) GetUserByID(userID string) (*models.User, error) {
	var user models.User
	err := d.db.Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		return nil, translate(err, "user "+userID)
	}
	return &user, nil
}

func (d *DatabaseStore) UpdateUser(user *models.User) error {
	return translate(d.db.Save(user).Error, "user "+user.UserID)
}

func (d *DatabaseStore) GetAllUsers() ([]*models.User, error) {
	var users []*models.User
	err := d.db.Order("created_at").Find(&users).Error
	return users, translate(err, "users")
}

func (d *DatabaseStore) CountUsers() (int64, error) {
	var count int64
	err := d.db.Model(&models.User{}).Count(&count).Error
	return count, translate(err, "users")
}

// Driver operations

func (d *DatabaseStore) CreateDriver(driver *models.Driver) (*models.Driver, error) {
	if err := d.db.Create(driver).Error; err != nil {
		return nil, translate(err, "driver "+driver.Document)
	}
	return driver, nil
}

func (d *DatabaseStore) GetDriverByDocument(document string) (*models.Driver, error) {
	var driver models.Driver
	err := d.db.Where("document = ?", document).First(&driver).Error
	if err != nil {
		return nil, translate(err, "driver document "+document)
	}
	return &driver, nil
}

func (d *DatabaseStore) GetDriverByPhone(phone string) (*models.Driver, error) {
	var driver models.Driver
	err := d.db.Where("phone = ?", phone).First(&driver).Error
	if err != nil {
		return nil, translate(err, "driver phone "+phone)
	}
	return &driver, nil
}

func (d *DatabaseStore) GetDriverByID(driverID string) (*models.Driver, error) {
	var driver models.Driver
	err := d.db.Where("driver_id = ?", driverID).First(&driver).Error
	if err != nil {
		return nil, translate(err, "driver "+driverID)
	}
	return &driver, nil
}

func (d *DatabaseStore) GetAllDrivers() ([]*models.Driver, error) {
	var drivers []*models.Driver
	err := d.db.Order("name").Find(&drivers).Error
	return drivers, translate(err, "drivers")
}

// Vehicle operations

func (d *DatabaseStore) CreateVehicle(vehicle *models.Vehicle) (*models.Vehicle, error) {
	if err := d.db.Create(vehicle).Error; err != nil {
		return nil, translate(err, "vehicle "+vehicle.LicensePlate)
	}
	return vehicle, nil
}

func (d *DatabaseStore) GetVehicleByPlate(plate string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := d.db.Where("license_plate = ?", plate).First(&vehicle).Error
	if err != nil {
		return nil, translate(err, "vehicle "+plate)
	}
	return &vehicle, nil
}

func (d *DatabaseStore) GetVehicleByID(vehicleID string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := d.db.Where("vehicle_id = ?", vehicleID).First(&vehicle).Error
	if err != nil {
		return nil, translate(err, "vehicle "+vehicleID)
	}
	return &vehicle, nil
}

func (d *DatabaseStore) GetAllVehicles() ([]*models.Vehicle, error) {
	var vehicles []*models.Vehicle
	err := d.db.Order("license_plate").Find(&vehicles).Error
	return vehicles, translate(err, "vehicles")
}

// Parking log operations

func (d *DatabaseStore) CreateParkingLog(entry *models.ParkingLog) (*models.ParkingLog, error) {
	// One open stay per plate.
	var open int64
	err := d.db.Model(&models.ParkingLog{}).
		Where("license_plate = ? AND status = ?", entry.LicensePlate, models.ParkingOpen).
		Count(&open).Error
	if err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, fmt.Errorf("open parking log for %s: %w", entry.LicensePlate, ErrDuplicate)
	}
	if err := d.db.Create(entry).Error; err != nil {
		return nil, translate(err, "parking log "+entry.LicensePlate)
	}
	return entry, nil
}

func (d *DatabaseStore) GetOpenParkingLog(plate string) (*models.ParkingLog, error) {
	var entry models.ParkingLog
	err := d.db.Where("license_plate = ? AND status = ?", plate, models.ParkingOpen).
		Order("entry_at DESC").First(&entry).Error
	if err != nil {
		return nil, translate(err, "open parking log for "+plate)
	}
	return &entry, nil
}

func (d *DatabaseStore) CloseParkingLog(logID string, exitAt time.Time) (*models.ParkingLog, error) {
	var entry models.ParkingLog
	if err := d.db.Where("log_id = ?", logID).First(&entry).Error; err != nil {
		return nil, translate(err, "parking log "+logID)
	}
	entry.ExitAt = &exitAt
	entry.Status = models.ParkingClosed
	if err := d.db.Save(&entry).Error; err != nil {
		return nil, translate(err, "parking log "+logID)
	}
	return &entry, nil
}

func (d *DatabaseStore) GetOpenParkingLogs() ([]*models.ParkingLog, error) {
	var open []*models.ParkingLog
	err := d.db.Where("status = ?", models.ParkingOpen).Order("entry_at").Find(&open).Error
	return open, translate(err, "open parking logs")
}

// Append-only logs

func (d *DatabaseStore) CreateNotificationLog(n *models.NotificationLog) (*models.NotificationLog, error) {
	if err := d.db.Create(n).Error; err != nil {
		return nil, translate(err, "notification log")
	}
	return n, nil
}

func (d *DatabaseStore) CreateRecognitionLog(r *models.RecognitionLog) error {
	return translate(d.db.Create(r).Error, "recognition log")
}

func (d *DatabaseStore) CreateAuditLog(a *models.AuditLog) error {
	return translate(d.db.Create(a).Error, "audit log")
}

// Auth code operations

func (d *DatabaseStore) UpsertAuthCode(code *models.AuthCode) (*models.AuthCode, error) {
	err := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "attempts", "expires_at", "updated_at"}),
	}).Create(code).Error
	if err != nil {
		return nil, translate(err, "auth code for "+code.UserID)
	}
	return code, nil
}

func (d *DatabaseStore) GetAuthCodeByUserID(userID string) (*models.AuthCode, error) {
	var code models.AuthCode
	err := d.db.Where("user_id = ?", userID).First(&code).Error
	if err != nil {
		return nil, translate(err, "auth code for "+userID)
	}
	return &code, nil
}

func (d *DatabaseStore) UpdateAuthCode(code *models.AuthCode) error {
	return translate(d.db.Model(&models.AuthCode{}).
		Where("user_id = ?", code.UserID).
		Updates(map[string]interface{}{"attempts": code.Attempts, "code": code.Code, "expires_at": code.ExpiresAt}).Error,
		"auth code for "+code.UserID)
}

func (d *DatabaseStore) DeleteAuthCode(userID string) error {
	return translate(d.db.Unscoped().Where("user_id = ?", userID).
		Delete(&models.AuthCode{}).Error, "auth code for "+userID)
}

func (d *DatabaseStore) DeleteExpiredAuthCodes(now time.Time) (int64, error) {
	res := d.db.Unscoped().Where("expires_at < ?", now).Delete(&models.AuthCode{})
	return res.RowsAffected, translate(res.Error, "expired auth codes")
}

// Session operations

func (d *DatabaseStore) CreateSession(s *models.Session) (*models.Session, error) {
	if err := d.db.Create(s).Error; err != nil {
		return nil, translate(err, "session "+s.SessionID)
	}
	return s, nil
}

func (d *DatabaseStore) GetSessionByID(sessionID string) (*models.Session, error) {
	var s models.Session
	err := d.db.Where("session_id = ?", sessionID).First(&s).Error
	if err != nil {
		return nil, translate(err, "session "+sessionID)
	}
	return &s, nil
}

func (d *DatabaseStore) TouchSession(sessionID string, at time.Time) error {
	return translate(d.db.Model(&models.Session{}).
		Where("session_id = ?", sessionID).
		Update("last_access", at).Error, "session "+sessionID)
}

func (d *DatabaseStore) DeleteSession(sessionID string) error {
	return translate(d.db.Unscoped().Where("session_id = ?", sessionID).
		Delete(&models.Session{}).Error, "session "+sessionID)
}

func (d *DatabaseStore) DeleteExpiredSessions(now time.Time) (int64, error) {
	res := d.db.Unscoped().Where("expires_at < ?", now).Delete(&models.Session{})
	return res.RowsAffected, translate(res.Error, "expired sessions")
}
