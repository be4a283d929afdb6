package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
)

// MemoryStore holds all data in memory. It is the backend for tests and
// for running without Postgres (USE_MEMORY_STORE=true).
type MemoryStore struct {
	users         map[string]*models.User       // keyed by UserID
	drivers       map[string]*models.Driver     // keyed by DriverID
	vehicles      map[string]*models.Vehicle    // keyed by VehicleID
	parkingLogs   map[string]*models.ParkingLog // keyed by LogID
	notifications []*models.NotificationLog
	recognitions  []*models.RecognitionLog
	audits        []*models.AuditLog
	authCodes     map[string]*models.AuthCode // keyed by UserID
	sessions      map[string]*models.Session  // keyed by SessionID

	// Mutexes for thread safety
	userMu    sync.RWMutex
	driverMu  sync.RWMutex
	vehicleMu sync.RWMutex
	parkingMu sync.RWMutex
	logMu     sync.Mutex
	authMu    sync.RWMutex
	sessionMu sync.RWMutex

	// Counters for ID generation
	userCounter    int
	driverCounter  int
	vehicleCounter int
	parkingCounter int
	notifCounter   int
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*models.User),
		drivers:     make(map[string]*models.Driver),
		vehicles:    make(map[string]*models.Vehicle),
		parkingLogs: make(map[string]*models.ParkingLog),
		authCodes:   make(map[string]*models.AuthCode),
		sessions:    make(map[string]*models.Session),
	}
}

// User operations

func (m *MemoryStore) CreateUser(user *models.User) (*models.User, error) {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	whatsapp := digits(user.WhatsApp)
	for _, u := range m.users {
		if u.WhatsApp == whatsapp {
			return nil, fmt.Errorf("whatsapp %s: %w", whatsapp, ErrDuplicate)
		}
	}

	m.userCounter++
	if user.UserID == "" {
		user.UserID = fmt.Sprintf("USR%05d", m.userCounter)
	}
	user.WhatsApp = whatsapp
	if user.Role == "" {
		user.Role = models.RoleOperator
	}
	user.Active = true
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	m.users[user.UserID] = user
	return user, nil
}

func (m *MemoryStore) GetUserByWhatsApp(whatsapp string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	whatsapp = digits(whatsapp)
	for _, u := range m.users {
		if u.WhatsApp == whatsapp {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", whatsapp, ErrNotFound)
}

func (m *MemoryStore) GetUserByID(userID string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, exists := m.users[userID]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return user, nil
}

func (m *MemoryStore) UpdateUser(user *models.User) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	if _, exists := m.users[user.UserID]; !exists {
		return fmt.Errorf("user %s: %w", user.UserID, ErrNotFound)
	}
	user.UpdatedAt = time.Now()
	m.users[user.UserID] = user
	return nil
}

func (m *MemoryStore) GetAllUsers() ([]*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	return users, nil
}

func (m *MemoryStore) CountUsers() (int64, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	return int64(len(m.users)), nil
}

// Driver operations

func (m *MemoryStore) CreateDriver(driver *models.Driver) (*models.Driver, error) {
	m.driverMu.Lock()
	defer m.driverMu.Unlock()

	document := digits(driver.Document)
	for _, d := range m.drivers {
		if d.Document == document {
			return nil, fmt.Errorf("document %s: %w", document, ErrDuplicate)
		}
	}

	m.driverCounter++
	if driver.DriverID == "" {
		driver.DriverID = fmt.Sprintf("DRV%05d", m.driverCounter)
	}
	driver.Document = document
	driver.Phone = digits(driver.Phone)
	driver.CreatedAt = time.Now()
	driver.UpdatedAt = time.Now()

	m.drivers[driver.DriverID] = driver
	return driver, nil
}

func (m *MemoryStore) GetDriverByDocument(document string) (*models.Driver, error) {
	m.driverMu.RLock()
	defer m.driverMu.RUnlock()

	document = digits(document)
	for _, d := range m.drivers {
		if d.Document == document {
			return d, nil
		}
	}
	return nil, fmt.Errorf("driver document %s: %w", document, ErrNotFound)
}

func (m *MemoryStore) GetDriverByPhone(phone string) (*models.Driver, error) {
	m.driverMu.RLock()
	defer m.driverMu.RUnlock()

	phone = digits(phone)
	for _, d := range m.drivers {
		if d.Phone == phone {
			return d, nil
		}
	}
	return nil, fmt.Errorf("driver phone %s: %w", phone, ErrNotFound)
}

func (m *MemoryStore) GetDriverByID(driverID string) (*models.Driver, error) {
	m.driverMu.RLock()
	defer m.driverMu.RUnlock()

	driver, exists := m.drivers[driverID]
	if !exists {
		return nil, fmt.Errorf("driver %s: %w", driverID, ErrNotFound)
	}
	return driver, nil
}

func (m *MemoryStore) GetAllDrivers() ([]*models.Driver, error) {
	m.driverMu.RLock()
	defer m.driverMu.RUnlock()

	drivers := make([]*models.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		drivers = append(drivers, d)
	}
	return drivers, nil
}

// Vehicle operations

func (m *MemoryStore) CreateVehicle(vehicle *models.Vehicle) (*models.Vehicle, error) {
	m.vehicleMu.Lock()
	defer m.vehicleMu.Unlock()

	plate := normalizePlate(vehicle.LicensePlate)
	for _, v := range m.vehicles {
		if v.LicensePlate == plate {
			return nil, fmt.Errorf("plate %s: %w", plate, ErrDuplicate)
		}
	}

	m.vehicleCounter++
	if vehicle.VehicleID == "" {
		vehicle.VehicleID = fmt.Sprintf("VEH%05d", m.vehicleCounter)
	}
	vehicle.LicensePlate = plate
	vehicle.CreatedAt = time.Now()
	vehicle.UpdatedAt = time.Now()

	m.vehicles[vehicle.VehicleID] = vehicle
	return vehicle, nil
}

func (m *MemoryStore) GetVehicleByPlate(plate string) (*models.Vehicle, error) {
	m.vehicleMu.RLock()
	defer m.vehicleMu.RUnlock()

	plate = normalizePlate(plate)
	for _, v := range m.vehicles {
		if v.LicensePlate == plate {
			return v, nil
		}
	}
	return nil, fmt.Errorf("vehicle %s: %w", plate, ErrNotFound)
}

func (m *MemoryStore) GetVehicleByID(vehicleID string) (*models.Vehicle, error) {
	m.vehicleMu.RLock()
	defer m.vehicleMu.RUnlock()

	vehicle, exists := m.vehicles[vehicleID]
	if !exists {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound)
	}
	return vehicle, nil
}

func (m *MemoryStore) GetAllVehicles() ([]*models.Vehicle, error) {
	m.vehicleMu.RLock()
	defer m.vehicleMu.RUnlock()

	vehicles := make([]*models.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// Parking log operations

func (m *MemoryStore) CreateParkingLog(entry *models.ParkingLog) (*models.ParkingLog, error) {
	m.parkingMu.Lock()
	defer m.parkingMu.Unlock()

	plate := normalizePlate(entry.LicensePlate)
	for _, p := range m.parkingLogs {
		if p.LicensePlate == plate && p.Status == models.ParkingOpen {
			return nil, fmt.Errorf("open parking log for %s: %w", plate, ErrDuplicate)
		}
	}

	m.parkingCounter++
	if entry.LogID == "" {
		entry.LogID = fmt.Sprintf("LOG%05d", m.parkingCounter)
	}
	entry.LicensePlate = plate
	if entry.Status == "" {
		entry.Status = models.ParkingOpen
	}
	if entry.EntryAt.IsZero() {
		entry.EntryAt = time.Now()
	}
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = time.Now()

	m.parkingLogs[entry.LogID] = entry
	return entry, nil
}

func (m *MemoryStore) GetOpenParkingLog(plate string) (*models.ParkingLog, error) {
	m.parkingMu.RLock()
	defer m.parkingMu.RUnlock()

	plate = normalizePlate(plate)
	for _, p := range m.parkingLogs {
		if p.LicensePlate == plate && p.Status == models.ParkingOpen {
			return p, nil
		}
	}
	return nil, fmt.Errorf("open parking log for %s: %w", plate, ErrNotFound)
}

func (m *MemoryStore) CloseParkingLog(logID string, exitAt time.Time) (*models.ParkingLog, error) {
	m.parkingMu.Lock()
	defer m.parkingMu.Unlock()

	entry, exists := m.parkingLogs[logID]
	if !exists {
		return nil, fmt.Errorf("parking log %s: %w", logID, ErrNotFound)
	}
	entry.ExitAt = &exitAt
	entry.Status = models.ParkingClosed
	entry.UpdatedAt = time.Now()
	return entry, nil
}

func (m *MemoryStore) GetOpenParkingLogs() ([]*models.ParkingLog, error) {
	m.parkingMu.RLock()
	defer m.parkingMu.RUnlock()

	var open []*models.ParkingLog
	for _, p := range m.parkingLogs {
		if p.Status == models.ParkingOpen {
			open = append(open, p)
		}
	}
	return open, nil
}

// Append-only logs

func (m *MemoryStore) CreateNotificationLog(n *models.NotificationLog) (*models.NotificationLog, error) {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	m.notifCounter++
	if n.NotificationID == "" {
		n.NotificationID = fmt.Sprintf("NTF%05d", m.notifCounter)
	}
	n.CreatedAt = time.Now()
	m.notifications = append(m.notifications, n)
	return n, nil
}

func (m *MemoryStore) CreateRecognitionLog(r *models.RecognitionLog) error {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	r.CreatedAt = time.Now()
	m.recognitions = append(m.recognitions, r)
	return nil
}

func (m *MemoryStore) CreateAuditLog(a *models.AuditLog) error {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	a.CreatedAt = time.Now()
	m.audits = append(m.audits, a)
	return nil
}

// NotificationLogs returns a snapshot of recorded notifications. Not
// part of the Store interface.
func (m *MemoryStore) NotificationLogs() []*models.NotificationLog {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	out := make([]*models.NotificationLog, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// RecognitionLogs returns a snapshot of recorded recognitions. Used by
// the stats endpoint and tests; not part of the Store interface.
func (m *MemoryStore) RecognitionLogs() []*models.RecognitionLog {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	out := make([]*models.RecognitionLog, len(m.recognitions))
	copy(out, m.recognitions)
	return out
}

// AuditLogs returns a snapshot of the audit trail.
func (m *MemoryStore) AuditLogs() []*models.AuditLog {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	out := make([]*models.AuditLog, len(m.audits))
	copy(out, m.audits)
	return out
}

// Auth code operations

func (m *MemoryStore) UpsertAuthCode(code *models.AuthCode) (*models.AuthCode, error) {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	code.CreatedAt = time.Now()
	code.UpdatedAt = time.Now()
	m.authCodes[code.UserID] = code
	return code, nil
}

func (m *MemoryStore) GetAuthCodeByUserID(userID string) (*models.AuthCode, error) {
	m.authMu.RLock()
	defer m.authMu.RUnlock()

	code, exists := m.authCodes[userID]
	if !exists {
		return nil, fmt.Errorf("auth code for %s: %w", userID, ErrNotFound)
	}
	return code, nil
}

func (m *MemoryStore) UpdateAuthCode(code *models.AuthCode) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	if _, exists := m.authCodes[code.UserID]; !exists {
		return fmt.Errorf("auth code for %s: %w", code.UserID, ErrNotFound)
	}
	code.UpdatedAt = time.Now()
	m.authCodes[code.UserID] = code
	return nil
}

func (m *MemoryStore) DeleteAuthCode(userID string) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	delete(m.authCodes, userID)
	return nil
}

func (m *MemoryStore) DeleteExpiredAuthCodes(now time.Time) (int64, error) {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	var removed int64
	for userID, code := range m.authCodes {
		if code.Expired(now) {
			delete(m.authCodes, userID)
			removed++
		}
	}
	return removed, nil
}

// Session operations

func (m *MemoryStore) CreateSession(s *models.Session) (*models.Session, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if _, exists := m.sessions[s.SessionID]; exists {
		return nil, fmt.Errorf("session %s: %w", s.SessionID, ErrDuplicate)
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
	m.sessions[s.SessionID] = s
	return s, nil
}

func (m *MemoryStore) GetSessionByID(sessionID string) (*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return s, nil
}

func (m *MemoryStore) TouchSession(sessionID string, at time.Time) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	s.LastAccess = at
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteSession(sessionID string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) DeleteExpiredSessions(now time.Time) (int64, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	var removed int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func digits(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, r)
		}
	}
	return string(out)
}

func normalizePlate(plate string) string {
	out := make([]rune, 0, len(plate))
	for _, r := range plate {
		if r == ' ' || r == '-' {
			continue
		}
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
