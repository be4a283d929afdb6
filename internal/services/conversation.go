package services

import (
	"errors"
	"sync"
	"time"
)

// State tags of the conversation machine.
type State string

const (
	StateIdle                State = "idle"
	StateAwaitingIdentity    State = "awaiting_identity"
	StateAwaitingCode        State = "awaiting_code"
	StateMenu                State = "menu"
	StateRecognizingPlate    State = "recognizing_plate"
	StatePlateAction         State = "plate_action"
	StateRegisteringVehicle  State = "registering_vehicle"
	StateRegisteringDriver   State = "registering_driver"
	StateSendingNotification State = "sending_notification"
	StateManagingUsers       State = "managing_users"
)

// ErrNoActiveState is returned when a context update targets a user
// that has no conversation record: context cannot be attached to a
// nonexistent state.
var ErrNoActiveState = errors.New("no active conversation state")

// Purposes of a plate recognition round.
const (
	PurposeEntry = "entry"
	PurposeExit  = "exit"
)

// Context carries the per-user workflow data. One typed sub-struct per
// workflow instead of an open map; only the fields the current state
// needs are ever non-nil.
type Context struct {
	// Auth sub-flow.
	Identity   string // typed account identity, digits
	IssuedCode string // code surfaced back to the chat

	// Populated after login.
	UserID    string
	UserName  string
	Role      string
	SessionID string

	Recognition  *RecognitionContext
	PlateAction  *PlateActionContext
	Vehicle      *VehicleRegistration
	Driver       *DriverRegistration
	Notification *NotificationDraft
	UserAdmin    *UserAdminFlow
}

// Authenticated reports whether the context carries a login.
func (c *Context) Authenticated() bool {
	return c.SessionID != ""
}

// ClearWorkflows drops every in-progress workflow, keeping the login.
func (c *Context) ClearWorkflows() {
	c.Recognition = nil
	c.PlateAction = nil
	c.Vehicle = nil
	c.Driver = nil
	c.Notification = nil
	c.UserAdmin = nil
}

// RecognitionContext: waiting for a plate photo or typed plate.
type RecognitionContext struct {
	Purpose string // "entry" or "exit"
}

// PlateActionContext: a plate was accepted and awaits confirmation.
type PlateActionContext struct {
	Purpose      string
	Plate        string
	Confidence   float64
	IsRegistered bool
}

// VehicleRegistration is the registering_vehicle step sequence. When
// the driver document matches nobody, the inline driver sub-flow runs
// inside PendingDriver while the vehicle fields wait here.
type VehicleRegistration struct {
	Step          string // plate, model, color, driver_document, driver_missing, confirm
	Plate         string
	VehicleModel  string
	Color         string
	DriverDoc     string
	DriverID      string
	PendingDriver *DriverRegistration
}

// DriverRegistration is the registering_driver step sequence, also
// nested inside vehicle registration.
type DriverRegistration struct {
	Step     string // name, document, phone, confirm
	Name     string
	Document string
	Phone    string
}

// NotificationDraft is the sending_notification step sequence.
type NotificationDraft struct {
	Step      string // target, message, confirm
	DriverID  string
	Plate     string // set when the target was resolved from a plate
	Recipient string // resolved phone, digits
	Message   string
}

// UserAdminFlow is the managing_users step sequence (admin only).
type UserAdminFlow struct {
	Step   string // action, name, phone, role, confirm, disable_phone, disable_confirm
	Action string // add, disable, list
	Name   string
	Phone  string
	Role   string
	Target string // UserID being disabled
}

// Conversation is one user's state record.
type Conversation struct {
	State     State
	Context   Context
	UpdatedAt time.Time
}

// ConversationStore holds per-user conversation records. Updates are
// applied as closures under the store lock so read-modify-write races
// on one user's context cannot lose writes; the Router additionally
// serializes whole handlers per user.
type ConversationStore interface {
	// Get returns a copy of the record, if any.
	Get(userKey string) (Conversation, bool)
	// Ensure creates the record at idle on first contact and returns a
	// copy of whatever is stored.
	Ensure(userKey string) Conversation
	// SetState replaces the state tag, preserving context. Creates the
	// record when missing.
	SetState(userKey string, state State)
	// UpdateContext applies the mutation atomically. Fails with
	// ErrNoActiveState when the user has no record.
	UpdateContext(userKey string, apply func(*Context)) error
	// Clear removes the record entirely (logout).
	Clear(userKey string)
	// StaleUnauthenticated lists users stuck before login whose record
	// has not moved since the cutoff. Used by the sweeper.
	StaleUnauthenticated(cutoff time.Time) []string
}

// MemoryConversationStore is the shipped implementation: a mutex-guarded
// map, single-process best-effort as designed.
type MemoryConversationStore struct {
	mu      sync.RWMutex
	records map[string]*Conversation
}

// NewConversationStore creates the in-memory conversation store
func NewConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		records: make(map[string]*Conversation),
	}
}

func (s *MemoryConversationStore) Get(userKey string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userKey]
	if !ok {
		return Conversation{}, false
	}
	return *rec, true
}

func (s *MemoryConversationStore) Ensure(userKey string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userKey]
	if !ok {
		rec = &Conversation{State: StateIdle, UpdatedAt: time.Now()}
		s.records[userKey] = rec
	}
	return *rec
}

func (s *MemoryConversationStore) SetState(userKey string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userKey]
	if !ok {
		rec = &Conversation{}
		s.records[userKey] = rec
	}
	rec.State = state
	rec.UpdatedAt = time.Now()
}

func (s *MemoryConversationStore) UpdateContext(userKey string, apply func(*Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userKey]
	if !ok {
		return ErrNoActiveState
	}
	apply(&rec.Context)
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryConversationStore) Clear(userKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, userKey)
}

func (s *MemoryConversationStore) StaleUnauthenticated(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []string
	for key, rec := range s.records {
		if rec.Context.Authenticated() {
			continue
		}
		if rec.UpdatedAt.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	return stale
}
