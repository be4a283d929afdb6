package services

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/utils"
)

// Failure reasons returned in-band by the auth service. The caller
// always gets a discriminated result, never an error value: storage
// faults collapse into AuthServiceError (cause logged server-side).
const (
	ReasonUnknownOrInactiveUser = "UnknownOrInactiveUser"
	ReasonNoPendingCode         = "NoPendingCode"
	ReasonCodeExpired           = "CodeExpired"
	ReasonTooManyAttempts       = "TooManyAttempts"
	ReasonCodeMismatch          = "CodeMismatch"
	ReasonAuthServiceError      = "AuthServiceError"
)

// InitiateResult is the outcome of initiateAuth / issueInitialCode.
type InitiateResult struct {
	Issued bool
	Code   string
	Reason string
}

// AuthUser is the minimal projection returned on successful login.
type AuthUser struct {
	UserID   string
	Name     string
	WhatsApp string
	Role     string
}

// VerifyResult is the outcome of verifyCode. Remaining carries how many
// attempts are left after a mismatch so the chat layer can warn the
// user before the code locks.
type VerifyResult struct {
	Authenticated bool
	User          *AuthUser
	SessionID     string
	Reason        string
	Remaining     int
}

// AuthService issues and verifies short-lived numeric codes and manages
// the long-lived sessions created on successful verification.
type AuthService struct {
	store       storage.Store
	codeTTL     time.Duration
	sessionTTL  time.Duration
	maxAttempts int
}

// NewAuthService creates the auth service with the configured lifetimes
func NewAuthService(store storage.Store, codeTTL, sessionTTL time.Duration, maxAttempts int) *AuthService {
	return &AuthService{
		store:       store,
		codeTTL:     codeTTL,
		sessionTTL:  sessionTTL,
		maxAttempts: maxAttempts,
	}
}

// resolveIdentity accepts either form of identity: the registered
// WhatsApp number (any punctuation) or the generated user ID.
func (s *AuthService) resolveIdentity(identity string) (*models.User, error) {
	identity = strings.TrimSpace(identity)
	if id := strings.ToUpper(identity); strings.HasPrefix(id, "USR") {
		return s.store.GetUserByID(id)
	}
	return s.store.GetUserByWhatsApp(utils.Digits(identity))
}

// InitiateAuth looks up an active account by identity and issues a
// fresh 6-digit code for it, superseding any pending one. The code is
// returned to the caller; the chat layer decides how to surface it.
func (s *AuthService) InitiateAuth(identity string) InitiateResult {
	user, err := s.resolveIdentity(identity)
	if errors.Is(err, storage.ErrNotFound) {
		return InitiateResult{Reason: ReasonUnknownOrInactiveUser}
	}
	if err != nil {
		zap.S().Errorf("❌ initiateAuth lookup failed for %s: %v", identity, err)
		return InitiateResult{Reason: ReasonAuthServiceError}
	}
	if !user.Active {
		return InitiateResult{Reason: ReasonUnknownOrInactiveUser}
	}

	return s.issueCode(user)
}

// IssueInitialCode is the administrative bootstrap variant: it skips
// the active-account check so the very first admin can log in.
func (s *AuthService) IssueInitialCode(userID string) InitiateResult {
	user, err := s.store.GetUserByID(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return InitiateResult{Reason: ReasonUnknownOrInactiveUser}
	}
	if err != nil {
		zap.S().Errorf("❌ issueInitialCode lookup failed for %s: %v", userID, err)
		return InitiateResult{Reason: ReasonAuthServiceError}
	}

	return s.issueCode(user)
}

func (s *AuthService) issueCode(user *models.User) InitiateResult {
	code, err := utils.GenerateAuthCode()
	if err != nil {
		zap.S().Errorf("❌ Failed to generate auth code: %v", err)
		return InitiateResult{Reason: ReasonAuthServiceError}
	}

	_, err = s.store.UpsertAuthCode(&models.AuthCode{
		UserID:    user.UserID,
		Code:      code,
		Attempts:  0,
		ExpiresAt: time.Now().Add(s.codeTTL),
	})
	if err != nil {
		zap.S().Errorf("❌ Failed to persist auth code for %s: %v", user.UserID, err)
		return InitiateResult{Reason: ReasonAuthServiceError}
	}

	zap.S().Infof("🔑 Auth code issued for %s (expires in %s)", user.UserID, s.codeTTL)
	return InitiateResult{Issued: true, Code: code}
}

// VerifyCode checks a submitted code. Every attempt is counted and
// persisted before the comparison, so a crash cannot forget a guess.
// On match the code is deleted (single use) and a session is minted.
func (s *AuthService) VerifyCode(identity, submitted, deviceInfo string) VerifyResult {
	user, err := s.resolveIdentity(identity)
	if errors.Is(err, storage.ErrNotFound) {
		return VerifyResult{Reason: ReasonUnknownOrInactiveUser}
	}
	if err != nil {
		zap.S().Errorf("❌ verifyCode lookup failed for %s: %v", identity, err)
		return VerifyResult{Reason: ReasonAuthServiceError}
	}
	if !user.Active {
		return VerifyResult{Reason: ReasonUnknownOrInactiveUser}
	}

	code, err := s.store.GetAuthCodeByUserID(user.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return VerifyResult{Reason: ReasonNoPendingCode}
	}
	if err != nil {
		zap.S().Errorf("❌ verifyCode code lookup failed for %s: %v", user.UserID, err)
		return VerifyResult{Reason: ReasonAuthServiceError}
	}

	now := time.Now()
	if code.Expired(now) {
		return VerifyResult{Reason: ReasonCodeExpired}
	}

	// Checked before incrementing: once the counter hits the limit no
	// further attempt touches the stored code.
	if code.Attempts >= s.maxAttempts {
		return VerifyResult{Reason: ReasonTooManyAttempts}
	}

	code.Attempts++
	if err := s.store.UpdateAuthCode(code); err != nil {
		zap.S().Errorf("❌ Failed to persist attempt count for %s: %v", user.UserID, err)
		return VerifyResult{Reason: ReasonAuthServiceError}
	}

	if code.Code != submitted {
		return VerifyResult{
			Reason:    ReasonCodeMismatch,
			Remaining: s.maxAttempts - code.Attempts,
		}
	}

	sessionID := uuid.New().String()
	_, err = s.store.CreateSession(&models.Session{
		SessionID:  sessionID,
		UserID:     user.UserID,
		DeviceInfo: deviceInfo,
		ExpiresAt:  now.Add(s.sessionTTL),
		LastAccess: now,
	})
	if err != nil {
		zap.S().Errorf("❌ Failed to create session for %s: %v", user.UserID, err)
		return VerifyResult{Reason: ReasonAuthServiceError}
	}

	user.LastLogin = &now
	if err := s.store.UpdateUser(user); err != nil {
		zap.S().Warnf("⚠️ Failed to stamp last login for %s: %v", user.UserID, err)
	}

	if err := s.store.DeleteAuthCode(user.UserID); err != nil {
		zap.S().Warnf("⚠️ Failed to delete used auth code for %s: %v", user.UserID, err)
	}

	zap.S().Infof("✅ %s authenticated (session %s)", user.UserID, sessionID[:8])
	return VerifyResult{
		Authenticated: true,
		SessionID:     sessionID,
		User: &AuthUser{
			UserID:   user.UserID,
			Name:     user.Name,
			WhatsApp: user.WhatsApp,
			Role:     user.Role,
		},
	}
}

// EndSession deletes the session; a missing session is not an error.
func (s *AuthService) EndSession(sessionID string) {
	if sessionID == "" {
		return
	}
	if err := s.store.DeleteSession(sessionID); err != nil {
		zap.S().Warnf("⚠️ Failed to delete session %s: %v", sessionID, err)
	}
}

// CheckSession loads a session and verifies it has not expired and the
// account behind it is still active, touching lastAccess on success.
// Expiry is lazy: expired rows are reported invalid here and swept
// later. The active check is what revokes access when an admin
// disables an account mid-session.
func (s *AuthService) CheckSession(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	session, err := s.store.GetSessionByID(sessionID)
	if err != nil {
		return false
	}
	now := time.Now()
	if session.Expired(now) {
		return false
	}
	user, err := s.store.GetUserByID(session.UserID)
	if err != nil || !user.Active {
		return false
	}
	if err := s.store.TouchSession(sessionID, now); err != nil {
		zap.S().Warnf("⚠️ Failed to touch session %s: %v", sessionID, err)
	}
	return true
}
