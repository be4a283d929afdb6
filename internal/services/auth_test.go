package services

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
)

const testPhone = "5511999990000"

func newAuthFixture(t *testing.T, codeTTL, sessionTTL time.Duration, maxAttempts int) (*AuthService, *storage.MemoryStore, *models.User) {
	t.Helper()
	store := storage.NewMemoryStore()
	user, err := store.CreateUser(&models.User{Name: "Maria Silva", WhatsApp: testPhone})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return NewAuthService(store, codeTTL, sessionTTL, maxAttempts), store, user
}

// wrongGuess flips the first digit so the guess is never the real code.
func wrongGuess(code string) string {
	d := code[0] + 1
	if d > '9' {
		d = '0'
	}
	return string(d) + code[1:]
}

func TestInitiateAuthIssuesCode(t *testing.T) {
	t.Parallel()
	auth, store, user := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	res := auth.InitiateAuth("+55 (11) 99999-0000")
	if !res.Issued {
		t.Fatalf("InitiateAuth: got %+v, want issued", res)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(res.Code) {
		t.Errorf("Code: got %q, want 6 digits", res.Code)
	}

	stored, err := store.GetAuthCodeByUserID(user.UserID)
	if err != nil {
		t.Fatalf("GetAuthCodeByUserID: %v", err)
	}
	if stored.Code != res.Code || stored.Attempts != 0 {
		t.Errorf("stored code: got %+v, want %q with 0 attempts", stored, res.Code)
	}
}

func TestInitiateAuthByUserID(t *testing.T) {
	t.Parallel()
	auth, _, user := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	// The generated ID works as identity too, case-insensitive.
	res := auth.InitiateAuth(" usr00001 ")
	if !res.Issued {
		t.Fatalf("InitiateAuth(%q): got %+v, want issued", user.UserID, res)
	}
}

func TestInitiateAuthUnknownIdentity(t *testing.T) {
	t.Parallel()
	auth, _, _ := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	res := auth.InitiateAuth("5500000000000")
	if res.Issued || res.Reason != ReasonUnknownOrInactiveUser {
		t.Errorf("InitiateAuth unknown: got %+v, want %s", res, ReasonUnknownOrInactiveUser)
	}
}

func TestInitiateAuthInactiveUser(t *testing.T) {
	t.Parallel()
	auth, store, user := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	user.Active = false
	if err := store.UpdateUser(user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	res := auth.InitiateAuth(testPhone)
	if res.Issued || res.Reason != ReasonUnknownOrInactiveUser {
		t.Errorf("InitiateAuth inactive: got %+v, want %s", res, ReasonUnknownOrInactiveUser)
	}
}

func TestIssueInitialCodeIgnoresActiveFlag(t *testing.T) {
	t.Parallel()
	auth, store, user := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	user.Active = false
	store.UpdateUser(user)

	// Bootstrap path must work before anyone could have activated
	// anything.
	res := auth.IssueInitialCode(user.UserID)
	if !res.Issued {
		t.Errorf("IssueInitialCode: got %+v, want issued", res)
	}
}

func TestVerifyCodeHappyPath(t *testing.T) {
	t.Parallel()
	auth, store, user := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	issued := auth.InitiateAuth(testPhone)
	res := auth.VerifyCode(testPhone, issued.Code, "5511999990000")

	if !res.Authenticated {
		t.Fatalf("VerifyCode: got %+v, want authenticated", res)
	}
	if res.SessionID == "" {
		t.Error("SessionID: got empty")
	}
	if res.User == nil || res.User.UserID != user.UserID || res.User.Name != "Maria Silva" {
		t.Errorf("User: got %+v", res.User)
	}
	if !auth.CheckSession(res.SessionID) {
		t.Error("CheckSession: got false for fresh session")
	}

	// The code is single use: it is gone the moment it matches.
	if _, err := store.GetAuthCodeByUserID(user.UserID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("auth code after login: got %v, want ErrNotFound", err)
	}

	refreshed, _ := store.GetUserByID(user.UserID)
	if refreshed.LastLogin == nil {
		t.Error("LastLogin: got nil, want stamped")
	}
}

func TestVerifyCodeSecondUseRejected(t *testing.T) {
	t.Parallel()
	auth, _, _ := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	issued := auth.InitiateAuth(testPhone)
	auth.VerifyCode(testPhone, issued.Code, "dev")

	res := auth.VerifyCode(testPhone, issued.Code, "dev")
	if res.Authenticated || res.Reason != ReasonNoPendingCode {
		t.Errorf("second VerifyCode: got %+v, want %s", res, ReasonNoPendingCode)
	}
}

func TestVerifyCodeMismatchCountsDown(t *testing.T) {
	t.Parallel()
	auth, _, _ := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	issued := auth.InitiateAuth(testPhone)
	bad := wrongGuess(issued.Code)

	for i, wantRemaining := range []int{2, 1, 0} {
		res := auth.VerifyCode(testPhone, bad, "dev")
		if res.Reason != ReasonCodeMismatch {
			t.Fatalf("attempt %d: got %+v, want %s", i+1, res, ReasonCodeMismatch)
		}
		if res.Remaining != wantRemaining {
			t.Errorf("attempt %d: Remaining got %d, want %d", i+1, res.Remaining, wantRemaining)
		}
	}

	// Locked now. Even the right code is refused until a new one is
	// issued.
	res := auth.VerifyCode(testPhone, bad, "dev")
	if res.Reason != ReasonTooManyAttempts {
		t.Errorf("after lock: got %+v, want %s", res, ReasonTooManyAttempts)
	}
	res = auth.VerifyCode(testPhone, issued.Code, "dev")
	if res.Authenticated || res.Reason != ReasonTooManyAttempts {
		t.Errorf("right code after lock: got %+v, want %s", res, ReasonTooManyAttempts)
	}
}

func TestReissueResetsAttemptCounter(t *testing.T) {
	t.Parallel()
	auth, _, _ := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	first := auth.InitiateAuth(testPhone)
	bad := wrongGuess(first.Code)
	for i := 0; i < 3; i++ {
		auth.VerifyCode(testPhone, bad, "dev")
	}

	second := auth.InitiateAuth(testPhone)
	if !second.Issued {
		t.Fatalf("reissue: got %+v, want issued", second)
	}
	res := auth.VerifyCode(testPhone, second.Code, "dev")
	if !res.Authenticated {
		t.Errorf("VerifyCode after reissue: got %+v, want authenticated", res)
	}
}

func TestVerifyCodeExpired(t *testing.T) {
	t.Parallel()
	// Negative TTL mints codes that are already past their lifetime.
	auth, _, _ := newAuthFixture(t, -time.Minute, time.Hour, 3)

	issued := auth.InitiateAuth(testPhone)
	res := auth.VerifyCode(testPhone, issued.Code, "dev")
	if res.Authenticated || res.Reason != ReasonCodeExpired {
		t.Errorf("VerifyCode expired: got %+v, want %s", res, ReasonCodeExpired)
	}
}

func TestVerifyCodeWithoutPending(t *testing.T) {
	t.Parallel()
	auth, _, _ := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	res := auth.VerifyCode(testPhone, "123456", "dev")
	if res.Authenticated || res.Reason != ReasonNoPendingCode {
		t.Errorf("VerifyCode: got %+v, want %s", res, ReasonNoPendingCode)
	}
}

func TestVerifyCodeUnknownIdentity(t *testing.T) {
	t.Parallel()
	auth, _, _ := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	res := auth.VerifyCode("5500000000000", "123456", "dev")
	if res.Authenticated || res.Reason != ReasonUnknownOrInactiveUser {
		t.Errorf("VerifyCode: got %+v, want %s", res, ReasonUnknownOrInactiveUser)
	}
}

func TestCheckSessionRejectsInvalid(t *testing.T) {
	t.Parallel()
	auth, _, _ := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	if auth.CheckSession("") {
		t.Error("CheckSession(empty): got true, want false")
	}
	if auth.CheckSession("no-such-session") {
		t.Error("CheckSession(unknown): got true, want false")
	}
}

func TestCheckSessionExpired(t *testing.T) {
	t.Parallel()
	auth, _, _ := newAuthFixture(t, 10*time.Minute, -time.Minute, 3)

	issued := auth.InitiateAuth(testPhone)
	res := auth.VerifyCode(testPhone, issued.Code, "dev")
	if !res.Authenticated {
		t.Fatalf("VerifyCode: got %+v, want authenticated", res)
	}
	if auth.CheckSession(res.SessionID) {
		t.Error("CheckSession: got true for expired session")
	}
}

func TestCheckSessionRevokedWhenUserDisabled(t *testing.T) {
	t.Parallel()
	auth, store, user := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	issued := auth.InitiateAuth(testPhone)
	res := auth.VerifyCode(testPhone, issued.Code, "dev")
	if !auth.CheckSession(res.SessionID) {
		t.Fatal("CheckSession: got false for fresh session")
	}

	user.Active = false
	store.UpdateUser(user)

	if auth.CheckSession(res.SessionID) {
		t.Error("CheckSession: got true after account was disabled")
	}
}

func TestEndSession(t *testing.T) {
	t.Parallel()
	auth, _, _ := newAuthFixture(t, 10*time.Minute, time.Hour, 3)

	issued := auth.InitiateAuth(testPhone)
	res := auth.VerifyCode(testPhone, issued.Code, "dev")

	auth.EndSession(res.SessionID)
	if auth.CheckSession(res.SessionID) {
		t.Error("CheckSession after EndSession: got true, want false")
	}

	// Ending a missing session is a no-op, not a fault.
	auth.EndSession("no-such-session")
	auth.EndSession("")
}
