package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/events"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/recognition"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
)

type sentText struct {
	to   string
	text string
}

// scriptedSender records outbound texts and can be told to refuse
// delivery to one recipient.
type scriptedSender struct {
	mu     sync.Mutex
	sent   []sentText
	failTo string
}

func (s *scriptedSender) Send(ctx context.Context, recipient, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTo != "" && recipient == s.failTo {
		return errors.New("delivery refused")
	}
	s.sent = append(s.sent, sentText{to: recipient, text: text})
	return nil
}

func (s *scriptedSender) setFail(to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTo = to
}

func (s *scriptedSender) lastTo(to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].to == to {
			return s.sent[i].text
		}
	}
	return ""
}

func (s *scriptedSender) received(to, substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.sent {
		if st.to == to && strings.Contains(st.text, substr) {
			return true
		}
	}
	return false
}

// stubRecognizer stands in for the external plate recognizer.
type stubRecognizer struct {
	mu     sync.Mutex
	result *recognition.ProviderResult
	err    error
}

func (s *stubRecognizer) Recognize(ctx context.Context, imagePath string) (*recognition.ProviderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.result == nil {
		return &recognition.ProviderResult{Success: false, Message: "no plate detected"}, nil
	}
	return s.result, nil
}

type routerFixture struct {
	t             *testing.T
	router        *Router
	store         *storage.MemoryStore
	conversations *MemoryConversationStore
	auth          *AuthService
	sender        *scriptedSender
	bus           *events.Bus
	recognizer    *stubRecognizer
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	conversations := NewConversationStore()
	auth := NewAuthService(store, 10*time.Minute, time.Hour, 3)
	rec := &stubRecognizer{}
	orch := recognition.NewOrchestrator(rec, store, 70, time.Minute, 16)
	sender := &scriptedSender{}
	bus := events.NewBus()
	if err := bus.StartAuditRecorder(store); err != nil {
		t.Fatalf("StartAuditRecorder: %v", err)
	}
	// nil pool: messages are handled inline, which is what tests want.
	router := NewRouter(conversations, auth, store, orch, sender, bus, nil)
	return &routerFixture{
		t:             t,
		router:        router,
		store:         store,
		conversations: conversations,
		auth:          auth,
		sender:        sender,
		bus:           bus,
		recognizer:    rec,
	}
}

func (f *routerFixture) addUser(name, phone, role string) *models.User {
	f.t.Helper()
	user, err := f.store.CreateUser(&models.User{Name: name, WhatsApp: phone, Role: role})
	if err != nil {
		f.t.Fatalf("CreateUser(%s): %v", phone, err)
	}
	return user
}

func (f *routerFixture) say(from, text string) {
	f.router.Handle(transport.Message{From: from, Kind: transport.KindText, Text: text})
}

func (f *routerFixture) photo(from, ref string) {
	f.router.Handle(transport.Message{
		From:     from,
		Kind:     transport.KindImage,
		MediaRef: ref,
		Media: func(ctx context.Context) ([]byte, error) {
			return []byte("jpeg bytes"), nil
		},
	})
}

// login walks the full identity-then-code handshake for a registered
// phone, leaving the conversation at the menu.
func (f *routerFixture) login(phone string) {
	f.t.Helper()
	f.say(phone, phone)
	conv, ok := f.conversations.Get(phone)
	if !ok || conv.State != StateAwaitingCode {
		f.t.Fatalf("after identity: state %q, want %q", conv.State, StateAwaitingCode)
	}
	if conv.Context.IssuedCode == "" {
		f.t.Fatal("after identity: no issued code in context")
	}
	f.say(phone, conv.Context.IssuedCode)
	if got := f.state(phone); got != StateMenu {
		f.t.Fatalf("after code: state %q, want %q", got, StateMenu)
	}
}

func (f *routerFixture) state(from string) State {
	conv, _ := f.conversations.Get(from)
	return conv.State
}

func (f *routerFixture) context(from string) Context {
	conv, _ := f.conversations.Get(from)
	return conv.Context
}

func (f *routerFixture) wantReply(to, substr string) {
	f.t.Helper()
	if !f.sender.received(to, substr) {
		f.t.Errorf("no reply to %s containing %q; last was %q", to, substr, f.sender.lastTo(to))
	}
}

func (f *routerFixture) hasAudit(action, userID string) bool {
	f.bus.Wait()
	for _, a := range f.store.AuditLogs() {
		if a.Action == action && a.UserID == userID {
			return true
		}
	}
	return false
}

const (
	opPhone    = "5511999990000"
	adminPhone = "5511888880000"
)

func TestFirstContactShowsWelcome(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.say(opPhone, "oi")

	if got := f.state(opPhone); got != StateAwaitingIdentity {
		t.Errorf("state: got %q, want %q", got, StateAwaitingIdentity)
	}
	f.wantReply(opPhone, "Bem-vindo")
}

func TestIdentityUnknownUser(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.say(opPhone, "5500000000000")

	if got := f.state(opPhone); got != StateAwaitingIdentity {
		t.Errorf("state: got %q, want %q", got, StateAwaitingIdentity)
	}
	f.wantReply(opPhone, "Não encontrei um usuário ativo")
}

func TestLoginHappyPath(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	user := f.addUser("Maria Silva", opPhone, models.RoleOperator)

	f.login(opPhone)

	f.wantReply(opPhone, "Olá, Maria")
	ctx := f.context(opPhone)
	if ctx.UserID != user.UserID || ctx.Role != models.RoleOperator || ctx.SessionID == "" {
		t.Errorf("context after login: %+v", ctx)
	}
	if ctx.Identity != "" || ctx.IssuedCode != "" {
		t.Errorf("auth scratch fields not cleared: %+v", ctx)
	}
	if !f.hasAudit(models.AuditLogin, user.UserID) {
		t.Error("no login audit entry recorded")
	}
}

func TestLoginWrongCodeLockout(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)

	f.say(opPhone, opPhone)
	conv, _ := f.conversations.Get(opPhone)
	bad := wrongGuess(conv.Context.IssuedCode)

	f.say(opPhone, bad)
	f.wantReply(opPhone, "2 tentativas")
	f.say(opPhone, bad)
	f.wantReply(opPhone, "1 tentativa")

	// Third miss burns the last attempt: the code locks right away.
	f.say(opPhone, bad)
	f.wantReply(opPhone, "Muitas tentativas")
	if got := f.state(opPhone); got != StateAwaitingIdentity {
		t.Errorf("state after lockout: got %q, want %q", got, StateAwaitingIdentity)
	}
}

func TestCancelDuringAuth(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)

	f.say(opPhone, opPhone)
	f.say(opPhone, "cancelar")

	if got := f.state(opPhone); got != StateIdle {
		t.Errorf("state: got %q, want %q", got, StateIdle)
	}
	ctx := f.context(opPhone)
	if ctx.Identity != "" || ctx.IssuedCode != "" {
		t.Errorf("auth fields survived cancel: %+v", ctx)
	}
	f.wantReply(opPhone, "cancelada")
}

func TestMenuCommandBeforeLogin(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.say(opPhone, "menu")

	if got := f.state(opPhone); got != StateIdle {
		t.Errorf("state: got %q, want %q", got, StateIdle)
	}
	f.wantReply(opPhone, "Ajuda")
}

func TestLogout(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	user := f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.login(opPhone)
	sessionID := f.context(opPhone).SessionID

	f.say(opPhone, "sair")

	if _, ok := f.conversations.Get(opPhone); ok {
		t.Error("conversation record survived logout")
	}
	if f.auth.CheckSession(sessionID) {
		t.Error("session survived logout")
	}
	f.wantReply(opPhone, "Você saiu")
	if !f.hasAudit(models.AuditLogout, user.UserID) {
		t.Error("no logout audit entry recorded")
	}
}

func TestMenuRoutesToRecognition(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.login(opPhone)

	f.say(opPhone, "1")

	if got := f.state(opPhone); got != StateRecognizingPlate {
		t.Errorf("state: got %q, want %q", got, StateRecognizingPlate)
	}
	ctx := f.context(opPhone)
	if ctx.Recognition == nil || ctx.Recognition.Purpose != PurposeEntry {
		t.Errorf("recognition context: %+v", ctx.Recognition)
	}
	f.wantReply(opPhone, "Registro de entrada")
}

func TestMenuInvalidChoice(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.login(opPhone)

	f.say(opPhone, "9")
	f.wantReply(opPhone, "Opção inválida")
	if got := f.state(opPhone); got != StateMenu {
		t.Errorf("state: got %q, want %q", got, StateMenu)
	}
}

func TestTypedPlateUnknownVehicle(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.login(opPhone)

	f.say(opPhone, "1")
	f.say(opPhone, "ABC1D23")

	if got := f.state(opPhone); got != StatePlateAction {
		t.Fatalf("state: got %q, want %q", got, StatePlateAction)
	}
	pa := f.context(opPhone).PlateAction
	if pa == nil || pa.Plate != "ABC1D23" || pa.IsRegistered || pa.Purpose != PurposeEntry {
		t.Errorf("plate action: %+v", pa)
	}
	if pa.Confidence != 100 {
		t.Errorf("typed plate confidence: got %v, want 100", pa.Confidence)
	}
	f.wantReply(opPhone, "não está cadastrado")

	// "1" on an unknown plate jumps into vehicle registration with the
	// plate already filled in.
	f.say(opPhone, "1")
	if got := f.state(opPhone); got != StateRegisteringVehicle {
		t.Fatalf("state: got %q, want %q", got, StateRegisteringVehicle)
	}
	v := f.context(opPhone).Vehicle
	if v == nil || v.Plate != "ABC1D23" || v.Step != "model" {
		t.Errorf("vehicle context: %+v", v)
	}
	f.wantReply(opPhone, "Cadastrando o veículo")
}

func TestTypedPlateInvalidFormat(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.login(opPhone)

	f.say(opPhone, "1")
	f.say(opPhone, "PLACA99")

	if got := f.state(opPhone); got != StateRecognizingPlate {
		t.Errorf("state: got %q, want it to stay %q", got, StateRecognizingPlate)
	}
	f.wantReply(opPhone, "formato inválido")
}

func TestPhotoRecognitionRegisteredVehicle(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	driver, _ := f.store.CreateDriver(&models.Driver{Name: "João Souza", Document: "12345678901", Phone: "5511977776666"})
	f.store.CreateVehicle(&models.Vehicle{LicensePlate: "ABC1D23", VehicleModel: "Fiat Argo", Color: "Prata", DriverID: driver.DriverID})
	f.recognizer.result = &recognition.ProviderResult{Success: true, LicensePlate: "ABC1D23", Confidence: 85}
	f.login(opPhone)

	f.say(opPhone, "1")
	f.photo(opPhone, "sha256:plate-shot")

	if got := f.state(opPhone); got != StatePlateAction {
		t.Fatalf("state: got %q, want %q", got, StatePlateAction)
	}
	pa := f.context(opPhone).PlateAction
	if pa == nil || !pa.IsRegistered || pa.Confidence != 85 {
		t.Errorf("plate action: %+v", pa)
	}
	f.wantReply(opPhone, "Fiat Argo")
	f.wantReply(opPhone, "João Souza")
	f.wantReply(opPhone, "Confirmar *entrada*")
}

func TestPhotoBelowConfidence(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.recognizer.result = &recognition.ProviderResult{Success: true, LicensePlate: "ABC1D23", Confidence: 55}
	f.login(opPhone)

	f.say(opPhone, "1")
	f.photo(opPhone, "sha256:blurry")

	if got := f.state(opPhone); got != StateRecognizingPlate {
		t.Errorf("state: got %q, want it to stay %q", got, StateRecognizingPlate)
	}
	f.wantReply(opPhone, "confiança baixa")
}

func TestPhotoRecognitionFailure(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.recognizer.err = errors.New("recognizer crashed")
	f.login(opPhone)

	f.say(opPhone, "1")
	f.photo(opPhone, "sha256:broken")

	if got := f.state(opPhone); got != StateRecognizingPlate {
		t.Errorf("state: got %q, want it to stay %q", got, StateRecognizingPlate)
	}
	f.wantReply(opPhone, "Não consegui ler a placa")
}

func TestEntryRegistersParkingLog(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	user := f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.store.CreateVehicle(&models.Vehicle{LicensePlate: "ABC1234", VehicleModel: "Gol", Color: "Branco"})
	f.login(opPhone)

	f.say(opPhone, "1")
	f.say(opPhone, "ABC1234")
	f.say(opPhone, "1")

	open, err := f.store.GetOpenParkingLog("ABC1234")
	if err != nil {
		t.Fatalf("GetOpenParkingLog: %v", err)
	}
	if open.OperatorID != user.UserID || open.VehicleID == "" {
		t.Errorf("parking log: %+v", open)
	}
	f.wantReply(opPhone, "Entrada registrada")
	if got := f.state(opPhone); got != StateMenu {
		t.Errorf("state after entry: got %q, want %q", got, StateMenu)
	}
	if !f.hasAudit(models.AuditEntry, user.UserID) {
		t.Error("no entry audit recorded")
	}
}

func TestEntryWhenAlreadyParkedFlipsToExit(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.store.CreateVehicle(&models.Vehicle{LicensePlate: "ABC1234", VehicleModel: "Gol"})
	f.store.CreateParkingLog(&models.ParkingLog{LicensePlate: "ABC1234"})
	f.login(opPhone)

	f.say(opPhone, "1")
	f.say(opPhone, "ABC1234")
	f.say(opPhone, "1")

	f.wantReply(opPhone, "já está no pátio")
	pa := f.context(opPhone).PlateAction
	if pa == nil || pa.Purpose != PurposeExit {
		t.Fatalf("plate action after duplicate entry: %+v, want purpose flipped to exit", pa)
	}

	// Same "1" now confirms the exit instead of failing again.
	f.say(opPhone, "1")
	f.wantReply(opPhone, "Saída registrada")
	if _, err := f.store.GetOpenParkingLog("ABC1234"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("open log after exit: got %v, want ErrNotFound", err)
	}
}

func TestExitClosesStay(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	user := f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.store.CreateVehicle(&models.Vehicle{LicensePlate: "ABC1234", VehicleModel: "Gol"})
	f.store.CreateParkingLog(&models.ParkingLog{LicensePlate: "ABC1234"})
	f.login(opPhone)

	f.say(opPhone, "2")
	f.wantReply(opPhone, "Registro de saída")
	f.say(opPhone, "ABC1234")
	f.wantReply(opPhone, "Confirmar *saída*")
	f.say(opPhone, "1")

	f.wantReply(opPhone, "Saída registrada")
	f.wantReply(opPhone, "Permanência")
	if _, err := f.store.GetOpenParkingLog("ABC1234"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("open log after exit: got %v, want ErrNotFound", err)
	}
	if !f.hasAudit(models.AuditExit, user.UserID) {
		t.Error("no exit audit recorded")
	}
}

func TestExitWithoutOpenEntry(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.store.CreateVehicle(&models.Vehicle{LicensePlate: "ABC1234", VehicleModel: "Gol"})
	f.login(opPhone)

	f.say(opPhone, "2")
	f.say(opPhone, "ABC1234")
	f.say(opPhone, "1")

	f.wantReply(opPhone, "Não há entrada em aberto")
	// The operator can still retry or leave; the round is not lost.
	if got := f.state(opPhone); got != StatePlateAction {
		t.Errorf("state: got %q, want %q", got, StatePlateAction)
	}
}

func TestPlateActionRetryAndBack(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.login(opPhone)

	f.say(opPhone, "2")
	f.say(opPhone, "ABC1234")
	f.say(opPhone, "2")
	if got := f.state(opPhone); got != StateRecognizingPlate {
		t.Fatalf("state after retry: got %q, want %q", got, StateRecognizingPlate)
	}
	if rc := f.context(opPhone).Recognition; rc == nil || rc.Purpose != PurposeExit {
		t.Errorf("retry lost the purpose: %+v", rc)
	}

	f.say(opPhone, "ABC1234")
	f.say(opPhone, "0")
	if got := f.state(opPhone); got != StateMenu {
		t.Errorf("state after back: got %q, want %q", got, StateMenu)
	}
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.addUser("Ana Admin", adminPhone, models.RoleAdmin)

	f.login(opPhone)
	f.say(opPhone, "6")
	f.wantReply(opPhone, "restrita a administradores")
	if got := f.state(opPhone); got != StateMenu {
		t.Errorf("operator state: got %q, want %q", got, StateMenu)
	}

	f.login(adminPhone)
	f.say(adminPhone, "6")
	if got := f.state(adminPhone); got != StateManagingUsers {
		t.Errorf("admin state: got %q, want %q", got, StateManagingUsers)
	}
	f.wantReply(adminPhone, "Gerenciar usuários")
}

func TestSessionExpiredKicksToFront(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.login(opPhone)

	f.auth.EndSession(f.context(opPhone).SessionID)
	f.say(opPhone, "1")

	if _, ok := f.conversations.Get(opPhone); ok {
		t.Error("conversation record survived session expiry")
	}
	f.wantReply(opPhone, "sessão expirou")
}

func TestDisabledUserRevokedOnMenuCommand(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	user := f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.login(opPhone)

	user.Active = false
	if err := f.store.UpdateUser(user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	f.say(opPhone, "menu")

	if _, ok := f.conversations.Get(opPhone); ok {
		t.Error("conversation record survived account disable")
	}
	f.wantReply(opPhone, "sessão expirou")
}

func TestCorruptedStateRecoversToMenu(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.login(opPhone)

	f.conversations.SetState(opPhone, State("garbled"))
	f.say(opPhone, "1")

	f.wantReply(opPhone, "recomecei")
	if got := f.state(opPhone); got != StateMenu {
		t.Errorf("state: got %q, want %q", got, StateMenu)
	}
}

func TestAwaitingCodeWithoutIdentityResets(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.conversations.Ensure(opPhone)
	f.conversations.SetState(opPhone, StateAwaitingCode)
	f.say(opPhone, "123456")

	if got := f.state(opPhone); got != StateAwaitingIdentity {
		t.Errorf("state: got %q, want %q", got, StateAwaitingIdentity)
	}
	f.wantReply(opPhone, "recomecei")
	f.wantReply(opPhone, "Bem-vindo")
}

func TestNonTextDuringCodeEntry(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)

	f.say(opPhone, opPhone)
	f.photo(opPhone, "sha256:selfie")

	if got := f.state(opPhone); got != StateAwaitingCode {
		t.Errorf("state: got %q, want it to stay %q", got, StateAwaitingCode)
	}
	f.wantReply(opPhone, "código de 6 dígitos")
}

func TestHelpIsContextual(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.addUser("Maria Silva", opPhone, models.RoleOperator)
	f.login(opPhone)
	f.say(opPhone, "1")

	f.say(opPhone, "ajuda")

	f.wantReply(opPhone, "foto da placa")
	if got := f.state(opPhone); got != StateRecognizingPlate {
		t.Errorf("help changed state: got %q, want %q", got, StateRecognizingPlate)
	}
}
