package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/events"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/recognition"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
)

// Router drives the conversation state machine. Each inbound message is
// dispatched by the sender's current state; messages from the same
// sender are serialized so two replies can never interleave a workflow.
type Router struct {
	conversations ConversationStore
	auth          *AuthService
	store         storage.Store
	recognizer    *recognition.Orchestrator
	sender        transport.Sender
	bus           *events.Bus
	pool          *ants.Pool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRouter wires the chat layer. pool may be nil, in which case
// HandleMessage processes inline instead of on a worker.
func NewRouter(
	conversations ConversationStore,
	auth *AuthService,
	store storage.Store,
	recognizer *recognition.Orchestrator,
	sender transport.Sender,
	bus *events.Bus,
	pool *ants.Pool,
) *Router {
	return &Router{
		conversations: conversations,
		auth:          auth,
		store:         store,
		recognizer:    recognizer,
		sender:        sender,
		bus:           bus,
		pool:          pool,
		locks:         make(map[string]*sync.Mutex),
	}
}

// HandleMessage is the transport callback. Work is pushed to the pool
// so the transport's event loop is never blocked by recognition or
// storage latency.
func (r *Router) HandleMessage(msg transport.Message) {
	if r.pool == nil {
		r.Handle(msg)
		return
	}
	if err := r.pool.Submit(func() { r.Handle(msg) }); err != nil {
		zap.S().Errorf("❌ Worker pool rejected message from %s: %v", msg.From, err)
	}
}

// Handle processes one message synchronously.
func (r *Router) Handle(msg transport.Message) {
	sender := msg.From
	if sender == "" {
		return
	}

	lock := r.lockFor(sender)
	lock.Lock()
	defer lock.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			zap.S().Errorf("❌ Panic handling message from %s: %v", sender, rec)
			r.reply(sender, msgInternalError())
		}
	}()

	conv := r.conversations.Ensure(sender)

	if msg.Kind == transport.KindText {
		if handled := r.handleGlobalCommand(sender, conv, msg.Text); handled {
			return
		}
	}

	// Post-login states require a live session. A stale or revoked one
	// drops the whole conversation back to the front door.
	if conv.State != StateIdle && conv.State != StateAwaitingIdentity && conv.State != StateAwaitingCode {
		if !r.requireSession(sender, conv) {
			return
		}
	}

	switch conv.State {
	case StateIdle:
		r.handleIdle(sender, msg)
	case StateAwaitingIdentity:
		r.handleAwaitingIdentity(sender, msg)
	case StateAwaitingCode:
		r.handleAwaitingCode(sender, conv, msg)
	case StateMenu:
		r.handleMenu(sender, conv, msg)
	case StateRecognizingPlate:
		r.handleRecognizingPlate(sender, conv, msg)
	case StatePlateAction:
		r.handlePlateAction(sender, conv, msg)
	case StateRegisteringVehicle:
		r.handleRegisteringVehicle(sender, conv, msg)
	case StateRegisteringDriver:
		r.handleRegisteringDriver(sender, conv, msg)
	case StateSendingNotification:
		r.handleSendingNotification(sender, conv, msg)
	case StateManagingUsers:
		r.handleManagingUsers(sender, conv, msg)
	default:
		// Unknown tag means the record is corrupted. Reset instead of
		// wedging the user forever.
		zap.S().Warnf("⚠️ Corrupted conversation state %q for %s, resetting", conv.State, sender)
		r.resetCorrupted(sender, conv)
	}
}

// handleGlobalCommand intercepts the commands that work in every state.
// Returns true when the message was consumed.
func (r *Router) handleGlobalCommand(sender string, conv Conversation, text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "cancel", "cancelar":
		if conv.Context.Authenticated() {
			if !r.requireSession(sender, conv) {
				return true
			}
			r.reply(sender, msgCancelled())
			r.backToMenu(sender)
		} else {
			r.conversations.SetState(sender, StateIdle)
			r.conversations.UpdateContext(sender, func(c *Context) {
				c.Identity = ""
				c.IssuedCode = ""
			})
			r.reply(sender, msgCancelled())
		}
		return true

	case "help", "ajuda":
		r.reply(sender, msgHelp(conv.State))
		return true

	case "menu":
		if !conv.Context.Authenticated() {
			r.reply(sender, msgHelp(conv.State))
			return true
		}
		if !r.requireSession(sender, conv) {
			return true
		}
		r.backToMenu(sender)
		return true

	case "logout", "sair":
		if conv.Context.SessionID != "" {
			r.auth.EndSession(conv.Context.SessionID)
			r.bus.Audit(models.AuditLogout, conv.Context.UserID, "")
		}
		r.conversations.Clear(sender)
		r.reply(sender, msgLoggedOut())
		return true
	}
	return false
}

// requireSession verifies the login behind the conversation is still
// valid, resetting to the front door when it is not.
func (r *Router) requireSession(sender string, conv Conversation) bool {
	if r.auth.CheckSession(conv.Context.SessionID) {
		return true
	}
	r.conversations.Clear(sender)
	r.reply(sender, msgSessionExpired())
	return false
}

// backToMenu drops any in-progress workflow and renders the main menu.
func (r *Router) backToMenu(sender string) {
	var name, role string
	err := r.conversations.UpdateContext(sender, func(c *Context) {
		c.ClearWorkflows()
		name = c.UserName
		role = c.Role
	})
	if err != nil {
		return
	}
	r.conversations.SetState(sender, StateMenu)
	r.reply(sender, msgMenu(name, role == models.RoleAdmin))
}

func (r *Router) resetCorrupted(sender string, conv Conversation) {
	if conv.Context.Authenticated() && r.auth.CheckSession(conv.Context.SessionID) {
		r.reply(sender, msgCorruptedState())
		r.backToMenu(sender)
		return
	}
	r.conversations.Clear(sender)
	r.conversations.SetState(sender, StateAwaitingIdentity)
	r.reply(sender, msgCorruptedState())
	r.reply(sender, msgWelcome())
}

// reply sends one outbound text, logging instead of propagating
// failures: the state transition already happened and the user can
// always ask for help to resync.
func (r *Router) reply(recipient, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.sender.Send(ctx, recipient, text); err != nil {
		zap.S().Errorf("❌ Failed to send reply to %s: %v", recipient, err)
	}
}

func (r *Router) lockFor(sender string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[sender]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[sender] = lock
	}
	return lock
}

// handleMenu routes a main-menu choice into the matching workflow.
func (r *Router) handleMenu(sender string, conv Conversation, msg transport.Message) {
	if msg.Kind != transport.KindText {
		r.reply(sender, msgInvalidMenuChoice())
		return
	}

	switch strings.TrimSpace(msg.Text) {
	case "1":
		r.startRecognition(sender, PurposeEntry)
	case "2":
		r.startRecognition(sender, PurposeExit)
	case "3":
		r.startWorkflow(sender, StateRegisteringVehicle, func(c *Context) {
			c.Vehicle = &VehicleRegistration{Step: "plate"}
		})
		r.reply(sender, msgVehiclePlatePrompt())
	case "4":
		r.startWorkflow(sender, StateRegisteringDriver, func(c *Context) {
			c.Driver = &DriverRegistration{Step: "name"}
		})
		r.reply(sender, msgDriverNamePrompt())
	case "5":
		r.startWorkflow(sender, StateSendingNotification, func(c *Context) {
			c.Notification = &NotificationDraft{Step: "target"}
		})
		r.reply(sender, msgNotifyTargetPrompt())
	case "6":
		if conv.Context.Role != models.RoleAdmin {
			r.reply(sender, msgForbidden())
			return
		}
		r.startWorkflow(sender, StateManagingUsers, func(c *Context) {
			c.UserAdmin = &UserAdminFlow{Step: "action"}
		})
		r.reply(sender, msgUsersMenu())
	default:
		r.reply(sender, msgInvalidMenuChoice())
	}
}

// startWorkflow clears previous workflow context and enters the new
// state in one motion.
func (r *Router) startWorkflow(sender string, state State, init func(*Context)) {
	r.conversations.UpdateContext(sender, func(c *Context) {
		c.ClearWorkflows()
		init(c)
	})
	r.conversations.SetState(sender, state)
}
