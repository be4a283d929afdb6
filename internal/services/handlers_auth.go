package services

import (
	"strings"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/utils"
)

// handleIdle greets a first contact. Text that already looks like an
// identity skips the welcome round-trip.
func (r *Router) handleIdle(sender string, msg transport.Message) {
	if msg.Kind != transport.KindText || !looksLikeIdentity(msg.Text) {
		r.conversations.SetState(sender, StateAwaitingIdentity)
		r.reply(sender, msgWelcome())
		return
	}
	r.tryIdentity(sender, msg.Text)
}

func (r *Router) handleAwaitingIdentity(sender string, msg transport.Message) {
	if msg.Kind != transport.KindText || !looksLikeIdentity(msg.Text) {
		r.reply(sender, msgIdentityHint())
		return
	}
	r.tryIdentity(sender, msg.Text)
}

func (r *Router) tryIdentity(sender, text string) {
	identity := strings.TrimSpace(text)
	res := r.auth.InitiateAuth(identity)
	switch {
	case res.Issued:
		r.conversations.SetState(sender, StateAwaitingCode)
		r.conversations.UpdateContext(sender, func(c *Context) {
			c.Identity = identity
			c.IssuedCode = res.Code
		})
		r.reply(sender, msgCodeSent(res.Code))
	case res.Reason == ReasonUnknownOrInactiveUser:
		r.conversations.SetState(sender, StateAwaitingIdentity)
		r.reply(sender, msgUnknownUser())
	default:
		r.reply(sender, msgAuthError())
	}
}

// handleAwaitingCode verifies the submitted 6-digit code. On the last
// failed attempt the user is told the code locked and pushed back to
// identity entry; nothing short of a fresh code gets them further.
func (r *Router) handleAwaitingCode(sender string, conv Conversation, msg transport.Message) {
	if msg.Kind != transport.KindText {
		r.reply(sender, msgHelp(StateAwaitingCode))
		return
	}

	identity := conv.Context.Identity
	if identity == "" {
		r.resetCorrupted(sender, conv)
		return
	}

	res := r.auth.VerifyCode(identity, strings.TrimSpace(msg.Text), sender)
	switch {
	case res.Authenticated:
		r.conversations.UpdateContext(sender, func(c *Context) {
			c.Identity = ""
			c.IssuedCode = ""
			c.UserID = res.User.UserID
			c.UserName = res.User.Name
			c.Role = res.User.Role
			c.SessionID = res.SessionID
		})
		r.conversations.SetState(sender, StateMenu)
		r.bus.Audit(models.AuditLogin, res.User.UserID, "")
		r.reply(sender, msgMenu(res.User.Name, res.User.Role == models.RoleAdmin))

	case res.Reason == ReasonCodeMismatch:
		if res.Remaining <= 0 {
			r.conversations.SetState(sender, StateAwaitingIdentity)
			r.reply(sender, msgTooManyAttempts())
			return
		}
		r.reply(sender, msgCodeInvalid(res.Remaining))

	case res.Reason == ReasonTooManyAttempts:
		r.conversations.SetState(sender, StateAwaitingIdentity)
		r.reply(sender, msgTooManyAttempts())

	case res.Reason == ReasonCodeExpired:
		r.conversations.SetState(sender, StateAwaitingIdentity)
		r.reply(sender, msgCodeExpired())

	case res.Reason == ReasonNoPendingCode:
		r.conversations.SetState(sender, StateAwaitingIdentity)
		r.reply(sender, msgNoPendingCode())

	case res.Reason == ReasonUnknownOrInactiveUser:
		r.conversations.SetState(sender, StateAwaitingIdentity)
		r.reply(sender, msgUnknownUser())

	default:
		r.reply(sender, msgAuthError())
	}
}

// looksLikeIdentity accepts a registered phone (8+ digits, punctuation
// tolerated) or a generated user ID.
func looksLikeIdentity(text string) bool {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(strings.ToUpper(text), "USR") {
		return true
	}
	return len(utils.Digits(text)) >= 8
}
