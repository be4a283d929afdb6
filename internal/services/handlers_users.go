package services

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/utils"
)

// handleManagingUsers is the admin-only account flow: create an
// operator, disable one, or list everybody. The role gate ran at menu
// entry but is rechecked here in case the record was tampered with.
func (r *Router) handleManagingUsers(sender string, conv Conversation, msg transport.Message) {
	if conv.Context.Role != models.RoleAdmin {
		r.reply(sender, msgForbidden())
		r.backToMenu(sender)
		return
	}
	if conv.Context.UserAdmin == nil {
		r.resetCorrupted(sender, conv)
		return
	}
	if msg.Kind != transport.KindText {
		r.reply(sender, msgHelp(StateManagingUsers))
		return
	}

	u := *conv.Context.UserAdmin
	text := strings.TrimSpace(msg.Text)

	switch u.Step {
	case "action":
		switch text {
		case "1":
			u.Action = "add"
			u.Step = "name"
			r.saveUserAdmin(sender, u)
			r.reply(sender, msgUserNamePrompt())
		case "2":
			u.Action = "disable"
			u.Step = "disable_phone"
			r.saveUserAdmin(sender, u)
			r.reply(sender, msgUserDisablePrompt())
		case "3":
			r.listUsers(sender)
		case "0":
			r.backToMenu(sender)
		default:
			r.reply(sender, msgPickListedOption())
		}

	case "name":
		if text == "" {
			r.reply(sender, msgUserNamePrompt())
			return
		}
		u.Name = text
		u.Step = "phone"
		r.saveUserAdmin(sender, u)
		r.reply(sender, msgUserPhonePrompt())

	case "phone":
		phone := utils.Digits(text)
		if len(phone) < 10 {
			r.reply(sender, msgInvalidPhone())
			return
		}
		if _, err := r.store.GetUserByWhatsApp(phone); err == nil {
			r.reply(sender, msgUserPhoneTaken(phone))
			return
		}
		u.Phone = phone
		u.Step = "role"
		r.saveUserAdmin(sender, u)
		r.reply(sender, msgUserRolePrompt())

	case "role":
		switch text {
		case "1":
			u.Role = models.RoleOperator
		case "2":
			u.Role = models.RoleAdmin
		default:
			r.reply(sender, msgPickListedOption())
			return
		}
		u.Step = "confirm"
		r.saveUserAdmin(sender, u)
		r.reply(sender, msgUserConfirm(u.Name, u.Phone, u.Role))

	case "confirm":
		switch text {
		case "1":
			r.createUser(sender, conv.Context.UserID, u)
		case "0":
			r.reply(sender, msgCancelled())
			r.backToMenu(sender)
		default:
			r.reply(sender, msgPickListedOption())
		}

	case "disable_phone":
		phone := utils.Digits(text)
		if len(phone) < 10 {
			r.reply(sender, msgInvalidPhone())
			return
		}
		target, err := r.store.GetUserByWhatsApp(phone)
		if errors.Is(err, storage.ErrNotFound) {
			r.reply(sender, msgUserNotFoundByPhone())
			return
		}
		if err != nil {
			zap.S().Errorf("❌ User lookup failed for %s: %v", phone, err)
			r.reply(sender, msgInternalError())
			return
		}
		if target.UserID == conv.Context.UserID {
			r.reply(sender, msgCannotDisableSelf())
			return
		}
		u.Target = target.UserID
		u.Name = target.Name
		u.Phone = target.WhatsApp
		u.Step = "disable_confirm"
		r.saveUserAdmin(sender, u)
		r.reply(sender, msgUserDisableConfirm(target.Name, target.WhatsApp))

	case "disable_confirm":
		switch text {
		case "1":
			r.disableUser(sender, conv.Context.UserID, u)
		case "0":
			r.reply(sender, msgCancelled())
			r.backToMenu(sender)
		default:
			r.reply(sender, msgPickListedOption())
		}

	default:
		r.resetCorrupted(sender, conv)
	}
}

func (r *Router) listUsers(sender string) {
	users, err := r.store.GetAllUsers()
	if err != nil {
		zap.S().Errorf("❌ Failed to list users: %v", err)
		r.reply(sender, msgInternalError())
		return
	}
	list := make([]models.User, 0, len(users))
	for _, u := range users {
		list = append(list, *u)
	}
	r.reply(sender, msgUserList(list))
	r.reply(sender, msgUsersMenu())
}

func (r *Router) createUser(sender, adminID string, u UserAdminFlow) {
	created, err := r.store.CreateUser(&models.User{
		Name:     u.Name,
		WhatsApp: u.Phone,
		Role:     u.Role,
		Active:   true,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		r.reply(sender, msgUserPhoneTaken(u.Phone))
		r.backToMenu(sender)
		return
	}
	if err != nil {
		zap.S().Errorf("❌ Failed to create user %s: %v", u.Phone, err)
		r.reply(sender, msgInternalError())
		return
	}

	r.bus.Audit(models.AuditUserNew, adminID, created.UserID)
	zap.S().Infof("✅ User %s (%s) created by %s", created.UserID, created.Role, adminID)
	r.reply(sender, msgUserCreated(created.Name, created.UserID))

	// Best-effort heads-up on the new user's own WhatsApp.
	r.reply(created.WhatsApp, msgUserWelcomeNotice(created.Name))

	r.backToMenu(sender)
}

func (r *Router) disableUser(sender, adminID string, u UserAdminFlow) {
	target, err := r.store.GetUserByID(u.Target)
	if err != nil {
		zap.S().Errorf("❌ Failed to load user %s: %v", u.Target, err)
		r.reply(sender, msgInternalError())
		return
	}

	target.Active = false
	if err := r.store.UpdateUser(target); err != nil {
		zap.S().Errorf("❌ Failed to disable user %s: %v", u.Target, err)
		r.reply(sender, msgInternalError())
		return
	}

	r.bus.Audit(models.AuditUserDisabled, adminID, target.UserID)
	zap.S().Infof("🚫 User %s disabled by %s", target.UserID, adminID)
	r.reply(sender, msgUserDisabled(target.Name))
	r.backToMenu(sender)
}

func (r *Router) saveUserAdmin(sender string, u UserAdminFlow) {
	r.conversations.UpdateContext(sender, func(c *Context) { c.UserAdmin = &u })
}
