package transport

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/utils"
)

// WhatsmeowTransport drives a native WhatsApp client with a
// sqlite-backed device store. First run pairs via QR (printed to the
// terminal and exposed through QRCode for the ops API); later runs
// reuse the stored session.
type WhatsmeowTransport struct {
	client  *whatsmeow.Client
	handler Handler

	qrMu sync.RWMutex
	qr   string
}

// NewWhatsmeowTransport opens the device store and builds the client
func NewWhatsmeowTransport(dbPath string) (*WhatsmeowTransport, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open whatsmeow store: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		zap.S().Warnf("⚠️ Unable to enable sqlite foreign keys: %v", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", nil)
	if err := container.Upgrade(context.Background()); err != nil {
		return nil, fmt.Errorf("whatsmeow store upgrade failed: %w", err)
	}

	device, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load whatsmeow device: %w", err)
	}

	t := &WhatsmeowTransport{client: whatsmeow.NewClient(device, nil)}
	t.client.AddEventHandler(t.handleEvent)
	return t, nil
}

// OnMessage registers the inbound handler. Must be called before Start.
func (t *WhatsmeowTransport) OnMessage(h Handler) {
	t.handler = h
}

// Start connects the client, running the QR pairing flow when the
// device has no stored session yet.
func (t *WhatsmeowTransport) Start(ctx context.Context) error {
	if t.client.Store.ID == nil {
		qrChan, err := t.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to open QR channel: %w", err)
		}
		if err := t.client.Connect(); err != nil {
			return fmt.Errorf("whatsmeow connect failed: %w", err)
		}
		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					t.setQR(evt.Code)
					zap.S().Info("📱 Scan the QR code below with WhatsApp:")
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				} else {
					t.setQR("")
					zap.S().Infof("📱 WhatsApp pairing: %s", evt.Event)
				}
			}
		}()
		return nil
	}

	if err := t.client.Connect(); err != nil {
		return fmt.Errorf("whatsmeow connect failed: %w", err)
	}
	return nil
}

// Stop disconnects the client.
func (t *WhatsmeowTransport) Stop() {
	t.client.Disconnect()
}

// Send delivers a plain text message to the recipient identity.
func (t *WhatsmeowTransport) Send(ctx context.Context, recipient, text string) error {
	jid := waTypes.NewJID(utils.Digits(recipient), waTypes.DefaultUserServer)
	_, err := t.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		zap.S().Errorf("❌ Failed to send WhatsApp message to %s: %v", recipient, err)
		return err
	}
	return nil
}

// QRCode returns the current pairing QR string, empty once paired.
func (t *WhatsmeowTransport) QRCode() string {
	t.qrMu.RLock()
	defer t.qrMu.RUnlock()
	return t.qr
}

// Status reports the client state for the ops API.
func (t *WhatsmeowTransport) Status() string {
	switch {
	case t.client.IsLoggedIn():
		return "connected"
	case t.client.IsConnected():
		return "pairing"
	default:
		return "disconnected"
	}
}

func (t *WhatsmeowTransport) setQR(code string) {
	t.qrMu.Lock()
	t.qr = code
	t.qrMu.Unlock()
}

func (t *WhatsmeowTransport) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		t.setQR("")
		zap.S().Info("✅ WhatsApp connected!")
	case *events.LoggedOut:
		zap.S().Warn("⚠️ WhatsApp session logged out; remove the device store to pair again")
	case *events.Message:
		t.handleMessage(e)
	}
}

// handleMessage maps a whatsmeow event into the port's Message. Group
// and self-originated messages are dropped here, before the router.
func (t *WhatsmeowTransport) handleMessage(evt *events.Message) {
	if t.handler == nil {
		return
	}
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	msg := Message{From: evt.Info.Sender.User, Kind: KindOther}

	if img := evt.Message.GetImageMessage(); img != nil {
		msg.Kind = KindImage
		msg.MediaRef = hex.EncodeToString(img.GetFileSHA256())
		msg.Media = func(ctx context.Context) ([]byte, error) {
			return t.client.Download(ctx, img)
		}
	} else if body := textBody(evt.Message); body != "" {
		msg.Kind = KindText
		msg.Text = body
	}

	t.handler(msg)
}

func textBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if conv := msg.GetConversation(); conv != "" {
		return conv
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}
