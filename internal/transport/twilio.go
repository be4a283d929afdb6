package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/utils"
)

// TwilioTransport adapts the Twilio WhatsApp Business API. Inbound
// messages arrive through the HTTP webhook (see handlers.Webhook) and
// are injected with HandleInbound; outbound goes through the REST API.
type TwilioTransport struct {
	client     *twilio.RestClient
	from       string // "whatsapp:+14155238886"
	accountSID string
	authToken  string
	handler    Handler
}

// NewTwilioTransport builds the REST client from credentials
func NewTwilioTransport(accountSID, authToken, from string) (*TwilioTransport, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioTransport{
		client:     client,
		from:       from,
		accountSID: accountSID,
		authToken:  authToken,
	}, nil
}

func (t *TwilioTransport) OnMessage(h Handler) {
	t.handler = h
}

// Start is a no-op: inbound delivery is webhook-driven.
func (t *TwilioTransport) Start(ctx context.Context) error {
	zap.S().Infof("📱 Twilio transport ready (from %s)", t.from)
	return nil
}

func (t *TwilioTransport) Stop() {}

// Send delivers a plain text message via the Twilio REST API.
func (t *TwilioTransport) Send(ctx context.Context, recipient, text string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(fmt.Sprintf("whatsapp:+%s", utils.Digits(recipient)))
	params.SetBody(text)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		zap.S().Errorf("❌ Failed to send WhatsApp message: %v", err)
		return err
	}
	if resp.Sid != nil {
		zap.S().Debugf("✅ WhatsApp message sent! SID: %s", *resp.Sid)
	}
	return nil
}

// HandleInbound converts a webhook payload into the port's Message and
// hands it to the router. mediaURL is non-empty for image messages;
// the bytes are fetched lazily with the account credentials.
func (t *TwilioTransport) HandleInbound(from, body, mediaURL, mediaType string) {
	if t.handler == nil {
		return
	}

	msg := Message{From: utils.Digits(from), Kind: KindText, Text: body}
	if mediaURL != "" {
		msg.Kind = KindImage
		msg.MediaRef = mediaURL
		msg.Media = func(ctx context.Context) ([]byte, error) {
			return t.fetchMedia(ctx, mediaURL)
		}
		if mediaType != "" && !strings.HasPrefix(mediaType, "image") {
			msg.Kind = KindOther
		}
	}

	t.handler(msg)
}

func (t *TwilioTransport) fetchMedia(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
