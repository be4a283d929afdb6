package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

const webhookPath = "/webhook/whatsapp"

func newSignatureApp(authToken string) *fiber.App {
	app := fiber.New()
	app.Post(webhookPath, ValidateTwilioSignature(authToken), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestTwilioSignatureAccepted(t *testing.T) {
	t.Parallel()
	const token = "twilio-auth-token"
	app := newSignatureApp(token)

	params := map[string]string{
		"Body": "ola",
		"From": "whatsapp:+5511999990000",
	}
	sig := calculateTwilioSignature(token, "http://example.com"+webhookPath, params)

	form := "Body=ola&From=whatsapp%3A%2B5511999990000"
	req := httptest.NewRequest("POST", "http://example.com"+webhookPath, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", sig)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status: got %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
}

func TestTwilioSignatureRejectsTamperedBody(t *testing.T) {
	t.Parallel()
	const token = "twilio-auth-token"
	app := newSignatureApp(token)

	// Signature computed over a different body than the one sent.
	sig := calculateTwilioSignature(token, "http://example.com"+webhookPath, map[string]string{"Body": "ola"})

	req := httptest.NewRequest("POST", "http://example.com"+webhookPath, strings.NewReader("Body=adulterada"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", sig)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", resp.StatusCode, fiber.StatusUnauthorized)
	}
}

func TestTwilioSignatureMissingHeader(t *testing.T) {
	t.Parallel()
	app := newSignatureApp("twilio-auth-token")

	req := httptest.NewRequest("POST", "http://example.com"+webhookPath, strings.NewReader("Body=ola"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", resp.StatusCode, fiber.StatusUnauthorized)
	}
}

func TestTwilioSignatureWithoutConfiguredToken(t *testing.T) {
	t.Parallel()
	app := newSignatureApp("")

	req := httptest.NewRequest("POST", "http://example.com"+webhookPath, strings.NewReader("Body=ola"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "whatever")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("status: got %d, want %d", resp.StatusCode, fiber.StatusInternalServerError)
	}
}

func TestCalculateTwilioSignatureSortsParams(t *testing.T) {
	t.Parallel()

	// Twilio concatenates parameters sorted by key; insertion order
	// must not matter.
	a := calculateTwilioSignature("tok", "http://example.com/x", map[string]string{"B": "2", "A": "1"})
	b := calculateTwilioSignature("tok", "http://example.com/x", map[string]string{"A": "1", "B": "2"})
	if a != b {
		t.Errorf("signature depends on map order: %q vs %q", a, b)
	}

	c := calculateTwilioSignature("tok", "http://example.com/x", map[string]string{"A": "1", "B": "3"})
	if a == c {
		t.Error("signature ignores parameter values")
	}
}
