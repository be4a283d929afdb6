package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// GenerateAuthCode generates a cryptographically secure 6-digit
// verification code, uniform over 000000-999999.
func GenerateAuthCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate random number: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// GenerateSecureID generates a random ID with a business prefix, used
// for parking and notification log identifiers.
func GenerateSecureID(prefix string) string {
	max := big.NewInt(999999)
	n, _ := rand.Int(rand.Reader, max)
	return fmt.Sprintf("%s%d%06d", prefix, time.Now().Unix(), n.Int64())
}

// Digits strips everything but 0-9 from s. Used to normalize typed
// identities and transport sender ids ("whatsapp:+5592..." etc).
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
