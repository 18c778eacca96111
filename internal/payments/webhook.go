// Package payments integrates the external payment provider's webhook.
// Signature verification happens here, before any event reaches the billing
// service, so the handler never trusts caller-supplied identifiers unverified.
package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// EventTypeCheckoutCompleted is the only event type this system consumes.
const EventTypeCheckoutCompleted = "checkout.completed"

// ErrBadSignature is returned when the webhook signature does not match the
// request body. The boundary rejects these before the billing service runs.
var ErrBadSignature = errors.New("payment webhook signature mismatch")

// CheckoutEvent is a payment-completed notification whose authenticity has
// been established. UserID may still be empty or garbage for events the
// provider sends about other products; the billing service treats those as
// acknowledged no-ops rather than errors.
type CheckoutEvent struct {
	Type       string  `json:"type"`
	UserID     string  `json:"user_id"`
	PaymentRef string  `json:"payment_ref"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
}

// Sign computes the hex HMAC-SHA256 signature of body under secret. Exposed
// for tests and for the provider simulator.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyEvent checks the signature over the raw body and, only then, decodes
// the event. The signature check uses a constant-time compare.
func VerifyEvent(body []byte, signature, secret string) (*CheckoutEvent, error) {
	if signature == "" {
		return nil, ErrBadSignature
	}

	expected := Sign(body, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrBadSignature
	}

	var event CheckoutEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// Authentic but unparsable: surface as a decode error so the caller
		// can still acknowledge without invoking the handler.
		return nil, fmt.Errorf("failed to decode verified payment event: %w", err)
	}
	return &event, nil
}
