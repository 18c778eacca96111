package paywall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedacted(t *testing.T) {
	// Only the unpaid-seller-viewing-buyer-message combination redacts.
	assert.True(t, Redacted(true, false, true))

	// Seller's own messages are never redacted from the seller.
	assert.False(t, Redacted(true, false, false))

	// A paid seller sees everything.
	assert.False(t, Redacted(true, true, true))
	assert.False(t, Redacted(true, true, false))

	// The buyer is never restricted, whatever the seller's paid state.
	assert.False(t, Redacted(false, false, true))
	assert.False(t, Redacted(false, false, false))
	assert.False(t, Redacted(false, true, true))
}

func TestCanSend(t *testing.T) {
	// Buyers always pass the gate.
	assert.True(t, CanSend(false, false))
	assert.True(t, CanSend(false, true))

	// Sellers pass only once paid.
	assert.False(t, CanSend(true, false))
	assert.True(t, CanSend(true, true))
}

func TestConversationLocked(t *testing.T) {
	assert.True(t, ConversationLocked(true, false))
	assert.False(t, ConversationLocked(true, true))
	assert.False(t, ConversationLocked(false, false))
	assert.False(t, ConversationLocked(false, true))
}
