package models

import (
	"time"

	"coachyard/backend/internal/utils"
)

// Conversation is a buyer-seller thread scoped to one listing. A unique index
// on (listing_id, buyer_id) enforces at most one conversation per pair.
//
// SellerID is denormalized from the listing when the conversation is created
// and is never re-derived, so a later ownership change of the listing does not
// retroactively move the thread (or its paywall) to the new owner.
type Conversation struct {
	Base      `bson:",inline"`
	ListingID utils.SixID `bson:"listing_id" json:"listing_id"`
	BuyerID   utils.SixID `bson:"buyer_id" json:"buyer_id"`
	SellerID  utils.SixID `bson:"seller_id" json:"seller_id"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time   `bson:"updated_at" json:"updated_at"` // bumped on every new message
}

// ConversationSummary is a conversation with the derived fields the inbox
// list needs.
type ConversationSummary struct {
	Conversation  `bson:",inline"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
}

// OtherParticipant returns the counterpart of userID in the conversation.
func (c *Conversation) OtherParticipant(userID utils.SixID) utils.SixID {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

// HasParticipant reports whether userID is the buyer or the seller.
func (c *Conversation) HasParticipant(userID utils.SixID) bool {
	return c.BuyerID == userID || c.SellerID == userID
}
