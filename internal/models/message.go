package models

import (
	"time"

	"coachyard/backend/internal/utils"
)

// Message is one entry in a conversation's ledger. Messages are immutable
// once created except for the Read flag, which only ever goes false to true.
type Message struct {
	Base           `bson:",inline"`
	ConversationID utils.SixID `bson:"conversation_id" json:"conversation_id"`
	SenderID       utils.SixID `bson:"sender_id" json:"sender_id"`
	Text           string      `bson:"text" json:"text"`
	Read           bool        `bson:"read" json:"read"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
}

// MessageView is what a viewer actually sees: the text may be replaced by the
// locked placeholder when the paywall redacts it.
type MessageView struct {
	ID        utils.SixID `json:"id"`
	SenderID  utils.SixID `json:"sender_id"`
	Text      string      `json:"text"`
	Locked    bool        `json:"locked"`
	Read      bool        `json:"read"`
	CreatedAt time.Time   `json:"created_at"`
}
