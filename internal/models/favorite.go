package models

import (
	"time"

	"coachyard/backend/internal/utils"
)

// Favorite marks a listing saved by a user. A unique index on
// (user_id, listing_id) makes adding idempotent.
type Favorite struct {
	Base      `bson:",inline"`
	UserID    utils.SixID `bson:"user_id" json:"user_id"`
	ListingID utils.SixID `bson:"listing_id" json:"listing_id"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}
