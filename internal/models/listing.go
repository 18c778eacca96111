package models

import (
	"time"

	"coachyard/backend/internal/utils"
)

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	ListingStatusDraft   ListingStatus = "draft"
	ListingStatusActive  ListingStatus = "active"
	ListingStatusPending ListingStatus = "pending"
	ListingStatusSold    ListingStatus = "sold"
)

// AskingPrice defines the structure for monetary values.
type AskingPrice struct {
	Value        float64 `bson:"value" json:"value"`
	CurrencyCode string  `bson:"currency_code" json:"currency_code"`
}

// Listing represents a coach for sale.
type Listing struct {
	Base        `bson:",inline"`
	UserID      utils.SixID   `bson:"user_id" json:"user_id"` // seller of record
	Title       string        `bson:"title" json:"title"`
	Body        string        `bson:"body" json:"body"`
	Make        string        `bson:"make" json:"make"`
	Model       string        `bson:"model" json:"model"`
	Year        int           `bson:"year" json:"year"`
	Mileage     int           `bson:"mileage" json:"mileage"`
	LengthFeet  float64       `bson:"length_feet,omitempty" json:"length_feet,omitempty"`
	AskingPrice *AskingPrice  `bson:"asking_price,omitempty" json:"asking_price,omitempty"`
	Status      ListingStatus `bson:"status" json:"status"`
	Images      []string      `bson:"images" json:"images"` // S3 keys
	Deleted     bool          `bson:"deleted" json:"-"`
	CreatedAt   time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at" json:"updated_at"`
	PublishedAt *time.Time    `bson:"published_at,omitempty" json:"published_at,omitempty"`
}
