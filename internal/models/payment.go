package models

import (
	"time"

	"coachyard/backend/internal/utils"
)

// PaymentStatus is the lifecycle state of an unlock payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
)

// UnlockPayment records a seller's one-time messaging unlock purchase.
// Created when checkout starts; completed by the payment webhook.
type UnlockPayment struct {
	Base         `bson:",inline"`
	UserID       utils.SixID   `bson:"user_id" json:"user_id"`
	Ref          string        `bson:"ref" json:"ref"` // provider payment reference
	Amount       float64       `bson:"amount" json:"amount"`
	CurrencyCode string        `bson:"currency_code" json:"currency_code"`
	Status       PaymentStatus `bson:"status" json:"status"`
	CreatedAt    time.Time     `bson:"created_at" json:"created_at"`
	CompletedAt  *time.Time    `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}
