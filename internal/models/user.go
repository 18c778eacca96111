package models

import (
	"time"
)

// Role describes how the user participates in the marketplace.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleBoth   Role = "both"
)

// ValidRole reports whether r is one of the accepted role values.
func ValidRole(r Role) bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleBoth:
		return true
	}
	return false
}

// NotificationPreferences allows users to control email notifications.
type NotificationPreferences struct {
	NewMessage bool `bson:"new_message" json:"new_message"`
}

// User represents an account in the directory.
//
// Paid is the messaging-paywall unlock flag. It is monotonic: the payment
// event handler is the only writer that sets it true, and nothing in this
// system ever resets it.
type User struct {
	Base                    `bson:",inline"`
	Name                    string                   `bson:"name" json:"name"`
	Email                   string                   `bson:"email" json:"email"`
	PasswordHash            string                   `bson:"password" json:"-"`
	Role                    Role                     `bson:"role" json:"role"`
	Paid                    bool                     `bson:"paid" json:"paid"`
	PaidAt                  *time.Time               `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	PaymentRef              string                   `bson:"payment_ref,omitempty" json:"-"`
	IsAdmin                 bool                     `bson:"is_admin" json:"is_admin"`
	Suspended               bool                     `bson:"suspended" json:"suspended"`
	NotificationPreferences *NotificationPreferences `bson:"notification_preferences,omitempty" json:"notification_preferences,omitempty"`
	Deleted                 bool                     `bson:"deleted" json:"-"`
	CreatedAt               time.Time                `bson:"created_at" json:"created_at"`
	UpdatedAt               time.Time                `bson:"updated_at" json:"updated_at"`
}

// CanSell reports whether the user may own listings.
func (u *User) CanSell() bool {
	return u.Role == RoleSeller || u.Role == RoleBoth
}
