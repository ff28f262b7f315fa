// Package domain defines the persistence models for verification records and
// stored files. These types are mapped with GORM and form the core data layer
// of the file gate bot.
package domain

import (
	"math"
	"time"
)

// User is the verification record of a single Telegram user. It decides
// whether the user is currently admitted and carries the referral balance.
//
// Fields:
//   - ID: Telegram user id (primary key, never auto-incremented).
//   - Verified: set on every admission; a referrer created by a credit also
//     starts as verified.
//   - ExpiresAt: admission deadline in UTC with second precision; nil means
//     the user was never admitted.
//   - BalanceCents: referral balance in minor units (0.05 == 5).
//   - ReferredBy: the referrer credited when this record was created, if any.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID           int64      `json:"id"            gorm:"primaryKey;autoIncrement:false"`
	Verified     bool       `json:"verified"      gorm:"not null;default:false"`
	ExpiresAt    *time.Time `json:"expires_at"    gorm:"index"`
	BalanceCents int64      `json:"balance_cents" gorm:"not null;default:0;check:balance_cents >= 0"`
	ReferredBy   *int64     `json:"referred_by,omitempty" gorm:"index"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Admitted reports whether the record grants access at now. A record without
// an expiry is never admitted, and the deadline itself is already expired.
func (u *User) Admitted(now time.Time) bool {
	if u == nil || u.ExpiresAt == nil {
		return false
	}
	return now.Before(*u.ExpiresAt)
}

// Balance returns the balance as a decimal amount.
func (u *User) Balance() float64 {
	if u == nil {
		return 0
	}
	return CentsToAmount(u.BalanceCents)
}

// AmountToCents converts a decimal amount to minor units, rounding half away
// from zero to two decimal places.
func AmountToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CentsToAmount converts minor units back to a decimal amount.
func CentsToAmount(cents int64) float64 {
	return float64(cents) / 100
}
