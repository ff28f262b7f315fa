// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User
// (verification record) model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. Writes are expressed as single statements
// (upsert, conditional update, in-place increment) so that two concurrent
// admissions or credits for the same user cannot overwrite each other.
//
// Error semantics:
//   - When a user is not found, functions return ErrNotFound.
//   - On DB errors, the raw gorm error is propagated.
//
// Functions:
//
//   - GetUser(ctx, db, id) -> *domain.User, error
//     Fetches a verification record or ErrNotFound.
//
//   - EnsureUser(ctx, db, id, referredBy) -> (created bool, error)
//     Inserts an empty record unless one exists. Only the call that actually
//     inserted the row observes created == true.
//
//   - ExtendAdmission(ctx, db, id, expiry) -> error
//     Sets verified and moves the expiry forward, never backwards.
//
//   - CreditBalance(ctx, db, id, cents) -> error
//     Adds cents to the balance, creating a verified record when absent.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/filegate-bot/internal/domain"
)

// GetUser fetches the verification record of id. If the record does not
// exist, it returns ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureUser inserts a record for id with no expiry and zero balance when
// none exists. The insert uses ON CONFLICT DO NOTHING, so the first-contact
// decision is made by the database and not by a prior read.
//
// referredBy is only stored when the row is created.
func EnsureUser(ctx context.Context, db *gorm.DB, id int64, referredBy *int64) (bool, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:         id,
		ReferredBy: referredBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(u)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExtendAdmission marks id as verified and sets its expiry to the later of
// the stored expiry and expiry. The balance is left untouched.
//
// expiry must be UTC with second precision: SQLite compares the stored
// timestamps as text, which only orders correctly in a single fixed format.
// Returns ErrNotFound when no record exists.
func ExtendAdmission(ctx context.Context, db *gorm.DB, id int64, expiry time.Time) error {
	expiry = expiry.UTC().Truncate(time.Second)
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"verified": true,
			"expires_at": gorm.Expr(
				"CASE WHEN expires_at IS NULL OR expires_at < ? THEN ? ELSE expires_at END",
				expiry, expiry,
			),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreditBalance adds cents to the balance of id in one statement.
//
// When id has no record yet, it is created with verified=true, no expiry, and
// a balance of cents. Existing verified/expiry values are never modified.
func CreditBalance(ctx context.Context, db *gorm.DB, id int64, cents int64) error {
	now := time.Now().UTC()
	u := &domain.User{
		ID:           id,
		Verified:     true,
		BalanceCents: cents,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"balance_cents": gorm.Expr("balance_cents + excluded.balance_cents"),
				"updated_at":    now,
			}),
		}).
		Create(u).Error
}
