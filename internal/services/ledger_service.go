// Package services – LedgerService
//
// This file implements the verification ledger: the per-user record deciding
// whether a requester may use the bot. Admission is a refresh-or-create
// operation that extends the expiry window and, on first contact, credits the
// referrer through ReferralService.
//
// Every write is a single conditional statement (see repo.EnsureUser,
// repo.ExtendAdmission, repo.CreditBalance), so concurrent admissions never
// lose an expiry extension or a balance increment.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/filegate-bot/internal/domain"
	"github.com/tbourn/filegate-bot/internal/observability"
	"github.com/tbourn/filegate-bot/internal/repo"
)

// DefaultAdmissionTTL is how long one admission lasts.
const DefaultAdmissionTTL = 24 * time.Hour

// Clock supplies the current time. Tests inject fixed clocks.
type Clock func() time.Time

// errCreditSkipped rolls back the referral savepoint when Credit did not apply.
var errCreditSkipped = errors.New("referral credit skipped")

// LedgerService owns admission checks and refreshes.
type LedgerService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Referrals credits referrers on first admission; nil disables crediting.
	Referrals *ReferralService
	// TTL is the admission window granted by Admit.
	TTL time.Duration
	// Now returns the current time; defaults to time.Now.
	Now Clock
}

// NewLedgerService constructs a LedgerService with the given TTL. A
// non-positive ttl falls back to DefaultAdmissionTTL.
func NewLedgerService(db *gorm.DB, referrals *ReferralService, ttl time.Duration) *LedgerService {
	if ttl <= 0 {
		ttl = DefaultAdmissionTTL
	}
	return &LedgerService{DB: db, Referrals: referrals, TTL: ttl, Now: time.Now}
}

func (s *LedgerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Record returns the stored verification record of userID, or (nil, nil)
// when the user has never been seen.
func (s *LedgerService) Record(ctx context.Context, userID int64) (*domain.User, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// IsAdmitted reports whether userID currently holds a valid admission.
// A missing record, a missing expiry, or an expiry at or before now all
// mean "not admitted". It has no side effects.
func (s *LedgerService) IsAdmitted(ctx context.Context, userID int64) (bool, error) {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "IsAdmitted",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	u, err := s.Record(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return u.Admitted(s.now()), nil
}

// Admit grants userID a fresh admission window of TTL from now and returns
// the resulting expiry.
//
// Semantics:
//   - The record is created if missing; only the call that creates it may
//     credit a referrer, and only when referral parses as another user's id.
//   - The referral credit runs inside a savepoint; its failure is logged by
//     ReferralService and never fails Admit.
//   - verified is set and the expiry becomes max(stored, now+TTL); the
//     balance is untouched.
//
// Store errors are returned to the caller.
func (s *LedgerService) Admit(ctx context.Context, userID int64, referral string) (time.Time, error) {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "Admit",
		trace.WithAttributes(
			attribute.Int64("user.id", userID),
			attribute.Bool("referral.present", referral != ""),
		),
	)
	defer span.End()

	if userID <= 0 {
		return time.Time{}, ErrInvalidUser
	}

	newExpiry := s.now().UTC().Truncate(time.Second).Add(s.TTL)
	refID, hasRef := ParseReferral(referral, userID)

	var (
		expiry  time.Time
		created bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var referredBy *int64
		if hasRef {
			referredBy = &refID
		}
		var err error
		created, err = repo.EnsureUser(ctx, tx, userID, referredBy)
		if err != nil {
			return err
		}

		if created && hasRef && s.Referrals != nil {
			_ = tx.Transaction(func(sp *gorm.DB) error {
				if !s.Referrals.Credit(ctx, sp, refID) {
					return errCreditSkipped
				}
				return nil
			})
		}

		if err := repo.ExtendAdmission(ctx, tx, userID, newExpiry); err != nil {
			return err
		}
		u, err := repo.GetUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if u.ExpiresAt != nil {
			expiry = *u.ExpiresAt
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return time.Time{}, err
	}

	if created {
		observability.Admissions.WithLabelValues("true").Inc()
	} else {
		observability.Admissions.WithLabelValues("false").Inc()
	}
	return expiry, nil
}

// Balance returns the referral balance of userID; 0 when unknown.
func (s *LedgerService) Balance(ctx context.Context, userID int64) (float64, error) {
	u, err := s.Record(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Balance(), nil
}
