// Package services – ReferralService
//
// This file implements the referral credit engine. When a user is admitted
// for the first time with a referral token naming somebody else, the referrer
// receives a fixed credit. Crediting is best-effort: a malformed token or a
// failed write never blocks the referred user's admission.
package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/filegate-bot/internal/domain"
	"github.com/tbourn/filegate-bot/internal/observability"
	"github.com/tbourn/filegate-bot/internal/repo"
)

// DefaultReferralCredit is the amount credited per referred user.
const DefaultReferralCredit = 0.05

// ReferralService credits referrers.
type ReferralService struct {
	// AmountCents is the credit per referred user in minor units.
	AmountCents int64
}

// NewReferralService returns a service crediting amount (rounded to cents)
// per referral. Negative amounts are clamped to zero.
func NewReferralService(amount float64) *ReferralService {
	cents := domain.AmountToCents(amount)
	if cents < 0 {
		cents = 0
	}
	return &ReferralService{AmountCents: cents}
}

// ParseReferral validates a referral token for the user self. It returns the
// referrer id and true only for a positive integer that differs from self.
func ParseReferral(token string, self int64) (int64, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil || id <= 0 || id == self {
		return 0, false
	}
	return id, true
}

// Credit adds the configured amount to referrerID's balance using db, which
// may be a transaction handle. The increment is a single upsert, so
// concurrent credits to the same referrer are all applied.
//
// Errors are logged and swallowed; Credit reports whether the credit was
// applied.
func (s *ReferralService) Credit(ctx context.Context, db *gorm.DB, referrerID int64) bool {
	tr := otel.Tracer("services/ReferralService")
	ctx, span := tr.Start(ctx, "Credit",
		trace.WithAttributes(
			attribute.Int64("referrer.id", referrerID),
			attribute.Int64("amount.cents", s.AmountCents),
		),
	)
	defer span.End()

	if referrerID <= 0 {
		observability.ReferralCredits.WithLabelValues("error").Inc()
		return false
	}
	if err := repo.CreditBalance(ctx, db, referrerID, s.AmountCents); err != nil {
		span.RecordError(err)
		observability.ReferralCredits.WithLabelValues("error").Inc()
		log.Warn().Err(err).Int64("referrer_id", referrerID).Msg("referral credit failed")
		return false
	}
	observability.ReferralCredits.WithLabelValues("ok").Inc()
	return true
}
