// Package services – LinkIssuer
//
// This file builds the per-user verification URL and tries to shorten it.
// Shortening is strictly best-effort: any failure (timeout, bad status,
// malformed response) falls back to the canonical URL, and Issue never
// returns an error.
package services

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/filegate-bot/internal/observability"
)

// DefaultShortenTimeout bounds a single shortening call.
const DefaultShortenTimeout = 5 * time.Second

// Shortener turns a long URL into a shorter one.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// LinkIssuer produces verification links.
type LinkIssuer struct {
	// BaseURL is the verification page, e.g. https://veribot.netlify.app/verify.html.
	BaseURL string
	// Shortener is optional; nil always yields the canonical URL.
	Shortener Shortener
	// Timeout bounds the shortening call.
	Timeout time.Duration
	// IncludeReferral adds the referral token to the URL so a verification
	// callback can credit the referrer.
	IncludeReferral bool
}

// CanonicalURL returns BaseURL with uid (and optionally ref) query
// parameters. Existing query parameters on BaseURL are kept.
func (l *LinkIssuer) CanonicalURL(userID int64, referral string) string {
	u, err := url.Parse(l.BaseURL)
	if err != nil {
		// BaseURL is validated at startup; keep the link usable regardless.
		sep := "?"
		if strings.Contains(l.BaseURL, "?") {
			sep = "&"
		}
		return l.BaseURL + sep + "uid=" + strconv.FormatInt(userID, 10)
	}
	q := u.Query()
	q.Set("uid", strconv.FormatInt(userID, 10))
	if l.IncludeReferral {
		if refID, ok := ParseReferral(referral, userID); ok {
			q.Set("ref", strconv.FormatInt(refID, 10))
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Issue returns a verification link for userID, shortened when possible.
func (l *LinkIssuer) Issue(ctx context.Context, userID int64, referral string) string {
	tr := otel.Tracer("services/LinkIssuer")
	ctx, span := tr.Start(ctx, "Issue",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	long := l.CanonicalURL(userID, referral)
	short, err := l.shorten(ctx, long)
	if err != nil {
		span.SetAttributes(attribute.Bool("link.shortened", false))
		observability.LinkShortens.WithLabelValues("fallback").Inc()
		log.Warn().Err(err).Int64("user_id", userID).Msg("link shortening failed, using canonical url")
		return long
	}
	span.SetAttributes(attribute.Bool("link.shortened", true))
	observability.LinkShortens.WithLabelValues("shortened").Inc()
	return short
}

func (l *LinkIssuer) shorten(ctx context.Context, long string) (string, error) {
	if l.Shortener == nil {
		return "", ErrShortenerUnavailable
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultShortenTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	short, err := l.Shortener.Shorten(ctx, long)
	if err != nil {
		return "", err
	}
	short = strings.TrimSpace(short)
	if short == "" {
		return "", ErrShortenerUnavailable
	}
	return short, nil
}
