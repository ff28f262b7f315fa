package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Bot-side Prometheus collectors. HTTP traffic is instrumented separately by
// the middleware package; these cover the chat gateway and the core services.
// Label sets are small closed enums to keep cardinality bounded.
var (
	// BotUpdates counts handled updates by route (start, menu, upload, ...).
	BotUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total number of Telegram updates handled, by route.",
		},
		[]string{"route"},
	)

	// BotUpdateDuration records handling latency by route.
	BotUpdateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_update_duration_seconds",
			Help:    "Duration of Telegram update handling in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Admissions counts successful admissions; first="true" for new users.
	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_total",
			Help: "Total number of admissions granted.",
		},
		[]string{"first"},
	)

	// ReferralCredits counts referral credit attempts by result (ok|error).
	ReferralCredits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_credits_total",
			Help: "Referral credits applied to referrers, by result.",
		},
		[]string{"result"},
	)

	// LinkShortens counts verification links by outcome (shortened|fallback).
	LinkShortens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_links_total",
			Help: "Verification links issued, by shortening outcome.",
		},
		[]string{"outcome"},
	)

	// FilesStored counts registered files by kind.
	FilesStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "files_stored_total",
			Help: "Files relayed to the storage channel and registered, by kind.",
		},
		[]string{"kind"},
	)

	// FilesDeleted counts registry deletions.
	FilesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "files_deleted_total",
			Help: "Registry entries deleted by their owners.",
		},
	)

	// RelayFailures counts payloads the transport could not relay.
	RelayFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_failures_total",
			Help: "Payloads that could not be relayed to the storage channel.",
		},
	)

	// OrphansRetracted counts channel copies removed after registration failed.
	OrphansRetracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orphans_retracted_total",
			Help: "Relayed channel messages retracted because registration failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BotUpdates, BotUpdateDuration,
		Admissions, ReferralCredits, LinkShortens,
		FilesStored, FilesDeleted, RelayFailures, OrphansRetracted,
	)
}

// ObserveUpdate records one handled update for route.
func ObserveUpdate(route string, d time.Duration) {
	BotUpdates.WithLabelValues(route).Inc()
	BotUpdateDuration.WithLabelValues(route).Observe(d.Seconds())
}
