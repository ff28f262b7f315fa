package handlers

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/tbourn/filegate-bot/internal/domain"
)

// Ledger is the admission store behind the user endpoints and the
// verification callback.
type Ledger interface {
	// Admit records a verified admission and returns the resulting expiry.
	Admit(ctx context.Context, userID int64, referral string) (time.Time, error)
	// IsAdmitted reports whether userID currently holds an unexpired admission.
	IsAdmitted(ctx context.Context, userID int64) (bool, error)
	// Record returns the raw record, or nil when the user is unknown.
	Record(ctx context.Context, userID int64) (*domain.User, error)
	// Balance returns the referral balance.
	Balance(ctx context.Context, userID int64) (float64, error)
}

// Registry is the file store behind the file endpoints.
type Registry interface {
	// Page returns one page of an owner's entries and the owner's total.
	Page(ctx context.Context, ownerID int64, page, pageSize int) ([]domain.FileEntry, int64, error)
	// Delete removes id on behalf of requesterID.
	Delete(ctx context.Context, requesterID int64, id string) (bool, error)
}

// Options configures Handlers.
type Options struct {
	// CallbackSecret must match the token of a verification callback.
	// An empty secret rejects every callback.
	CallbackSecret string
	// DeepLink renders the t.me link of a stored entry; optional.
	DeepLink func(id string) string
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	ledger   Ledger
	registry Registry
	opts     Options
}

// New returns Handlers bound to the given services.
func New(ledger Ledger, registry Registry, opts Options) *Handlers {
	return &Handlers{ledger: ledger, registry: registry, opts: opts}
}

// validToken compares token against the callback secret in constant time.
func (h *Handlers) validToken(token string) bool {
	if h.opts.CallbackSecret == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.opts.CallbackSecret)) == 1
}
