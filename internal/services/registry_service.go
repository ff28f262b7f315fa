// Package services – RegistryService
//
// This file implements the file registry. Uploads are relayed into the
// storage channel first and only then registered under a fresh 8-character
// identifier, so a failed relay never leaves a dangling entry. Identifiers
// that collide with an existing entry are regenerated, never overwritten.
//
// Deletion requires the requester to own the entry. Admission is enforced by
// the caller (the bot gateway), not here.
package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/filegate-bot/internal/domain"
	"github.com/tbourn/filegate-bot/internal/observability"
	"github.com/tbourn/filegate-bot/internal/repo"
)

// IDLength is the number of characters in a file identifier.
const IDLength = 8

// DefaultMaxIDAttempts bounds identifier regeneration on collision.
const DefaultMaxIDAttempts = 5

// DefaultPageSize is used by Page when no page size is given.
const DefaultPageSize = 20

// Relayer moves payloads into the storage channel and back out of it.
type Relayer interface {
	// Relay copies p into the channel and returns the channel message id.
	Relay(ctx context.Context, p domain.Payload) (int, error)
	// Retract removes a previously relayed channel message.
	Retract(ctx context.Context, channelMessageID int) error
}

// RegistryService maps short identifiers to relayed content.
type RegistryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Relayer delivers payloads to the storage channel.
	Relayer Relayer
	// MaxIDAttempts caps identifier regeneration on collision.
	MaxIDAttempts int
	// NewID generates identifiers; defaults to NewID.
	NewID func() string
}

// NewRegistryService constructs a RegistryService with default id generation.
func NewRegistryService(db *gorm.DB, relayer Relayer, maxAttempts int) *RegistryService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxIDAttempts
	}
	return &RegistryService{DB: db, Relayer: relayer, MaxIDAttempts: maxAttempts, NewID: NewID}
}

// NewID returns 8 lowercase hex characters taken from a random UUIDv4.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:IDLength]
}

// IsFileID reports whether s has the shape of a file identifier.
func IsFileID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}

// Store relays payload to the storage channel and registers it for ownerID.
//
// Errors:
//   - ErrInvalidUser / ErrInvalidPayload for bad input (nothing relayed).
//   - ErrRelayFailed when the transport fails (nothing registered).
//   - ErrIDSpaceExhausted when every attempt collided.
//   - The underlying DB error otherwise.
//
// When registration fails after a successful relay the channel copy is
// retracted, so the channel holds no message that no entry points to.
func (s *RegistryService) Store(ctx context.Context, ownerID int64, payload domain.Payload) (*domain.FileEntry, error) {
	tr := otel.Tracer("services/RegistryService")
	ctx, span := tr.Start(ctx, "Store",
		trace.WithAttributes(
			attribute.Int64("owner.id", ownerID),
			attribute.String("file.kind", string(payload.Kind)),
		),
	)
	defer span.End()

	if ownerID <= 0 {
		return nil, ErrInvalidUser
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	channelMsgID, err := s.Relayer.Relay(ctx, payload)
	if err != nil {
		span.RecordError(err)
		observability.RelayFailures.Inc()
		return nil, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}

	gen := s.NewID
	if gen == nil {
		gen = NewID
	}
	attempts := s.MaxIDAttempts
	if attempts <= 0 {
		attempts = DefaultMaxIDAttempts
	}

	for i := 0; i < attempts; i++ {
		entry := &domain.FileEntry{
			ID:               gen(),
			OwnerID:          ownerID,
			Kind:             payload.Kind,
			ChannelMessageID: channelMsgID,
			FileID:           payload.FileID,
			FileName:         payload.FileName,
			Text:             payload.Text,
		}
		err := repo.CreateFile(ctx, s.DB, entry)
		if errors.Is(err, repo.ErrDuplicate) {
			log.Debug().Str("file_id", entry.ID).Int("attempt", i+1).Msg("file id collision, regenerating")
			continue
		}
		if err != nil {
			span.RecordError(err)
			s.retractOrphan(ctx, channelMsgID, err)
			return nil, err
		}
		span.SetAttributes(attribute.String("file.id", entry.ID))
		observability.FilesStored.WithLabelValues(string(entry.Kind)).Inc()
		return entry, nil
	}
	span.RecordError(ErrIDSpaceExhausted)
	s.retractOrphan(ctx, channelMsgID, ErrIDSpaceExhausted)
	return nil, ErrIDSpaceExhausted
}

// retractOrphanTimeout bounds the cleanup of a relayed but unregistered copy.
const retractOrphanTimeout = 10 * time.Second

// retractOrphan removes a channel copy whose registration failed. It runs
// even when ctx is already done; failures are only logged.
func (s *RegistryService) retractOrphan(ctx context.Context, channelMsgID int, cause error) {
	if s.Relayer == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), retractOrphanTimeout)
	defer cancel()
	if err := s.Relayer.Retract(rctx, channelMsgID); err != nil {
		log.Warn().Err(err).AnErr("cause", cause).Int("channel_message_id", channelMsgID).
			Msg("could not retract unregistered channel message")
		return
	}
	observability.OrphansRetracted.Inc()
}

// ListByOwner returns a lazy sequence over every entry owned by ownerID.
//
// Rows are streamed from the database while the caller ranges. The sequence
// is finite and single-use: ranging over it again yields ErrSequenceConsumed.
// A database error is yielded once as the final element.
func (s *RegistryService) ListByOwner(ctx context.Context, ownerID int64) iter.Seq2[domain.FileEntry, error] {
	var used atomic.Bool
	return func(yield func(domain.FileEntry, error) bool) {
		if used.Swap(true) {
			yield(domain.FileEntry{}, ErrSequenceConsumed)
			return
		}
		stopped := false
		err := repo.EachFileByOwner(ctx, s.DB, ownerID, func(f domain.FileEntry) bool {
			if !yield(f, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(domain.FileEntry{}, err)
		}
	}
}

// Files returns the entries owned by ownerID as a slice.
func (s *RegistryService) Files(ctx context.Context, ownerID int64) ([]domain.FileEntry, error) {
	return repo.ListFilesByOwner(ctx, s.DB, ownerID)
}

// Page returns one page of the entries owned by ownerID and their total
// count. page starts at 1; invalid values fall back to the first page of
// DefaultPageSize entries.
func (s *RegistryService) Page(ctx context.Context, ownerID int64, page, pageSize int) ([]domain.FileEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	total, err := repo.CountFilesByOwner(ctx, s.DB, ownerID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.FileEntry{}, 0, nil
	}
	items, err := repo.ListFilesPage(ctx, s.DB, ownerID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Stats returns how many entries ownerID has and when the newest was created.
func (s *RegistryService) Stats(ctx context.Context, ownerID int64) (int64, *time.Time, error) {
	return repo.FileStats(ctx, s.DB, ownerID)
}

// Resolve looks up a single entry by identifier.
func (s *RegistryService) Resolve(ctx context.Context, id string) (*domain.FileEntry, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if !IsFileID(id) {
		return nil, ErrFileNotFound
	}
	f, err := repo.GetFile(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrFileNotFound
	}
	return f, err
}

// Delete removes the entry id on behalf of requesterID.
//
// Results:
//   - (false, nil) when id does not exist; nothing is mutated.
//   - (false, ErrNotOwner) when id belongs to another user.
//   - (true, nil) after the entry was deleted. The relayed channel message
//     is retracted best-effort afterwards.
func (s *RegistryService) Delete(ctx context.Context, requesterID int64, id string) (bool, error) {
	tr := otel.Tracer("services/RegistryService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.Int64("requester.id", requesterID),
			attribute.String("file.id", id),
		),
	)
	defer span.End()

	f, err := s.Resolve(ctx, id)
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if f.OwnerID != requesterID {
		return false, ErrNotOwner
	}

	if err := repo.DeleteFile(ctx, s.DB, f.ID, requesterID); err != nil {
		// Lost a race with a concurrent delete of the same entry.
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		span.RecordError(err)
		return false, err
	}
	observability.FilesDeleted.Inc()

	if s.Relayer != nil {
		if err := s.Relayer.Retract(ctx, f.ChannelMessageID); err != nil {
			log.Warn().Err(err).Str("file_id", f.ID).Int("channel_message_id", f.ChannelMessageID).
				Msg("could not retract channel message")
		}
	}
	return true, nil
}
