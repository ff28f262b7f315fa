// Package bot is the Telegram side of the service: it routes inbound updates
// (commands, uploads and button presses) to the ledger, link issuer and file
// registry, and renders their results as chat messages.
//
// The gateway owns no state. Every update is handled on its own goroutine,
// bounded by a worker semaphore and a per-update timeout.
package bot

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/filegate-bot/internal/domain"
	"github.com/tbourn/filegate-bot/internal/observability"
	"github.com/tbourn/filegate-bot/internal/services"
)

// Ledger is the admission store used by the gateway.
type Ledger interface {
	IsAdmitted(ctx context.Context, userID int64) (bool, error)
	Admit(ctx context.Context, userID int64, referral string) (time.Time, error)
	Record(ctx context.Context, userID int64) (*domain.User, error)
	Balance(ctx context.Context, userID int64) (float64, error)
}

// LinkIssuer produces verification links.
type LinkIssuer interface {
	Issue(ctx context.Context, userID int64, referral string) string
}

// Registry stores and manages relayed files.
type Registry interface {
	Store(ctx context.Context, ownerID int64, payload domain.Payload) (*domain.FileEntry, error)
	ListByOwner(ctx context.Context, ownerID int64) iter.Seq2[domain.FileEntry, error]
	Resolve(ctx context.Context, id string) (*domain.FileEntry, error)
	Delete(ctx context.Context, requesterID int64, id string) (bool, error)
}

// Deliverer copies a stored channel message into a chat.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, channelMessageID int) error
}

// Options tunes the gateway.
type Options struct {
	// BotUsername is used to build t.me deep links.
	BotUsername string
	// Optimistic admits users as soon as a verification link is issued.
	// When false, admission comes from the verification callback.
	Optimistic bool
	// TTL is only used to word the verification prompt.
	TTL time.Duration
	// Workers bounds concurrently handled updates.
	Workers int
	// RequestTimeout bounds the handling of a single update.
	RequestTimeout time.Duration
}

// Gateway routes Telegram updates.
type Gateway struct {
	api      Messenger
	ledger   Ledger
	links    LinkIssuer
	registry Registry
	files    Deliverer
	opts     Options
}

// NewGateway wires a Gateway. Zero option values fall back to defaults.
func NewGateway(api Messenger, ledger Ledger, links LinkIssuer, registry Registry, files Deliverer, opts Options) *Gateway {
	if opts.Workers <= 0 {
		opts.Workers = 16
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.TTL <= 0 {
		opts.TTL = services.DefaultAdmissionTTL
	}
	return &Gateway{api: api, ledger: ledger, links: links, registry: registry, files: files, opts: opts}
}

// RegisterCommands publishes the command list shown by Telegram clients.
func (g *Gateway) RegisterCommands() error {
	_, err := g.api.Request(tgbotapi.NewSetMyCommands(commands...))
	return err
}

// DeepLink returns the t.me link that retrieves file id.
func (g *Gateway) DeepLink(id string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", g.opts.BotUsername, id)
}

// Run handles updates until ctx is cancelled or the channel closes, then
// waits for in-flight handlers. Cancelling ctx stops intake only: updates
// already being handled run to completion under their own RequestTimeout.
func (g *Gateway) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	sem := make(chan struct{}, g.opts.Workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer wg.Done()
				defer func() { <-sem }()
				g.dispatch(ctx, upd)
			}(upd)
		}
	}
}

func (g *Gateway) dispatch(parent context.Context, upd tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), g.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	route := "unknown"
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Int("update_id", upd.UpdateID).Interface("panic", rec).Msg("update handler panicked")
			route = "panic"
		}
		observability.ObserveUpdate(route, time.Since(start))
	}()
	route = g.HandleUpdate(ctx, upd)
}

// HandleUpdate routes a single update and returns the route name it took.
func (g *Gateway) HandleUpdate(ctx context.Context, upd tgbotapi.Update) string {
	switch {
	case upd.Message != nil && upd.Message.From != nil && upd.Message.Chat != nil:
		m := upd.Message
		l := log.With().Int("update_id", upd.UpdateID).Int64("user_id", m.From.ID).Logger()
		ctx = l.WithContext(ctx)
		if m.IsCommand() {
			return g.handleCommand(ctx, m)
		}
		if p, ok := PayloadFrom(m); ok {
			g.handleUpload(ctx, m, p)
			return "upload"
		}
		return "ignored"
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		q := upd.CallbackQuery
		l := log.With().Int("update_id", upd.UpdateID).Int64("user_id", q.From.ID).Str("data", q.Data).Logger()
		ctx = l.WithContext(ctx)
		return g.handleCallback(ctx, q)
	}
	return "ignored"
}

func (g *Gateway) handleCommand(ctx context.Context, m *tgbotapi.Message) string {
	uid, chatID := m.From.ID, m.Chat.ID
	switch m.Command() {
	case "start":
		return g.handleStart(ctx, uid, chatID, strings.TrimSpace(m.CommandArguments()))
	case "menu":
		g.reply(ctx, chatID, msgMenu, menuKeyboard())
		return "menu"
	case "storage":
		g.sendStorage(ctx, uid, chatID)
		return "storage"
	case "money":
		g.sendBalance(ctx, uid, chatID)
		return "money"
	case "help":
		g.reply(ctx, chatID, msgHelp, nil)
		return "help"
	}
	g.reply(ctx, chatID, msgHelp, nil)
	return "unknown_command"
}

// handleStart covers /start, /start <referral> and /start <file id>.
func (g *Gateway) handleStart(ctx context.Context, uid, chatID int64, arg string) string {
	if services.IsFileID(strings.ToLower(arg)) {
		entry, err := g.registry.Resolve(ctx, arg)
		switch {
		case err == nil:
			g.deliver(ctx, uid, chatID, entry)
			return "deep_link"
		case errors.Is(err, services.ErrFileNotFound):
			// An all-digit token may still be a referral.
			if _, ok := services.ParseReferral(arg, uid); !ok {
				g.reply(ctx, chatID, msgFileMissing, nil)
				return "deep_link"
			}
		default:
			g.fail(ctx, chatID, err, "resolve deep link")
			return "deep_link"
		}
	}
	g.verify(ctx, uid, chatID, arg)
	return "start"
}

// verify confirms an existing admission or issues a verification link.
func (g *Gateway) verify(ctx context.Context, uid, chatID int64, referral string) {
	admitted, err := g.ledger.IsAdmitted(ctx, uid)
	if err != nil {
		g.fail(ctx, chatID, err, "admission check")
		return
	}
	if admitted {
		if u, err := g.ledger.Record(ctx, uid); err == nil && u != nil && u.ExpiresAt != nil {
			g.reply(ctx, chatID, verifiedText(*u.ExpiresAt), nil)
			return
		}
		g.reply(ctx, chatID, "✅ You're verified.", nil)
		return
	}

	link := g.links.Issue(ctx, uid, referral)
	text := fmt.Sprintf(msgVerifyPrompt, windowText(g.opts.TTL))
	if !g.opts.Optimistic {
		text += "\n" + msgAwaitCallback
	}
	g.reply(ctx, chatID, text, verifyKeyboard(link))

	if g.opts.Optimistic {
		if _, err := g.ledger.Admit(ctx, uid, referral); err != nil {
			g.fail(ctx, chatID, err, "admit")
		}
	}
}

func (g *Gateway) deliver(ctx context.Context, uid, chatID int64, entry *domain.FileEntry) {
	admitted, err := g.ledger.IsAdmitted(ctx, uid)
	if err != nil {
		g.fail(ctx, chatID, err, "admission check")
		return
	}
	if !admitted {
		g.verify(ctx, uid, chatID, "")
		return
	}
	if err := g.files.Deliver(ctx, chatID, entry.ChannelMessageID); err != nil {
		g.fail(ctx, chatID, err, "deliver file")
	}
}

func (g *Gateway) handleUpload(ctx context.Context, m *tgbotapi.Message, p domain.Payload) {
	uid, chatID := m.From.ID, m.Chat.ID
	zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("kind", string(p.Kind))
	})

	admitted, err := g.ledger.IsAdmitted(ctx, uid)
	if err != nil {
		g.fail(ctx, chatID, err, "admission check")
		return
	}
	if !admitted {
		g.reply(ctx, chatID, msgNotAdmitted, nil)
		return
	}

	entry, err := g.registry.Store(ctx, uid, p)
	switch {
	case errors.Is(err, services.ErrRelayFailed):
		zerolog.Ctx(ctx).Warn().Err(err).Msg("relay failed")
		g.reply(ctx, chatID, msgRelayFailed, nil)
		return
	case err != nil:
		g.fail(ctx, chatID, err, "store")
		return
	}
	zerolog.Ctx(ctx).Info().Str("file_id", entry.ID).Msg("file stored")
	g.reply(ctx, chatID, storedText(entry.Kind, g.DeepLink(entry.ID)), nil)
}

func (g *Gateway) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) string {
	if _, err := g.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("answer callback")
	}
	if q.Message == nil || q.Message.Chat == nil {
		return "ignored"
	}
	uid, chatID := q.From.ID, q.Message.Chat.ID

	switch data := strings.TrimSpace(q.Data); {
	case data == cbStore:
		g.reply(ctx, chatID, msgStorePrompt, nil)
		return "cb_store"
	case data == cbStorage:
		g.sendStorage(ctx, uid, chatID)
		return "cb_storage"
	case data == cbMoney:
		g.sendBalance(ctx, uid, chatID)
		return "cb_money"
	case data == cbDelete:
		g.reply(ctx, chatID, msgDeleteHint, nil)
		return "cb_delete"
	case strings.HasPrefix(data, cbDeletePrefix):
		g.deleteFile(ctx, uid, chatID, strings.TrimPrefix(data, cbDeletePrefix))
		return "cb_delete_file"
	case strings.HasPrefix(data, cbLegacyDeletePrefix):
		g.deleteFile(ctx, uid, chatID, strings.TrimPrefix(data, cbLegacyDeletePrefix))
		return "cb_delete_file"
	}
	return "ignored"
}

// sendStorage sends one message per stored entry, each with a Delete button.
// The listing is read in full before the first send so no database
// connection is held while Telegram is slow.
func (g *Gateway) sendStorage(ctx context.Context, uid, chatID int64) {
	var entries []domain.FileEntry
	for entry, err := range g.registry.ListByOwner(ctx, uid) {
		if err != nil {
			g.fail(ctx, chatID, err, "list files")
			return
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		g.reply(ctx, chatID, msgNoFiles, nil)
		return
	}
	for _, entry := range entries {
		line := "📄 " + g.DeepLink(entry.ID)
		if c, err := ContentOf(entry); err == nil {
			line = c.Line(g.DeepLink(entry.ID))
		}
		g.reply(ctx, chatID, line, deleteKeyboard(entry.ID))
	}
}

func (g *Gateway) sendBalance(ctx context.Context, uid, chatID int64) {
	bal, err := g.ledger.Balance(ctx, uid)
	if err != nil {
		g.fail(ctx, chatID, err, "balance")
		return
	}
	g.reply(ctx, chatID, balanceText(bal), nil)
}

func (g *Gateway) deleteFile(ctx context.Context, uid, chatID int64, id string) {
	id = strings.TrimSpace(id)
	ok, err := g.registry.Delete(ctx, uid, id)
	switch {
	case errors.Is(err, services.ErrNotOwner):
		g.reply(ctx, chatID, fmt.Sprintf(msgDeleteForeign, id), nil)
	case err != nil:
		g.fail(ctx, chatID, err, "delete file")
	case !ok:
		g.reply(ctx, chatID, fmt.Sprintf(msgDeleteMissing, id), nil)
	default:
		g.reply(ctx, chatID, fmt.Sprintf(msgDeleted, id), nil)
	}
}

// reply sends text to chatID. markup may be nil.
func (g *Gateway) reply(ctx context.Context, chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := g.api.Send(msg); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (g *Gateway) fail(ctx context.Context, chatID int64, err error, op string) {
	zerolog.Ctx(ctx).Error().Err(err).Str("op", op).Msg("update failed")
	g.reply(ctx, chatID, msgFailure, nil)
}
