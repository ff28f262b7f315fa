package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/filegate-bot/internal/domain"
	"github.com/tbourn/filegate-bot/internal/repo"
	"github.com/tbourn/filegate-bot/internal/services"
)

const testChannel int64 = -100123

// ----- Fakes -----

type fakeMessenger struct {
	mu       sync.Mutex
	next     int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  func(c tgbotapi.Chattable) error
	// onSend runs before the send is recorded, outside the lock, so it may
	// block to simulate a slow Telegram.
	onSend func(c tgbotapi.Chattable)
}

func (f *fakeMessenger) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.onSend != nil {
		f.onSend(c)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		if err := f.sendErr(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.next++
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 500 + f.next}, nil
}

func (f *fakeMessenger) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns the text of every plain message sent to chatID.
func (f *fakeMessenger) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeMessenger) last(chatID int64) tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if m, ok := f.sent[i].(tgbotapi.MessageConfig); ok && m.ChatID == chatID {
			return m
		}
	}
	return tgbotapi.MessageConfig{}
}

func (f *fakeMessenger) reset() {
	f.mu.Lock()
	f.sent, f.requests = nil, nil
	f.mu.Unlock()
}

type stubLinks struct{ calls int }

func (s *stubLinks) Issue(ctx context.Context, userID int64, referral string) string {
	s.calls++
	return fmt.Sprintf("https://short.example/%d", userID)
}

// ----- Harness -----

type harness struct {
	api      *fakeMessenger
	ledger   *services.LedgerService
	registry *services.RegistryService
	links    *stubLinks
	gw       *Gateway
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("bot_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newHarness(t *testing.T, optimistic bool) *harness {
	t.Helper()
	return newHarnessWithDB(t, newTestDB(t), optimistic)
}

func newHarnessWithDB(t *testing.T, db *gorm.DB, optimistic bool) *harness {
	t.Helper()
	api := &fakeMessenger{}
	relay := NewChannelRelay(api, testChannel)
	h := &harness{
		api:      api,
		ledger:   services.NewLedgerService(db, services.NewReferralService(0.05), 24*time.Hour),
		registry: services.NewRegistryService(db, relay, 5),
		links:    &stubLinks{},
	}
	h.gw = NewGateway(api, h.ledger, h.links, h.registry, relay, Options{
		BotUsername: "filestoragebot",
		Optimistic:  optimistic,
	})
	return h
}

func command(uid int64, text string) tgbotapi.Update {
	cmd := text
	if i := strings.IndexByte(text, ' '); i >= 0 {
		cmd = text[:i]
	}
	return tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: uid},
		Chat:      &tgbotapi.Chat{ID: uid},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func document(uid int64, fileID, name string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{
		MessageID: 11,
		From:      &tgbotapi.User{ID: uid},
		Chat:      &tgbotapi.Chat{ID: uid},
		Document:  &tgbotapi.Document{FileID: fileID, FileName: name},
	}}
}

func callback(uid int64, data string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 3, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: uid},
		Message: &tgbotapi.Message{MessageID: 12, Chat: &tgbotapi.Chat{ID: uid}},
		Data:    data,
	}}
}

func listIDs(t *testing.T, r *services.RegistryService, owner int64) []string {
	t.Helper()
	var ids []string
	for f, err := range r.ListByOwner(context.Background(), owner) {
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, f.ID)
	}
	return ids
}

// ----- Tests -----

func TestEndToEnd_User42(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	// start without referral: link issued, user admitted.
	if route := h.gw.HandleUpdate(ctx, command(42, "/start")); route != "start" {
		t.Fatalf("route = %q", route)
	}
	prompt := h.api.last(42)
	kb, ok := prompt.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || kb.InlineKeyboard[0][0].URL == nil || *kb.InlineKeyboard[0][0].URL != "https://short.example/42" {
		t.Fatalf("verification button missing: %+v", prompt)
	}
	if ok, _ := h.ledger.IsAdmitted(ctx, 42); !ok {
		t.Fatal("user 42 should be admitted immediately")
	}

	// upload a document.
	if route := h.gw.HandleUpdate(ctx, document(42, "DOC1", "a.pdf")); route != "upload" {
		t.Fatalf("route = %q", route)
	}
	reply := h.api.last(42).Text
	i := strings.Index(reply, "https://t.me/filestoragebot?start=")
	if i < 0 {
		t.Fatalf("stored reply has no deep link: %q", reply)
	}
	id := reply[i+len("https://t.me/filestoragebot?start="):]
	if !services.IsFileID(id) {
		t.Fatalf("deep link id %q is not 8 hex chars", id)
	}

	ids := listIDs(t, h.registry, 42)
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("listByOwner(42) = %v, want [%s]", ids, id)
	}

	// delete via the storage button.
	h.gw.HandleUpdate(ctx, callback(42, "delete:"+id))
	if got := h.api.last(42).Text; got != fmt.Sprintf(msgDeleted, id) {
		t.Fatalf("delete reply = %q", got)
	}
	if ids := listIDs(t, h.registry, 42); len(ids) != 0 {
		t.Fatalf("listByOwner(42) after delete = %v", ids)
	}
}

func TestStart_AlreadyAdmitted(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	if _, err := h.ledger.Admit(ctx, 7, ""); err != nil {
		t.Fatal(err)
	}

	h.gw.HandleUpdate(ctx, command(7, "/start"))
	if got := h.api.last(7).Text; !strings.HasPrefix(got, "✅ You're verified until ") {
		t.Fatalf("reply = %q", got)
	}
	if h.links.calls != 0 {
		t.Fatal("admitted users must not get a new link")
	}
}

func TestStart_ReferralCredited(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.gw.HandleUpdate(ctx, command(2, "/start 1"))
	h.gw.HandleUpdate(ctx, command(2, "/start 1"))

	bal, err := h.ledger.Balance(ctx, 1)
	if err != nil || bal != 0.05 {
		t.Fatalf("referrer balance = %v, %v; want 0.05", bal, err)
	}
}

func TestStart_CallbackModeDoesNotAdmit(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	h.gw.HandleUpdate(ctx, command(9, "/start"))
	if ok, _ := h.ledger.IsAdmitted(ctx, 9); ok {
		t.Fatal("callback mode must not admit on link request")
	}
	if got := h.api.last(9).Text; !strings.Contains(got, msgAwaitCallback) {
		t.Fatalf("prompt = %q", got)
	}
}

func TestUpload_NotAdmitted(t *testing.T) {
	h := newHarness(t, true)
	h.gw.HandleUpdate(context.Background(), document(5, "D", "x"))

	if got := h.api.last(5).Text; got != msgNotAdmitted {
		t.Fatalf("reply = %q", got)
	}
	if ids := listIDs(t, h.registry, 5); len(ids) != 0 {
		t.Fatalf("unadmitted upload stored: %v", ids)
	}
}

func TestUpload_RelayFailure(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	if _, err := h.ledger.Admit(ctx, 5, ""); err != nil {
		t.Fatal(err)
	}
	h.api.sendErr = func(c tgbotapi.Chattable) error {
		if _, ok := c.(tgbotapi.DocumentConfig); ok {
			return errors.New("chat not found")
		}
		return nil
	}

	h.gw.HandleUpdate(ctx, document(5, "D", "x"))
	if got := h.api.last(5).Text; got != msgRelayFailed {
		t.Fatalf("reply = %q", got)
	}
	if ids := listIDs(t, h.registry, 5); len(ids) != 0 {
		t.Fatalf("entry registered despite relay failure: %v", ids)
	}
}

func TestUpload_RelaysByFileIDToChannel(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	if _, err := h.ledger.Admit(ctx, 5, ""); err != nil {
		t.Fatal(err)
	}
	h.api.reset()

	h.gw.HandleUpdate(ctx, document(5, "DOCX", "report.pdf"))

	doc, ok := h.api.sent[0].(tgbotapi.DocumentConfig)
	if !ok {
		t.Fatalf("first send = %T, want DocumentConfig", h.api.sent[0])
	}
	if doc.ChatID != testChannel {
		t.Fatalf("relayed to %d, want channel %d", doc.ChatID, testChannel)
	}
	if fid, ok := doc.File.(tgbotapi.FileID); !ok || string(fid) != "DOCX" {
		t.Fatalf("relayed file = %#v", doc.File)
	}
}

func TestStorage_ListsEntriesWithDeleteButtons(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.gw.HandleUpdate(ctx, callback(3, "storage"))
	if got := h.api.last(3).Text; got != msgNoFiles {
		t.Fatalf("empty storage reply = %q", got)
	}

	if _, err := h.ledger.Admit(ctx, 3, ""); err != nil {
		t.Fatal(err)
	}
	h.gw.HandleUpdate(ctx, document(3, "A", "a.pdf"))
	h.gw.HandleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 3}, Chat: &tgbotapi.Chat{ID: 3}, Text: "remember the milk",
	}})
	h.api.reset()

	h.gw.HandleUpdate(ctx, command(3, "/storage"))
	msgs := h.api.texts(3)
	if len(msgs) != 2 {
		t.Fatalf("got %d listing messages, want 2: %v", len(msgs), msgs)
	}
	if !strings.HasPrefix(msgs[0], "📄 a.pdf") || !strings.HasPrefix(msgs[1], "📝 remember the milk") {
		t.Fatalf("listing lines = %q", msgs)
	}
	kb := h.api.last(3).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if data := kb.InlineKeyboard[0][0].CallbackData; data == nil || !strings.HasPrefix(*data, "delete:") {
		t.Fatalf("delete button = %+v", kb)
	}
}

func TestDelete_Outcomes(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	f, err := h.registry.Store(ctx, 1, domain.Payload{Kind: domain.KindText, Text: "x"})
	if err != nil {
		t.Fatal(err)
	}

	h.gw.HandleUpdate(ctx, callback(2, "delete:"+f.ID))
	if got := h.api.last(2).Text; got != fmt.Sprintf(msgDeleteForeign, f.ID) {
		t.Fatalf("foreign delete reply = %q", got)
	}

	h.gw.HandleUpdate(ctx, callback(1, "del_"+f.ID))
	if got := h.api.last(1).Text; got != fmt.Sprintf(msgDeleted, f.ID) {
		t.Fatalf("legacy delete reply = %q", got)
	}

	h.gw.HandleUpdate(ctx, callback(1, "delete:"+f.ID))
	if got := h.api.last(1).Text; got != fmt.Sprintf(msgDeleteMissing, f.ID) {
		t.Fatalf("missing delete reply = %q", got)
	}

	// The channel copy was retracted once.
	var retracted int
	for _, r := range h.api.requests {
		if d, ok := r.(tgbotapi.DeleteMessageConfig); ok && d.ChatID == testChannel && d.MessageID == f.ChannelMessageID {
			retracted++
		}
	}
	if retracted != 1 {
		t.Fatalf("retractions = %d, want 1", retracted)
	}
}

func TestDeepLink_DeliversCopy(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	f, err := h.registry.Store(ctx, 1, domain.Payload{Kind: domain.KindDocument, FileID: "D"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.ledger.Admit(ctx, 8, ""); err != nil {
		t.Fatal(err)
	}

	if route := h.gw.HandleUpdate(ctx, command(8, "/start "+f.ID)); route != "deep_link" {
		t.Fatalf("route = %q", route)
	}
	var copied bool
	for _, r := range h.api.requests {
		if c, ok := r.(tgbotapi.CopyMessageConfig); ok {
			copied = c.ChatID == 8 && c.FromChatID == testChannel && c.MessageID == f.ChannelMessageID
		}
	}
	if !copied {
		t.Fatalf("no copy request for %s: %#v", f.ID, h.api.requests)
	}
}

func TestDeepLink_UnknownHexID(t *testing.T) {
	h := newHarness(t, true)
	h.gw.HandleUpdate(context.Background(), command(8, "/start deadbeef"))
	if got := h.api.last(8).Text; got != msgFileMissing {
		t.Fatalf("reply = %q", got)
	}
}

func TestMoneyAndMenu(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.gw.HandleUpdate(ctx, command(4, "/money"))
	if got := h.api.last(4).Text; got != "💸 Your Balance: ₹0.00" {
		t.Fatalf("balance reply = %q", got)
	}

	h.gw.HandleUpdate(ctx, command(5, "/start 4"))
	h.gw.HandleUpdate(ctx, callback(4, "money"))
	if got := h.api.last(4).Text; got != "💸 Your Balance: ₹0.05" {
		t.Fatalf("balance reply = %q", got)
	}

	h.gw.HandleUpdate(ctx, command(4, "/menu"))
	menu := h.api.last(4)
	kb := menu.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if menu.Text != msgMenu || len(kb.InlineKeyboard) != 4 {
		t.Fatalf("menu = %+v", menu)
	}
	if d := kb.InlineKeyboard[3][0].CallbackData; d == nil || *d != cbDelete {
		t.Fatalf("last menu row = %+v", kb.InlineKeyboard[3])
	}
}

func TestCallback_IsAnswered(t *testing.T) {
	h := newHarness(t, true)
	h.gw.HandleUpdate(context.Background(), callback(1, "store"))

	if got := h.api.last(1).Text; got != msgStorePrompt {
		t.Fatalf("reply = %q", got)
	}
	if len(h.api.requests) == 0 {
		t.Fatal("callback query was not answered")
	}
	if _, ok := h.api.requests[0].(tgbotapi.CallbackConfig); !ok {
		t.Fatalf("first request = %T", h.api.requests[0])
	}
}

func TestRun_HandlesConcurrentlyAndStops(t *testing.T) {
	h := newHarness(t, true)
	h.gw.opts.Workers = 4

	updates := make(chan tgbotapi.Update)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.gw.Run(ctx, updates)
		close(done)
	}()

	for i := int64(1); i <= 10; i++ {
		updates <- command(i, "/help")
	}
	close(updates)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	cancel()

	for i := int64(1); i <= 10; i++ {
		if got := h.api.texts(i); len(got) != 1 || got[0] != msgHelp {
			t.Fatalf("user %d got %v", i, got)
		}
	}
}

func TestRun_CancelLetsInFlightUpdateFinish(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	if _, err := h.ledger.Admit(ctx, 5, ""); err != nil {
		t.Fatal(err)
	}
	h.api.reset()

	relaying := make(chan struct{})
	release := make(chan struct{})
	h.api.onSend = func(c tgbotapi.Chattable) {
		if _, ok := c.(tgbotapi.DocumentConfig); ok {
			close(relaying)
			<-release
		}
	}

	updates := make(chan tgbotapi.Update)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		h.gw.Run(runCtx, updates)
		close(done)
	}()

	updates <- document(5, "DOCX", "report.pdf")
	select {
	case <-relaying:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never reached the relay")
	}

	// Shutdown arrives while the upload is between relay and registration.
	cancel()
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not drain after cancel")
	}

	if got := h.api.last(5).Text; !strings.HasPrefix(got, "✅ Stored!") {
		t.Fatalf("reply after shutdown = %q, want the stored confirmation", got)
	}
	if ids := listIDs(t, h.registry, 5); len(ids) != 1 {
		t.Fatalf("registered entries = %v, want 1", ids)
	}
}

func TestStorage_SlowSendsDoNotStarveDatabase(t *testing.T) {
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "filegate.db"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	h := newHarnessWithDB(t, db, true)
	ctx := context.Background()
	const users = 16
	for uid := int64(1); uid <= users; uid++ {
		for i := 0; i < 2; i++ {
			if _, err := h.registry.Store(ctx, uid, domain.Payload{Kind: domain.KindText, Text: "note"}); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
	}

	var entered sync.WaitGroup
	entered.Add(users)
	release := make(chan struct{})
	var once sync.Map
	h.api.onSend = func(c tgbotapi.Chattable) {
		m, ok := c.(tgbotapi.MessageConfig)
		if !ok || m.ReplyMarkup == nil {
			return
		}
		if _, seen := once.LoadOrStore(m.ChatID, true); !seen {
			entered.Done()
		}
		<-release
	}

	var wg sync.WaitGroup
	for uid := int64(1); uid <= users; uid++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			h.gw.HandleUpdate(ctx, command(uid, "/storage"))
		}(uid)
	}

	allBlocked := make(chan struct{})
	go func() {
		entered.Wait()
		close(allBlocked)
	}()
	select {
	case <-allBlocked:
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("listings did not all reach Telegram; database connections were held")
	}

	// Every listing is stuck on Telegram; the database must still answer.
	qctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := h.ledger.IsAdmitted(qctx, 1); err != nil {
		close(release)
		t.Fatalf("IsAdmitted while listings are sending: %v", err)
	}

	close(release)
	wg.Wait()
	for uid := int64(1); uid <= users; uid++ {
		if got := h.api.texts(uid); len(got) != 2 {
			t.Fatalf("user %d got %d listing messages", uid, len(got))
		}
	}
}

func TestRegisterCommands(t *testing.T) {
	h := newHarness(t, true)
	if err := h.gw.RegisterCommands(); err != nil {
		t.Fatal(err)
	}
	cfg, ok := h.api.requests[0].(tgbotapi.SetMyCommandsConfig)
	if !ok || len(cfg.Commands) != len(commands) {
		t.Fatalf("request = %#v", h.api.requests[0])
	}
}
