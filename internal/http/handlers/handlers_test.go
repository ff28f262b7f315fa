package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/filegate-bot/internal/domain"
	"github.com/tbourn/filegate-bot/internal/http/middleware"
	"github.com/tbourn/filegate-bot/internal/repo"
	"github.com/tbourn/filegate-bot/internal/services"
)

const testSecret = "s3cret"

type countingRelayer struct {
	mu        sync.Mutex
	n         int
	retracted []int
}

func (r *countingRelayer) Relay(context.Context, domain.Payload) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return 500 + r.n, nil
}

func (r *countingRelayer) Retract(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retracted = append(r.retracted, id)
	return nil
}

type env struct {
	db       *gorm.DB
	ledger   *services.LedgerService
	registry *services.RegistryService
	relay    *countingRelayer
	router   *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("api_%d.db", time.Now().UnixNano()))
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

	e := &env{
		db:     db,
		ledger: services.NewLedgerService(db, services.NewReferralService(0.05), 24*time.Hour),
		relay:  &countingRelayer{},
	}
	e.registry = services.NewRegistryService(db, e.relay, 5)

	h := New(e.ledger, e.registry, Options{
		CallbackSecret: testSecret,
		DeepLink:       func(id string) string { return "https://t.me/filestoragebot?start=" + id },
	})
	r := gin.New()
	r.Use(middleware.Requester())
	r.GET("/verify/callback", h.VerifyCallback)
	r.GET("/users/:id/admission", h.GetAdmission)
	r.GET("/users/:id/balance", h.GetBalance)
	r.GET("/users/:id/files", h.ListFiles)
	r.DELETE("/files/:id", h.DeleteFile)
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, target string, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body %s)", v, err, w.Body.String())
	}
	return v
}

func TestVerifyCallback_AdmitsAndCreditsReferrer(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/verify/callback?uid=42&ref=7&token="+testSecret, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	resp := decode[VerifyResponse](t, w)
	if resp.UserID != 42 || !resp.Admitted || time.Until(resp.ExpiresAt) < 23*time.Hour {
		t.Fatalf("unexpected response: %+v", resp)
	}

	adm := decode[AdmissionResponse](t, e.do(t, http.MethodGet, "/users/42/admission", ""))
	if !adm.Admitted || !adm.Verified || adm.ExpiresAt == nil {
		t.Fatalf("admission after callback: %+v", adm)
	}

	bal := decode[BalanceResponse](t, e.do(t, http.MethodGet, "/users/7/balance", ""))
	if bal.Balance != 0.05 {
		t.Fatalf("referrer balance = %v, want 0.05", bal.Balance)
	}

	// A repeated callback extends the window but never credits again.
	if w := e.do(t, http.MethodGet, "/verify/callback?uid=42&ref=7&token="+testSecret, ""); w.Code != http.StatusOK {
		t.Fatalf("second callback status = %d", w.Code)
	}
	bal = decode[BalanceResponse](t, e.do(t, http.MethodGet, "/users/7/balance", ""))
	if bal.Balance != 0.05 {
		t.Fatalf("referrer credited twice: %v", bal.Balance)
	}
}

func TestVerifyCallback_Rejections(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name   string
		query  string
		status int
		code   string
	}{
		{"missing token", "uid=42", http.StatusUnauthorized, ErrCodeInvalidToken},
		{"wrong token", "uid=42&token=nope", http.StatusUnauthorized, ErrCodeInvalidToken},
		{"missing uid", "token=" + testSecret, http.StatusBadRequest, ErrCodeInvalidUserID},
		{"zero uid", "uid=0&token=" + testSecret, http.StatusBadRequest, ErrCodeInvalidUserID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(t, http.MethodGet, "/verify/callback?"+tc.query, "")
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if er := decode[ErrorResponse](t, w); er.Code != tc.code {
				t.Fatalf("code = %q, want %q", er.Code, tc.code)
			}
		})
	}

	if rec, _ := e.ledger.Record(context.Background(), 42); rec != nil {
		t.Fatalf("rejected callbacks must not create records: %+v", rec)
	}
}

func TestVerifyCallback_DisabledWithoutSecret(t *testing.T) {
	h := New(nil, nil, Options{})
	if h.validToken("") || h.validToken("anything") {
		t.Fatal("empty secret must reject every token")
	}
}

func TestGetAdmission_UnknownAndInvalid(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/users/99/admission", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	adm := decode[AdmissionResponse](t, w)
	if adm.UserID != 99 || adm.Admitted || adm.ExpiresAt != nil {
		t.Fatalf("unknown user: %+v", adm)
	}

	for _, path := range []string{"/users/abc/admission", "/users/-1/balance", "/users/0/files"} {
		if w := e.do(t, http.MethodGet, path, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, w.Code)
		}
	}
}

func TestGetAdmission_Expired(t *testing.T) {
	e := newEnv(t)
	past := time.Now().Add(-time.Hour).UTC()
	if err := e.db.Create(&domain.User{ID: 5, Verified: true, ExpiresAt: &past}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	adm := decode[AdmissionResponse](t, e.do(t, http.MethodGet, "/users/5/admission", ""))
	if adm.Admitted || !adm.Verified || adm.ExpiresAt == nil {
		t.Fatalf("expired user: %+v", adm)
	}
}

func TestListFiles_PaginatesOwnerEntries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := e.registry.Store(ctx, 42, domain.Payload{Kind: domain.KindText, Text: fmt.Sprintf("note %d", i)}); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	if _, err := e.registry.Store(ctx, 43, domain.Payload{Kind: domain.KindDocument, FileID: "F"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	w := e.do(t, http.MethodGet, "/users/42/files?page=1&page_size=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[ListFilesResponse](t, w)
	if len(resp.Files) != 2 || resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 2 || !resp.Pagination.HasNext {
		t.Fatalf("page 1: %+v", resp)
	}
	f := resp.Files[0]
	if f.Kind != domain.KindText || f.Link != "https://t.me/filestoragebot?start="+f.ID {
		t.Fatalf("file view: %+v", f)
	}

	resp = decode[ListFilesResponse](t, e.do(t, http.MethodGet, "/users/42/files?page=2&page_size=2", ""))
	if len(resp.Files) != 1 || resp.Pagination.HasNext {
		t.Fatalf("page 2: %+v", resp)
	}

	resp = decode[ListFilesResponse](t, e.do(t, http.MethodGet, "/users/77/files", ""))
	if resp.Files == nil || len(resp.Files) != 0 || resp.Pagination.Total != 0 {
		t.Fatalf("empty owner: %+v", resp)
	}
}

func TestListFiles_ConditionalRequests(t *testing.T) {
	e := newEnv(t)
	if _, err := e.registry.Store(context.Background(), 42, domain.Payload{Kind: domain.KindText, Text: "hi"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	w := e.do(t, http.MethodGet, "/users/42/files", "")
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("first list = %d etag=%q", w.Code, etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/users/42/files", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("conditional list = %d %q", w.Code, w.Body.String())
	}

	// Any change to the listing invalidates the validator.
	time.Sleep(2 * time.Millisecond)
	if _, err := e.registry.Store(context.Background(), 42, domain.Payload{Kind: domain.KindText, Text: "again"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/users/42/files", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("stale etag accepted: %d %q", w.Code, w.Header().Get("ETag"))
	}

	if got := e.do(t, http.MethodGet, "/users/77/files", "").Header().Get("ETag"); got != `W/"files:77:0:0:1:20"` {
		t.Fatalf("empty owner etag = %q", got)
	}
}

func TestDeleteFile_Outcomes(t *testing.T) {
	e := newEnv(t)
	f, err := e.registry.Store(context.Background(), 42, domain.Payload{Kind: domain.KindPhoto, FileID: "P"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	target := "/files/" + f.ID

	if w := e.do(t, http.MethodDelete, target, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("no requester: %d", w.Code)
	}
	w := e.do(t, http.MethodDelete, target, "43")
	if w.Code != http.StatusForbidden || decode[ErrorResponse](t, w).Code != ErrCodeNotOwner {
		t.Fatalf("foreign delete: %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodDelete, target, "42"); w.Code != http.StatusNoContent {
		t.Fatalf("owner delete: %d %s", w.Code, w.Body.String())
	}
	w = e.do(t, http.MethodDelete, target, "42")
	if w.Code != http.StatusNotFound || decode[ErrorResponse](t, w).Code != ErrCodeFileNotFound {
		t.Fatalf("second delete: %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodDelete, "/files/not-an-id", "42"); w.Code != http.StatusNotFound {
		t.Fatalf("malformed id: %d", w.Code)
	}

	e.relay.mu.Lock()
	defer e.relay.mu.Unlock()
	if len(e.relay.retracted) != 1 || e.relay.retracted[0] != f.ChannelMessageID {
		t.Fatalf("retracted = %v, want [%d]", e.relay.retracted, f.ChannelMessageID)
	}
}

type brokenLedger struct{}

func (brokenLedger) Admit(context.Context, int64, string) (time.Time, error) {
	return time.Time{}, errors.New("disk I/O error")
}
func (brokenLedger) IsAdmitted(context.Context, int64) (bool, error) {
	return false, errors.New("disk I/O error")
}
func (brokenLedger) Record(context.Context, int64) (*domain.User, error) { return nil, nil }
func (brokenLedger) Balance(context.Context, int64) (float64, error) {
	return 0, errors.New("disk I/O error")
}

func TestStoreErrorsMapTo500WithoutDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(brokenLedger{}, nil, Options{CallbackSecret: testSecret})
	r := gin.New()
	r.GET("/verify/callback", h.VerifyCallback)
	r.GET("/users/:id/balance", h.GetBalance)
	r.GET("/users/:id/admission", h.GetAdmission)

	cases := []struct{ path, code string }{
		{"/verify/callback?uid=1&token=" + testSecret, ErrCodeAdmissionFailed},
		{"/users/1/balance", ErrCodeLookupFailed},
		{"/users/1/admission", ErrCodeLookupFailed},
	}
	for _, tc := range cases {
		path, code := tc.path, tc.code
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("%s status = %d", path, w.Code)
			continue
		}
		er := decode[ErrorResponse](t, w)
		if er.Code != code || er.Message != "internal error" {
			t.Errorf("%s body = %+v", path, er)
		}
	}
}
