package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gatehouse/identity"
	"gatehouse/internal/auth/session"
	"gatehouse/internal/metrics"
	"gatehouse/security/password"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testHasher() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

type captureSender struct {
	msg PasswordResetMessage
}

func (c *captureSender) SendPasswordReset(_ context.Context, msg PasswordResetMessage) error {
	c.msg = msg
	return nil
}

type testEnv struct {
	handler *Handler
	mux     *http.ServeMux
	sender  *captureSender
}

func newTestEnv(t *testing.T, mutate func(*session.Config)) *testEnv {
	t.Helper()

	sessCfg := session.DefaultConfig()
	sessCfg.SigningKeyHex = testKeyHex
	sessCfg.CookieSecure = false
	if mutate != nil {
		mutate(&sessCfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := identity.NewMemoryStore()
	store := session.NewMemoryStore()
	mgr, err := session.NewManager(sessCfg, log, testHasher(), accounts, store)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	sender := &captureSender{}
	h, err := NewHandler(log, Config{MaxBodyBytes: 1 << 20}, mgr, accounts, testHasher(),
		WithResetSender(sender), WithMetrics(metrics.New()))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	return &testEnv{handler: h, mux: mux, sender: sender}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if decorate != nil {
		decorate(req)
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func registerBody(email string) map[string]string {
	return map[string]string{"email": email, "password": "correct horse battery"}
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegisterCookieMode(t *testing.T) {
	e := newTestEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("register status = %d body=%s", rr.Code, rr.Body.String())
	}

	var resp registerResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Account.Email != "ada@example.com" || resp.Account.ID == "" {
		t.Fatalf("account = %+v", resp.Account)
	}
	// Cookie mode: the token never appears in the body.
	if resp.Session.Token != "" {
		t.Fatal("token leaked into response body in cookie mode")
	}

	c := sessionCookie(t, rr, "__session")
	if c == nil || c.Value == "" {
		t.Fatal("session cookie missing")
	}
	if !c.HttpOnly {
		t.Fatal("session cookie not HttpOnly")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	e := newTestEnv(t, nil)

	if rr := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil); rr.Code != http.StatusOK {
		t.Fatalf("first register: %d", rr.Code)
	}
	rr := e.do(t, http.MethodPost, "/auth/register", registerBody("ADA@example.com"), nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", rr.Code)
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	e := newTestEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/auth/register",
		map[string]string{"email": "ada@example.com", "password": "short"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("weak password status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "weak_password") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestLoginHeaderMode(t *testing.T) {
	e := newTestEnv(t, func(c *session.Config) { c.TransmitMode = session.TransmitHeader })

	if rr := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil); rr.Code != http.StatusOK {
		t.Fatalf("register: %d", rr.Code)
	}

	rr := e.do(t, http.MethodPost, "/auth/login", registerBody("ada@example.com"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rr.Code, rr.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.Token == "" {
		t.Fatal("header mode response missing token")
	}
	if sessionCookie(t, rr, "__session") != nil {
		t.Fatal("header mode set a cookie")
	}

	// The token authenticates /me.
	me := e.do(t, http.MethodGet, "/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+resp.Session.Token)
	})
	if me.Code != http.StatusOK {
		t.Fatalf("me status = %d", me.Code)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	e := newTestEnv(t, nil)
	if rr := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil); rr.Code != http.StatusOK {
		t.Fatalf("register: %d", rr.Code)
	}

	rr := e.do(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "ada@example.com", "password": "wrong password!!"}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rr.Code)
	}

	rr = e.do(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "nobody@example.com", "password": "wrong password!!"}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown account status = %d", rr.Code)
	}
}

func TestMeWithCookie(t *testing.T) {
	e := newTestEnv(t, nil)

	reg := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	c := sessionCookie(t, reg, "__session")
	if c == nil {
		t.Fatal("no session cookie")
	}

	me := e.do(t, http.MethodGet, "/me", nil, func(r *http.Request) { r.AddCookie(c) })
	if me.Code != http.StatusOK {
		t.Fatalf("me status = %d", me.Code)
	}

	var resp meResponse
	if err := json.Unmarshal(me.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Account.Email != "ada@example.com" {
		t.Fatalf("me account = %+v", resp.Account)
	}

	bare := e.do(t, http.MethodGet, "/me", nil, nil)
	if bare.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated me status = %d", bare.Code)
	}
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t, nil)

	reg := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	c := sessionCookie(t, reg, "__session")

	out := e.do(t, http.MethodPost, "/auth/logout", nil, func(r *http.Request) { r.AddCookie(c) })
	if out.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", out.Code)
	}
	cleared := sessionCookie(t, out, "__session")
	if cleared == nil || cleared.MaxAge != -1 {
		t.Fatal("logout did not clear the cookie")
	}

	me := e.do(t, http.MethodGet, "/me", nil, func(r *http.Request) { r.AddCookie(c) })
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d", me.Code)
	}

	// Logout without a session is still 204.
	again := e.do(t, http.MethodPost, "/auth/logout", nil, nil)
	if again.Code != http.StatusNoContent {
		t.Fatalf("bare logout status = %d", again.Code)
	}
}

func TestLogoutAll(t *testing.T) {
	e := newTestEnv(t, nil)

	reg := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	first := sessionCookie(t, reg, "__session")

	login := e.do(t, http.MethodPost, "/auth/login", registerBody("ada@example.com"), nil)
	second := sessionCookie(t, login, "__session")

	out := e.do(t, http.MethodPost, "/auth/logout_all", nil, func(r *http.Request) { r.AddCookie(second) })
	if out.Code != http.StatusNoContent {
		t.Fatalf("logout_all status = %d", out.Code)
	}

	for i, c := range []*http.Cookie{first, second} {
		me := e.do(t, http.MethodGet, "/me", nil, func(r *http.Request) { r.AddCookie(c) })
		if me.Code != http.StatusUnauthorized {
			t.Fatalf("session %d survived logout_all: %d", i, me.Code)
		}
	}
}

func TestOriginGuardAllowsSameOriginPost(t *testing.T) {
	// Browsers attach Origin to every POST. With the default empty
	// allow-list a same-origin login must still work.
	e := newTestEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), func(r *http.Request) {
		r.Header.Set("Origin", "http://"+r.Host)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("same-origin register status = %d body=%s", rr.Code, rr.Body.String())
	}

	// A foreign origin is still rejected under the same default config.
	rr = e.do(t, http.MethodPost, "/auth/login", registerBody("ada@example.com"), func(r *http.Request) {
		r.Header.Set("Origin", "https://evil.example.com")
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("cross-origin login status = %d", rr.Code)
	}
}

func TestOriginGuardCookieMode(t *testing.T) {
	e := newTestEnv(t, func(c *session.Config) {
		c.AllowedOrigins = []string{"https://app.example.com"}
	})

	rr := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), func(r *http.Request) {
		r.Header.Set("Origin", "https://evil.example.com")
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("cross-origin register status = %d", rr.Code)
	}

	ok := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), func(r *http.Request) {
		r.Header.Set("Origin", "https://app.example.com")
	})
	if ok.Code != http.StatusOK {
		t.Fatalf("allowed-origin register status = %d", ok.Code)
	}
}

func TestOriginGuardSkippedInHeaderMode(t *testing.T) {
	e := newTestEnv(t, func(c *session.Config) { c.TransmitMode = session.TransmitHeader })

	rr := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), func(r *http.Request) {
		r.Header.Set("Origin", "https://anywhere.example.com")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("header-mode register with origin status = %d", rr.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	e := newTestEnv(t, nil)

	reg := e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	c := sessionCookie(t, reg, "__session")

	// Unknown addresses get the same 202 as known ones.
	rr := e.do(t, http.MethodPost, "/auth/password-reset/request",
		map[string]string{"email": "nobody@example.com"}, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("unknown email reset status = %d", rr.Code)
	}
	if e.sender.msg.Token != "" {
		t.Fatal("reset token issued for unknown email")
	}

	rr = e.do(t, http.MethodPost, "/auth/password-reset/request",
		map[string]string{"email": "ada@example.com"}, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("reset request status = %d", rr.Code)
	}
	tok := e.sender.msg.Token
	if tok == "" {
		t.Fatal("reset token not delivered")
	}

	rr = e.do(t, http.MethodPost, "/auth/password-reset/confirm",
		map[string]string{"token": tok, "new_password": "an entirely new passphrase"}, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("reset confirm status = %d body=%s", rr.Code, rr.Body.String())
	}

	// The reset invalidated every session.
	me := e.do(t, http.MethodGet, "/me", nil, func(r *http.Request) { r.AddCookie(c) })
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("session survived password reset: %d", me.Code)
	}

	// Old password out, new password in.
	old := e.do(t, http.MethodPost, "/auth/login", registerBody("ada@example.com"), nil)
	if old.Code != http.StatusUnauthorized {
		t.Fatalf("old password still accepted: %d", old.Code)
	}
	fresh := e.do(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "ada@example.com", "password": "an entirely new passphrase"}, nil)
	if fresh.Code != http.StatusOK {
		t.Fatalf("new password rejected: %d", fresh.Code)
	}

	// The token is one-time.
	replay := e.do(t, http.MethodPost, "/auth/password-reset/confirm",
		map[string]string{"token": tok, "new_password": "yet another passphrase"}, nil)
	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("replayed reset token status = %d", replay.Code)
	}
}

func TestPasswordResetWeakPasswordKeepsToken(t *testing.T) {
	e := newTestEnv(t, nil)

	e.do(t, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	rr := e.do(t, http.MethodPost, "/auth/password-reset/request",
		map[string]string{"email": "ada@example.com"}, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("reset request status = %d", rr.Code)
	}
	tok := e.sender.msg.Token
	if tok == "" {
		t.Fatal("reset token not delivered")
	}

	// A policy failure is caught before the one-time token is spent.
	rr = e.do(t, http.MethodPost, "/auth/password-reset/confirm",
		map[string]string{"token": tok, "new_password": "short"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("weak password status = %d", rr.Code)
	}

	rr = e.do(t, http.MethodPost, "/auth/password-reset/confirm",
		map[string]string{"token": tok, "new_password": "an acceptable passphrase"}, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("confirm after weak attempt status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t, nil)

	rr := e.do(t, http.MethodGet, "/auth/login", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET login status = %d", rr.Code)
	}
	rr = e.do(t, http.MethodPost, "/me", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST me status = %d", rr.Code)
	}
}

func TestRejectsUnknownJSONFields(t *testing.T) {
	e := newTestEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "a@b.c", "password": "whatever123", "extra": "field"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rr.Code)
	}
}
