package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"gatehouse/identity"
	"gatehouse/internal/auth/session"
	"gatehouse/internal/metrics"
	"gatehouse/security/password"
)

// Handler wires the HTTP auth endpoints to the session manager and the
// account store.
type Handler struct {
	log     *slog.Logger
	cfg     Config
	sessCfg session.Config

	sessions *session.Manager
	accounts identity.AccountStore
	hasher   password.Config
	metrics  *metrics.Metrics

	resets   ResetSender
	failures *failureTracker
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithResetSender overrides the default no-op reset-token sender.
func WithResetSender(sender ResetSender) HandlerOption {
	return func(h *Handler) {
		if h == nil || sender == nil {
			return
		}
		h.resets = sender
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		if h == nil {
			return
		}
		h.metrics = m
	}
}

// NewHandler constructs the auth API handler.
func NewHandler(log *slog.Logger, cfg Config, mgr *session.Manager, accounts identity.AccountStore, hasher password.Config, opts ...HandlerOption) (*Handler, error) {
	if mgr == nil {
		return nil, errors.New("api: nil session manager")
	}
	if accounts == nil {
		return nil, errors.New("api: nil account store")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		sessCfg:  mgr.Config(),
		sessions: mgr,
		accounts: accounts,
		hasher:   hasher,
		resets:   NoopResetSender{},
		failures: newFailureTracker(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/logout_all", h.handleLogoutAll)
	mux.HandleFunc("/auth/password-reset/request", h.handleResetRequest)
	mux.HandleFunc("/auth/password-reset/confirm", h.handleResetConfirm)
	mux.HandleFunc("/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.checkOrigin(w, r) {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "invalid_request", "a valid email is required")
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, "weak_password", "password does not meet the length policy")
		default:
			h.log.Error("auth.register.hash.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	acct, err := h.accounts.Create(ctx, identity.CreateAccountInput{
		Email:        email,
		PasswordHash: hash,
		Now:          now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		case errors.Is(err, identity.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.auditRegistered(ctx, acct.ID, ip)

	tok, rec, err := h.sessions.StartSession(ctx, now, acct.ID, h.sessCfg.SessionTTL, sessionAttrs(r, ip))
	if err != nil {
		h.log.Error("auth.register.session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.metrics.SessionIssued()

	writeJSON(w, http.StatusOK, registerResponse{
		Account: toAccountResponse(acct),
		Session: h.respondSession(w, tok, rec),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.checkOrigin(w, r) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	if limited, retryAfter := h.loginThrottled(ip, now); limited {
		h.auditLoginFailed(ctx, ip, identity.NormalizeEmail(email), "rate_limited")
		writeRateLimited(w, retryAfter)
		return
	}

	accountID, err := h.sessions.Authenticate(ctx, now, email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			h.metrics.Login(metrics.OutcomeInvalidCredentials)
			h.recordLoginFailure(ip, now)
			h.auditLoginFailed(ctx, ip, identity.NormalizeEmail(email), "invalid_credentials")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		default:
			h.metrics.Login(metrics.OutcomeError)
			h.log.Error("auth.login.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		}
		return
	}

	acct, err := h.accounts.GetByID(ctx, accountID)
	if err != nil {
		h.metrics.Login(metrics.OutcomeError)
		h.log.Error("auth.login.load_account.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	tok, rec, err := h.sessions.StartSession(ctx, now, accountID, h.sessCfg.SessionTTL, sessionAttrs(r, ip))
	if err != nil {
		h.metrics.Login(metrics.OutcomeError)
		h.log.Error("auth.login.session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.Login(metrics.OutcomeSuccess)
	h.metrics.SessionIssued()
	h.auditLoginSuccess(ctx, accountID, rec.ID.String(), ip)

	writeJSON(w, http.StatusOK, loginResponse{
		Account: toAccountResponse(acct),
		Session: h.respondSession(w, tok, rec),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.checkOrigin(w, r) {
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	tok := h.sessionToken(r)

	// Logout is idempotent: an absent or already-dead session still clears
	// the cookie and answers 204.
	if rec, err := h.sessions.VerifySession(ctx, now, tok); err == nil {
		h.auditLogout(ctx, rec.SubjectID, ip)
	}
	if err := h.sessions.EndSession(ctx, tok); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.metrics.SessionRevoked()
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.checkOrigin(w, r) {
		return
	}

	rec, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.sessions.EndAllSessions(ctx, rec.SubjectID); err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.metrics.SessionRevoked()
	h.auditLogoutAll(ctx, rec.SubjectID, clientIP(r, h.cfg.TrustProxy))
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rec, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	acct, err := h.accounts.GetByID(r.Context(), rec.SubjectID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "account not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		Account: toAccountResponse(acct),
		Session: sessionResponse{ExpiresAt: rec.ExpiresAt},
	})
}

func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.checkOrigin(w, r) {
		return
	}

	var req resetRequestRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	acct, err := h.accounts.GetByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		if identity.IsNotFound(err) {
			// Unknown addresses get the same answer as known ones unless
			// disclosure is explicitly enabled.
			if h.cfg.RevealResetOutcome {
				writeError(w, http.StatusNotFound, "not_found", "no account with this email")
				return
			}
			writeJSON(w, http.StatusAccepted, resetRequestResponse{Accepted: true})
			return
		}
		h.log.Error("auth.password_reset.lookup.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	tok, err := h.sessions.IssueScopedToken(ctx, now, session.PurposePasswordReset, acct.ID, h.sessCfg.OneTimeTokenTTL)
	if err != nil {
		h.log.Error("auth.password_reset.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.metrics.ScopedTokenIssued(session.PurposePasswordReset)
	h.auditResetRequested(ctx, acct.ID, ip)

	if err := h.resets.SendPasswordReset(ctx, PasswordResetMessage{Email: acct.Email, Token: tok}); err != nil {
		h.log.Error("auth.password_reset.send.fail", "err", err)
	}

	writeJSON(w, http.StatusAccepted, resetRequestResponse{Accepted: true})
}

func (h *Handler) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.checkOrigin(w, r) {
		return
	}

	var req resetConfirmRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	// Policy is checked before the token is spent, so a too-short password
	// does not burn the one-time token; the expensive hash waits until the
	// token has proven itself, so garbage-token requests cost no Argon2 work.
	if err := h.hasher.Validate(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "weak_password", "password does not meet the length policy")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	subject, err := h.sessions.ConsumeScopedToken(ctx, now, session.PurposePasswordReset, strings.TrimSpace(req.Token))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrSessionExpired):
			writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired reset token")
		default:
			h.log.Error("auth.password_reset.consume.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		}
		return
	}
	h.metrics.ScopedTokenConsumed(session.PurposePasswordReset)

	hash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		h.log.Error("auth.password_reset.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	if err := h.accounts.UpdatePasswordHash(ctx, subject, hash); err != nil {
		h.log.Error("auth.password_reset.update.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	// A credential change invalidates every outstanding session.
	if err := h.sessions.EndAllSessions(ctx, subject); err != nil {
		h.log.Error("auth.password_reset.revoke_all.fail", "err", err)
	}

	h.auditResetConfirmed(ctx, subject, ip)
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// ---- helpers ----

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (session.Record, bool) {
	tok := h.sessionToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session credential")
		return session.Record{}, false
	}
	rec, err := h.sessions.VerifySession(r.Context(), time.Now().UTC(), tok)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrSessionExpired):
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
		default:
			h.log.Error("auth.verify.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		}
		return session.Record{}, false
	}
	return rec, true
}

// respondSession emits the token via the configured transport. In cookie
// mode the token rides in Set-Cookie only and the body carries just the
// expiry.
func (h *Handler) respondSession(w http.ResponseWriter, tok string, rec session.Record) sessionResponse {
	resp := sessionResponse{ExpiresAt: rec.ExpiresAt}
	if h.cookieMode() {
		h.setSessionCookie(w, tok, rec.ExpiresAt)
		return resp
	}
	resp.Token = tok
	return resp
}

func sessionAttrs(r *http.Request, ip net.IP) map[string]string {
	attrs := make(map[string]string, 2)
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		attrs["user_agent"] = ua
	}
	if ip != nil {
		attrs["ip"] = ip.String()
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func toAccountResponse(acct identity.Account) accountResponse {
	return accountResponse{
		ID:        acct.ID.String(),
		Email:     acct.Email,
		CreatedAt: acct.CreatedAt,
	}
}
