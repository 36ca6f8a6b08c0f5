package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"gatehouse/internal/auth/session"
)

func (h *Handler) cookieMode() bool {
	return h != nil && h.sessCfg.TransmitMode == session.TransmitCookie
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	if h == nil || w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessCfg.CookieName,
		Value:    token,
		Path:     h.sessCfg.CookiePath,
		Domain:   h.sessCfg.CookieDomain,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.sessCfg.CookieSecure,
		SameSite: h.sessCfg.CookieSameSite,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	if h == nil || w == nil || !h.cookieMode() {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessCfg.CookieName,
		Value:    "",
		Path:     h.sessCfg.CookiePath,
		Domain:   h.sessCfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.sessCfg.CookieSecure,
		SameSite: h.sessCfg.CookieSameSite,
	})
}

// sessionToken extracts the inbound credential. In cookie mode the session
// cookie wins; a bearer header is accepted either way so CLI clients work
// against a cookie-mode deployment.
func (h *Handler) sessionToken(r *http.Request) string {
	if h.cookieMode() {
		if c, err := r.Cookie(h.sessCfg.CookieName); err == nil {
			if v := strings.TrimSpace(c.Value); v != "" {
				return v
			}
		}
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// checkOrigin applies the cross-origin guard. Only cookie-transported
// requests are guarded: bearer credentials are never attached by browsers.
// Browsers send an Origin header on every POST, so an Origin matching the
// request's own scheme and host is same-origin and passes without
// consulting the allow-list.
func (h *Handler) checkOrigin(w http.ResponseWriter, r *http.Request) bool {
	if !h.cookieMode() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin != "" && origin == requestOrigin(r, h.cfg.TrustProxy) {
		return true
	}
	if err := h.sessions.CheckOrigin(origin); err != nil {
		h.metrics.OriginRejected()
		h.auditOriginRejected(r.Context(), origin, clientIP(r, h.cfg.TrustProxy))
		writeError(w, http.StatusForbidden, "origin_not_allowed", "request origin not allowed")
		return false
	}
	return true
}

// requestOrigin reconstructs the origin the client addressed, used to tell
// a same-origin POST apart from a cross-site one.
func requestOrigin(r *http.Request, trustProxy bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if trustProxy {
		if p := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); p != "" {
			scheme = p
		}
	}
	host := strings.TrimSpace(r.Host)
	if host == "" {
		return ""
	}
	return scheme + "://" + host
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
