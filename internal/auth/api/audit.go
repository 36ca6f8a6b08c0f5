package api

import (
	"context"
	"log/slog"
	"net"

	"gatehouse/identity"
)

// Audit events go to the structured log rather than a database table: the
// log pipeline is the system of record for security events here.

func (h *Handler) auditLoginFailed(ctx context.Context, ip net.IP, identifier, reason string) {
	h.log.InfoContext(ctx, "auth.login.failed",
		slog.String("identifier", identifier),
		slog.String("reason", reason),
		slog.String("ip", ipString(ip)),
	)
}

func (h *Handler) auditLoginSuccess(ctx context.Context, account identity.AccountID, sessionID string, ip net.IP) {
	h.log.InfoContext(ctx, "auth.login.success",
		slog.String("account_id", account.String()),
		slog.String("session_id", sessionID),
		slog.String("ip", ipString(ip)),
	)
}

func (h *Handler) auditRegistered(ctx context.Context, account identity.AccountID, ip net.IP) {
	h.log.InfoContext(ctx, "auth.register.success",
		slog.String("account_id", account.String()),
		slog.String("ip", ipString(ip)),
	)
}

func (h *Handler) auditLogout(ctx context.Context, account identity.AccountID, ip net.IP) {
	h.log.InfoContext(ctx, "auth.logout",
		slog.String("account_id", account.String()),
		slog.String("ip", ipString(ip)),
	)
}

func (h *Handler) auditLogoutAll(ctx context.Context, account identity.AccountID, ip net.IP) {
	h.log.InfoContext(ctx, "auth.logout_all",
		slog.String("account_id", account.String()),
		slog.String("ip", ipString(ip)),
	)
}

func (h *Handler) auditResetRequested(ctx context.Context, account identity.AccountID, ip net.IP) {
	h.log.InfoContext(ctx, "auth.password_reset.requested",
		slog.String("account_id", account.String()),
		slog.String("ip", ipString(ip)),
	)
}

func (h *Handler) auditResetConfirmed(ctx context.Context, account identity.AccountID, ip net.IP) {
	h.log.InfoContext(ctx, "auth.password_reset.confirmed",
		slog.String("account_id", account.String()),
		slog.String("ip", ipString(ip)),
	)
}

func (h *Handler) auditOriginRejected(ctx context.Context, origin string, ip net.IP) {
	h.log.WarnContext(ctx, "auth.origin.rejected",
		slog.String("origin", origin),
		slog.String("ip", ipString(ip)),
	)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
