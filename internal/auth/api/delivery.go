package api

import "context"

// PasswordResetMessage is the canonical payload for reset-token delivery.
// Token is a one-time credential; senders must never log it.
type PasswordResetMessage struct {
	Email string
	Token string
}

// ResetSender delivers password-reset tokens to account holders.
type ResetSender interface {
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}

// NoopResetSender is the default sender. Deployments wire a real delivery
// provider through WithResetSender.
type NoopResetSender struct{}

func (NoopResetSender) SendPasswordReset(_ context.Context, _ PasswordResetMessage) error {
	return nil
}
