package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScopedTokenIssueConsume(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	m, accounts, _ := newTestManager(t, testConfig())
	acct := createTestAccount(t, m, accounts, "ada@example.com", "correct horse battery")

	tok, err := m.IssueScopedToken(ctx, now, PurposePasswordReset, acct.ID, 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueScopedToken: %v", err)
	}

	subject, err := m.ConsumeScopedToken(ctx, now.Add(time.Minute), PurposePasswordReset, tok)
	if err != nil {
		t.Fatalf("ConsumeScopedToken: %v", err)
	}
	if subject != acct.ID {
		t.Fatalf("subject = %v, want %v", subject, acct.ID)
	}

	// Second consumption must fail: the token was spent.
	if _, err := m.ConsumeScopedToken(ctx, now.Add(time.Minute), PurposePasswordReset, tok); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("replayed token: got %v, want ErrSessionExpired", err)
	}
}

func TestScopedTokenConcurrentConsumeGrantsOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	m, accounts, _ := newTestManager(t, testConfig())
	acct := createTestAccount(t, m, accounts, "ada@example.com", "correct horse battery")

	tok, err := m.IssueScopedToken(ctx, now, PurposePasswordReset, acct.ID, 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueScopedToken: %v", err)
	}

	const consumers = 16

	var (
		granted atomic.Int32
		denied  atomic.Int32
		start   = make(chan struct{})
		wg      sync.WaitGroup
	)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.ConsumeScopedToken(ctx, now.Add(time.Minute), PurposePasswordReset, tok)
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, ErrSessionExpired):
				denied.Add(1)
			default:
				t.Errorf("unexpected consume error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if granted.Load() != 1 {
		t.Fatalf("token granted %d times, want exactly 1", granted.Load())
	}
	if denied.Load() != consumers-1 {
		t.Fatalf("denied = %d, want %d", denied.Load(), consumers-1)
	}
}

func TestScopedTokenWrongPurpose(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	m, accounts, _ := newTestManager(t, testConfig())
	acct := createTestAccount(t, m, accounts, "ada@example.com", "correct horse battery")

	tok, err := m.IssueScopedToken(ctx, now, PurposePasswordReset, acct.ID, 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueScopedToken: %v", err)
	}

	// The signature covers the purpose, so consuming under another scope
	// fails at decode time.
	if _, err := m.ConsumeScopedToken(ctx, now, PurposeEmailVerification, tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong purpose: got %v, want ErrInvalidToken", err)
	}

	// The failed attempt must not have spent the token.
	if _, err := m.ConsumeScopedToken(ctx, now, PurposePasswordReset, tok); err != nil {
		t.Fatalf("consume after wrong-purpose attempt: %v", err)
	}
}

func TestScopedTokenNotValidAsSession(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	m, accounts, _ := newTestManager(t, testConfig())
	acct := createTestAccount(t, m, accounts, "ada@example.com", "correct horse battery")

	tok, err := m.IssueScopedToken(ctx, now, PurposePasswordReset, acct.ID, 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueScopedToken: %v", err)
	}
	if _, err := m.VerifySession(ctx, now, tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("scoped token accepted as session: got %v, want ErrInvalidToken", err)
	}
}

func TestScopedTokenExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	m, accounts, _ := newTestManager(t, testConfig())
	acct := createTestAccount(t, m, accounts, "ada@example.com", "correct horse battery")

	tok, err := m.IssueScopedToken(ctx, now, PurposePasswordReset, acct.ID, 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueScopedToken: %v", err)
	}
	if _, err := m.ConsumeScopedToken(ctx, now.Add(time.Hour), PurposePasswordReset, tok); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expired token: got %v, want ErrSessionExpired", err)
	}
}
