package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// failureTracker keeps a sliding window of failed login timestamps per
// client IP. State is process-local, so behind a load balancer each
// replica enforces its own window.
type failureTracker struct {
	mu sync.Mutex
	m  map[string][]time.Time
}

func newFailureTracker() *failureTracker {
	return &failureTracker{m: make(map[string][]time.Time)}
}

func (t *failureTracker) record(key string, now time.Time) {
	if t == nil || key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key] = append(t.m[key], now)
}

// countSince prunes entries older than cut and returns how many remain.
func (t *failureTracker) countSince(key string, cut time.Time) int {
	if t == nil || key == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.m[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cut) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(t.m, key)
		return 0
	}
	t.m[key] = kept
	return len(kept)
}

func (h *Handler) loginThrottled(ip net.IP, now time.Time) (bool, time.Duration) {
	if ip == nil || h.cfg.LoginFailureMax <= 0 {
		return false, 0
	}
	cut := now.Add(-h.cfg.LoginFailureWindow)
	if h.failures.countSince(ip.String(), cut) >= h.cfg.LoginFailureMax {
		return true, h.cfg.LoginFailureWindow
	}
	return false, 0
}

func (h *Handler) recordLoginFailure(ip net.IP, now time.Time) {
	if ip == nil || h.cfg.LoginFailureMax <= 0 {
		return
	}
	h.failures.record(ip.String(), now)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
