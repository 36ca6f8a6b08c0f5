// Package main provides a CI-friendly smoke test for the gatehouse auth API.
//
// It validates:
//   - register -> session cookie issued
//   - login with the registered credentials
//   - /me with the session cookie
//   - logout -> cookie cleared, /me rejected
//   - wrong password rejected with 401
//   - password-reset request accepted without account disclosure
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"
)

type smokeClient struct {
	base   string
	origin string
	http   *http.Client
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "gatehouse base URL")
		origin  = flag.String("origin", "", "Origin header to send (browser-like requests)")
		email   = flag.String("email", "", "account email (default: generated per run)")
		passwd  = flag.String("password", "smoke-test-passphrase", "account password")
		timeout = flag.Duration("timeout", 7*time.Second, "per-request timeout")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	addr := strings.TrimSpace(*email)
	if addr == "" {
		addr = fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookie jar: %v", err)
	}
	c := &smokeClient{
		base:   strings.TrimRight(*baseURL, "/"),
		origin: strings.TrimSpace(*origin),
		http:   &http.Client{Jar: jar, Timeout: *timeout},
	}

	accountID := c.mustRegister(addr, *passwd)
	if *verbose {
		fmt.Printf("registered: account_id=%s email=%s\n", accountID, addr)
	}

	c.mustStatus(http.MethodGet, "/me", nil, http.StatusOK)

	c.mustStatus(http.MethodPost, "/auth/logout", nil, http.StatusNoContent)
	c.mustStatus(http.MethodGet, "/me", nil, http.StatusUnauthorized)

	c.mustStatus(http.MethodPost, "/auth/login",
		map[string]string{"email": addr, "password": "definitely-wrong"},
		http.StatusUnauthorized)

	c.mustStatus(http.MethodPost, "/auth/login",
		map[string]string{"email": addr, "password": *passwd},
		http.StatusOK)
	c.mustStatus(http.MethodGet, "/me", nil, http.StatusOK)

	// Unknown and known addresses must answer identically.
	c.mustStatus(http.MethodPost, "/auth/password-reset/request",
		map[string]string{"email": addr}, http.StatusAccepted)
	c.mustStatus(http.MethodPost, "/auth/password-reset/request",
		map[string]string{"email": "nobody-" + addr}, http.StatusAccepted)

	fmt.Printf("OK: email=%s account_id=%s\n", addr, accountID)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func (c *smokeClient) do(method, path string, body any) *http.Response {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		fatalf("build request %s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *smokeClient) mustStatus(method, path string, body any, want int) {
	resp := c.do(method, path, body)
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		fatalf("%s %s: status=%d want=%d body=%s", method, path, resp.StatusCode, want, buf.String())
	}
}

func (c *smokeClient) mustRegister(email, password string) string {
	resp := c.do(http.MethodPost, "/auth/register",
		map[string]string{"email": email, "password": password})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		fatalf("register: status=%d body=%s", resp.StatusCode, buf.String())
	}

	var out struct {
		Account struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"account"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fatalf("decode register response: %v", err)
	}
	if strings.TrimSpace(out.Account.ID) == "" {
		fatalf("register response missing account id")
	}
	if out.Account.Email != email {
		fatalf("register email mismatch: got=%q want=%q", out.Account.Email, email)
	}
	return out.Account.ID
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
