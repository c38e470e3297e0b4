// Package adminauth gates access to the administrative views. The client keeps
// an explicit Session; the server re-verifies credentials or tokens on every
// privileged call.
package adminauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrInvalidCredentials is returned by verifiers that reject a credential pair.
var ErrInvalidCredentials = errors.New("adminauth: invalid credentials")

// Credentials is the configured admin username and password.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Configured reports whether both fields are set.
func (c Credentials) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// Match reports whether username and password both equal the configured pair exactly.
func (c Credentials) Match(username, password string) bool {
	if !c.Configured() {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(c.Username), []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
	return userOK && passOK
}

// Session is the proof held after a successful login.
type Session struct {
	Username  string
	Token     string
	ExpiresAt time.Time
	// Credentials is kept for endpoints that still expect the pair in the body.
	Credentials Credentials
}

// Valid reports whether the session has not expired at now. A zero expiry never expires.
func (s Session) Valid(now time.Time) bool {
	return s.Username != "" && (s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt))
}

// Verifier checks a credential pair and returns the resulting session.
type Verifier interface {
	Verify(ctx context.Context, creds Credentials) (Session, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(context.Context, Credentials) (Session, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, creds Credentials) (Session, error) {
	return f(ctx, creds)
}

// StaticVerifier accepts exactly one configured pair.
type StaticVerifier struct {
	Credentials Credentials
}

// Verify implements Verifier.
func (v StaticVerifier) Verify(_ context.Context, creds Credentials) (Session, error) {
	if !v.Credentials.Match(creds.Username, creds.Password) {
		return Session{}, ErrInvalidCredentials
	}
	return Session{Username: creds.Username, Credentials: creds}, nil
}

// Gate holds the current admin session.
type Gate struct {
	verifier Verifier
	now      func() time.Time

	mu      sync.RWMutex
	session *Session
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateClock overrides the clock used for session expiry.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate builds a gate around verifier.
func NewGate(verifier Verifier, opts ...GateOption) *Gate {
	g := &Gate{verifier: verifier, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Login opens a session when the verifier accepts the exact pair. On any
// failure it returns false and leaves the current session as it was.
func (g *Gate) Login(ctx context.Context, username, password string) bool {
	if g == nil || g.verifier == nil {
		return false
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return false
	}
	session, err := g.verifier.Verify(ctx, Credentials{Username: username, Password: password})
	if err != nil {
		return false
	}
	if session.Username == "" {
		session.Username = username
	}
	g.mu.Lock()
	g.session = &session
	g.mu.Unlock()
	return true
}

// Restore installs a previously issued session, for example one loaded from device storage.
func (g *Gate) Restore(session Session) {
	if !session.Valid(g.now()) {
		return
	}
	g.mu.Lock()
	g.session = &session
	g.mu.Unlock()
}

// Logout clears the session unconditionally.
func (g *Gate) Logout() {
	g.mu.Lock()
	g.session = nil
	g.mu.Unlock()
}

// IsAdmin reports whether a valid session is held.
func (g *Gate) IsAdmin() bool {
	_, ok := g.Session()
	return ok
}

// Session returns a copy of the current session.
func (g *Gate) Session() (Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil || !g.session.Valid(g.now()) {
		return Session{}, false
	}
	return *g.session, true
}
