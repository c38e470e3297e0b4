package adminauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/bobbygour30/admitcard/internal/platform/auth"
)

const (
	defaultTokenTTL = 8 * time.Hour
	tokenIssuer     = "admitcard-portal"
)

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 admin session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithTokenClock overrides the clock.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenIssuer requires a signing secret of at least 32 bytes.
func NewTokenIssuer(secret string, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, errors.New("adminauth: token secret must be at least 32 bytes")
	}
	t := &TokenIssuer{secret: []byte(secret), ttl: defaultTokenTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Issue returns a signed token for username and its expiry.
func (t *TokenIssuer) Issue(username string) (string, time.Time, error) {
	now := t.now().UTC()
	expires := now.Add(t.ttl)
	claims := adminClaims{
		Role: auth.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("adminauth: sign token: %w", err)
	}
	return signed, expires, nil
}

// VerifyToken implements auth.TokenVerifier.
func (t *TokenIssuer) VerifyToken(_ context.Context, token string) (*auth.Identity, error) {
	claims := &adminClaims{}
	// Time-based claims are checked against the issuer clock below.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrTokenInvalid, err)
	}
	if !claims.VerifyIssuer(tokenIssuer, true) || claims.Subject == "" {
		return nil, auth.ErrTokenInvalid
	}
	now := t.now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, auth.ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, auth.ErrTokenInvalid
	}
	identity := &auth.Identity{Subject: claims.Subject, Roles: []string{claims.Role}}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// TokenVerifier issues a session token after a static credential check.
type TokenVerifier struct {
	Credentials Credentials
	Issuer      *TokenIssuer
}

// Verify implements Verifier.
func (v TokenVerifier) Verify(_ context.Context, creds Credentials) (Session, error) {
	if !v.Credentials.Match(creds.Username, creds.Password) {
		return Session{}, ErrInvalidCredentials
	}
	token, expires, err := v.Issuer.Issue(creds.Username)
	if err != nil {
		return Session{}, err
	}
	return Session{Username: creds.Username, Token: token, ExpiresAt: expires, Credentials: creds}, nil
}
