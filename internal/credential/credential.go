// Package credential supplies the bearer token presented during the
// notification handshake. Token acquisition happens elsewhere; this package
// only reads what was persisted.
package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider yields the current bearer token, or "" when none is available.
type Provider interface {
	Token() string
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() string

func (f ProviderFunc) Token() string { return f() }

// Static is a fixed token.
type Static string

func (s Static) Token() string { return string(s) }

// None never yields a token.
var None Provider = Static("")

// Expiring wraps p and suppresses tokens whose JWT exp claim is in the past.
// The signature is not verified; that is the server's job. Tokens that do
// not parse as JWTs are passed through.
func Expiring(p Provider) Provider {
	return &expiring{p: p, now: time.Now}
}

type expiring struct {
	p   Provider
	now func() time.Time
}

func (e *expiring) Token() string {
	tok := e.p.Token()
	if tok == "" {
		return ""
	}
	if Expired(tok, e.now()) {
		return ""
	}
	return tok
}

// Expired reports whether tok is a JWT whose exp claim is before now.
func Expired(tok string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
