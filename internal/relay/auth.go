package relay

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrNoSubject    = errors.New("token has no subject")
)

// Authenticator validates HS256 bearer tokens and yields the user id from
// the subject claim. With an empty secret every connection is accepted and
// the raw token, or "anonymous", becomes the user id.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// User returns the user a token belongs to.
func (a *Authenticator) User(token string) (string, error) {
	if len(a.secret) == 0 {
		if token == "" {
			return "anonymous", nil
		}
		return token, nil
	}
	if token == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}
	return claims.Subject, nil
}

// Issue signs a token for user that expires after ttl. A zero ttl issues a
// token without expiry; a negative one issues an already expired token.
func (a *Authenticator) Issue(user string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  user,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
