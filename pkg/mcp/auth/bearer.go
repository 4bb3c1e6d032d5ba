// Package auth gates the streamable HTTP transport behind a bearer JWT,
// implementing httpstream.Authenticator. Token issuance is out of scope
// for this runtime (it is a protocol runtime, not an identity provider);
// only validation of a token minted elsewhere lives here.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the minimal set this runtime cares about: who the caller is
// and which roles they hold. Tokens are parsed into this struct only;
// any other claims a token carries are not exposed by this package.
type Claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether claims grants the named role, or holds the
// "admin" role, which is authorized for everything.
func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role || r == "admin" {
			return true
		}
	}
	return false
}

// Bearer validates an "Authorization: Bearer <token>" header against an
// HMAC secret, satisfying httpstream.Authenticator.
type Bearer struct {
	secret []byte
}

// NewBearer builds a Bearer authenticator from a shared HMAC secret.
func NewBearer(secret string) *Bearer {
	return &Bearer{secret: []byte(secret)}
}

// Authenticate implements httpstream.Authenticator.
func (b *Bearer) Authenticate(r *http.Request) error {
	_, err := b.claims(r)
	return err
}

// Claims validates r's bearer token and returns its claims, for a handler
// that needs to make a role-based decision beyond "is this request
// authenticated at all".
func (b *Bearer) Claims(r *http.Request) (Claims, error) {
	return b.claims(r)
}

func (b *Bearer) claims(r *http.Request) (Claims, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return Claims{}, errors.New("missing bearer token")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return b.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("invalid bearer token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid bearer token")
	}

	return *claims, nil
}
