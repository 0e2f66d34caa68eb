/*
session.go - Bearer token verification

PURPOSE:
  Tokens are issued by the identity service (phone OTP login). This file
  only verifies them and puts the resulting Session on the request context.

TOKEN FORMAT:
  HS256 JWT with claims:
    sub           client id
    phone, name, company_name
    is_admin      gates /api/admin/*

  The engine never reads is_admin. Only the router does.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/insights-engine/insights"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Session is the authenticated caller.
type Session struct {
	ClientID    insights.ClientID
	Phone       string
	Name        string
	CompanyName string
	IsAdmin     bool
}

type sessionClaims struct {
	Phone       string `json:"phone"`
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
	IsAdmin     bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

type sessionKey struct{}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session set by RequireAuth.
func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// =============================================================================
// AUTHENTICATOR
// =============================================================================

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Sign issues a token for s. Used by tooling and tests; production tokens
// come from the identity service with the same secret.
func (a *Authenticator) Sign(s Session, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Phone:       s.Phone,
		Name:        s.Name,
		CompanyName: s.CompanyName,
		IsAdmin:     s.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(s.ClientID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses and validates a token string.
func (a *Authenticator) Verify(token string) (*Session, error) {
	if len(a.secret) == 0 {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Session{
		ClientID:    insights.ClientID(claims.Subject),
		Phone:       claims.Phone,
		Name:        claims.Name,
		CompanyName: claims.CompanyName,
		IsAdmin:     claims.IsAdmin,
	}, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// RequireAuth rejects requests without a valid bearer token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrMissingToken.Error(), nil)
			return
		}
		s, err := a.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrInvalidToken.Error(), nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFrom(r.Context())
		if !ok || !s.IsAdmin {
			writeError(w, http.StatusForbidden, "forbidden", "admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
