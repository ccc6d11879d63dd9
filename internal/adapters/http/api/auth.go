package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity claims issued by the session system.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

type identityKey struct{}

// IdentityFrom returns the identity stored by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	role   string
	parser *jwt.Parser
}

// NewAuthenticator creates an Authenticator. An empty role accepts any
// valid token.
func NewAuthenticator(secret []byte, role string) *Authenticator {
	return &Authenticator{
		secret: secret,
		role:   role,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify parses a raw token and returns the caller identity.
func (a *Authenticator) Verify(raw string) (Identity, error) {
	claims := &Claims{}
	token, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !token.Valid {
		return Identity{}, ErrUnauthorized
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	if a.role != "" && !strings.EqualFold(claims.Role, a.role) {
		return Identity{}, fmt.Errorf("%w: role %q", ErrForbidden, claims.Role)
	}
	return Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("%w: missing bearer token", ErrUnauthorized))
			return
		}
		id, err := a.Verify(raw)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	}
}
