// Package auth resolves caller identities from bearer credentials.
//
// Token verification is behind the Verifier interface so use cases and tests
// can substitute it; the production implementation is HS256 JWT
// (golang-jwt/v4). Credential issuance (login, registration) belongs to an
// outer service and is out of scope here — GenerateToken exists for tooling
// and tests.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrInvalidToken is returned for malformed, mis-signed or expired
	// credentials.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrMissingCredential is returned when no bearer token is present.
	ErrMissingCredential = errors.New("auth: missing credential")
)

// TokenTTL is how long issued tokens stay valid.
const TokenTTL = 3 * time.Hour

// Verifier resolves a credential string to a user id.
type Verifier interface {
	Resolve(token string) (userID string, err error)
}

// Claims are the JWT claims carried by gh-economy tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256-signed tokens. Stateless.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Resolve parses and validates token and returns the user id it names.
func (v *JWTVerifier) Resolve(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// GenerateToken issues a token for userID, signed with the verifier's secret.
func (v *JWTVerifier) GenerateToken(userID string) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// contextKey avoids collisions with other packages' context values.
type contextKey string

const contextUserID contextKey = "authUserID"

// UserID returns the caller identity stored by Middleware, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextUserID).(string)
	return id, ok
}

// WithUserID returns a context carrying the caller identity. Exposed for
// handler tests that skip the middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextUserID, userID)
}

// BearerToken extracts the token from an Authorization header or, for
// WebSocket upgrades where headers are awkward, a ?token query parameter.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", ErrInvalidToken
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingCredential
}

// Middleware rejects requests without a valid credential and stores the
// resolved user id in the request context. Runs before any domain logic.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}
			userID, err := v.Resolve(token)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
