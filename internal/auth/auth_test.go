package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yLucasx3/gh-economy/internal/auth"
)

func TestResolve_RoundTrip(t *testing.T) {
	v := auth.NewJWTVerifier("secret")

	token, err := v.GenerateToken("user-42")
	require.NoError(t, err)

	userID, err := v.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestResolve_WrongSecret(t *testing.T) {
	issuer := auth.NewJWTVerifier("secret-a")
	verifier := auth.NewJWTVerifier("secret-b")

	token, err := issuer.GenerateToken("user-42")
	require.NoError(t, err)

	_, err = verifier.Resolve(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestResolve_Garbage(t *testing.T) {
	v := auth.NewJWTVerifier("secret")

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := v.Resolve(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken, "token %q", token)
	}
}

func TestResolve_Expired(t *testing.T) {
	v := auth.NewJWTVerifier("secret")

	claims := auth.Claims{
		UserID: "user-42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Resolve(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestResolve_EmptyUserID(t *testing.T) {
	v := auth.NewJWTVerifier("secret")

	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Resolve(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		query  string
		want   string
		err    error
	}{
		{"header", "Bearer abc123", "", "abc123", nil},
		{"query fallback", "", "abc123", "abc123", nil},
		{"header wins over query", "Bearer from-header", "from-query", "from-header", nil},
		{"missing", "", "", "", auth.ErrMissingCredential},
		{"wrong scheme", "Basic abc123", "", "", auth.ErrInvalidToken},
		{"empty bearer", "Bearer ", "", "", auth.ErrInvalidToken},
		{"no scheme", "abc123", "", "", auth.ErrInvalidToken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := "/ws"
			if tc.query != "" {
				url += "?token=" + tc.query
			}
			r := httptest.NewRequest("GET", url, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}

			token, err := auth.BearerToken(r)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, token)
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := auth.NewJWTVerifier("secret")
	token, err := v.GenerateToken("user-42")
	require.NoError(t, err)

	var gotUserID string
	handler := auth.Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = auth.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes identity", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-42", gotUserID)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer bogus")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestUserIDContext(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)

	_, ok := auth.UserID(r.Context())
	assert.False(t, ok)

	ctx := auth.WithUserID(r.Context(), "user-42")
	id, ok := auth.UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-42", id)
}
