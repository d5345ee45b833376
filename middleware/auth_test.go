package middleware_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/pong-arena/middleware"
	"github.com/Dosada05/pong-arena/models"
)

const secret = "test-secret"

func sign(t *testing.T, key string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func TestAuthenticate(t *testing.T) {
	auth := middleware.NewAuthenticator(secret, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var seen models.UserID
	handler := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := middleware.GetUserIDFromContext(r.Context())
		require.NoError(t, err)
		seen = id
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := sign(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 42, "exp": time.Now().Add(time.Hour).Unix(),
	})
	tests := []struct {
		name   string
		header string
		query  string
		status int
		user   models.UserID
	}{
		{name: "bearer header", header: "Bearer " + valid, status: http.StatusNoContent, user: "42"},
		{name: "query token", query: "?token=" + valid, status: http.StatusNoContent, user: "42"},
		{
			name:   "string user id",
			header: "Bearer " + sign(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u-7"}),
			status: http.StatusNoContent,
			user:   "u-7",
		},
		{name: "missing token", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{
			name:   "wrong key",
			header: "Bearer " + sign(t, "other", jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 1}),
			status: http.StatusUnauthorized,
		},
		{
			name: "expired",
			header: "Bearer " + sign(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": 1, "exp": time.Now().Add(-time.Minute).Unix(),
			}),
			status: http.StatusUnauthorized,
		},
		{
			name:   "missing claim",
			header: "Bearer " + sign(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}),
			status: http.StatusUnauthorized,
		},
		{
			name:   "fractional id",
			header: "Bearer " + sign(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 1.5}),
			status: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/ws/lobby"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.user, seen)
		})
	}
}
