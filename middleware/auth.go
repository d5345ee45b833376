package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Dosada05/pong-arena/models"
)

type contextKey string

const userContextKey contextKey = "user_id"

const (
	jwtClaimUserID = "user_id"
	// tokenQueryParam carries the token on websocket upgrades, where browsers cannot set headers.
	tokenQueryParam = "token"
)

var ErrMissingToken = errors.New("missing bearer token")

// Authenticator verifies HS256 tokens issued by the identity service.
type Authenticator struct {
	secret []byte
	logger *slog.Logger
}

func NewAuthenticator(secret string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{secret: []byte(secret), logger: logger}
}

// Authenticate rejects requests without a valid token and stores the user id in the
// request context.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.UserFromRequest(r)
		if err != nil {
			a.logger.Debug("Authentication failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (a *Authenticator) UserFromRequest(r *http.Request) (models.UserID, error) {
	raw := ""
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", errors.New("authorization header must use the Bearer scheme")
		}
		raw = strings.TrimSpace(token)
	} else {
		raw = r.URL.Query().Get(tokenQueryParam)
	}
	if raw == "" {
		return "", ErrMissingToken
	}
	return a.ParseToken(raw)
}

func (a *Authenticator) ParseToken(raw string) (models.UserID, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}
	return userIDFromClaims(claims)
}

// userIDFromClaims accepts numeric and string user ids.
func userIDFromClaims(claims jwt.MapClaims) (models.UserID, error) {
	raw, ok := claims[jwtClaimUserID]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimUserID)
	}
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("empty '%s' claim", jwtClaimUserID)
		}
		return models.UserID(v), nil
	case float64:
		if v != float64(int64(v)) || v <= 0 {
			return "", fmt.Errorf("invalid user ID value in '%s' claim: %v", jwtClaimUserID, v)
		}
		return models.UserID(strconv.FormatInt(int64(v), 10)), nil
	default:
		return "", fmt.Errorf("invalid type for '%s' claim: expected string or number, got %T", jwtClaimUserID, raw)
	}
}

func WithUserID(ctx context.Context, userID models.UserID) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}

func GetUserIDFromContext(ctx context.Context) (models.UserID, error) {
	userID, ok := ctx.Value(userContextKey).(models.UserID)
	if !ok || userID == "" {
		return "", errors.New("user id not found in context")
	}
	return userID, nil
}
