package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-account-service/internal/httputil"
	"github.com/redmonkez12/go-account-service/internal/logging"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	UserIDContextKey       ContextKey = "user_id"
	UserEmailContextKey    ContextKey = "user_email"
	SessionTokenContextKey ContextKey = "session_token"
)

// Middleware handles authentication for protected routes
type Middleware struct {
	tokenService TokenService
	revocations  RevocationStore
	cookieName   string
}

// NewMiddleware creates the auth middleware. revocations may be nil.
func NewMiddleware(tokenService TokenService, revocations RevocationStore, cookieName string) *Middleware {
	return &Middleware{
		tokenService: tokenService,
		revocations:  revocations,
		cookieName:   cookieName,
	}
}

// RequireAuth validates the session token from the Authorization header or,
// failing that, the session cookie
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string

		// Priority 1: Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			} else {
				httputil.RespondErrorWithCode(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
				return
			}
		}

		// Priority 2: Cookie
		if token == "" {
			cookieToken, err := GetSessionTokenFromCookie(r, m.cookieName)
			if err != nil {
				httputil.RespondErrorWithCode(w, "User is not authenticated.", httputil.CodeMissingAuth, http.StatusUnauthorized)
				return
			}
			token = cookieToken
		}

		claims, err := m.tokenService.VerifyToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				httputil.RespondErrorWithCode(w, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
				return
			}
			httputil.RespondErrorWithCode(w, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			httputil.RespondErrorWithCode(w, "invalid user ID in token", httputil.CodeInvalidTokenUserID, http.StatusUnauthorized)
			return
		}

		if m.revocations != nil {
			revoked, err := m.revocations.IsRevoked(r.Context(), token)
			if err != nil {
				// Fail open when Redis is unreachable
				logging.GetLoggerFromContext(r.Context()).Error("failed to check session revocation", "error", err)
			} else if revoked {
				httputil.RespondErrorWithCode(w, "session has been logged out", httputil.CodeSessionRevoked, http.StatusUnauthorized)
				return
			}
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		ctx = context.WithValue(ctx, UserEmailContextKey, claims.Email)
		ctx = context.WithValue(ctx, SessionTokenContextKey, token)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return userID, ok
}

// GetUserEmailFromContext extracts the user email from the request context
func GetUserEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(UserEmailContextKey).(string)
	return email, ok
}

// GetSessionTokenFromContext returns the token the request authenticated with
func GetSessionTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(SessionTokenContextKey).(string)
	return token, ok
}
