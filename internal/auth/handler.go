package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redmonkez12/go-account-service/internal/account"
	"github.com/redmonkez12/go-account-service/internal/httputil"
	"github.com/redmonkez12/go-account-service/internal/logging"
)

// RateLimiter throttles unauthenticated endpoints. ratelimit.Limiter implements it.
type RateLimiter interface {
	CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error
	CheckEmailCooldown(ctx context.Context, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, email string) error
}

// Handler contains HTTP handlers for the account endpoints
type Handler struct {
	service       *Service
	rateLimiter   RateLimiter
	cookieName    string
	secureCookies bool
}

// NewHandler creates the handler set. rateLimiter may be nil to disable throttling.
func NewHandler(service *Service, rateLimiter RateLimiter, cookieName string, secureCookies bool) *Handler {
	return &Handler{
		service:       service,
		rateLimiter:   rateLimiter,
		cookieName:    cookieName,
		secureCookies: secureCookies,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordRequest represents the password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// SessionResponse is returned whenever a session is issued
type SessionResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	User    *account.Account `json:"user"`
	Token   string           `json:"token"`
}

// UserResponse wraps the authenticated account
type UserResponse struct {
	Success bool             `json:"success"`
	User    *account.Account `json:"user"`
}

// Register handles account registration
// @Summary      Register a new account
// @Description  Create an unverified account and send a 5-digit code by email or voice call.
// @Tags         user
// @Accept       json
// @Produce      json
// @Param        request body RegisterInput true "Registration details"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error, duplicate identity or too many attempts"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Code could not be sent"
// @Router       /user/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "register") {
		return
	}

	var req RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		h.respondError(w, r, ErrInvalidRequestBody)
		return
	}

	acc, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	logger.Info("account registered", "account_id", acc.ID, "method", req.VerificationMethod)

	httputil.RespondMessage(w, "Verification code sent to your "+req.VerificationMethod, http.StatusOK)
}

// VerifyOTP handles one-time code verification
// @Summary      Verify one-time code
// @Description  Verify the newest pending registration for the email or phone and start a session.
// @Tags         user
// @Accept       json
// @Produce      json
// @Param        request body VerifyOTPInput true "Identity and code"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid phone, invalid or expired code"
// @Failure      404 {object} httputil.ErrorResponse "No pending registration"
// @Router       /user/otp-verification [post]
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "otp-verification") {
		return
	}

	var req VerifyOTPInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid otp request body", "error", err.Error())
		h.respondError(w, r, ErrInvalidRequestBody)
		return
	}

	session, err := h.service.VerifyOTP(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	logger.Info("account verified", "account_id", session.Account.ID)

	h.respondSession(w, session, "Account Verified")
}

// Login handles user login
// @Summary      Log in
// @Description  Authenticate a verified account and start a session.
// @Tags         user
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing email or password"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Router       /user/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "login") {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		h.respondError(w, r, ErrInvalidRequestBody)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	logger.Info("user logged in", "account_id", session.Account.ID)

	h.respondSession(w, session, "Logged in successfully")
}

// Logout handles user logout
// @Summary      Log out
// @Description  Revoke the current session and clear the session cookie.
// @Tags         user
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} httputil.MessageResponse
// @Failure      401 {object} httputil.ErrorResponse "Not authenticated"
// @Router       /user/logout [get]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if token, ok := GetSessionTokenFromContext(r.Context()); ok {
		if err := h.service.Logout(r.Context(), token); err != nil {
			// Continue - the cookie is cleared regardless
			logger.Warn("failed to revoke session", "error", err)
		}
	}

	ClearSessionCookie(w, h.cookieName, h.secureCookies)

	logger.Info("user logged out")

	httputil.RespondMessage(w, "Logout successfully", http.StatusOK)
}

// Me returns the authenticated account
// @Summary      Current user
// @Tags         user
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} UserResponse
// @Failure      401 {object} httputil.ErrorResponse "Not authenticated"
// @Failure      404 {object} httputil.ErrorResponse "Account no longer exists"
// @Router       /user/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, r, ErrUnauthorized)
		return
	}

	acc, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	httputil.RespondJSON(w, UserResponse{Success: true, User: acc}, http.StatusOK)
}

// ForgotPassword handles password reset requests
// @Summary      Request password reset
// @Description  Email a reset link valid for 15 minutes to a verified account.
// @Tags         user
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordRequest true "Email address"
// @Success      200 {object} httputil.MessageResponse
// @Failure      404 {object} httputil.ErrorResponse "No verified account with that email"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Email could not be sent"
// @Router       /user/password/forgot [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.allow(w, r, "forgot-password") {
		return
	}

	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		h.respondError(w, r, ErrInvalidRequestBody)
		return
	}

	if h.rateLimiter != nil && req.Email != "" {
		onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), req.Email)
		if err != nil {
			// Continue despite error
			logger.Error("failed to check email cooldown", "error", err.Error())
		} else if onCooldown {
			h.respondError(w, r, ErrCooldownActive)
			return
		}
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.respondError(w, r, err)
		return
	}

	if h.rateLimiter != nil {
		if err := h.rateLimiter.SetEmailCooldown(r.Context(), req.Email); err != nil {
			logger.Error("failed to set email cooldown", "error", err.Error())
		}
	}

	logger.Info("password reset email sent")

	httputil.RespondMessage(w, fmt.Sprintf("Email sent to %s successfully.", req.Email), http.StatusOK)
}

// ResetPassword handles password reset with token
// @Summary      Reset password
// @Description  Set a new password with a reset token and start a session.
// @Tags         user
// @Accept       json
// @Produce      json
// @Param        token path string true "Reset token from the email link"
// @Param        request body ResetPasswordInput true "New password"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token, or passwords do not match"
// @Router       /user/password/reset/{token} [put]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		h.respondError(w, r, ErrInvalidRequestBody)
		return
	}
	req.Token = chi.URLParam(r, "token")

	session, err := h.service.ResetPassword(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	logger.Info("password reset", "account_id", session.Account.ID)

	h.respondSession(w, session, "Password reset successfully.")
}

// allow applies the per-IP limit for purpose and counts the request. Limiter
// failures let the request through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, purpose string) bool {
	if h.rateLimiter == nil {
		return true
	}

	logger := logging.GetLoggerFromContext(r.Context())
	ip := getClientIP(r)

	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		h.respondError(w, r, ErrTooManyRequests)
		return false
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	return true
}

func (h *Handler) respondSession(w http.ResponseWriter, session *Session, message string) {
	SetSessionCookie(w, h.cookieName, session.Token, session.ExpiresAt, h.secureCookies)

	httputil.RespondJSON(w, SessionResponse{
		Success: true,
		Message: message,
		User:    session.Account,
		Token:   session.Token,
	}, http.StatusOK)
}

// respondError renders any service error. Only the user-facing message and
// code of an *Error reach the client; everything else becomes a 500.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.GetLoggerFromContext(r.Context())

	var e *Error
	if !errors.As(err, &e) {
		e = storeError(err)
	}

	status := e.Kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "kind", e.Kind.String(), "error", err)
	} else {
		logger.Warn("request rejected", "kind", e.Kind.String(), "code", e.Code)
	}

	httputil.RespondErrorWithCode(w, e.Message, e.Code, status)
}

// getClientIP extracts the client IP address. chi's RealIP middleware has
// already folded X-Forwarded-For and X-Real-IP into RemoteAddr.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
