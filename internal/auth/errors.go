package auth

import (
	"errors"
	"net/http"

	"github.com/redmonkez12/go-account-service/internal/httputil"
)

// Kind classifies a service failure. Each kind maps to exactly one HTTP status.
type Kind int

const (
	KindStore Kind = iota
	KindValidation
	KindDuplicateIdentity
	KindAttemptsExceeded
	KindNotFound
	KindInvalidCode
	KindCodeExpired
	KindInvalidExpiry
	KindInvalidOrExpiredToken
	KindPasswordMismatch
	KindInvalidCredentials
	KindUnauthorized
	KindTooManyRequests
	KindNotification
)

var kindNames = map[Kind]string{
	KindStore:                 "store_error",
	KindValidation:            "validation_error",
	KindDuplicateIdentity:     "duplicate_identity",
	KindAttemptsExceeded:      "attempts_exceeded",
	KindNotFound:              "not_found",
	KindInvalidCode:           "invalid_code",
	KindCodeExpired:           "code_expired",
	KindInvalidExpiry:         "invalid_expiry",
	KindInvalidOrExpiredToken: "invalid_or_expired_token",
	KindPasswordMismatch:      "password_mismatch",
	KindInvalidCredentials:    "invalid_credentials",
	KindUnauthorized:          "unauthorized",
	KindTooManyRequests:       "too_many_requests",
	KindNotification:          "notification_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// HTTPStatus returns the response status for the kind
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindDuplicateIdentity, KindAttemptsExceeded,
		KindInvalidCode, KindCodeExpired, KindInvalidExpiry,
		KindInvalidOrExpiredToken, KindPasswordMismatch:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidCredentials, KindUnauthorized:
		return http.StatusUnauthorized
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the failure type returned by Service operations. Message is safe
// to show to callers; Err carries the internal cause and is never rendered.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind and code so wrapped copies compare equal to the sentinels below
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

var (
	ErrMissingFields             = &Error{Kind: KindValidation, Code: httputil.CodeValidationFailed, Message: "All fields are required."}
	ErrInvalidPhone              = &Error{Kind: KindValidation, Code: httputil.CodeInvalidPhone, Message: "Invalid phone number."}
	ErrInvalidVerificationMethod = &Error{Kind: KindValidation, Code: httputil.CodeInvalidVerificationMethod, Message: "Invalid verification method provided."}
	ErrDuplicateIdentity         = &Error{Kind: KindDuplicateIdentity, Code: httputil.CodeDuplicateIdentity, Message: "Phone or email already exists."}
	ErrAttemptsExceeded          = &Error{Kind: KindAttemptsExceeded, Code: httputil.CodeAttemptsExceeded, Message: "You have exceeded the maximum number of registration attempts. Please try again later."}
	ErrAccountNotFound           = &Error{Kind: KindNotFound, Code: httputil.CodeNotFound, Message: "User not found."}
	ErrInvalidCode               = &Error{Kind: KindInvalidCode, Code: httputil.CodeInvalidCode, Message: "Invalid OTP."}
	ErrCodeExpired               = &Error{Kind: KindCodeExpired, Code: httputil.CodeCodeExpired, Message: "OTP has expired."}
	ErrInvalidExpiry             = &Error{Kind: KindInvalidExpiry, Code: httputil.CodeInvalidExpiry, Message: "Invalid expiration time."}
	ErrInvalidOrExpiredToken     = &Error{Kind: KindInvalidOrExpiredToken, Code: httputil.CodeInvalidResetToken, Message: "Reset password token is invalid or has been expired."}
	ErrPasswordMismatch          = &Error{Kind: KindPasswordMismatch, Code: httputil.CodePasswordMismatch, Message: "Password and confirm password do not match."}
	ErrInvalidCredentials        = &Error{Kind: KindInvalidCredentials, Code: httputil.CodeInvalidCredentials, Message: "Invalid email or password."}
	ErrInvalidRequestBody        = &Error{Kind: KindValidation, Code: httputil.CodeInvalidRequestBody, Message: "Invalid request body."}
	ErrUnauthorized              = &Error{Kind: KindUnauthorized, Code: httputil.CodeMissingAuth, Message: "User is not authenticated."}
	ErrTooManyRequests           = &Error{Kind: KindTooManyRequests, Code: httputil.CodeTooManyRequests, Message: "Too many requests, please try again later."}
	ErrCooldownActive            = &Error{Kind: KindTooManyRequests, Code: httputil.CodeCooldownActive, Message: "Please wait before requesting another email."}
	ErrNotification              = &Error{Kind: KindNotification, Code: httputil.CodeNotificationFailed, Message: "Failed to send notification."}
	ErrStore                     = &Error{Kind: KindStore, Code: httputil.CodeInternalError, Message: "Internal server error."}
)

// validationError wraps a field-level validation failure; its message is the
// validator's user-facing text.
func validationError(err error) *Error {
	return &Error{Kind: KindValidation, Code: httputil.CodeValidationFailed, Message: err.Error(), Err: err}
}

func storeError(err error) *Error {
	return &Error{Kind: KindStore, Code: ErrStore.Code, Message: ErrStore.Message, Err: err}
}

func notificationError(message string, err error) *Error {
	return &Error{Kind: KindNotification, Code: ErrNotification.Code, Message: message, Err: err}
}

// KindOf returns the kind of err, treating anything that is not an *Error as a store failure
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// outcome is the metrics label for the result of an operation
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return KindOf(err).String()
}
