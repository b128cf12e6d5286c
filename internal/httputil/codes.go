package httputil

// Machine-readable error codes returned in ErrorResponse.Code
const (
	CodeInvalidRequestBody        = "INVALID_REQUEST_BODY"
	CodeValidationFailed          = "VALIDATION_FAILED"
	CodeInvalidPhone              = "INVALID_PHONE"
	CodeInvalidVerificationMethod = "INVALID_VERIFICATION_METHOD"
	CodeDuplicateIdentity         = "DUPLICATE_IDENTITY"
	CodeAttemptsExceeded          = "REGISTRATION_ATTEMPTS_EXCEEDED"
	CodeNotFound                  = "NOT_FOUND"
	CodeInvalidCode               = "INVALID_OTP"
	CodeCodeExpired               = "OTP_EXPIRED"
	CodeInvalidExpiry             = "INVALID_OTP_EXPIRY"
	CodeInvalidResetToken         = "INVALID_RESET_TOKEN"
	CodePasswordMismatch          = "PASSWORD_MISMATCH"
	CodeInvalidCredentials        = "INVALID_CREDENTIALS"
	CodeNotificationFailed        = "NOTIFICATION_FAILED"
	CodeTooManyRequests           = "TOO_MANY_REQUESTS"
	CodeCooldownActive            = "COOLDOWN_ACTIVE"
	CodeInternalError             = "INTERNAL_ERROR"

	CodeInvalidAuthHeader  = "INVALID_AUTH_HEADER"
	CodeMissingAuth        = "MISSING_AUTH"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInvalidTokenUserID = "INVALID_TOKEN_USER_ID"
	CodeSessionRevoked     = "SESSION_REVOKED"
)
