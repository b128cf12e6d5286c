package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/redmonkez12/go-account-service/internal/account"
	"github.com/redmonkez12/go-account-service/internal/logging"
	"github.com/redmonkez12/go-account-service/internal/metrics"
)

// MaxUnverifiedAttempts is how many pending registrations may exist for one
// email or phone before further attempts are refused
const MaxUnverifiedAttempts = 3

// Verification channels
const (
	MethodEmail = "email"
	MethodPhone = "phone"
)

// ServiceConfig holds the non-dependency settings of Service
type ServiceConfig struct {
	SessionDuration time.Duration
	FrontendURL     string // base of the password reset link
}

// Session is an issued bearer token bound to an account
type Session struct {
	Account   *account.Account
	Token     string
	ExpiresAt time.Time
}

// RegisterInput carries a registration request
type RegisterInput struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	Phone              string `json:"phone"`
	VerificationMethod string `json:"verificationMethod"`
}

// VerifyOTPInput carries a one-time code submission. OTP accepts a JSON
// number or a numeric string.
type VerifyOTPInput struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	OTP   OTP    `json:"otp"`
}

// OTP is a submitted verification code, sent either as a JSON number or a string
type OTP string

func (o *OTP) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = OTP(s)
		return nil
	}
	if string(data) == "null" {
		*o = ""
		return nil
	}
	*o = OTP(data)
	return nil
}

// Int parses the code as a number. Integral decimal or exponent forms such as
// "12345.0" or "1.2345e4" are accepted; fractions and non-numbers are not.
func (o OTP) Int() (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(o)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < 0 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// ResetPasswordInput carries a password reset; Token comes from the URL
type ResetPasswordInput struct {
	Token           string `json:"-"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithClock replaces the system clock
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithRandom replaces crypto/rand as the source for codes and reset tokens
func WithRandom(random io.Reader) ServiceOption {
	return func(s *Service) { s.random = random }
}

// WithMetrics records operation outcomes
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithRevocations enables server-side logout
func WithRevocations(store RevocationStore) ServiceOption {
	return func(s *Service) { s.revocations = store }
}

// Service handles account business logic: the verification and password
// reset state machines and session issuance
type Service struct {
	store       AccountStore
	notifier    Notifier
	tokens      TokenService
	hasher      PasswordHasher
	revocations RevocationStore
	logger      *logging.Logger
	metrics     *metrics.Metrics
	clock       Clock
	random      io.Reader
	cfg         ServiceConfig
}

func NewService(
	store AccountStore,
	notifier Notifier,
	tokens TokenService,
	hasher PasswordHasher,
	logger *logging.Logger,
	cfg ServiceConfig,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		tokens:   tokens,
		hasher:   hasher,
		logger:   logger,
		clock:    SystemClock(),
		random:   rand.Reader,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a pending account and sends its verification code over the
// requested channel. A dispatch failure is reported, but the account is kept.
func (s *Service) Register(ctx context.Context, in RegisterInput) (acc *account.Account, err error) {
	defer func() { s.metrics.ObserveRegistration(methodLabel(in.VerificationMethod), outcome(err)) }()

	if err := in.validate(); err != nil {
		return nil, err
	}

	_, err = s.store.FindVerifiedByEmailOrPhone(ctx, in.Email, in.Phone)
	switch {
	case err == nil:
		return nil, ErrDuplicateIdentity
	case !errors.Is(err, account.ErrNotFound):
		return nil, storeError(err)
	}

	attempts, err := s.store.CountUnverifiedByEmailOrPhone(ctx, in.Email, in.Phone)
	if err != nil {
		return nil, storeError(err)
	}
	if attempts >= MaxUnverifiedAttempts {
		return nil, ErrAttemptsExceeded
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, storeError(err)
	}

	now := s.clock.Now()
	code, expiresAt, err := GenerateVerificationCode(s.random, now)
	if err != nil {
		return nil, storeError(err)
	}

	acc = &account.Account{
		ID:                     uuid.New(),
		Name:                   in.Name,
		Email:                  in.Email,
		Phone:                  in.Phone,
		PasswordHash:           passwordHash,
		VerificationCode:       &code,
		VerificationCodeExpire: &expiresAt,
		CreatedAt:              now,
	}
	if err := s.store.Create(ctx, acc); err != nil {
		if errors.Is(err, account.ErrDuplicateIdentity) {
			return nil, ErrDuplicateIdentity
		}
		return nil, storeError(err)
	}

	if err := s.sendVerificationCode(ctx, in, code); err != nil {
		return acc, err
	}

	return acc, nil
}

func (s *Service) sendVerificationCode(ctx context.Context, in RegisterInput, code int) error {
	var err error
	switch in.VerificationMethod {
	case MethodEmail:
		err = s.notifier.SendVerificationEmail(ctx, in.Email, in.Name, code)
	case MethodPhone:
		err = s.notifier.SendVerificationCall(ctx, in.Phone, code)
	}
	s.metrics.ObserveNotification(in.VerificationMethod, outcome(err))

	if err != nil {
		s.logger.Error("failed to send verification code",
			"method", in.VerificationMethod,
			"email", in.Email,
			"error", err,
		)
		return notificationError("Error sending verification code via "+in.VerificationMethod+".", err)
	}
	return nil
}

// VerifyOTP consumes a verification code. The newest pending registration for
// the email or phone is the one checked; older ones are deleted first.
func (s *Service) VerifyOTP(ctx context.Context, in VerifyOTPInput) (session *Session, err error) {
	defer func() { s.metrics.ObserveVerification(outcome(err)) }()

	if !ValidatePhoneNumber(in.Phone) {
		return nil, ErrInvalidPhone
	}

	entries, err := s.store.ListUnverifiedByEmailOrPhone(ctx, in.Email, in.Phone)
	if err != nil {
		return nil, storeError(err)
	}
	if len(entries) == 0 {
		return nil, ErrAccountNotFound
	}

	acc := entries[0]
	if len(entries) > 1 {
		// Not atomic with the read above: a registration landing in between
		// is deleted too. The newest record is never touched.
		deleted, err := s.store.DeleteUnverifiedByEmailOrPhoneExcept(ctx, acc.ID, in.Email, in.Phone)
		if err != nil {
			s.logger.Warn("failed to remove stale registrations", "account_id", acc.ID, "error", err)
		} else {
			s.logger.Info("removed stale registrations", "account_id", acc.ID, "count", deleted)
		}
	}

	otp, ok := in.OTP.Int()
	if !ok || acc.VerificationCode == nil || *acc.VerificationCode != otp {
		return nil, ErrInvalidCode
	}

	if acc.VerificationCodeExpire == nil || acc.VerificationCodeExpire.IsZero() {
		return nil, ErrInvalidExpiry
	}
	if s.clock.Now().After(*acc.VerificationCodeExpire) {
		return nil, ErrCodeExpired
	}

	if err := s.store.MarkVerified(ctx, acc.ID); err != nil {
		switch {
		case errors.Is(err, account.ErrDuplicateIdentity):
			return nil, ErrDuplicateIdentity
		case errors.Is(err, account.ErrNotFound):
			return nil, ErrAccountNotFound
		}
		return nil, storeError(err)
	}

	acc.AccountVerified = true
	acc.VerificationCode = nil
	acc.VerificationCodeExpire = nil

	return s.issueSession(acc)
}

// Login authenticates a verified account. Unknown email and wrong password
// fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (session *Session, err error) {
	defer func() { s.metrics.ObserveLogin(outcome(err)) }()

	if email == "" || password == "" {
		return nil, validationError(errors.New("Please provide both email and password."))
	}

	acc, err := s.store.GetVerifiedByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storeError(err)
	}

	ok, err := s.hasher.Verify(acc.PasswordHash, password)
	if err != nil {
		s.logger.Error("stored password hash is unreadable", "account_id", acc.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(acc)
}

// Logout revokes the session token when a revocation store is configured
func (s *Service) Logout(ctx context.Context, token string) error {
	if s.revocations == nil || token == "" {
		return nil
	}

	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		// Expired or forged tokens are already unusable
		return nil
	}

	if err := s.revocations.Revoke(ctx, token, claims.ExpiresAt); err != nil {
		return storeError(err)
	}
	return nil
}

// GetUser returns the account behind an authenticated session
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	acc, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storeError(err)
	}
	return acc, nil
}

// ForgotPassword issues a reset token for a verified account and emails the
// reset link. If the email cannot be sent the token is withdrawn.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { s.metrics.ObservePasswordReset("request", outcome(err)) }()

	if email == "" {
		return validationError(errors.New("Email is required."))
	}

	acc, err := s.store.GetVerifiedByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return &Error{Kind: KindNotFound, Code: ErrAccountNotFound.Code, Message: "User not found with that email."}
		}
		return storeError(err)
	}

	token, tokenHash, expiresAt, err := GenerateResetToken(s.random, s.clock.Now())
	if err != nil {
		return storeError(err)
	}

	if err := s.store.SetResetToken(ctx, acc.ID, tokenHash, expiresAt); err != nil {
		return storeError(err)
	}

	resetURL := strings.TrimRight(s.cfg.FrontendURL, "/") + "/password/reset/" + token

	sendErr := s.notifier.SendPasswordResetEmail(ctx, acc.Email, resetURL)
	s.metrics.ObserveNotification(MethodEmail, outcome(sendErr))
	if sendErr != nil {
		s.logger.Error("failed to send password reset email", "account_id", acc.ID, "error", sendErr)

		if err := s.store.ClearResetToken(ctx, acc.ID); err != nil {
			s.logger.Error("failed to withdraw reset token", "account_id", acc.ID, "error", err)
		}
		return notificationError("Cannot send reset password token.", sendErr)
	}

	return nil
}

// ResetPassword consumes a reset token and replaces the password
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) (session *Session, err error) {
	defer func() { s.metrics.ObservePasswordReset("complete", outcome(err)) }()

	acc, err := s.store.GetByResetTokenHash(ctx, HashResetToken(in.Token), s.clock.Now())
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, storeError(err)
	}

	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	if err := validation.Validate(in.Password,
		validation.Required,
		validation.Length(MinPasswordLength, MaxPasswordLength),
	); err != nil {
		return nil, validationError(errors.New("password: " + err.Error()))
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, storeError(err)
	}

	if err := s.store.UpdatePassword(ctx, acc.ID, passwordHash); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, storeError(err)
	}

	acc.PasswordHash = passwordHash
	acc.ResetPasswordToken = nil
	acc.ResetPasswordExpire = nil

	return s.issueSession(acc)
}

func (s *Service) issueSession(acc *account.Account) (*Session, error) {
	token, expiresAt, err := s.tokens.CreateToken(acc.ID, acc.Email, s.cfg.SessionDuration)
	if err != nil {
		return nil, storeError(err)
	}
	return &Session{Account: acc, Token: token, ExpiresAt: expiresAt}, nil
}

// methodLabel keeps the metrics label set fixed whatever the request sent
func methodLabel(method string) string {
	switch method {
	case MethodEmail, MethodPhone:
		return method
	default:
		return "invalid"
	}
}

func (in RegisterInput) validate() error {
	if in.Name == "" || in.Email == "" || in.Password == "" || in.Phone == "" || in.VerificationMethod == "" {
		return ErrMissingFields
	}
	if !ValidatePhoneNumber(in.Phone) {
		return ErrInvalidPhone
	}
	if in.VerificationMethod != MethodEmail && in.VerificationMethod != MethodPhone {
		return ErrInvalidVerificationMethod
	}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Length(1, 100)),
		validation.Field(&in.Email, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, validation.Length(MinPasswordLength, MaxPasswordLength)),
	)
	if err != nil {
		return validationError(err)
	}
	return nil
}
