package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-account-service/internal/account"
	"github.com/redmonkez12/go-account-service/internal/metrics"
)

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *RegisterInput)
		wantErr error
	}{
		{"missing name", func(in *RegisterInput) { in.Name = "" }, ErrMissingFields},
		{"missing phone", func(in *RegisterInput) { in.Phone = "" }, ErrMissingFields},
		{"missing method", func(in *RegisterInput) { in.VerificationMethod = "" }, ErrMissingFields},
		{"invalid phone", func(in *RegisterInput) { in.Phone = "1234567890" }, ErrInvalidPhone},
		{"unknown method", func(in *RegisterInput) { in.VerificationMethod = "sms" }, ErrInvalidVerificationMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := validRegistration()
			tt.mutate(&in)

			_, err := env.service.Register(context.Background(), in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, env.store.len(), "nothing is persisted")
		})
	}

	fieldTests := []struct {
		name   string
		mutate func(in *RegisterInput)
	}{
		{"malformed email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"short password", func(in *RegisterInput) { in.Password = "short" }},
		{"long password", func(in *RegisterInput) { in.Password = strings.Repeat("x", MaxPasswordLength+1) }},
	}

	for _, tt := range fieldTests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := validRegistration()
			tt.mutate(&in)

			_, err := env.service.Register(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, 0, env.store.len())
		})
	}
}

func TestRegister_MethodLabelIsBounded(t *testing.T) {
	env := newTestEnv(t)
	m := metrics.New()
	env.service.metrics = m

	for i := 0; i < 50; i++ {
		in := validRegistration()
		in.VerificationMethod = "junk-" + strconv.Itoa(i)
		_, err := env.service.Register(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidVerificationMethod)
	}

	_, err := env.service.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(m.Registrations))
	assert.Equal(t, float64(50), testutil.ToFloat64(m.Registrations.WithLabelValues("invalid", KindValidation.String())))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Registrations.WithLabelValues(MethodEmail, "success")))
}

func TestRegister_EmailChannel(t *testing.T) {
	env := newTestEnv(t)

	acc, err := env.service.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	stored := env.store.get(t, acc.ID)
	assert.False(t, stored.AccountVerified)
	require.NotNil(t, stored.VerificationCode)
	require.NotNil(t, stored.VerificationCodeExpire)
	assert.Equal(t, env.clock.Now().Add(VerificationCodeTTL), *stored.VerificationCodeExpire)
	assert.Equal(t, env.clock.Now(), stored.CreatedAt)

	assert.Equal(t, *stored.VerificationCode, env.notifier.lastEmailCode(t))
	assert.Empty(t, env.notifier.calls)

	ok, err := cheapHasher().Verify(stored.PasswordHash, "correct-horse")
	require.NoError(t, err)
	assert.True(t, ok, "password is stored hashed")
	assert.NotContains(t, stored.PasswordHash, "correct-horse")
}

func TestRegister_PhoneChannel(t *testing.T) {
	env := newTestEnv(t)
	in := validRegistration()
	in.VerificationMethod = MethodPhone

	acc, err := env.service.Register(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, env.notifier.calls, 1)
	assert.Equal(t, "9876543210", env.notifier.calls[0].To)
	assert.Equal(t, *env.store.get(t, acc.ID).VerificationCode, env.notifier.calls[0].Code)
	assert.Empty(t, env.notifier.emails)
}

func TestRegister_DuplicateIdentity(t *testing.T) {
	t.Run("verified email", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedVerified(t, "asha@example.com", "9123456789", "password123")

		_, err := env.service.Register(context.Background(), validRegistration())
		assert.ErrorIs(t, err, ErrDuplicateIdentity)
	})

	t.Run("verified phone", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedVerified(t, "other@example.com", "9876543210", "password123")

		_, err := env.service.Register(context.Background(), validRegistration())
		assert.ErrorIs(t, err, ErrDuplicateIdentity)
	})
}

func TestRegister_AttemptsExceeded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < MaxUnverifiedAttempts; i++ {
		_, err := env.service.Register(ctx, validRegistration())
		require.NoError(t, err, "attempt %d", i+1)
		env.clock.Advance(time.Second)
	}

	_, err := env.service.Register(ctx, validRegistration())
	assert.ErrorIs(t, err, ErrAttemptsExceeded)
	assert.Equal(t, MaxUnverifiedAttempts, env.store.len())

	t.Run("matches on phone alone", func(t *testing.T) {
		in := validRegistration()
		in.Email = "fresh@example.com"

		_, err := env.service.Register(ctx, in)
		assert.ErrorIs(t, err, ErrAttemptsExceeded)
	})
}

func TestRegister_NotificationFailureKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.SendVerificationEmailFunc = func(string, int) error {
		return errors.New("smtp: connection refused")
	}

	acc, err := env.service.Register(context.Background(), validRegistration())
	require.Error(t, err)
	assert.Equal(t, KindNotification, KindOf(err))
	assert.NotContains(t, err.(*Error).Message, "smtp", "internal cause is not part of the message")

	require.NotNil(t, acc)
	stored := env.store.get(t, acc.ID)
	assert.NotNil(t, stored.VerificationCode)
}

func registerAndGetCode(t *testing.T, env *testEnv, in RegisterInput) (*account.Account, int) {
	t.Helper()
	acc, err := env.service.Register(context.Background(), in)
	require.NoError(t, err)
	return acc, env.notifier.lastEmailCode(t)
}

func otpInput(in RegisterInput, code int) VerifyOTPInput {
	return VerifyOTPInput{Email: in.Email, Phone: in.Phone, OTP: OTP(strconv.Itoa(code))}
}

func TestVerifyOTP_Success(t *testing.T) {
	env := newTestEnv(t)
	in := validRegistration()
	acc, code := registerAndGetCode(t, env, in)

	env.clock.Advance(VerificationCodeTTL - time.Second)

	session, err := env.service.VerifyOTP(context.Background(), otpInput(in, code))
	require.NoError(t, err)

	stored := env.store.get(t, acc.ID)
	assert.True(t, stored.AccountVerified)
	assert.Nil(t, stored.VerificationCode)
	assert.Nil(t, stored.VerificationCodeExpire)

	assert.Equal(t, acc.ID, session.Account.ID)
	assert.True(t, session.Account.AccountVerified)
	assert.Equal(t, env.clock.Now().Add(7*24*time.Hour), session.ExpiresAt)

	claims, err := env.tokens.VerifyToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID.String(), claims.UserID)
	assert.Equal(t, in.Email, claims.Email)
}

func TestVerifyOTP_CodeExpired(t *testing.T) {
	env := newTestEnv(t)
	in := validRegistration()
	acc, code := registerAndGetCode(t, env, in)

	env.clock.Advance(VerificationCodeTTL + time.Second)

	_, err := env.service.VerifyOTP(context.Background(), otpInput(in, code))
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.False(t, env.store.get(t, acc.ID).AccountVerified)
}

func TestVerifyOTP_WrongCodeDoesNotMutate(t *testing.T) {
	env := newTestEnv(t)
	in := validRegistration()
	acc, code := registerAndGetCode(t, env, in)
	before := env.store.get(t, acc.ID)

	wrong := code + 1
	if wrong > 99999 {
		wrong = 10000
	}

	_, err := env.service.VerifyOTP(context.Background(), otpInput(in, wrong))
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, before, env.store.get(t, acc.ID))

	t.Run("non-numeric code", func(t *testing.T) {
		_, err := env.service.VerifyOTP(context.Background(), VerifyOTPInput{Email: in.Email, Phone: in.Phone, OTP: "abcde"})
		assert.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("fractional code", func(t *testing.T) {
		_, err := env.service.VerifyOTP(context.Background(), VerifyOTPInput{Email: in.Email, Phone: in.Phone, OTP: OTP(strconv.Itoa(code) + ".5")})
		assert.ErrorIs(t, err, ErrInvalidCode)
	})
}

func TestVerifyOTP_AcceptsIntegralNumberForms(t *testing.T) {
	env := newTestEnv(t)
	in := validRegistration()
	acc, code := registerAndGetCode(t, env, in)

	_, err := env.service.VerifyOTP(context.Background(), VerifyOTPInput{
		Email: in.Email, Phone: in.Phone, OTP: OTP(strconv.FormatFloat(float64(code), 'e', -1, 64)),
	})
	require.NoError(t, err)
	assert.True(t, env.store.get(t, acc.ID).AccountVerified)
}

func TestOTPInt(t *testing.T) {
	tests := []struct {
		otp    OTP
		want   int
		wantOK bool
	}{
		{"12345", 12345, true},
		{" 12345 ", 12345, true},
		{"12345.0", 12345, true},
		{"1.2345e4", 12345, true},
		{"12345.5", 0, false},
		{"abcde", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"-12345", 0, false},
		{"1e20", 0, false},
	}

	for _, tt := range tests {
		got, ok := tt.otp.Int()
		assert.Equal(t, tt.wantOK, ok, string(tt.otp))
		assert.Equal(t, tt.want, got, string(tt.otp))
	}
}

func TestVerifyOTP_InvalidExpiry(t *testing.T) {
	env := newTestEnv(t)
	code := 54321
	require.NoError(t, env.store.Create(context.Background(), &account.Account{
		ID:               uuid.New(),
		Email:            "asha@example.com",
		Phone:            "9876543210",
		VerificationCode: &code,
		CreatedAt:        env.clock.Now(),
	}))

	_, err := env.service.VerifyOTP(context.Background(), VerifyOTPInput{
		Email: "asha@example.com", Phone: "9876543210", OTP: "54321",
	})
	assert.ErrorIs(t, err, ErrInvalidExpiry)
}

func TestVerifyOTP_Lookups(t *testing.T) {
	env := newTestEnv(t)

	t.Run("invalid phone", func(t *testing.T) {
		_, err := env.service.VerifyOTP(context.Background(), VerifyOTPInput{Email: "a@example.com", Phone: "98765", OTP: "12345"})
		assert.ErrorIs(t, err, ErrInvalidPhone)
	})

	t.Run("no pending registration", func(t *testing.T) {
		_, err := env.service.VerifyOTP(context.Background(), VerifyOTPInput{Email: "a@example.com", Phone: "9876543210", OTP: "12345"})
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestVerifyOTP_KeepsOnlyNewestRegistration(t *testing.T) {
	env := newTestEnv(t)
	in := validRegistration()

	oldest, oldCode := registerAndGetCode(t, env, in)
	env.clock.Advance(time.Minute)
	middle, _ := registerAndGetCode(t, env, in)
	env.clock.Advance(time.Minute)
	newest, newCode := registerAndGetCode(t, env, in)

	t.Run("older code is rejected", func(t *testing.T) {
		if oldCode == newCode {
			t.Skip("codes collided")
		}
		_, err := env.service.VerifyOTP(context.Background(), otpInput(in, oldCode))
		assert.ErrorIs(t, err, ErrInvalidCode)
	})

	_, err := env.service.VerifyOTP(context.Background(), otpInput(in, newCode))
	require.NoError(t, err)

	assert.Equal(t, 1, env.store.len())
	assert.True(t, env.store.get(t, newest.ID).AccountVerified)

	_, err = env.store.GetByID(context.Background(), oldest.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)
	_, err = env.store.GetByID(context.Background(), middle.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)
}

// racingStore lets a test act between the list and delete steps of VerifyOTP
type racingStore struct {
	*memStore
	afterListFunc   func()
	deleteExceptErr error
}

func (s *racingStore) ListUnverifiedByEmailOrPhone(ctx context.Context, email, phone string) ([]*account.Account, error) {
	list, err := s.memStore.ListUnverifiedByEmailOrPhone(ctx, email, phone)
	if s.afterListFunc != nil {
		s.afterListFunc()
	}
	return list, err
}

func (s *racingStore) DeleteUnverifiedByEmailOrPhoneExcept(ctx context.Context, keepID uuid.UUID, email, phone string) (int64, error) {
	if s.deleteExceptErr != nil {
		return 0, s.deleteExceptErr
	}
	return s.memStore.DeleteUnverifiedByEmailOrPhoneExcept(ctx, keepID, email, phone)
}

// Cleanup is not transactional with the read: a registration that lands
// between listing and deleting is removed even though it was never compared.
func TestVerifyOTP_CleanupRaceWithConcurrentRegistration(t *testing.T) {
	env := newTestEnv(t)
	racing := &racingStore{memStore: env.store}
	env.service.store = racing
	in := validRegistration()

	registerAndGetCode(t, env, in)
	env.clock.Advance(time.Minute)
	_, code := registerAndGetCode(t, env, in)

	lateCode := 11111
	late := &account.Account{
		ID:               uuid.New(),
		Email:            in.Email,
		Phone:            in.Phone,
		VerificationCode: &lateCode,
		CreatedAt:        env.clock.Now().Add(time.Minute),
	}
	racing.afterListFunc = func() {
		racing.afterListFunc = nil
		require.NoError(t, env.store.Create(context.Background(), late))
	}

	_, err := env.service.VerifyOTP(context.Background(), otpInput(in, code))
	require.NoError(t, err)

	_, err = env.store.GetByID(context.Background(), late.ID)
	assert.ErrorIs(t, err, account.ErrNotFound, "concurrent registration is swept by the cleanup")
}

func TestVerifyOTP_CleanupFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	racing := &racingStore{memStore: env.store, deleteExceptErr: errors.New("connection reset")}
	env.service.store = racing
	in := validRegistration()

	registerAndGetCode(t, env, in)
	env.clock.Advance(time.Minute)
	newest, code := registerAndGetCode(t, env, in)

	_, err := env.service.VerifyOTP(context.Background(), otpInput(in, code))
	require.NoError(t, err)
	assert.True(t, env.store.get(t, newest.ID).AccountVerified)
	assert.Equal(t, 2, env.store.len())
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verified := env.seedVerified(t, "v@example.com", "9123456789", "password123")

	t.Run("verified account", func(t *testing.T) {
		session, err := env.service.Login(ctx, "v@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, verified.ID, session.Account.ID)
		assert.NotEmpty(t, session.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := env.service.Login(ctx, "v@example.com", "password124")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := env.service.Login(ctx, "nobody@example.com", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unverified account with matching password", func(t *testing.T) {
		in := validRegistration()
		_, err := env.service.Register(ctx, in)
		require.NoError(t, err)

		_, err = env.service.Login(ctx, in.Email, in.Password)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := env.service.Login(ctx, "v@example.com", "")
		assert.Equal(t, KindValidation, KindOf(err))
	})
}

func resetTokenFromURL(t *testing.T, url string) string {
	t.Helper()
	const prefix = "https://app.example.com/password/reset/"
	require.True(t, strings.HasPrefix(url, prefix), "unexpected reset url %q", url)
	return strings.TrimPrefix(url, prefix)
}

func TestForgotPassword(t *testing.T) {
	t.Run("stores the hash of the mailed token", func(t *testing.T) {
		env := newTestEnv(t)
		acc := env.seedVerified(t, "v@example.com", "9123456789", "password123")

		require.NoError(t, env.service.ForgotPassword(context.Background(), "v@example.com"))

		token := resetTokenFromURL(t, env.notifier.lastResetURL(t))
		assert.Len(t, token, 2*ResetTokenBytes)

		stored := env.store.get(t, acc.ID)
		require.NotNil(t, stored.ResetPasswordToken)
		assert.Equal(t, HashResetToken(token), *stored.ResetPasswordToken)
		assert.NotEqual(t, token, *stored.ResetPasswordToken)
		require.NotNil(t, stored.ResetPasswordExpire)
		assert.Equal(t, env.clock.Now().Add(ResetTokenTTL), *stored.ResetPasswordExpire)
	})

	t.Run("unverified account is not found", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.service.Register(context.Background(), validRegistration())
		require.NoError(t, err)

		err = env.service.ForgotPassword(context.Background(), "asha@example.com")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("dispatch failure clears both reset fields", func(t *testing.T) {
		env := newTestEnv(t)
		acc := env.seedVerified(t, "v@example.com", "9123456789", "password123")
		env.notifier.SendPasswordResetEmailFunc = func(string, string) error {
			return errors.New("smtp timeout")
		}

		err := env.service.ForgotPassword(context.Background(), "v@example.com")
		assert.Equal(t, KindNotification, KindOf(err))

		stored := env.store.get(t, acc.ID)
		assert.Nil(t, stored.ResetPasswordToken)
		assert.Nil(t, stored.ResetPasswordExpire)
	})
}

func TestResetPassword(t *testing.T) {
	setup := func(t *testing.T) (*testEnv, *account.Account, string) {
		env := newTestEnv(t)
		acc := env.seedVerified(t, "v@example.com", "9123456789", "password123")
		require.NoError(t, env.service.ForgotPassword(context.Background(), "v@example.com"))
		return env, acc, resetTokenFromURL(t, env.notifier.lastResetURL(t))
	}

	t.Run("success", func(t *testing.T) {
		env, acc, token := setup(t)

		session, err := env.service.ResetPassword(context.Background(), ResetPasswordInput{
			Token: token, Password: "new-password", ConfirmPassword: "new-password",
		})
		require.NoError(t, err)
		assert.Equal(t, acc.ID, session.Account.ID)

		stored := env.store.get(t, acc.ID)
		assert.Nil(t, stored.ResetPasswordToken)
		assert.Nil(t, stored.ResetPasswordExpire)

		_, err = env.service.Login(context.Background(), "v@example.com", "new-password")
		assert.NoError(t, err)
		_, err = env.service.Login(context.Background(), "v@example.com", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = env.service.ResetPassword(context.Background(), ResetPasswordInput{
			Token: token, Password: "another-pass", ConfirmPassword: "another-pass",
		})
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken, "token is single use")
	})

	t.Run("unknown token", func(t *testing.T) {
		env, _, _ := setup(t)

		_, err := env.service.ResetPassword(context.Background(), ResetPasswordInput{
			Token: strings.Repeat("0", 40), Password: "new-password", ConfirmPassword: "new-password",
		})
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})

	t.Run("expired token", func(t *testing.T) {
		env, _, token := setup(t)
		env.clock.Advance(ResetTokenTTL)

		_, err := env.service.ResetPassword(context.Background(), ResetPasswordInput{
			Token: token, Password: "new-password", ConfirmPassword: "new-password",
		})
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})

	t.Run("mismatch does not change the password", func(t *testing.T) {
		env, acc, token := setup(t)
		before := env.store.get(t, acc.ID)

		_, err := env.service.ResetPassword(context.Background(), ResetPasswordInput{
			Token: token, Password: "new-password", ConfirmPassword: "new-passw0rd",
		})
		assert.ErrorIs(t, err, ErrPasswordMismatch)
		assert.Equal(t, before, env.store.get(t, acc.ID))
	})

	t.Run("short password", func(t *testing.T) {
		env, _, token := setup(t)

		_, err := env.service.ResetPassword(context.Background(), ResetPasswordInput{
			Token: token, Password: "short", ConfirmPassword: "short",
		})
		assert.Equal(t, KindValidation, KindOf(err))
	})
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.seedVerified(t, "v@example.com", "9123456789", "password123")

	session, err := env.service.Login(context.Background(), "v@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, env.service.Logout(context.Background(), session.Token))

	revoked, err := env.revocations.IsRevoked(context.Background(), session.Token)
	require.NoError(t, err)
	assert.True(t, revoked)

	assert.NoError(t, env.service.Logout(context.Background(), "garbage"), "unusable tokens are ignored")
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedVerified(t, "v@example.com", "9123456789", "password123")

	got, err := env.service.GetUser(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "v@example.com", got.Email)

	_, err = env.service.GetUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestOTPUnmarshal(t *testing.T) {
	tests := []struct {
		body string
		want OTP
	}{
		{`{"otp": 12345}`, "12345"},
		{`{"otp": "12345"}`, "12345"},
		{`{"otp": null}`, ""},
	}

	for _, tt := range tests {
		var in VerifyOTPInput
		require.NoError(t, json.Unmarshal([]byte(tt.body), &in), tt.body)
		assert.Equal(t, tt.want, in.OTP, tt.body)
	}
}
