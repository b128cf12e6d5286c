package auth

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-account-service/internal/account"
	"github.com/redmonkez12/go-account-service/internal/logging"
)

const testKey = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is an in-memory AccountStore with the same matching rules as the
// bun repository
type memStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]account.Account
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[uuid.UUID]account.Account)}
}

func matchesIdentity(a account.Account, email, phone string) bool {
	return a.Email == email || a.Phone == phone
}

func (s *memStore) Create(_ context.Context, acc *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	s.accounts[acc.ID] = *acc
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &a, nil
}

func (s *memStore) GetVerifiedByEmail(_ context.Context, email string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.AccountVerified && a.Email == email {
			return &a, nil
		}
	}
	return nil, account.ErrNotFound
}

func (s *memStore) FindVerifiedByEmailOrPhone(_ context.Context, email, phone string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.AccountVerified && matchesIdentity(a, email, phone) {
			return &a, nil
		}
	}
	return nil, account.ErrNotFound
}

func (s *memStore) CountUnverifiedByEmailOrPhone(ctx context.Context, email, phone string) (int, error) {
	list, err := s.ListUnverifiedByEmailOrPhone(ctx, email, phone)
	return len(list), err
}

func (s *memStore) ListUnverifiedByEmailOrPhone(_ context.Context, email, phone string) ([]*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*account.Account
	for _, a := range s.accounts {
		if !a.AccountVerified && matchesIdentity(a, email, phone) {
			a := a
			list = append(list, &a)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (s *memStore) DeleteUnverifiedByEmailOrPhoneExcept(_ context.Context, keepID uuid.UUID, email, phone string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, a := range s.accounts {
		if id != keepID && !a.AccountVerified && matchesIdentity(a, email, phone) {
			delete(s.accounts, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) MarkVerified(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	for otherID, other := range s.accounts {
		if otherID != id && other.AccountVerified && matchesIdentity(other, a.Email, a.Phone) {
			return account.ErrDuplicateIdentity
		}
	}
	a.AccountVerified = true
	a.VerificationCode = nil
	a.VerificationCodeExpire = nil
	s.accounts[id] = a
	return nil
}

func (s *memStore) SetResetToken(_ context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	a.ResetPasswordToken = &tokenHash
	a.ResetPasswordExpire = &expiresAt
	s.accounts[id] = a
	return nil
}

func (s *memStore) ClearResetToken(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	a.ResetPasswordToken = nil
	a.ResetPasswordExpire = nil
	s.accounts[id] = a
	return nil
}

func (s *memStore) GetByResetTokenHash(_ context.Context, tokenHash string, now time.Time) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ResetPasswordToken != nil && *a.ResetPasswordToken == tokenHash &&
			a.ResetPasswordExpire != nil && a.ResetPasswordExpire.After(now) {
			return &a, nil
		}
	}
	return nil, account.ErrNotFound
}

func (s *memStore) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.ResetPasswordToken = nil
	a.ResetPasswordExpire = nil
	s.accounts[id] = a
	return nil
}

func (s *memStore) get(t *testing.T, id uuid.UUID) account.Account {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	require.True(t, ok, "account %s not found", id)
	return a
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

type sentCode struct {
	To   string
	Code int
}

// fakeNotifier records dispatches; a non-nil Func field overrides the result
type fakeNotifier struct {
	mu sync.Mutex

	SendVerificationEmailFunc  func(toEmail string, code int) error
	SendVerificationCallFunc   func(toPhone string, code int) error
	SendPasswordResetEmailFunc func(toEmail, resetURL string) error

	emails    []sentCode
	calls     []sentCode
	resetURLs []string
}

func (n *fakeNotifier) SendVerificationEmail(_ context.Context, toEmail, _ string, code int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.SendVerificationEmailFunc != nil {
		if err := n.SendVerificationEmailFunc(toEmail, code); err != nil {
			return err
		}
	}
	n.emails = append(n.emails, sentCode{To: toEmail, Code: code})
	return nil
}

func (n *fakeNotifier) SendVerificationCall(_ context.Context, toPhone string, code int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.SendVerificationCallFunc != nil {
		if err := n.SendVerificationCallFunc(toPhone, code); err != nil {
			return err
		}
	}
	n.calls = append(n.calls, sentCode{To: toPhone, Code: code})
	return nil
}

func (n *fakeNotifier) SendPasswordResetEmail(_ context.Context, toEmail, resetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.SendPasswordResetEmailFunc != nil {
		if err := n.SendPasswordResetEmailFunc(toEmail, resetURL); err != nil {
			return err
		}
	}
	n.resetURLs = append(n.resetURLs, resetURL)
	return nil
}

func (n *fakeNotifier) lastEmailCode(t *testing.T) int {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.emails, "no verification email sent")
	return n.emails[len(n.emails)-1].Code
}

func (n *fakeNotifier) lastResetURL(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.resetURLs, "no reset email sent")
	return n.resetURLs[len(n.resetURLs)-1]
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: make(map[string]time.Time)}
}

func (m *memRevocations) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[token] = expiresAt
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[token]
	return ok, nil
}

type testEnv struct {
	service     *Service
	store       *memStore
	notifier    *fakeNotifier
	clock       *fakeClock
	tokens      *PasetoService
	revocations *memRevocations
}

// cheapHasher keeps argon2 fast enough for table tests
func cheapHasher() *Argon2idHasher {
	return NewArgon2idHasher(Argon2Params{Time: 1, Memory: 64, Threads: 1, KeyLen: 16, SaltLen: 8})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newFakeClock()
	tokens, err := NewPasetoService([]byte(testKey))
	require.NoError(t, err)
	tokens.now = clock.Now

	env := &testEnv{
		store:       newMemStore(),
		notifier:    &fakeNotifier{},
		clock:       clock,
		tokens:      tokens,
		revocations: newMemRevocations(),
	}
	env.service = NewService(
		env.store,
		env.notifier,
		tokens,
		cheapHasher(),
		logging.NewNopLogger(),
		ServiceConfig{SessionDuration: 7 * 24 * time.Hour, FrontendURL: "https://app.example.com/"},
		WithClock(clock),
		WithRevocations(env.revocations),
	)
	return env
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Name:               "Asha",
		Email:              "asha@example.com",
		Password:           "correct-horse",
		Phone:              "9876543210",
		VerificationMethod: MethodEmail,
	}
}

// seedVerified stores a verified account with the given password
func (e *testEnv) seedVerified(t *testing.T, email, phone, password string) *account.Account {
	t.Helper()
	hash, err := cheapHasher().Hash(password)
	require.NoError(t, err)

	acc := &account.Account{
		ID:              uuid.New(),
		Name:            "Verified",
		Email:           email,
		Phone:           phone,
		PasswordHash:    hash,
		AccountVerified: true,
		CreatedAt:       e.clock.Now(),
	}
	require.NoError(t, e.store.Create(context.Background(), acc))
	return acc
}
