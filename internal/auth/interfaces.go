package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-account-service/internal/account"
)

// TokenService defines the interface for session token creation and validation.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
type TokenService interface {
	CreateToken(userID uuid.UUID, email string, duration time.Duration) (token string, expiresAt time.Time, err error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// AccountStore is the credential store the state machines run against
type AccountStore interface {
	Create(ctx context.Context, acc *account.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
	GetVerifiedByEmail(ctx context.Context, email string) (*account.Account, error)
	FindVerifiedByEmailOrPhone(ctx context.Context, email, phone string) (*account.Account, error)
	CountUnverifiedByEmailOrPhone(ctx context.Context, email, phone string) (int, error)
	ListUnverifiedByEmailOrPhone(ctx context.Context, email, phone string) ([]*account.Account, error)
	DeleteUnverifiedByEmailOrPhoneExcept(ctx context.Context, keepID uuid.UUID, email, phone string) (int64, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id uuid.UUID) error
	GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*account.Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// Notifier delivers verification codes and reset links
type Notifier interface {
	SendVerificationEmail(ctx context.Context, toEmail, name string, code int) error
	SendVerificationCall(ctx context.Context, toPhone string, code int) error
	SendPasswordResetEmail(ctx context.Context, toEmail, resetURL string) error
}

// RevocationStore remembers logged-out session tokens until they expire
type RevocationStore interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

var _ AccountStore = (*account.Repository)(nil)
