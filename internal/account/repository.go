package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-account-service/internal/database"
)

var (
	ErrNotFound          = errors.New("account not found")
	ErrDuplicateIdentity = errors.New("email or phone already belongs to a verified account")
)

// Repository handles account persistence
type Repository struct {
	db  *bun.DB
	now func() time.Time
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new account. ID and timestamps are filled in when empty.
func (r *Repository) Create(ctx context.Context, acc *Account) error {
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = r.now()
	}
	acc.UpdatedAt = acc.CreatedAt

	dbAccount := mapModelToDBAccount(acc)

	_, err := r.db.NewInsert().
		Model(dbAccount).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdentity
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	dbAccount := new(database.Account)
	err := r.db.NewSelect().
		Model(dbAccount).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}

	return mapDBAccountToModel(dbAccount), nil
}

// GetVerifiedByEmail retrieves the verified account holding an email
func (r *Repository) GetVerifiedByEmail(ctx context.Context, email string) (*Account, error) {
	dbAccount := new(database.Account)
	err := r.db.NewSelect().
		Model(dbAccount).
		Where("email = ?", email).
		Where("account_verified = ?", true).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get verified account by email: %w", err)
	}

	return mapDBAccountToModel(dbAccount), nil
}

// FindVerifiedByEmailOrPhone returns a verified account holding either the email or the phone
func (r *Repository) FindVerifiedByEmailOrPhone(ctx context.Context, email, phone string) (*Account, error) {
	dbAccount := new(database.Account)
	err := r.db.NewSelect().
		Model(dbAccount).
		Where("account_verified = ?", true).
		WhereGroup(" AND ", selectIdentity(email, phone)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find verified account: %w", err)
	}

	return mapDBAccountToModel(dbAccount), nil
}

// CountUnverifiedByEmailOrPhone counts pending registrations for an email or phone
func (r *Repository) CountUnverifiedByEmailOrPhone(ctx context.Context, email, phone string) (int, error) {
	count, err := r.db.NewSelect().
		Model((*database.Account)(nil)).
		Where("account_verified = ?", false).
		WhereGroup(" AND ", selectIdentity(email, phone)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unverified accounts: %w", err)
	}

	return count, nil
}

// ListUnverifiedByEmailOrPhone returns pending registrations, newest first
func (r *Repository) ListUnverifiedByEmailOrPhone(ctx context.Context, email, phone string) ([]*Account, error) {
	var dbAccounts []database.Account
	err := r.db.NewSelect().
		Model(&dbAccounts).
		Where("account_verified = ?", false).
		WhereGroup(" AND ", selectIdentity(email, phone)).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unverified accounts: %w", err)
	}

	accounts := make([]*Account, 0, len(dbAccounts))
	for i := range dbAccounts {
		accounts = append(accounts, mapDBAccountToModel(&dbAccounts[i]))
	}

	return accounts, nil
}

// DeleteUnverifiedByEmailOrPhoneExcept removes every pending registration for
// the email or phone other than keepID
func (r *Repository) DeleteUnverifiedByEmailOrPhoneExcept(ctx context.Context, keepID uuid.UUID, email, phone string) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*database.Account)(nil)).
		Where("id <> ?", keepID).
		Where("account_verified = ?", false).
		WhereGroup(" AND ", deleteIdentity(email, phone)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale registrations: %w", err)
	}

	return rowsAffected(result)
}

// MarkVerified flags an account as verified and clears the verification code
func (r *Repository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.Account)(nil)).
		Set("account_verified = ?", true).
		Set("verification_code = ?", nil).
		Set("verification_code_expire = ?", nil).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdentity
		}
		return fmt.Errorf("failed to mark account as verified: %w", err)
	}

	return requireRow(result)
}

// SetResetToken stores a reset token hash and its expiry without touching other fields
func (r *Repository) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.Account)(nil)).
		Set("reset_password_token = ?", tokenHash).
		Set("reset_password_expire = ?", expiresAt.UTC()).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}

	return requireRow(result)
}

// ClearResetToken unsets both reset fields
func (r *Repository) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.Account)(nil)).
		Set("reset_password_token = ?", nil).
		Set("reset_password_expire = ?", nil).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear reset token: %w", err)
	}

	return requireRow(result)
}

// GetByResetTokenHash retrieves the account whose reset token hash matches and
// has not expired at now
func (r *Repository) GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*Account, error) {
	dbAccount := new(database.Account)
	err := r.db.NewSelect().
		Model(dbAccount).
		Where("reset_password_token = ?", tokenHash).
		Where("reset_password_expire > ?", now.UTC()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by reset token: %w", err)
	}

	return mapDBAccountToModel(dbAccount), nil
}

// UpdatePassword replaces the password hash and consumes the reset token
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.Account)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("reset_password_token = ?", nil).
		Set("reset_password_expire = ?", nil).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return requireRow(result)
}

// DeleteUnverifiedCreatedBefore removes pending registrations older than cutoff
func (r *Repository) DeleteUnverifiedCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*database.Account)(nil)).
		Where("account_verified = ?", false).
		Where("created_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unverified accounts: %w", err)
	}

	return rowsAffected(result)
}

// selectIdentity builds the "(email = ? OR phone = ?)" group for selects
func selectIdentity(email, phone string) func(*bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("email = ?", email).WhereOr("phone = ?", phone)
	}
}

func deleteIdentity(email, phone string) func(*bun.DeleteQuery) *bun.DeleteQuery {
	return func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("email = ?", email).WhereOr("phone = ?", phone)
	}
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func requireRow(result sql.Result) error {
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// mapDBAccountToModel converts database model to domain model
func mapDBAccountToModel(dba *database.Account) *Account {
	return &Account{
		ID:                     dba.ID,
		Name:                   dba.Name,
		Email:                  dba.Email,
		Phone:                  dba.Phone,
		PasswordHash:           dba.PasswordHash,
		AccountVerified:        dba.AccountVerified,
		VerificationCode:       dba.VerificationCode,
		VerificationCodeExpire: dba.VerificationCodeExpire,
		ResetPasswordToken:     dba.ResetPasswordToken,
		ResetPasswordExpire:    dba.ResetPasswordExpire,
		CreatedAt:              dba.CreatedAt,
		UpdatedAt:              dba.UpdatedAt,
	}
}

func mapModelToDBAccount(acc *Account) *database.Account {
	return &database.Account{
		ID:                     acc.ID,
		Name:                   acc.Name,
		Email:                  acc.Email,
		Phone:                  acc.Phone,
		PasswordHash:           acc.PasswordHash,
		AccountVerified:        acc.AccountVerified,
		VerificationCode:       acc.VerificationCode,
		VerificationCodeExpire: utcPtr(acc.VerificationCodeExpire),
		ResetPasswordToken:     acc.ResetPasswordToken,
		ResetPasswordExpire:    utcPtr(acc.ResetPasswordExpire),
		CreatedAt:              acc.CreatedAt.UTC(),
		UpdatedAt:              acc.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
