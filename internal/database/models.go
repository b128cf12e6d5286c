package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the row model for the accounts table
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID                     uuid.UUID  `bun:"id,pk,type:uuid"`
	Name                   string     `bun:"name,notnull"`
	Email                  string     `bun:"email,notnull"`
	Phone                  string     `bun:"phone,notnull"`
	PasswordHash           string     `bun:"password_hash,notnull"`
	AccountVerified        bool       `bun:"account_verified,notnull,default:false"`
	VerificationCode       *int       `bun:"verification_code"`
	VerificationCodeExpire *time.Time `bun:"verification_code_expire"`
	ResetPasswordToken     *string    `bun:"reset_password_token"`
	ResetPasswordExpire    *time.Time `bun:"reset_password_expire"`
	CreatedAt              time.Time  `bun:"created_at,notnull"`
	UpdatedAt              time.Time  `bun:"updated_at,notnull"`
}
