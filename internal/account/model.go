package account

import (
	"time"

	"github.com/google/uuid"
)

// Account is a registered identity, verified or not.
type Account struct {
	ID                     uuid.UUID  `json:"id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	Phone                  string     `json:"phone"`
	PasswordHash           string     `json:"-"` // Never expose password hash in JSON
	AccountVerified        bool       `json:"accountVerified"`
	VerificationCode       *int       `json:"-"`
	VerificationCodeExpire *time.Time `json:"-"`
	ResetPasswordToken     *string    `json:"-"`
	ResetPasswordExpire    *time.Time `json:"-"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}
