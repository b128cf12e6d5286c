package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	VerificationCodeTTL = 10 * time.Minute
	ResetTokenTTL       = 15 * time.Minute
	ResetTokenBytes     = 20 // 40 hex chars
)

// Clock is the time source for expiry decisions
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by time.Now in UTC
func SystemClock() Clock {
	return systemClock{}
}

// GenerateVerificationCode returns a 5-digit code in [10000, 99999] and its
// expiry. The leading digit is drawn from 1-9 and the remaining four digits
// from 0-9999, so the result never starts with 0.
func GenerateVerificationCode(random io.Reader, now time.Time) (int, time.Time, error) {
	first, err := rand.Int(random, big.NewInt(9))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to generate verification code: %w", err)
	}
	rest, err := rand.Int(random, big.NewInt(10000))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to generate verification code: %w", err)
	}

	// Same as concatenating the leading digit with the zero-padded remainder
	code := int(first.Int64()+1)*10000 + int(rest.Int64())

	return code, now.Add(VerificationCodeTTL), nil
}

// GenerateResetToken creates a random reset token, the hash to persist, and
// the token's expiry. Only the hash is stored; the plaintext goes in the reset URL.
func GenerateResetToken(random io.Reader, now time.Time) (token, hash string, expiresAt time.Time, err error) {
	b := make([]byte, ResetTokenBytes)
	if _, err = io.ReadFull(random, b); err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to generate reset token: %w", err)
	}

	token = hex.EncodeToString(b)
	return token, HashResetToken(token), now.Add(ResetTokenTTL), nil
}

// HashResetToken computes the hex SHA-256 digest stored for a reset token
func HashResetToken(token string) string {
	return hashToken(token)
}
