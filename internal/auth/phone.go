package auth

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

// phonePattern accepts Indian mobile numbers: optional +91 prefix with an
// optional separator, optional trunk 0, then a 10-digit number starting 6-9.
var phonePattern = regexp.MustCompile(`^(\+91[\-\s]?)?[0]?[6789]\d{9}$`)

// ValidatePhoneNumber reports whether phone matches the national mobile format
func ValidatePhoneNumber(phone string) bool {
	return validation.Validate(phone, validation.Required, validation.Match(phonePattern)) == nil
}
