package session

import (
	"strings"
	"unicode"

	"github.com/lexfrei/go-eero/apierror"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// ValidateIdentifier accepts an email address ("local@domain") or a phone number
// (optional leading "+", 7 to 15 digits, separated by spaces, dashes, dots or parentheses).
func ValidateIdentifier(identifier string) error {
	if identifier == "" {
		return apierror.New(apierror.KindValidation, "login identifier is empty")
	}

	if strings.Contains(identifier, "@") {
		if isEmail(identifier) {
			return nil
		}
		return apierror.New(apierror.KindValidation, "login identifier is not a valid email address")
	}

	if isPhone(identifier) {
		return nil
	}

	return apierror.New(apierror.KindValidation, "login identifier must be an email address or a phone number")
}

func isEmail(s string) bool {
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false
	}

	local, domain, ok := strings.Cut(s, "@")
	return ok && local != "" && domain != "" && !strings.Contains(domain, "@")
}

func isPhone(s string) bool {
	s = strings.TrimPrefix(s, "+")

	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ', r == '-', r == '.', r == '(', r == ')':
		default:
			return false
		}
	}

	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}
