package mpesa

import (
	"strings"

	"agropay/pkg/apperror"
)

// NormalizePhone converts a Kenyan MSISDN into the canonical 2547XXXXXXXX /
// 2541XXXXXXXX form the Daraja API requires. Accepted inputs include
// "0712345678", "+254712345678", "254712345678" and "712345678"; anything
// that does not normalize to exactly 12 digits is rejected.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "0"):
		digits = "254" + digits[1:]
	case !strings.HasPrefix(digits, "254"):
		digits = "254" + digits
	}

	if len(digits) != 12 {
		return "", apperror.ErrInvalidPhoneFormat(phone)
	}
	return digits, nil
}
