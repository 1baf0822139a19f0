package whatsapp

import (
	"fmt"
	"strings"
)

// Suffixes accepted on incoming numbers.
const (
	legacyUserSuffix = "@c.us"
	userServer       = "s.whatsapp.net"
)

// NormalizeNumber reduces "5551234567", "+55 512-34567", "5551234567@c.us"
// or "5551234567@s.whatsapp.net" (with an optional device part) to digits.
func NormalizeNumber(number string) (string, error) {
	n := strings.TrimSpace(number)
	if at := strings.IndexByte(n, '@'); at >= 0 {
		server := n[at:]
		if server != legacyUserSuffix && server != "@"+userServer {
			return "", fmt.Errorf("%w: unsupported server %q", ErrInvalidNumber, server[1:])
		}
		n = n[:at]
		if colon := strings.IndexByte(n, ':'); colon >= 0 {
			n = n[:colon]
		}
	}

	var b strings.Builder
	for _, r := range n {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidNumber, number)
		}
	}

	digits := b.String()
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, number)
	}
	return digits, nil
}
