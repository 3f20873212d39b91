package policy

import "strings"

// MaskPhone hides the middle digits of a phone number for log output.
// "+919876543210" becomes "+9198******10". Short values are fully masked.
func MaskPhone(number string) string {
	number = strings.TrimSpace(number)
	if number == "" {
		return ""
	}
	digits := 0
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits <= 4 {
		return strings.Repeat("*", len(number))
	}

	var b strings.Builder
	b.Grow(len(number))
	seen := 0
	for _, r := range number {
		if r < '0' || r > '9' {
			b.WriteRune(r)
			continue
		}
		seen++
		if seen <= 4 || seen > digits-2 {
			b.WriteRune(r)
		} else {
			b.WriteByte('*')
		}
	}
	return b.String()
}
