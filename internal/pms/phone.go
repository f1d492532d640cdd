package pms

import "strings"

// NormalizePhone strips everything but digits from raw. "+1 (555) 123-4567"
// becomes "15551234567".
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneCandidates returns the normalized forms under which a US number may be
// stored: the raw digits plus the 10/11-digit counterpart with or without the
// leading country code.
func PhoneCandidates(raw string) []string {
	digits := NormalizePhone(raw)
	if digits == "" {
		return nil
	}
	candidates := []string{digits}
	if len(digits) == 10 {
		candidates = append(candidates, "1"+digits)
	} else if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		candidates = append(candidates, digits[1:])
	}
	return candidates
}

// SamePhone reports whether two raw phone strings denote the same number
// after normalization.
func SamePhone(a, b string) bool {
	for _, ca := range PhoneCandidates(a) {
		for _, cb := range PhoneCandidates(b) {
			if ca == cb {
				return true
			}
		}
	}
	return false
}

// SplitName splits a full name into first and last parts. Everything after
// the first word goes to the last name; single-word names have an empty last
// name.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// JoinName joins first and last into a display name, tolerating empty parts.
func JoinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
