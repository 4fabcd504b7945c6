// Package phone normalizes WhatsApp phone identifiers (the gateway's waId)
// down to the digits-only form used as the User primary lookup key.
package phone

import "strings"

// Normalize strips every non-digit character from a phone number.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsAllowed reports whether phone appears (after normalization) in the
// configured allow-list. An empty allow-list means "allow everyone" —
// matching the teacher's opt-in whitelist convention
// (domainBot.Bot.Whitelist) where an empty list disables the filter.
func IsAllowed(phone string, allowList []string) bool {
	if len(allowList) == 0 {
		return true
	}
	normalized := Normalize(phone)
	for _, allowed := range allowList {
		if Normalize(allowed) == normalized {
			return true
		}
	}
	return false
}
