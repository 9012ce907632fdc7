package domain

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode"
)

const MaxDisplayNameLen = 15

// NormalizeDisplayName strips runes outside the allow-list (letters in any
// script, digits, space, hyphen), trims, and caps the result at
// MaxDisplayNameLen runes. An empty result is replaced with a generated
// guest name. Applied client-side for local echo and server-side as the
// authoritative form.
func NormalizeDisplayName(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' {
			b.WriteRune(r)
		}
	}
	name := strings.TrimSpace(b.String())
	if runes := []rune(name); len(runes) > MaxDisplayNameLen {
		name = strings.TrimSpace(string(runes[:MaxDisplayNameLen]))
	}
	if name == "" {
		return GuestName()
	}
	return name
}

// NameKey is the comparison form for the in-room uniqueness check.
func NameKey(name string) string { return strings.ToLower(name) }

// GuestName generates a readable fallback name like "sleepy-otter7".
func GuestName() string {
	adj := guestAdjectives[rand.Intn(len(guestAdjectives))]
	noun := guestNouns[rand.Intn(len(guestNouns))]
	return fmt.Sprintf("%s-%s%d", adj, noun, rand.Intn(10))
}
