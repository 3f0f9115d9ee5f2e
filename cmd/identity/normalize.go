package identity

import (
	"strings"
	"unicode/utf8"
)

// MaxUsernameChars matches the storage check constraint.
const MaxUsernameChars = 64

// NormalizeUsername trims surrounding whitespace. Usernames stay
// case-sensitive: "JohnDoe" and "johndoe" are distinct identities.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

func validUsername(s string) bool {
	n := utf8.RuneCountInString(s)
	return n > 0 && n <= MaxUsernameChars
}
