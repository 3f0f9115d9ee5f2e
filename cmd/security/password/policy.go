package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy and derivation errors returned to callers.
var (
	ErrEmptyPassword    = errors.New("empty password")
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidSalt      = errors.New("invalid salt")
)

// Validate checks password policy. It does not mutate input.
func (c Config) Validate(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}

	// Count characters (runes), not bytes.
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if c.Policy.MaxLength > 0 && n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}

	if c.Policy.RequireMixed && !hasMixedClasses(password) {
		return ErrWeakPassword
	}

	if c.Policy.RejectVeryWeak && looksVeryWeak(password) {
		return ErrWeakPassword
	}

	return nil
}

// hasMixedClasses reports an upper-case letter, a lower-case letter and at
// least one digit or non-alphanumeric rune.
func hasMixedClasses(pw string) bool {
	var upper, lower, other bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r), !unicode.IsLetter(r) && !unicode.IsSpace(r):
			other = true
		}
	}
	return upper && lower && other
}

// looksVeryWeak is minimal and conservative; it is not a strength estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	allSame := true
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			allSame = false
			break
		}
	}
	if allSame {
		return true
	}

	onlyDigits := true
	for _, r := range s {
		if !unicode.IsDigit(r) {
			onlyDigits = false
			break
		}
	}
	if onlyDigits && utf8.RuneCountInString(s) < 12 {
		return true
	}

	switch strings.ToLower(s) {
	case "password", "password1", "password123", "123456", "123456789", "qwerty", "qwerty123", "11111111":
		return true
	}

	return false
}
