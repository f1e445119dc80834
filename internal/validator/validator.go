package validator

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

const MinimumAge = 14

var (
	ErrShortUsername = errors.New("short_username")
	ErrLongUsername  = errors.New("long_username")
	ErrBadUsername   = errors.New("bad_username_characters")

	ErrShortPassword = errors.New("short_password")
	ErrLongPassword  = errors.New("long_password")
	ErrNoLowercase   = errors.New("no_lowercase")
	ErrNoUppercase   = errors.New("no_uppercase")
	ErrNoNumber      = errors.New("no_number")

	ErrBadDate    = errors.New("bad_date")
	ErrFutureDate = errors.New("future_date")
	ErrTooYoung   = errors.New("too_young")

	ErrEmptyName = errors.New("empty_name")
	ErrLongName  = errors.New("long_name")

	ErrEmptyMessage = errors.New("empty_message")
	ErrLongMessage  = errors.New("long_message")
)

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_.]+$`)
	lowercase     = regexp.MustCompile(`[a-z]`)
	uppercase     = regexp.MustCompile(`[A-Z]`)
	number        = regexp.MustCompile(`\d`)
)

// FoldUsername returns the canonical form used for storage and lookups, so
// "Alice" and "ALICE" collide.
func FoldUsername(username string) string {
	return cases.Fold().String(strings.TrimSpace(username))
}

// Username expects an already folded username.
func Username(username string) error {
	length := utf8.RuneCountInString(username)
	if length < 3 {
		return ErrShortUsername
	} else if length > 32 {
		return ErrLongUsername
	}

	if !usernameRegex.MatchString(username) {
		return ErrBadUsername
	}
	return nil
}

func Password(password string) error {
	length := len(password)
	if length < 6 {
		return ErrShortPassword
	} else if length > 32 {
		return ErrLongPassword
	}

	if !lowercase.MatchString(password) {
		return ErrNoLowercase
	}
	if !uppercase.MatchString(password) {
		return ErrNoUppercase
	}
	if !number.MatchString(password) {
		return ErrNoNumber
	}
	return nil
}

// Age returns the number of full years between dob and now.
func Age(dob time.Time, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// DateOfBirth parses a YYYY-MM-DD date and rejects anyone younger than MinimumAge.
func DateOfBirth(dob string, now time.Time) error {
	date, err := time.Parse(time.DateOnly, dob)
	if err != nil {
		return ErrBadDate
	}

	if date.After(now) {
		return ErrFutureDate
	}

	if Age(date, now) < MinimumAge {
		return ErrTooYoung
	}
	return nil
}

func Name(name string, maxLength int) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > maxLength {
		return ErrLongName
	}
	return nil
}

func MessageText(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(message) > 2000 {
		return ErrLongMessage
	}
	return nil
}
