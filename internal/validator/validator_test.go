package validator_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/venaticlol/venatic/internal/validator"
)

func TestFoldUsername(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Lowercase stays", input: "alice", expected: "alice"},
		{name: "Uppercase folds", input: "ALICE", expected: "alice"},
		{name: "Mixed case folds", input: "AlIcE_99", expected: "alice_99"},
		{name: "Surrounding spaces trimmed", input: "  Bob.  ", expected: "bob."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := validator.FoldUsername(tc.input)
			if got != tc.expected {
				t.Errorf("FoldUsername(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestUsername(t *testing.T) {
	tests := []struct {
		name          string
		username      string
		expectedError error
	}{
		{name: "Valid: Minimum length", username: "abc", expectedError: nil},
		{name: "Valid: Dots and underscores", username: "a.b_c9", expectedError: nil},
		{name: "Valid: Maximum length", username: strings.Repeat("a", 32), expectedError: nil},
		{name: "Error: Too short", username: "ab", expectedError: validator.ErrShortUsername},
		{name: "Error: Too long", username: strings.Repeat("a", 33), expectedError: validator.ErrLongUsername},
		{name: "Error: Space", username: "ab cd", expectedError: validator.ErrBadUsername},
		{name: "Error: Uppercase not folded", username: "Abcd", expectedError: validator.ErrBadUsername},
		{name: "Error: Symbol", username: "abc!", expectedError: validator.ErrBadUsername},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Username(tc.username)
			if !errors.Is(err, tc.expectedError) {
				t.Errorf("Username(%q) got error %v, want %v", tc.username, err, tc.expectedError)
			}
		})
	}
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name          string
		password      string
		expectedError error
	}{
		{
			name:          "Valid Password: Minimum Length",
			password:      "aA1bB2",
			expectedError: nil,
		},
		{
			name:          "Valid Password: Maximum Length",
			password:      "aBc12345678901234567890123456789",
			expectedError: nil,
		},
		{
			name:          "Valid Password: Mixed Case and Symbols",
			password:      "P@sswOrd123!",
			expectedError: nil,
		},
		{
			name:          "Error: Password Too Short",
			password:      "aA1",
			expectedError: validator.ErrShortPassword,
		},
		{
			name:          "Error: Password Too Long",
			password:      "aBc123456789012345678901234567890123",
			expectedError: validator.ErrLongPassword,
		},
		{
			name:          "Error: Missing Lowercase Character",
			password:      "AABBCC1234",
			expectedError: validator.ErrNoLowercase,
		},
		{
			name:          "Error: Missing Uppercase Character",
			password:      "aabbcc1234",
			expectedError: validator.ErrNoUppercase,
		},
		{
			name:          "Error: Missing Number",
			password:      "PasswordABC",
			expectedError: validator.ErrNoNumber,
		},
		{
			name:          "Error: Multiple Violations - Missing Lowercase Expected",
			password:      "AAAABBBBCCCC",
			expectedError: validator.ErrNoLowercase,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Password(tc.password)

			if tc.expectedError == nil {
				if err != nil {
					t.Errorf("Password(%q) failed unexpectedly: got error %v, want nil", tc.password, err)
				}
				return
			}

			if err == nil {
				t.Errorf("Password(%q) passed unexpectedly: got nil, want error %v", tc.password, tc.expectedError)
				return
			}

			if err.Error() != tc.expectedError.Error() {
				t.Errorf("Password(%q) got error %q, want error %q", tc.password, err.Error(), tc.expectedError.Error())
			}
		})
	}
}

func TestDateOfBirth(t *testing.T) {
	now := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		dob           string
		expectedError error
	}{
		{name: "Valid: Exactly fourteen today", dob: "2012-10-19", expectedError: nil},
		{name: "Valid: Adult", dob: "1990-01-01", expectedError: nil},
		{name: "Error: Fourteen tomorrow", dob: "2012-10-20", expectedError: validator.ErrTooYoung},
		{name: "Error: Thirteen", dob: "2013-01-01", expectedError: validator.ErrTooYoung},
		{name: "Error: Future", dob: "2030-01-01", expectedError: validator.ErrFutureDate},
		{name: "Error: Wrong format", dob: "19/10/2000", expectedError: validator.ErrBadDate},
		{name: "Error: Empty", dob: "", expectedError: validator.ErrBadDate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.DateOfBirth(tc.dob, now)
			if !errors.Is(err, tc.expectedError) {
				t.Errorf("DateOfBirth(%q) got error %v, want %v", tc.dob, err, tc.expectedError)
			}
		})
	}
}

func TestAge(t *testing.T) {
	dob := time.Date(2000, time.February, 29, 0, 0, 0, 0, time.UTC)

	if got := validator.Age(dob, time.Date(2014, time.February, 28, 0, 0, 0, 0, time.UTC)); got != 13 {
		t.Errorf("Age before birthday = %d, want 13", got)
	}
	if got := validator.Age(dob, time.Date(2014, time.March, 1, 0, 0, 0, 0, time.UTC)); got != 14 {
		t.Errorf("Age after birthday = %d, want 14", got)
	}
}

func TestMessageText(t *testing.T) {
	if err := validator.MessageText("hi"); err != nil {
		t.Errorf("MessageText(hi) = %v, want nil", err)
	}
	if err := validator.MessageText("   "); !errors.Is(err, validator.ErrEmptyMessage) {
		t.Errorf("MessageText(blank) = %v, want %v", err, validator.ErrEmptyMessage)
	}
	if err := validator.MessageText(strings.Repeat("x", 2001)); !errors.Is(err, validator.ErrLongMessage) {
		t.Errorf("MessageText(long) = %v, want %v", err, validator.ErrLongMessage)
	}
}
