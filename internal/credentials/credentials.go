// Package credentials hashes and checks passwords.
//
// Chat accounts use bcrypt. Download portal accounts keep the legacy
// deterministic hash their stored records were created with.
package credentials

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"unicode/utf16"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor used by Hash.
var Cost = 12

var ErrMismatch = errors.New("password doesn't match")

// LegacyHash is a 32 bit rolling hash (h*31 + c over UTF-16 code units)
// followed by the salt suffix and base64. It is not a security boundary.
func LegacyHash(password string) string {
	units := utf16.Encode([]rune(password))

	var hash int32
	for _, c := range units {
		hash = hash*31 + int32(c)
	}

	salted := strconv.FormatInt(int64(hash), 10) + "venatic_salt_" + strconv.Itoa(len(units))
	return base64.StdEncoding.EncodeToString([]byte(salted))
}

func CompareLegacy(stored string, password string) error {
	if subtle.ConstantTimeCompare([]byte(stored), []byte(LegacyHash(password))) != 1 {
		return ErrMismatch
	}
	return nil
}

func Hash(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), Cost)
}

func Compare(hash []byte, password string) error {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
