package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of the password at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword enforces the minimum password policy for signups and
// resets: at least 8 characters with a letter and a digit.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("password must contain a letter and a digit")
	}
	return nil
}

// APIKeyPrefix marks keys issued by this service.
const APIKeyPrefix = "hg_live_"

// NewAPIKey generates a fresh API key and returns the plaintext key,
// its storage hash, and the display prefix shown in key listings. The
// plaintext is returned to the caller exactly once at creation.
func NewAPIKey() (key, keyHash, display string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("read random: %w", err)
	}
	key = APIKeyPrefix + hex.EncodeToString(buf)
	return key, HashToken(key), key[:len(APIKeyPrefix)+8], nil
}

// ValidAPIKeyShape reports whether a presented key could have been
// issued by this service, before any database lookup.
func ValidAPIKeyShape(key string) bool {
	return strings.HasPrefix(key, APIKeyPrefix) && len(key) == len(APIKeyPrefix)+48
}
