package utils

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Passwords nobody should be allowed to keep.
var commonPasswords = map[string]bool{
	"password":    true,
	"123456":      true,
	"qwerty":      true,
	"abc123":      true,
	"password123": true,
}

const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

// HashPassword hashes with the configured bcrypt cost. The bcrypt error is
// wrapped so callers only ever see a generic operational failure.
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("password hashing failed: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type PasswordStrength struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
	Score   int      `json:"score"`
}

// ValidatePasswordStrength scores one point per satisfied character class.
// A blocklisted password is invalid with score 0 regardless of classes.
func ValidatePasswordStrength(password string) PasswordStrength {
	result := PasswordStrength{IsValid: true, Errors: []string{}}

	if len(password) < 6 {
		result.Errors = append(result.Errors, "Password must be at least 6 characters long")
		result.IsValid = false
	} else {
		result.Score++
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasSymbol} {
		if ok {
			result.Score++
		}
	}

	if commonPasswords[strings.ToLower(password)] {
		result.Errors = append(result.Errors, "Password is too common")
		result.IsValid = false
		result.Score = 0
	}

	return result
}
