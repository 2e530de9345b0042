// Package utils holds small shared validation helpers.
package utils

import (
	"regexp"
)

var (
	emailPattern  = regexp.MustCompile(`^(?i)[a-z0-9._%+\-]+@(?:[a-z0-9\-]+\.)+[a-z]{2,}$`)
	letterPattern = regexp.MustCompile(`[a-zA-Z]`)
	numberPattern = regexp.MustCompile(`[0-9]`)
)

// ValidateEmail reports whether the input is a plausible email address.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePassword reports whether the password meets the minimum policy:
// at least 8 characters, containing both letters and numbers.
func ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	return letterPattern.MatchString(password) && numberPattern.MatchString(password)
}
