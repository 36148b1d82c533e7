// utils/validation.go
package utils

import (
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

// ValidatePhone checks if a phone number is in a valid international format
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(NormalizePhone(phone))
}

// NormalizePhone strips the separators people type between digit groups.
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	for _, sep := range []string{" ", "-", "(", ")", "."} {
		cleaned = strings.ReplaceAll(cleaned, sep, "")
	}
	return cleaned
}

func IsEmail(identifier string) bool {
	return strings.Contains(identifier, "@")
}
