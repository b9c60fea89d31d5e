package util

import (
	"regexp"
	"strings"
)

var accountIDRegex = regexp.MustCompile(`^[0-9]{7}$`)

// IsValidAccountID reports whether s is exactly seven decimal digits.
func IsValidAccountID(s string) bool {
	return accountIDRegex.MatchString(s)
}

func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// IsValidSubject rejects subjects that would break the owner encoding or the
// record files.
func IsValidSubject(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 120 {
		return false
	}
	return !strings.Contains(s, "||") && !strings.ContainsAny(s, "\r\n")
}
