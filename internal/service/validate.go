package service

import (
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	UsernameMinLen = 3
	UsernameMaxLen = 50
	EmailMaxLen    = 254 // RFC 5321 path limit; fits the VARCHAR(255) columns
	PasswordMinLen = 6
	PasswordMaxLen = 72 // bcrypt ignores everything past 72 bytes
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidationErrors maps an input field to what is wrong with it.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateNewAdmin checks the fields of an account creation request. It
// returns nil when everything is acceptable.
func ValidateNewAdmin(username, email, password string) ValidationErrors {
	errs := ValidationErrors{}

	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		errs["username"] = "is required"
	case n < UsernameMinLen || n > UsernameMaxLen:
		errs["username"] = "must be between 3 and 50 characters"
	case !usernamePattern.MatchString(username):
		errs["username"] = "may only contain letters, digits, '_', '.' and '-'"
	}

	if email == "" {
		errs["email"] = "is required"
	} else if len(email) > EmailMaxLen {
		errs["email"] = "must be at most 254 characters"
	} else if !validEmail(email) {
		errs["email"] = "must be a valid email address"
	}

	switch {
	case password == "":
		errs["password"] = "is required"
	case utf8.RuneCountInString(password) < PasswordMinLen:
		errs["password"] = "must be at least 6 characters"
	case len(password) > PasswordMaxLen:
		errs["password"] = "must be at most 72 bytes"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// validEmail accepts a bare address only; display names and angle brackets
// are rejected.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Name == "" && addr.Address == email && strings.Contains(email, "@")
}
