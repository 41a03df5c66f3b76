package auth

import (
	"fmt"
	"strings"
	"unicode"
)

const specialChars = "!@#$%^&*()_-+={}[]\\|:;\"'<>,.?/~`"

// commonSequences are substrings that mark a password guessable no matter
// how the character-class rules come out.
var commonSequences = []string{
	"12345",
	"qwerty",
	"password",
	"admin",
	"welcome",
	"letmein",
	"abc123",
	"111111",
	"654321",
}

// CheckPassword applies the strength policy and returns a PolicyError with
// a display-ready reason on the first rule that fails.
func (p PolicyConfig) CheckPassword(pw string) error {
	if len(pw) < p.MinLength {
		return &PolicyError{Reason: fmt.Sprintf("must be at least %d characters long", p.MinLength)}
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}

	if p.RequireUppercase && !hasUpper {
		return &PolicyError{Reason: "must contain at least one uppercase letter"}
	}
	if p.RequireLowercase && !hasLower {
		return &PolicyError{Reason: "must contain at least one lowercase letter"}
	}
	if p.RequireDigit && !hasDigit {
		return &PolicyError{Reason: "must contain at least one digit"}
	}
	if p.RequireSpecial && !hasSpecial {
		return &PolicyError{Reason: "must contain at least one special character"}
	}

	if p.ForbidCommon {
		lowered := strings.ToLower(pw)
		for _, seq := range commonSequences {
			if strings.Contains(lowered, seq) {
				return &PolicyError{Reason: fmt.Sprintf("must not contain the guessable sequence %q", seq)}
			}
		}
	}

	return nil
}
