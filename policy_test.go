package auth

import (
	"errors"
	"strings"
	"testing"
)

func strictPolicy() PolicyConfig {
	return PolicyConfig{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   true,
		ForbidCommon:     true,
	}
}

func TestCheckPassword(t *testing.T) {
	cases := []struct {
		name   string
		pw     string
		reason string
	}{
		{"ok", "Str0ng#Secret", ""},
		{"too short", "S#0a", "8 characters"},
		{"no uppercase", "str0ng#secret", "uppercase"},
		{"no lowercase", "STR0NG#SECRET", "lowercase"},
		{"no digit", "Strong#Secret", "digit"},
		{"no special", "Str0ngSecret", "special"},
		{"common sequence", "Qwerty#123x", "qwerty"},
		{"common embedded", "MyPassword#9", "password"},
		{"sequential digits", "Aa#12345xyz", "12345"},
	}
	policy := strictPolicy()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.CheckPassword(tc.pw)
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("want pass, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrWeakPassword) {
				t.Fatalf("want ErrWeakPassword, got %v", err)
			}
			var pe *PolicyError
			if !errors.As(err, &pe) {
				t.Fatalf("want PolicyError, got %T", err)
			}
			if !strings.Contains(pe.Reason, tc.reason) {
				t.Fatalf("reason %q does not mention %q", pe.Reason, tc.reason)
			}
		})
	}
}

func TestCheckPasswordRelaxedRules(t *testing.T) {
	policy := PolicyConfig{MinLength: 8}

	if err := policy.CheckPassword("alllowercase"); err != nil {
		t.Fatalf("relaxed policy must accept, got %v", err)
	}
	if err := policy.CheckPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("length always applies, got %v", err)
	}
}

func TestCheckPasswordCommonMatchIsCaseInsensitive(t *testing.T) {
	policy := strictPolicy()

	err := policy.CheckPassword("LetMeIn#42x")
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("want ErrWeakPassword for mixed-case common sequence, got %v", err)
	}
}
