package auth

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"
)

// RFC 4226 appendix D vectors for the underlying HOTP code.
func TestHOTPReferenceVectors(t *testing.T) {
	secret := []byte("12345678901234567890")
	want := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}

	for counter, expected := range want {
		code, err := hotpCode(secret, int64(counter), 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode(%d) failed: %v", counter, err)
		}
		if code != expected {
			t.Fatalf("counter %d: want %s, got %s", counter, expected, code)
		}
	}
}

func defaultTOTP() *totpVerifier {
	return newTOTPVerifier(TwoFactorConfig{Digits: 6, Period: 30, Skew: 1, Algorithm: "SHA1"})
}

func encodeSecret(raw []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
}

func TestVerifyCodeAcceptsCurrentAndSkewedSteps(t *testing.T) {
	v := defaultTOTP()
	raw := []byte("12345678901234567890")
	secret := encodeSecret(raw)
	now := time.Unix(1_700_000_015, 0)

	counter := now.Unix() / 30
	for _, offset := range []int64{-1, 0, 1} {
		code, err := hotpCode(raw, counter+offset, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode failed: %v", err)
		}
		if !v.VerifyCode(secret, code, now) {
			t.Fatalf("code at offset %d must verify", offset)
		}
	}

	outside, err := hotpCode(raw, counter+2, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	if v.VerifyCode(secret, outside, now) {
		t.Fatal("code two steps out must not verify")
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	v := defaultTOTP()
	secret := encodeSecret([]byte("12345678901234567890"))
	now := time.Now()

	for _, code := range []string{"", "12345", "1234567", "12345a", "abc def"} {
		if v.VerifyCode(secret, code, now) {
			t.Fatalf("malformed code %q must not verify", code)
		}
	}
	if v.VerifyCode("not-base32!!", "123456", now) {
		t.Fatal("undecodable secret must not verify")
	}
	if v.VerifyCode("", "123456", now) {
		t.Fatal("empty secret must not verify")
	}
}

func TestVerifyCodeTrimsWhitespace(t *testing.T) {
	v := defaultTOTP()
	raw := []byte("12345678901234567890")
	secret := encodeSecret(raw)
	now := time.Unix(1_700_000_000, 0)

	code, err := hotpCode(raw, now.Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	if !v.VerifyCode(secret, "  "+code+"\n", now) {
		t.Fatal("surrounding whitespace must be tolerated")
	}
}

func TestGenerateSecret(t *testing.T) {
	v := defaultTOTP()

	raw, encoded, err := v.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(raw) != totpSecretBytes {
		t.Fatalf("want %d secret bytes, got %d", totpSecretBytes, len(raw))
	}
	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(encoded)
	if err != nil || string(decoded) != string(raw) {
		t.Fatalf("encoded secret does not round-trip: %v", err)
	}
}

func TestProvisionURI(t *testing.T) {
	v := defaultTOTP()
	uri := v.ProvisionURI("SECRETBASE32", "BookPlatform", "alice@example.com")

	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("unexpected scheme: %q", uri)
	}
	for _, fragment := range []string{"secret=SECRETBASE32", "issuer=BookPlatform", "digits=6", "period=30", "algorithm=SHA1"} {
		if !strings.Contains(uri, fragment) {
			t.Fatalf("uri %q missing %q", uri, fragment)
		}
	}
}
