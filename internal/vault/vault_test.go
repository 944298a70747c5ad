package vault

import (
	"encoding/base64"
	"strings"
	"testing"
)

// Produced by the browser client (CryptoJS.AES.encrypt with passphrase "client-secret").
const browserMaterial = "U2FsdGVkX18BAgMEBQYHCNFlc7btUEJPHTTaV7q7+HYrG3Vc7A3j0mVT5+/AYyHM"

func newTestVault(t *testing.T, secret string) *Vault {
	t.Helper()
	v, err := New(secret)
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t, "client-secret")

	plaintexts := []string{
		"sk-proj-1234567890abcdef",
		"a",
		"key with spaces and ünïcödé",
		strings.Repeat("x", 4096),
	}

	for _, plaintext := range plaintexts {
		material, err := v.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Failed to encrypt: %v", err)
		}
		if strings.Contains(material, plaintext) {
			t.Errorf("material leaks plaintext")
		}
		if got := v.Decrypt(material); got != plaintext {
			t.Errorf("Decrypt(Encrypt(k)) = %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	v := newTestVault(t, "client-secret")

	a, _ := v.Encrypt("sk-same")
	b, _ := v.Encrypt("sk-same")
	if a == b {
		t.Errorf("two encryptions of the same key produced identical material")
	}
}

func TestEncryptEmpty(t *testing.T) {
	v := newTestVault(t, "client-secret")

	if _, err := v.Encrypt(""); err != ErrEmptyPlaintext {
		t.Errorf("Encrypt(\"\") error = %v, want %v", err, ErrEmptyPlaintext)
	}
}

func TestDecryptMalformed(t *testing.T) {
	v := newTestVault(t, "client-secret")
	valid, _ := v.Encrypt("sk-valid")
	raw, _ := base64.StdEncoding.DecodeString(valid)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	inputs := map[string]string{
		"empty":          "",
		"whitespace":     "   ",
		"not base64":     "%%%not-base64%%%",
		"too short":      base64.StdEncoding.EncodeToString([]byte("short")),
		"tampered":       tampered,
		"truncated":      valid[:len(valid)/2],
		"salted no body": base64.StdEncoding.EncodeToString([]byte("Salted__12345678")),
		"plaintext key":  "sk-proj-plaintext",
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			if got := v.Decrypt(input); got != "" {
				t.Errorf("Decrypt(%q) = %q, want empty", input, got)
			}
		})
	}
}

func TestDecryptWrongSecret(t *testing.T) {
	v1 := newTestVault(t, "secret-one")
	v2 := newTestVault(t, "secret-two")

	material, _ := v1.Encrypt("sk-abc")
	if got := v2.Decrypt(material); got != "" {
		t.Errorf("Decrypt with wrong secret = %q, want empty", got)
	}

	compat, _ := v1.EncryptCompat("sk-abc")
	if got := v2.Decrypt(compat); got != "" {
		t.Errorf("Decrypt compat with wrong secret = %q, want empty", got)
	}
}

func TestDecryptBrowserMaterial(t *testing.T) {
	v := newTestVault(t, "client-secret")

	if got := v.Decrypt(browserMaterial); got != "sk-test-1234567890" {
		t.Errorf("Decrypt(browser material) = %q, want %q", got, "sk-test-1234567890")
	}
}

func TestEncryptCompatRoundTrip(t *testing.T) {
	v := newTestVault(t, "client-secret")

	material, err := v.EncryptCompat("sk-ant-api03-xyz")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	if !strings.HasPrefix(material, "U2FsdGVkX1") {
		t.Errorf("compat material %q does not carry the Salted__ header", material)
	}
	if got := v.Decrypt(material); got != "sk-ant-api03-xyz" {
		t.Errorf("Decrypt = %q, want %q", got, "sk-ant-api03-xyz")
	}
}

func TestReveal(t *testing.T) {
	v := newTestVault(t, "client-secret")

	if _, ok := v.Reveal(""); ok {
		t.Errorf("Reveal(\"\") reported success")
	}
	if _, ok := v.Reveal("garbage"); ok {
		t.Errorf("Reveal(garbage) reported success")
	}
	material, _ := v.Encrypt("sk-1")
	if got, ok := v.Reveal(material); !ok || got != "sk-1" {
		t.Errorf("Reveal = (%q, %v), want (sk-1, true)", got, ok)
	}
}

func TestMask(t *testing.T) {
	if got := Mask(""); got != "" {
		t.Errorf("Mask(\"\") = %q, want empty", got)
	}
	if got := Mask("anything"); got != MaskText {
		t.Errorf("Mask = %q, want %q", got, MaskText)
	}
}

func TestNewRejectsEmptySecret(t *testing.T) {
	if _, err := New(""); err != ErrEmptySecret {
		t.Errorf("New(\"\") error = %v, want %v", err, ErrEmptySecret)
	}
}

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret(32)
	if err != nil {
		t.Fatalf("Failed to generate secret: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		t.Fatalf("Generated secret is not valid base64: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("Generated secret has wrong length. Got %d, want 32", len(decoded))
	}

	if _, err := GenerateSecret(8); err == nil {
		t.Error("Expected error for short secret")
	}
}
