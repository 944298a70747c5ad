// Package vault encrypts provider API keys for at-rest storage on the client
// and recovers them inside the gateway for the duration of one request.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "chat_gateway vault v1"

// MaskText is shown in place of stored key material.
const MaskText = "••••••••••••••••••••"

// DecryptFailedText is shown when stored material can no longer be opened.
const DecryptFailedText = "解密失败"

var (
	ErrEmptySecret    = errors.New("vault secret cannot be empty")
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")
)

// Vault provides AES-GCM encryption for API key material.
// A Vault holds no per-request state and is safe for concurrent use.
type Vault struct {
	secret []byte
	key    []byte
}

// New creates a vault bound to a shared secret. The AES-256 key is derived
// from the secret with HKDF-SHA256; the raw secret is kept for decrypting
// passphrase-format material produced by the browser client.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return &Vault{
		secret: []byte(secret),
		key:    key,
	}, nil
}

// GenerateSecret returns a random base64 secret suitable for VAULT_SECRET.
func GenerateSecret(size int) (string, error) {
	if size < 16 {
		return "", fmt.Errorf("secret size must be at least 16 bytes, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
// Errors never include the plaintext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	gcm, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt returns the plaintext key, or "" when the material is malformed,
// was sealed under another secret, or is otherwise unreadable.
func (v *Vault) Decrypt(material string) string {
	plaintext, _ := v.Reveal(material)
	return plaintext
}

// Reveal is Decrypt with an explicit success flag, for display code that
// distinguishes "no key" from "key present but unreadable".
func (v *Vault) Reveal(material string) (string, bool) {
	material = strings.TrimSpace(material)
	if material == "" {
		return "", false
	}

	raw, err := base64.StdEncoding.DecodeString(material)
	if err != nil {
		return "", false
	}

	if isOpenSSLSalted(raw) {
		if plaintext, err := openSSLDecrypt(raw, v.secret); err == nil {
			return plaintext, true
		}
	}

	plaintext, err := v.open(raw)
	if err != nil || plaintext == "" {
		return "", false
	}
	return plaintext, true
}

// Mask returns the display form of stored key material.
func Mask(material string) string {
	if material == "" {
		return ""
	}
	return MaskText
}

func (v *Vault) open(raw []byte) (string, error) {
	gcm, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize+gcm.Overhead() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
