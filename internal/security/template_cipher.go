package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/SessionWarden/go-session-warden/models"
)

const templateCipherAlgorithm = "aes-256-gcm"

// TemplateCipher encrypts enrollment templates with a tenant-scoped key
// derived from the application secret, so one tenant's templates cannot be
// opened with another tenant's key material.
type TemplateCipher struct {
	secret []byte
}

func NewTemplateCipher(secret string) *TemplateCipher {
	return &TemplateCipher{
		secret: []byte(secret),
	}
}

func (c *TemplateCipher) tenantKey(tenantID string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, c.secret, nil, []byte("biometric-template:"+tenantID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive tenant key: %w", err)
	}
	return key, nil
}

func (c *TemplateCipher) gcm(tenantID string) (cipher.AEAD, error) {
	key, err := c.tenantKey(tenantID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *TemplateCipher) Encrypt(tenantID string, plaintext []byte) (models.EncryptedTemplate, error) {
	gcm, err := c.gcm(tenantID)
	if err != nil {
		return models.EncryptedTemplate{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return models.EncryptedTemplate{}, err
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return models.EncryptedTemplate{
		Algorithm:  templateCipherAlgorithm,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	}, nil
}

func (c *TemplateCipher) Decrypt(tenantID string, template models.EncryptedTemplate) ([]byte, error) {
	if template.Algorithm != templateCipherAlgorithm {
		return nil, fmt.Errorf("unsupported template cipher algorithm: %s", template.Algorithm)
	}

	gcm, err := c.gcm(tenantID)
	if err != nil {
		return nil, err
	}

	nonce, err := base64.RawStdEncoding.DecodeString(template.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid template nonce: %w", err)
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(template.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("invalid template ciphertext: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt template: %w", err)
	}
	return plaintext, nil
}
