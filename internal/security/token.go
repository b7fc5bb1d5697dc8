package security

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// Signer produces a deterministic signature over a payload. The biometric
// authenticator uses it to compute the expected challenge signature.
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{
		secret: []byte(secret),
	}
}

// Sign computes an HMAC-SHA256 signature over the payload. Same payload,
// same signature; the similarity matcher needs deterministic output.
func (s *HMACSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return mac.Sum(nil), nil
}

// NewSessionToken returns a random, unguessable bearer token.
func NewSessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
