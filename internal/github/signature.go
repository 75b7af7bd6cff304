package github

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// GenerateWebhookSecret returns a 64-hex-char random secret for signing
// webhook deliveries.
func GenerateWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// VerifySignature checks a GitHub X-Hub-Signature-256 header against the
// raw request payload.
//
// The header format is "sha256=<hex hmac>". Comparison is constant-time —
// a byte-by-byte comparison would leak how many leading bytes matched.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
