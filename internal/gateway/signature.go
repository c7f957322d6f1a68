package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// Sign computes the hex-encoded HMAC-SHA256 of the payload with the
// shared webhook secret. The gateway sends this value in the
// X-Webhook-Signature header.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header against the raw payload.
// Comparison is constant-time.
func VerifySignature(payload []byte, signature, secret string) error {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrBadSignature
	}

	return nil
}
