// Package webhook holds what the payment and payout webhook consumers share:
// signature verification over the raw payload.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrMalformedPayload marks the only case a webhook endpoint does not
// acknowledge: the payload could not be read at all.
var ErrMalformedPayload = errors.New("webhook payload is structurally unreadable")

// VerifySignature checks the hex-encoded HMAC-SHA256 of the raw payload.
// Verification runs before any state mutation; a mismatch is a security event,
// not a processing error.
func VerifySignature(secret, payload []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}
