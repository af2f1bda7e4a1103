package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the payload's HMAC-SHA256.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// ErrInvalidSignature is returned for any signature that does not verify,
// including a missing secret or a malformed header.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifySignature checks header ("sha256=<64 hex>") against the HMAC-SHA256
// of payload keyed by secret. The comparison is constant time.
func VerifySignature(payload []byte, header, secret string) error {
	if secret == "" {
		return ErrInvalidSignature
	}
	hexSig, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok || len(hexSig) != sha256.Size*2 {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(got, Sign(payload, secret)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of payload.
func Sign(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignatureHeaderValue formats a header value for payload.
func SignatureHeaderValue(payload []byte, secret string) string {
	return signaturePrefix + hex.EncodeToString(Sign(payload, secret))
}
