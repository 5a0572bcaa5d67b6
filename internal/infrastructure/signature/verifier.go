package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verifier checks webhook authenticity with an HMAC-SHA256 digest over
// the raw request bytes, keyed by the tenant's signing secret.
type Verifier struct{}

// NewVerifier creates a webhook signature verifier
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Sign computes the hex digest of payload under secret
func (v *Verifier) Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the claimed signature against the payload. Fails closed:
// a missing header, empty secret, or mismatch all reject. The comparison
// is constant time.
func (v *Verifier) Verify(payload []byte, claimed, secret string) bool {
	if claimed == "" || secret == "" {
		return false
	}
	claimed = strings.TrimPrefix(claimed, "sha256=")
	expected := v.Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(claimed)))
}
