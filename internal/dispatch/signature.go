package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw callback body.
const SignatureHeader = "X-Callback-Signature"

// Verifier checks callback signatures against a rotating key pair. The current
// and the next key are both accepted, so rotating keys on the scheduler side
// never causes an invocation gap: deliveries signed with either key verify.
type Verifier struct {
	current []byte
	next    []byte
}

func NewVerifier(currentKey, nextKey string) *Verifier {
	v := &Verifier{current: []byte(currentKey)}
	if nextKey != "" {
		v.next = []byte(nextKey)
	}

	return v
}

// Verify checks signature over body. It returns apperrors.ErrUnauthorized for
// a missing, malformed or mismatching signature.
func (v *Verifier) Verify(body []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("missing signature: %w", apperrors.ErrUnauthorized)
	}

	sig, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", apperrors.ErrUnauthorized)
	}

	if hmac.Equal(sig, digest(v.current, body)) {
		return nil
	}

	if v.next != nil && hmac.Equal(sig, digest(v.next, body)) {
		return nil
	}

	return apperrors.ErrUnauthorized
}

// Sign computes the hex signature of body with key. The scheduler side signs
// deliveries; this is also what tests and the local dev scheduler use.
func Sign(key string, body []byte) string {
	return hex.EncodeToString(digest([]byte(key), body))
}

func digest(key, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)

	return mac.Sum(nil)
}
