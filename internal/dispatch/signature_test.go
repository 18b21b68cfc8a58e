package dispatch

import (
	"testing"

	"github.com/feedbackhub/review-attribution-service/internal/apperrors"
	"github.com/stretchr/testify/assert"
)

func TestVerifier_Verify(t *testing.T) {
	body := []byte(`{"request_id":"req-1","business_id":"biz-1","platform":"yandex"}`)

	testCases := []struct {
		name          string
		currentKey    string
		nextKey       string
		signature     string
		expectedError error
	}{
		{
			name:       "Success: signed with the current key",
			currentKey: "current-secret",
			nextKey:    "next-secret",
			signature:  Sign("current-secret", body),
		},
		{
			name:       "Success: signed with the next key during rotation",
			currentKey: "current-secret",
			nextKey:    "next-secret",
			signature:  Sign("next-secret", body),
		},
		{
			name:       "Success: no next key configured, current still verifies",
			currentKey: "current-secret",
			signature:  Sign("current-secret", body),
		},
		{
			name:          "Failure: signed with an unknown key",
			currentKey:    "current-secret",
			nextKey:       "next-secret",
			signature:     Sign("stolen-secret", body),
			expectedError: apperrors.ErrUnauthorized,
		},
		{
			name:          "Failure: missing signature",
			currentKey:    "current-secret",
			signature:     "",
			expectedError: apperrors.ErrUnauthorized,
		},
		{
			name:          "Failure: signature is not hex",
			currentKey:    "current-secret",
			signature:     "not-a-hex-string",
			expectedError: apperrors.ErrUnauthorized,
		},
		{
			name:          "Failure: next key signature when no next key is configured",
			currentKey:    "current-secret",
			signature:     Sign("next-secret", body),
			expectedError: apperrors.ErrUnauthorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewVerifier(tc.currentKey, tc.nextKey)

			err := v.Verify(body, tc.signature)

			if tc.expectedError != nil {
				assert.ErrorIs(t, err, tc.expectedError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifier_VerifyBindsSignatureToBody(t *testing.T) {
	v := NewVerifier("current-secret", "")

	signed := []byte(`{"request_id":"req-1"}`)
	tampered := []byte(`{"request_id":"req-2"}`)

	sig := Sign("current-secret", signed)

	assert.NoError(t, v.Verify(signed, sig))
	assert.ErrorIs(t, v.Verify(tampered, sig), apperrors.ErrUnauthorized)
}
