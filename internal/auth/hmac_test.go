package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignatureRoundTrip(t *testing.T) {
	secret := "super-secret"
	body := []byte(`{"en":"pageview","o":"https://example.com/"}`)

	sig := ComputeSignature(secret, body)
	require.True(t, VerifySignature(secret, body, sig))
}

func TestSignatureRejectsMismatch(t *testing.T) {
	secret := "super-secret"
	body := []byte(`{"en":"pageview","o":"https://example.com/"}`)

	require.False(t, VerifySignature(secret, body, "deadbeef"))
	require.False(t, VerifySignature("other-secret", body, ComputeSignature(secret, body)))
	require.False(t, VerifySignature(secret, []byte(`tampered`), ComputeSignature(secret, body)))
}

func TestSignatureRejectsMalformedHex(t *testing.T) {
	require.False(t, VerifySignature("s", []byte(`x`), "not-hex"))
}
