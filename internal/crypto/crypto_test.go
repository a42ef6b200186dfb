package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	tok := issuer.Mint("alice", time.Hour)
	account, err := issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", account)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	tok := NewTokenIssuer("secret-a").Mint("alice", time.Hour)

	_, err := NewTokenIssuer("secret-b").Verify(tok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature")
}

func TestTokenRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	tok := issuer.MintAt("alice", time.Now().Add(-time.Minute).Unix())

	_, err := issuer.Verify(tok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestTokenRejectsTamperedPayload(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	tok := issuer.Mint("alice", time.Hour)

	tampered := "A" + tok[1:]
	_, err := issuer.Verify(tampered)
	assert.Error(t, err)
}

func TestTokenRejectsMalformed(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	_, err := issuer.Verify("not-a-token")
	assert.Error(t, err)
}

func TestSecretEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("super-secret-token", "hunter2")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-token", got)
}

func TestSecretDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptSecret("super-secret-token", "hunter2")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestEncryptSecretRequiresPassword(t *testing.T) {
	_, err := EncryptSecret("secret", "")
	assert.Error(t, err)
}

func TestLoadSecretPrefersRaw(t *testing.T) {
	got, err := LoadSecret(SecretConfig{RawSecret: "plain"})
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestLoadSecretNoSource(t *testing.T) {
	_, err := LoadSecret(SecretConfig{})
	assert.Error(t, err)
}
