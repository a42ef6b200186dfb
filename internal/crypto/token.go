// Package crypto provides identity tokens for the participant API and
// passphrase-encrypted key storage for the administrator credential.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenIssuer mints and verifies participant identity tokens. A token binds a
// ledger account to an expiry and is signed with HMAC-SHA256, so the API can
// attribute requests to accounts without a session store.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer returns an issuer signing with the given secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Mint returns a token for account valid for ttl.
func (t *TokenIssuer) Mint(account string, ttl time.Duration) string {
	return t.MintAt(account, time.Now().Add(ttl).Unix())
}

// MintAt is like Mint but lets the caller supply the expiry Unix timestamp
// (useful for deterministic testing).
func (t *TokenIssuer) MintAt(account string, expiresUnix int64) string {
	payload := account + "." + strconv.FormatInt(expiresUnix, 10)
	sig := hmacSHA256Base64(t.secret, payload)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig
}

// Verify checks the token's signature and expiry and returns the account it
// was minted for.
func (t *TokenIssuer) Verify(token string) (string, error) {
	return t.verifyAt(token, time.Now().Unix())
}

func (t *TokenIssuer) verifyAt(token string, nowUnix int64) (string, error) {
	enc, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", errors.New("crypto: malformed token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("crypto: decode token: %w", err)
	}
	payload := string(raw)

	want := hmacSHA256Base64(t.secret, payload)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return "", errors.New("crypto: bad token signature")
	}

	account, expStr, ok := strings.Cut(payload, ".")
	if !ok || account == "" {
		return "", errors.New("crypto: malformed token payload")
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("crypto: parse token expiry: %w", err)
	}
	if nowUnix >= exp {
		return "", errors.New("crypto: token expired")
	}
	return account, nil
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
