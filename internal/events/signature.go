package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Shopify-Hmac-Sha256"

var ErrUnauthorized = errors.New("unauthorized")

// Authenticator verifies inventory webhooks against a shared secret. It never
// looks inside the body, so verification runs on the bytes exactly as received.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Verify fails closed: a missing secret, body or signature is unauthorized.
func (a *Authenticator) Verify(body []byte, signature string) error {
	if len(a.secret) == 0 || len(body) == 0 || signature == "" {
		return ErrUnauthorized
	}
	given, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return ErrUnauthorized
	}
	if !hmac.Equal(given, mac(a.secret, body)) {
		return ErrUnauthorized
	}
	return nil
}

// Sign returns the header value a sender holding secret would attach to body.
func Sign(body []byte, secret string) string {
	return base64.StdEncoding.EncodeToString(mac([]byte(secret), body))
}

func mac(secret, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return h.Sum(nil)
}
