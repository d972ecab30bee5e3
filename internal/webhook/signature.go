package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
)

// Signature headers, in lookup order.
const (
	SignatureHeader       = "X-Square-Hmacsha256-Signature"
	LegacySignatureHeader = "X-Square-Signature"
)

// Sign returns base64(HMAC-SHA256(notificationURL + body, signatureKey)).
func Sign(signatureKey, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether provided is the signature of body for notificationURL.
// It always fails when no key is configured or no signature was provided.
func Verify(signatureKey, notificationURL string, body []byte, provided string) bool {
	if signatureKey == "" || provided == "" {
		return false
	}
	expected := Sign(signatureKey, notificationURL, body)
	return hmac.Equal([]byte(expected), []byte(provided))
}

func signatureFromHeader(h http.Header) string {
	if sig := strings.TrimSpace(h.Get(SignatureHeader)); sig != "" {
		return sig
	}
	return strings.TrimSpace(h.Get(LegacySignatureHeader))
}
