package pricefeed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Signer produces the authentication headers the signed quote API requires.
// The upstream verifies HMAC-SHA256 over timestamp + method + path(+query) +
// body, base64-encoded.
type Signer struct {
	apiKey     string
	secretKey  string
	passphrase string
	projectID  string
}

// NewSigner creates a request signer for the quote API credentials.
func NewSigner(apiKey, secretKey, passphrase, projectID string) *Signer {
	return &Signer{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		projectID:  projectID,
	}
}

// Headers signs one request. fullPath must include the query string when
// present ("/api/v5/...?a=b"); body is the raw JSON payload or empty.
func (s *Signer) Headers(method, fullPath, body string, now time.Time) map[string]string {
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	payload := timestamp + method + fullPath + body

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(payload))
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"OK-ACCESS-KEY":        s.apiKey,
		"OK-ACCESS-SIGN":       sign,
		"OK-ACCESS-TIMESTAMP":  timestamp,
		"OK-ACCESS-PASSPHRASE": s.passphrase,
		"OK-ACCESS-PROJECT-ID": s.projectID,
		"Content-Type":         "application/json",
	}
}
