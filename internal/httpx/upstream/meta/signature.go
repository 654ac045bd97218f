package meta

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Hub-Signature-256"

// Signature verification errors
var (
	ErrMissingSignature = errors.New("missing " + SignatureHeader)
	ErrInvalidSignature = errors.New("invalid " + SignatureHeader)
)

// VerifySignature checks a "sha256=<hex>" header against the app secret
func VerifySignature(appSecret, header string, body []byte) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrInvalidSignature
	}
	provided, err := hex.DecodeString(hexSig)
	if err != nil {
		return ErrInvalidSignature
	}

	if !hmac.Equal(provided, Sign(appSecret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body under the app secret
func Sign(appSecret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureFor returns the header value Meta would send for body
func SignatureFor(appSecret string, body []byte) string {
	return "sha256=" + hex.EncodeToString(Sign(appSecret, body))
}

// VerifyChallenge validates a subscription handshake and returns the
// challenge to echo back
func VerifyChallenge(query url.Values, verifyToken string) (string, bool) {
	if query.Get("hub.mode") != "subscribe" {
		return "", false
	}
	token := query.Get("hub.verify_token")
	if verifyToken == "" || !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", false
	}
	return query.Get("hub.challenge"), true
}
