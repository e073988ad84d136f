package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"cropclaim/internal/errs"
)

const signatureHeader = "X-Assessment-Signature"

// validateCallbackSignature checks an HMAC-SHA256 of the raw body sent as "sha256=<hex>".
func validateCallbackSignature(secret string, header string, payload []byte) error {
	normalizedSecret := strings.TrimSpace(secret)
	if normalizedSecret == "" {
		return nil
	}

	signature := strings.TrimSpace(header)
	if signature == "" {
		return errors.New("missing " + signatureHeader)
	}

	const prefix = "sha256="
	if len(signature) <= len(prefix) || !strings.EqualFold(signature[:len(prefix)], prefix) {
		return errors.New("invalid " + signatureHeader + " format")
	}

	decoded, err := hex.DecodeString(strings.TrimSpace(signature[len(prefix):]))
	if err != nil {
		return errors.New("invalid " + signatureHeader + " digest")
	}

	mac := hmac.New(sha256.New, []byte(normalizedSecret))
	if _, err := mac.Write(payload); err != nil {
		return errs.Wrap(err, "compute callback signature")
	}
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return errors.New("invalid " + signatureHeader)
	}
	return nil
}

// SignCallback produces the header value a collaborator sends with payload.
func SignCallback(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	_, _ = mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
