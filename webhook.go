package vlmrun

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// WebhookSignatureHeader carries the HMAC of a webhook delivery.
const WebhookSignatureHeader = "X-VLM-Signature"

const webhookSignaturePrefix = "sha256="

// VerifyWebhook reports whether signatureHeader, the X-VLM-Signature value in
// the form "sha256=<hex>", is the HMAC-SHA256 of body under secret. The digest
// must be lowercase hex. An empty secret never verifies.
func VerifyWebhook(body []byte, signatureHeader, secret string) bool {
	if secret == "" || !strings.HasPrefix(signatureHeader, webhookSignaturePrefix) {
		return false
	}
	received := strings.TrimPrefix(signatureHeader, webhookSignaturePrefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(received), []byte(expected))
}
