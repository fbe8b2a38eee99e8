package vlmrun

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signWebhook(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook(t *testing.T) {
	const (
		secret  = "test_webhook_secret_12345"
		payload = `{"id":"pred_123","status":"completed","response":{"data":"test"}}`
	)
	valid := signWebhook(payload, secret)

	tests := []struct {
		name      string
		body      string
		signature string
		secret    string
		want      bool
	}{
		{name: "Valid", body: payload, signature: valid, secret: secret, want: true},
		{name: "EmptyBody", body: "", signature: signWebhook("", secret), secret: secret, want: true},
		{name: "Unicode", body: `{"message":"Hello 世界 🌍"}`, signature: signWebhook(`{"message":"Hello 世界 🌍"}`, secret), secret: secret, want: true},
		{name: "SpecialSecret", body: payload, signature: signWebhook(payload, "s!@#$%^&*()_+-=[]{}|;:',.<>?/~`"), secret: "s!@#$%^&*()_+-=[]{}|;:',.<>?/~`", want: true},
		{name: "LargeBody", body: strings.Repeat("x", 10000), signature: signWebhook(strings.Repeat("x", 10000), secret), secret: secret, want: true},
		{name: "ZeroDigest", body: payload, signature: "sha256=" + strings.Repeat("0", 64), secret: secret},
		{name: "WrongSecret", body: payload, signature: signWebhook(payload, "wrong_secret"), secret: secret},
		{name: "TamperedBody", body: payload + " ", signature: valid, secret: secret},
		{name: "Uppercase", body: payload, signature: strings.ToUpper(valid), secret: secret},
		{name: "UppercaseDigest", body: payload, signature: "sha256=" + strings.ToUpper(strings.TrimPrefix(valid, "sha256=")), secret: secret},
		{name: "Truncated", body: payload, signature: valid[:len(valid)-2], secret: secret},
		{name: "TrailingEquals", body: payload, signature: valid + "=", secret: secret},
		{name: "EmptyHeader", body: payload, signature: "", secret: secret},
		{name: "NoPrefix", body: payload, signature: strings.TrimPrefix(valid, "sha256="), secret: secret},
		{name: "WrongPrefix", body: payload, signature: strings.Replace(valid, "sha256=", "sha512=", 1), secret: secret},
		{name: "ExtraPrefix", body: payload, signature: "extra_" + valid, secret: secret},
		{name: "SpacedPrefix", body: payload, signature: strings.Replace(valid, "=", " = ", 1), secret: secret},
		{name: "NonHex", body: payload, signature: "sha256=not_a_hex_string!!!", secret: secret},
		{name: "ShortHex", body: payload, signature: "sha256=abc", secret: secret},
		{name: "EmptySecret", body: payload, signature: valid, secret: ""},
		{name: "SecretTrailingSpace", body: payload, signature: valid, secret: secret + " "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyWebhook([]byte(tt.body), tt.signature, tt.secret))
		})
	}
}

func TestVerifyWebhookFromRequest(t *testing.T) {
	const secret = "whsec"
	body := `{"id":"exec_xyz789","status":"completed","usage":{"credits_used":10}}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(WebhookSignatureHeader, signWebhook(body, secret))

	assert.True(t, VerifyWebhook([]byte(body), req.Header.Get("x-vlm-signature"), secret))
	assert.False(t, VerifyWebhook([]byte(strings.Replace(body, "10", "1", 1)), req.Header.Get(WebhookSignatureHeader), secret))
}
