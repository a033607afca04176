package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex encoded HMAC-SHA256 of payload keyed with secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// PaymentPayload is the canonical string signed by the gateway on checkout completion.
func PaymentPayload(externalOrderID, externalPaymentID string) []byte {
	return []byte(externalOrderID + "|" + externalPaymentID)
}

// VerifyPaymentSignature checks the signature the client forwards after checkout.
func VerifyPaymentSignature(secret, externalOrderID, externalPaymentID, signature string) bool {
	return verify(secret, PaymentPayload(externalOrderID, externalPaymentID), signature)
}

// VerifyWebhookSignature checks the signature header against the raw request body. The body
// must be the exact bytes received; re-encoded JSON will not match.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	return verify(secret, body, signature)
}

func verify(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
