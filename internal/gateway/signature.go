package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrInvalidSignature means the recomputed HMAC does not match the
	// supplied one. Never retried blindly; no mutation follows.
	ErrInvalidSignature = errors.New("invalid_signature")

	// ErrWebhookSecretMissing is returned for every webhook when no webhook
	// secret is configured. Verification fails closed rather than being
	// skipped.
	ErrWebhookSecretMissing = errors.New("webhook_secret_missing")
)

// VerifyPaymentSignature checks the signature a checkout client forwards
// after direct payment: HMAC-SHA256 over "<orderID>|<paymentID>" keyed with
// the gateway key secret, hex encoded.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.TrimSpace(signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrInvalidSignature
	}

	expected := signHex(c.keySecret, []byte(orderID+"|"+paymentID))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyWebhookSignature checks the gateway's webhook signature: HMAC-SHA256
// over the exact raw request body keyed with the webhook secret. The body
// bytes verified here must be the same bytes the caller goes on to decode.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) error {
	if strings.TrimSpace(c.webhookSecret) == "" {
		return ErrWebhookSecretMissing
	}
	signature = strings.TrimSpace(signature)
	if len(body) == 0 || signature == "" {
		return ErrInvalidSignature
	}

	expected := signHex(c.webhookSecret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

func signHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
