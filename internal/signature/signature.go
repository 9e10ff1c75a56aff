// Package signature implements the gateway's HMAC-SHA256 signing scheme used
// by checkout callbacks and webhooks.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the lowercase hex HMAC-SHA256 of message keyed by secret.
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// OrderPayload is the message signed for a checkout callback.
func OrderPayload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// SignPayment computes the checkout callback signature.
func SignPayment(orderID, paymentID, secret string) string {
	return Sign(secret, OrderPayload(orderID, paymentID))
}

// VerifyPayment reports whether sig is the checkout signature for the
// order/payment pair.
func VerifyPayment(orderID, paymentID, sig, secret string) bool {
	return Equal(SignPayment(orderID, paymentID, secret), sig)
}

// VerifyWebhook checks sig against the raw, unparsed request body.
func VerifyWebhook(body []byte, sig, secret string) bool {
	return Equal(Sign(secret, body), sig)
}

// Equal compares two hex digests in constant time.
func Equal(expected, actual string) bool {
	if actual == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(actual))
}
