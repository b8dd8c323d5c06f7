package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// VerifyWebhook checks the X-Shopify-Hmac-Sha256 header against the raw
// request body using a constant-time compare.
func VerifyWebhook(secret, headerHMAC string, body []byte) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(headerHMAC))
}
