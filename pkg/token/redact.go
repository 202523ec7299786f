package token

import (
	"encoding/hex"
	"strings"
)

// Redact replaces any occurrence of a live secret from pool in text with
// "***", so a signing key that ends up embedded in a log line (e.g. via a
// panic value or a debug dump of a request) never reaches a log sink in
// recoverable form. Secrets are matched in their hex-encoded form, since
// that is how they would ever appear in human-readable text.
func Redact(pool *SecretPool, text string) string {
	for _, secret := range pool.Secrets() {
		if len(secret) == 0 {
			continue
		}
		text = strings.ReplaceAll(text, hex.EncodeToString(secret), "***")
	}
	return text
}
