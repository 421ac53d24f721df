package crypto

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Fingerprint returns a human-verifiable digest of a serialized public
// key: SHA-256 truncated to 16 bytes, rendered as colon-separated hex.
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	parts := make([]string, 16)
	for i, b := range sum[:16] {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}
