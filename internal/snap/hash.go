package snap

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns the lower-case hex SHA-256 of content's UTF-8 bytes.
// Equal digests are treated as equal content when diffing.
func HashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
