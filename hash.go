package gitvfs

import (
	"crypto/sha1"
	"encoding/hex"
)

// ContentSHA returns the lowercase hex SHA-1 of content.
//
// The digest is an equality fingerprint for change detection only; nothing
// relies on collision resistance beyond "different bytes almost always
// produce different digests".
func ContentSHA(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}
