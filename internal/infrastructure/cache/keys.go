package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// cacheKey derives the stored key for a namespace and raw identifier. The
// identifier is normalized before hashing so near-duplicate queries (case,
// punctuation, spacing) land on the same entry.
func cacheKey(namespace, id string) string {
	sum := sha256.Sum256([]byte(normalizeIdentifier(id)))
	return namespace + ":" + hex.EncodeToString(sum[:16])
}

func namespacePrefix(namespace string) string {
	return namespace + ":"
}

// normalizeIdentifier lowercases, strips punctuation, and collapses runs of
// whitespace to a single space.
func normalizeIdentifier(id string) string {
	var b strings.Builder
	b.Grow(len(id))

	pendingSpace := false
	for _, r := range strings.ToLower(id) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
