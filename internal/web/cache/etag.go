package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateETag generates a strong ETag for the given content
func GenerateETag(content []byte) string {
	hash := sha256.Sum256(content)
	// Truncate to 16 bytes for shorter ETags
	return fmt.Sprintf(`"%s"`, hex.EncodeToString(hash[:16]))
}

// MatchesIfNoneMatch reports whether an If-None-Match header value selects etag.
// Comparison is weak: W/ prefixes are ignored on both sides.
func MatchesIfNoneMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
