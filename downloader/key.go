package downloader

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Feeds behind API keys can differ per key, so headers are part of
// the cache key.
func cacheKey(url string, headers map[string]string) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(url)
	for _, name := range names {
		fmt.Fprintf(&b, "\n%s: %s", strings.ToLower(name), headers[name])
	}

	return fmt.Sprintf("%x", sha256.Sum256([]byte(b.String())))
}
