package ads

import (
	"net/url"
	"strings"
)

// NormalizeURL reduces a page URL to its cache identity: scheme, host, and
// path with fragment and query dropped, and no trailing slash except at the
// site root. Unparseable input is returned unchanged so lookups still key
// consistently.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	normalized := u.Scheme + "://" + u.Host + u.Path
	if strings.HasSuffix(normalized, "/") && len(u.Path) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}
