package sdmhttp

import (
	"net/url"
	"regexp"
)

// Scheme, a host ending in a dotted alphabetic label, optional port, optional path.
var urlPattern = regexp.MustCompile(`^(http|https)://([A-Za-z0-9.-]+)(\.[A-Za-z]{2,})(:\d+)?(/.*)?$`)

// IsValidURL reports whether raw is an absolute http(s) URL with a domain host.
// It performs no network access.
func IsValidURL(raw string) bool {
	if !urlPattern.MatchString(raw) {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}
