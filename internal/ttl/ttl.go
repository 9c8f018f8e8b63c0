// Package ttl implements Cache-Control parsing as a substring-oriented
// reading of the header rather than a full grammar.
package ttl

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var (
	sMaxAgeRe = regexp.MustCompile(`s-maxage=([0-9]+)`)
	maxAgeRe  = regexp.MustCompile(`max-age=([0-9]+)`)
)

// ParseCacheControl returns the freshness lifetime, in seconds, encoded by
// a raw Cache-Control header value. It returns 0 when the header is absent,
// contains "no-cache" or "private", or carries no recognized directive.
// s-maxage takes precedence over max-age when both are present.
func ParseCacheControl(value string) int {
	if value == "" {
		return 0
	}
	if strings.Contains(value, "no-cache") || strings.Contains(value, "private") {
		return 0
	}
	if m := sMaxAgeRe.FindStringSubmatch(value); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if m := maxAgeRe.FindStringSubmatch(value); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

// IsCacheableResponse reports whether an HTTP response is cacheable by
// status code, Set-Cookie, Cache-Control and Pragma. Nothing in the
// module calls it: the core fetch/purge contract does not consult it, and
// petrahttp applies the same rules through its own IsResponseCacheable.
func IsCacheableResponse(statusCode int, header http.Header) bool {
	switch statusCode {
	case http.StatusOK, http.StatusNonAuthoritativeInfo, http.StatusNoContent,
		http.StatusMovedPermanently, http.StatusFound:
	default:
		return false
	}

	if header.Get("Set-Cookie") != "" {
		return false
	}

	cc := header.Get("Cache-Control")
	if strings.Contains(cc, "no-store") || strings.Contains(cc, "private") {
		return false
	}

	if header.Get("Pragma") == "no-cache" {
		return false
	}

	return true
}
