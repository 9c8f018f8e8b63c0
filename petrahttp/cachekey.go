// Package petrahttp is an optional HTTP-facing layer over petra: a
// request-cache middleware, an admin endpoint for status/purge, and a
// background optimization pipeline, all built on top of store.Store
// rather than petra.Instance's direct file-path contract. Nothing in
// the core module imports this package.
package petrahttp

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"

	radix "github.com/armon/go-radix"
)

// keySeparator divides the legible host+path prefix of a generated key
// from the hashed suffix covering scheme, query, and Vary headers.
// HostPrefix and PathPrefix stop before it, so their prefixes match every
// variant of the keys under that host or path.
const keySeparator = "#"

// KeyGenerator derives a store key from an inbound request.
//
// Unlike a generator that hashes the whole request into one opaque
// digest, GenerateKey keeps host and path as a legible prefix and hashes
// only the parts that don't belong in an admin-facing purge prefix
// (scheme, query, Vary headers). Store.PurgePrefix operates on whatever
// string a KeyGenerator hands it, so a purge-everything-under-this-host
// or purge-everything-under-this-path-prefix request only works if the
// key format preserves that structure; an opaque hash would make every
// PurgePrefix call except an exact full-key match a no-op.
type KeyGenerator struct {
	IncludeQuery  bool
	VaryHeaders   []string
	CaseSensitive bool
}

// NewKeyGenerator returns a KeyGenerator with sensible defaults.
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{
		IncludeQuery: true,
		VaryHeaders:  []string{"Accept-Encoding"},
	}
}

// normalizeHostPath lowercases host and path unless CaseSensitive is
// set, and guarantees path is never empty, so HostPrefix/PathPrefix
// build the same prefix GenerateKey would for the same request.
func (kg *KeyGenerator) normalizeHostPath(host, path string) (string, string) {
	if path == "" {
		path = "/"
	}
	if !kg.CaseSensitive {
		host = strings.ToLower(host)
		path = strings.ToLower(path)
	}
	return host, path
}

// HostPrefix returns the PurgePrefix argument that matches every cached
// entry for host, regardless of path, query, or Vary variant.
func (kg *KeyGenerator) HostPrefix(host string) string {
	host, _ = kg.normalizeHostPath(host, "/")
	return host
}

// PathPrefix returns the PurgePrefix argument that matches every cached
// entry for host under the given path prefix.
func (kg *KeyGenerator) PathPrefix(host, path string) string {
	host, path = kg.normalizeHostPath(host, path)
	return host + path
}

// GenerateKey builds a store key whose prefix is the request's host and
// path (lowercased unless CaseSensitive is set), followed by keySeparator
// and a hash of the scheme,
// sorted query parameters, and configured Vary headers. See KeyGenerator
// for why the prefix is kept legible rather than folded into the hash.
func (kg *KeyGenerator) GenerateKey(r *http.Request) string {
	host, path := kg.normalizeHostPath(r.Host, r.URL.Path)

	var variant []string

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	variant = append(variant, scheme)

	if kg.IncludeQuery && r.URL.RawQuery != "" {
		variant = append(variant, kg.normalizeQuery(r.URL.Query()))
	}

	for _, header := range kg.VaryHeaders {
		if v := r.Header.Get(header); v != "" {
			variant = append(variant, header+":"+v)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(variant, "|")))
	return host + path + keySeparator + hex.EncodeToString(hash[:])
}

func (kg *KeyGenerator) normalizeQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := query[k]
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// PathMatcher decides which request paths are eligible for caching at
// all, independent of per-response Cache-Control. It is backed by a
// radix tree of literal prefixes (e.g. "/static/", "/assets/") plus a
// small set of literal suffixes, so a host with thousands of cacheable
// prefixes doesn't pay for a linear scan on every request.
type PathMatcher struct {
	prefixes *radix.Tree
	suffixes []string
}

// NewPathMatcher builds a PathMatcher from literal path prefixes and
// file-extension suffixes (e.g. ".css", ".js").
func NewPathMatcher(prefixes, suffixes []string) *PathMatcher {
	tree := radix.New()
	for _, p := range prefixes {
		tree.Insert(p, struct{}{})
	}
	return &PathMatcher{prefixes: tree, suffixes: suffixes}
}

// Match reports whether path falls under a registered prefix or ends
// in a registered suffix.
func (pm *PathMatcher) Match(path string) bool {
	if _, _, ok := pm.prefixes.LongestPrefix(path); ok {
		return true
	}
	for _, s := range pm.suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// IsCacheable reports whether the inbound request is a candidate for
// caching, independent of what the upstream response says.
func IsCacheable(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	if r.Header.Get("Authorization") != "" {
		return false
	}
	cc := r.Header.Get("Cache-Control")
	if strings.Contains(cc, "no-cache") || strings.Contains(cc, "no-store") {
		return false
	}
	return true
}

// IsResponseCacheable reports whether a response this library just
// fetched is eligible for storage.
func IsResponseCacheable(statusCode int, headers http.Header) bool {
	switch statusCode {
	case http.StatusOK, http.StatusNonAuthoritativeInfo, http.StatusNoContent,
		http.StatusMovedPermanently, http.StatusFound:
	default:
		return false
	}
	if headers.Get("Set-Cookie") != "" {
		return false
	}
	cc := headers.Get("Cache-Control")
	if strings.Contains(cc, "no-store") || strings.Contains(cc, "private") {
		return false
	}
	if headers.Get("Pragma") == "no-cache" {
		return false
	}
	return true
}
