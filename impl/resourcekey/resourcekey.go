// Package resourcekey turns request URLs into logical resource keys. A logical
// key is the origin-relative path of a resource without a leading slash, e.g.
// "main.dart.js" or "assets/FontManifest.json". The entry document is special:
// its key is always "/" no matter how it was requested.
package resourcekey

import (
	"strings"

	"github.com/aceeric/shellcache/impl/globals"
)

// versionParam is the cache-busting query parameter appended by the shell
const versionParam = "?v="

// FromURL computes the logical key of the absolute URL 'rawUrl' relative to 'origin'
// (scheme://host[:port] with no trailing slash). The second return value is false if
// the URL does not belong to the origin. The rules are:
//
//  1. strip the origin and the slash that follows it
//  2. drop everything from the first '?v=' on
//  3. the origin itself, anything starting with 'origin/#', and an empty remainder
//     all map to the root key "/"
func FromURL(origin string, rawUrl string) (string, bool) {
	origin = strings.TrimSuffix(origin, "/")
	if !strings.HasPrefix(rawUrl, origin) {
		return "", false
	}
	rest := rawUrl[len(origin):]
	if rest != "" && !strings.HasPrefix(rest, "/") {
		// e.g. origin http://a.com and url http://a.com.b.net/
		return "", false
	}
	key := strings.TrimPrefix(rest, "/")
	if idx := strings.Index(key, versionParam); idx != -1 {
		key = key[:idx]
	}
	if rawUrl == origin || strings.HasPrefix(rawUrl, origin+"/#") || key == "" {
		key = globals.RootKey
	}
	return key, true
}

// FromRequestURI computes the logical key of a request URI as seen by a server,
// i.e. a path with an optional query, like "/main.dart.js?v=123".
func FromRequestURI(requestUri string) string {
	key, _ := FromURL("", requestUri)
	return key
}

// Canonical maps the empty key to the root key. Keys read back from a store or a
// manifest pass through here so the entry document diffs consistently however it
// was stored.
func Canonical(key string) string {
	if key == "" {
		return globals.RootKey
	}
	return key
}

// ToPath converts a logical key back into an origin-relative URL path
func ToPath(key string) string {
	if key = Canonical(key); key == globals.RootKey {
		return "/"
	}
	return "/" + strings.TrimPrefix(key, "/")
}
