package ingest

import (
	"strings"
)

// idPlaceholder replaces path segments that look like identifiers when the
// host framework supplied no route template. Without this collapse, dynamic
// segments would leak into aggregation keys and grow the index without bound.
const idPlaceholder = "{id}"

// NormalizePath returns the aggregation path for a request. routeTemplate is
// the matched route pattern from the hosting framework and wins when present;
// otherwise identifier-looking segments of the raw path are collapsed.
func NormalizePath(rawPath, routeTemplate string) string {
	if t := cleanPath(routeTemplate); t != "" {
		return t
	}
	p := cleanPath(rawPath)
	if p == "" {
		return "/"
	}
	if p == "/" {
		return p
	}

	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if looksLikeID(seg) {
			segments[i] = idPlaceholder
		}
	}
	return strings.Join(segments, "/")
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

// looksLikeID reports whether a path segment is a dynamic identifier: a
// number, a UUID, or a long hex/base32-ish token such as a ULID or hash.
func looksLikeID(seg string) bool {
	if seg == "" {
		return false
	}
	if isDigits(seg) {
		return true
	}
	if isUUID(seg) {
		return true
	}
	if len(seg) >= 16 && isHexString(seg) {
		return true
	}
	// Long unbroken alphanumeric tokens containing at least one digit are
	// treated as opaque identifiers (ULIDs, hashes, session tokens).
	if len(seg) >= 16 && isAlphanumeric(seg) && containsDigit(seg) {
		return true
	}
	return false
}

func isHexString(s string) bool {
	for _, c := range s {
		if !isHexRune(c) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHexRune(c) {
				return false
			}
		}
	}
	return true
}

func isHexRune(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isAlphanumeric(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

func containsDigit(s string) bool {
	for _, c := range s {
		if c >= '0' && c <= '9' {
			return true
		}
	}
	return false
}
