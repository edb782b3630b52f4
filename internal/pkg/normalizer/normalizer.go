package normalizer

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
)

// ErrEmptyDomain is returned when nothing is left after canonicalization.
var ErrEmptyDomain = errors.New("domain is empty after normalization")

// Normalize canonicalizes a raw domain string so equivalent representations
// compare equal. The rules are applied in a fixed order: trim whitespace,
// strip a leading URI scheme (http://, https:// or scheme-less //), strip a
// leading www. label, cut everything after the first /, ? or #, strip a
// trailing :port, lowercase, strip trailing dots (FQDN form) and convert
// internationalized names to punycode. Normalize is pure and idempotent.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	s = stripScheme(s)

	if len(s) >= 4 && strings.EqualFold(s[:4], "www.") {
		s = s[4:]
	}

	if i := strings.IndexAny(s, "/?#"); i != -1 {
		s = s[:i]
	}

	s = stripPort(s)
	s = strings.ToLower(s)
	s = strings.TrimRight(s, ".")

	if s == "" {
		return "", ErrEmptyDomain
	}

	// Punycode conversion for internationalized names. Best-effort: plain
	// ASCII names pass through unchanged and odd-but-accepted inputs
	// (wildcard patterns, underscores) are kept as-is on conversion error.
	if ascii, err := idna.Lookup.ToASCII(s); err == nil {
		s = ascii
	}

	return s, nil
}

func stripScheme(s string) string {
	for _, scheme := range []string{"http://", "https://", "//"} {
		if len(s) >= len(scheme) && strings.EqualFold(s[:len(scheme)], scheme) {
			return s[len(scheme):]
		}
	}
	return s
}

func stripPort(s string) string {
	i := strings.LastIndexByte(s, ':')
	if i == -1 || i == len(s)-1 {
		return s
	}
	for _, c := range s[i+1:] {
		if c < '0' || c > '9' {
			return s
		}
	}
	return s[:i]
}

// Matches reports whether a stored license domain covers a requested domain.
// Both sides must already be normalized. Plain domains match by exact
// equality only; a stored wildcard pattern (*.example.com) matches any
// single-or-deeper subdomain on a label boundary. There is never substring
// matching, so evil-example.com can not match example.com.
func Matches(stored, requested string) bool {
	if stored == requested {
		return true
	}
	if rest, ok := strings.CutPrefix(stored, "*."); ok {
		return strings.HasSuffix(requested, "."+rest)
	}
	return false
}
