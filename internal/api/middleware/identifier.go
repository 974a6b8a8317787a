package middleware

import (
	"regexp"
	"strings"
)

// identifierPattern is the spec §6 validation rule applied to every path-
// and query-segment identifier (workflow id, execution id, node id, client
// id): it must start with an alphanumeric and contain only alphanumerics,
// dot, underscore, or hyphen, up to 255 bytes total.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// ValidIdentifier reports whether s is a legal path/query identifier.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ValidateIdentifiers walks a decoded workflow body's nested map/slice
// structure and reports the first identifier-shaped field (by key name)
// that fails ValidIdentifier, matching the spec's "workflow bodies are
// deep-walked to validate all nested identifiers" requirement. keys is the
// set of JSON field names treated as identifiers rather than free text.
func ValidateIdentifiers(v any, keys map[string]bool) (badKey, badValue string, ok bool) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if keys[k] {
				if s, isStr := child.(string); isStr && !ValidIdentifier(s) {
					return k, s, false
				}
			}
			if badKey, badValue, ok = ValidateIdentifiers(child, keys); !ok {
				return badKey, badValue, ok
			}
		}
	case []any:
		for _, child := range val {
			if badKey, badValue, ok = ValidateIdentifiers(child, keys); !ok {
				return badKey, badValue, ok
			}
		}
	}
	return "", "", true
}

// StripControlChars removes ASCII control bytes (everything below 0x20
// except tab and newline) from s. The workflow upsert handler does not pass
// free-text fields through it; stored workflows keep their text as sent.
func StripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// StripCRLF removes CR and LF bytes from a user-derived value before it is
// written to a log line, per §6's "CR/LF must be stripped from any
// user-derived value before log emission."
func StripCRLF(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
