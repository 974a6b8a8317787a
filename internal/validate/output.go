// Package validate implements the output-extraction processor's safety
// predicate over agent text output. The corpus has no library narrowly
// scoped to "reject specific control/bidi/zero-width codepoints" — this is
// a short, security-sensitive allowlist/denylist over stdlib unicode/utf8,
// so it is hand-rolled rather than pulled from a general text-processing
// dependency that would bring in far more surface than this predicate needs.
package validate

import (
	"fmt"
	"unicode/utf8"
)

const MaxOutputBytes = 4 * 1024 * 1024 // 4 MB

// ErrOutputTooLarge is returned unwrapped by Output so callers can match on
// it; control-character and Unicode-manipulation rejections are plain
// formatted errors. The Error() text of each is included in the
// NodeResult/execution.error message.
var (
	ErrOutputTooLarge = fmt.Errorf("output exceeds maximum size of %d bytes", MaxOutputBytes)
)

// Output rejects s if it contains a disallowed C0 control byte, a Unicode
// directional-override or zero-width codepoint, a byte-order mark, or
// exceeds MaxOutputBytes. HT (0x09), LF (0x0A), and CR (0x0D) are permitted
// control bytes; every other byte in 0x00-0x1F is not.
func Output(s string) error {
	if len(s) > MaxOutputBytes {
		return ErrOutputTooLarge
	}
	for i := 0; i < len(s); {
		b := s[i]
		if b < 0x20 {
			if b == 0x09 || b == 0x0A || b == 0x0D {
				i++
				continue
			}
			return fmt.Errorf("output contains dangerous control character 0x%02X", b)
		}
		if b < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if isManipulationRune(r) {
			return fmt.Errorf("output contains Unicode manipulation characters (U+%04X)", r)
		}
		i += size
	}
	return nil
}

func isManipulationRune(r rune) bool {
	switch {
	case r >= 0x202A && r <= 0x202E: // directional embedding/override
		return true
	case r >= 0x2066 && r <= 0x2069: // directional isolates
		return true
	case r >= 0x200B && r <= 0x200D: // zero-width space/non-joiner/joiner
		return true
	case r == 0xFEFF: // byte order mark / zero-width no-break space
		return true
	default:
		return false
	}
}
