package rubric

import (
	"fmt"
	"strconv"
	"strings"
)

// parseLeadingNumber extracts the first decimal number from a judge agent's
// free-text response, tolerating a surrounding sentence ("Score: 82/100").
func parseLeadingNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	start := -1
	end := -1
	for i, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			if start == -1 {
				start = i
			}
			end = i + 1
		} else if start != -1 {
			break
		}
	}
	if start == -1 {
		return 0, fmt.Errorf("no number found in %q", s)
	}
	return strconv.ParseFloat(s[start:end], 64)
}
