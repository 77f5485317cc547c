// snip.go shortens long source lines around the column of interest.

package stacktrace

const (
	// MaxLineLength is the width of the window kept from a long line.
	MaxLineLength = 140

	// snipThreshold is the length above which a line is snipped at all.
	snipThreshold = 150

	snipMarker = "{snip}"
)

// SnipLine shortens a line longer than 150 characters to a 140 character
// window around colno (1-based, 0 when unknown), marking each cut side with
// "{snip}". With colno 0 only the tail is cut, which is how neighboring
// context lines are shortened.
func SnipLine(line string, colno int) string {
	r := []rune(line)
	ll := len(r)
	if ll <= snipThreshold {
		return line
	}
	if colno > ll {
		colno = ll
	}

	start := max(colno-60, 0)
	if start < 5 {
		start = 0
	}
	end := min(start+MaxLineLength, ll)
	if end > ll-5 {
		end = ll
	}
	if end == ll {
		start = max(end-MaxLineLength, 0)
	}

	out := string(r[start:end])
	if start > 0 {
		out = snipMarker + " " + out
	}
	if end < ll {
		out += " " + snipMarker
	}
	return out
}
