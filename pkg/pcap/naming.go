package pcap

import (
	"fmt"
	"strings"
	"time"
)

// formatFileName renders format against ts, producing a new container file
// name. Recognized tokens (runs of repeated letters) are:
//
//	yyyy  4-digit year        yy  2-digit year
//	MM    2-digit month       dd  2-digit day
//	HH    2-digit hour (24h)  mm  2-digit minute
//	ss    2-digit second      f.. 1-7 fractional-second digits (truncated,
//	                              not rounded; one digit per 'f')
//
// Any other character, including separators like '_' and '-', passes
// through unchanged. This is a purpose-built substitution, not a
// time.Format layout: the token alphabet here doesn't share meaning with
// Go's reference-time layout.
func formatFileName(format string, ts time.Time) string {
	var b strings.Builder
	runes := []rune(format)

	for i := 0; i < len(runes); {
		r := runes[i]
		j := i
		for j < len(runes) && runes[j] == r {
			j++
		}
		run := j - i

		switch r {
		case 'y':
			if run >= 4 {
				fmt.Fprintf(&b, "%04d", ts.Year())
			} else {
				fmt.Fprintf(&b, "%02d", ts.Year()%100)
			}
		case 'M':
			fmt.Fprintf(&b, "%02d", int(ts.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", ts.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", ts.Hour())
		case 'm':
			fmt.Fprintf(&b, "%02d", ts.Minute())
		case 's':
			fmt.Fprintf(&b, "%02d", ts.Second())
		case 'f':
			digits := run
			if digits > 7 {
				digits = 7
			}
			// ts.Nanosecond() is in [0, 1e9); scale down to `digits`
			// significant digits, truncating.
			scale := 1
			for k := 0; k < 9-digits; k++ {
				scale *= 10
			}
			fmt.Fprintf(&b, "%0*d", digits, ts.Nanosecond()/scale)
		default:
			b.WriteString(strings.Repeat(string(r), run))
		}

		i = j
	}

	return b.String()
}
