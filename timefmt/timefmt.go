// Package timefmt provides compact duration strings for display.
package timefmt

import (
	"fmt"
	"strings"
	"time"
)

// ShortDur shortens the string representation of a time.Duration from
// d.String(), dropping trailing zero units (1h0m0s -> 1h).
func ShortDur(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}

// Clock renders a duration as h:mm:ss for countdown display.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
