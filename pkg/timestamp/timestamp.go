// Package timestamp provides Unix timestamp helpers in the float-seconds
// format the activity log records. A value of 0 means "not set".
package timestamp

import (
	"strconv"
	"time"
)

// Seconds returns the current time as fractional Unix seconds.
func Seconds() float64 {
	return ToSeconds(time.Now())
}

// ToSeconds converts a time.Time to fractional Unix seconds.
func ToSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromSeconds converts fractional Unix seconds back to a time.Time (UTC).
func FromSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(s*float64(time.Second))).UTC()
}

// Format renders fractional Unix seconds the way log rows carry them:
// shortest representation that round-trips the float64.
func Format(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
