package report

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Round rounds v to places decimal places. Negative places are treated as zero.
func Round(v float64, places int) float64 {
	if places < 0 {
		places = 0
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Float formats v with the shortest representation that round-trips.
func Float(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Fixed formats v rounded to places decimal places.
func Fixed(v float64, places int) string {
	return Float(Round(v, places))
}

// Uint formats an unsigned integer.
func Uint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// Int formats a signed integer.
func Int(v int64) string {
	return strconv.FormatInt(v, 10)
}

// HMS renders d as H:MM:SS, ignoring sign and sub-second parts.
func HMS(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
