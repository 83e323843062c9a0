package vo

import (
	"fmt"
	"time"
)

// Sample is a byte count observed at a point in time.
type Sample struct {
	At    time.Time
	Bytes int64
}

// IsZero reports whether no sample has been taken.
func (s Sample) IsZero() bool {
	return s.At.IsZero()
}

// Speed returns bytes/second between two samples.
// ok is false when the elapsed time is zero or negative: there is no estimate.
// A byte count that went backwards yields a speed of zero.
func Speed(prev, cur Sample) (bytesPerSec float64, ok bool) {
	if prev.IsZero() || cur.IsZero() {
		return 0, false
	}
	elapsed := cur.At.Sub(prev.At)
	if elapsed <= 0 {
		return 0, false
	}
	delta := cur.Bytes - prev.Bytes
	if delta < 0 {
		delta = 0
	}
	return float64(delta) / elapsed.Seconds(), true
}

// ETA returns the time to completion at the given speed.
// ok is false when the total is unknown or the speed is not positive.
func ETA(total, received int64, bytesPerSec float64) (time.Duration, bool) {
	if total <= 0 || bytesPerSec <= 0 {
		return 0, false
	}
	remaining := total - received
	if remaining < 0 {
		remaining = 0
	}
	seconds := float64(remaining) / bytesPerSec
	return time.Duration(seconds * float64(time.Second)), true
}

// FormatETA buckets at 60s and 3600s: "42s", "3m 5s", "2h 10m".
func FormatETA(d time.Duration, ok bool) string {
	if !ok {
		return "calculating..."
	}
	secs := int64(d.Round(time.Second) / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

// Percent returns received/total as an integer 0-100, or 0 when total is unknown.
func Percent(received, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(received * 100 / total)
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// ProgressText renders the status line shown while a transfer is running.
func ProgressText(received, total int64) string {
	if total <= 0 {
		return "Downloading... size unknown"
	}
	return fmt.Sprintf("Downloading... %s of %s",
		MustFileSize(nonNegative(received)), MustFileSize(total))
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
