package vo

import (
	"errors"
	"fmt"
	"math"
)

// FileSize represents a byte count with human-readable formatting.
type FileSize struct {
	bytes int64
}

const (
	KB int64 = 1024
	MB int64 = 1024 * KB
	GB int64 = 1024 * MB
	TB int64 = 1024 * GB
)

var (
	ErrNegativeSize = errors.New("file size cannot be negative")
)

// NewFileSize creates a new FileSize value object.
func NewFileSize(bytes int64) (FileSize, error) {
	if bytes < 0 {
		return FileSize{}, ErrNegativeSize
	}
	return FileSize{bytes: bytes}, nil
}

// MustFileSize creates a new FileSize, panicking if invalid.
func MustFileSize(bytes int64) FileSize {
	fs, err := NewFileSize(bytes)
	if err != nil {
		panic(err)
	}
	return fs
}

// Bytes returns the size in bytes.
func (fs FileSize) Bytes() int64 {
	return fs.bytes
}

// IsZero returns true if the size is zero.
func (fs FileSize) IsZero() bool {
	return fs.bytes == 0
}

// String buckets at 1024-byte boundaries: "512 B", "1.4 MB", "2.0 TB".
func (fs FileSize) String() string {
	if fs.bytes < KB {
		return fmt.Sprintf("%d B", fs.bytes)
	}
	return scaled(float64(fs.bytes), "")
}

// FormatSpeed renders a throughput: "512 B/s", "2.0 KB/s", "1.5 MB/s".
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	if math.Round(bytesPerSec) < float64(KB) {
		return fmt.Sprintf("%.0f B/s", bytesPerSec)
	}
	return scaled(bytesPerSec, "/s")
}

// scaled formats values of at least 1 KB with one decimal place. The unit is
// picked on the rounded value so nothing prints as "1024.0".
func scaled(value float64, suffix string) string {
	units := []string{"KB", "MB", "GB"}
	value /= float64(KB)
	for _, unit := range units {
		if math.Round(value*10)/10 < float64(KB) {
			return fmt.Sprintf("%.1f %s%s", value, unit, suffix)
		}
		value /= float64(KB)
	}
	return fmt.Sprintf("%.1f TB%s", value, suffix)
}
