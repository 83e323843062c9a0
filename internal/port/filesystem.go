package port

import (
	"io"
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  `json:"total"`    // Total disk space in bytes
	Used    uint64  `json:"used"`     // Used disk space in bytes
	Free    uint64  `json:"free"`     // Free disk space in bytes
	UsedPct float64 `json:"used_pct"` // Used percentage (0-100)
}

// WriteResult describes a finished write into the download directory
type WriteResult struct {
	// Path is the final destination
	Path string

	// BytesWritten is the size of the file on disk
	BytesWritten int64

	// Resumed indicates the temp file already held bytes from an earlier attempt
	Resumed bool

	// ResumedFrom is the byte position the write continued from
	ResumedFrom int64
}

// FileSystem defines the download directory operations
type FileSystem interface {
	// RootDir returns the download root directory
	RootDir() string

	// EnsureRoot creates the root directory if it is missing
	EnsureRoot() error

	// ResolveDestination returns a collision-free path for name under the root.
	// reserved reports paths that are already claimed but not yet on disk; it may be nil.
	ResolveDestination(name string, reserved func(path string) bool) (string, error)

	// TempPath returns the in-progress path for a destination
	TempPath(dest string) string

	// WriteFileWithResume streams reader into the temp file of dest.
	// If resume is true and the temp file exists, it appends to it.
	// When final is true the temp file is renamed to dest once reader is drained.
	WriteFileWithResume(dest string, reader io.Reader, resume, final bool) (*WriteResult, error)

	// FileExists checks if a path exists
	FileExists(path string) bool

	// GetTempFileInfo returns size and modification time of a temp file
	// Returns (0, zero time, nil) if the file doesn't exist
	GetTempFileInfo(tempPath string) (int64, time.Time, error)

	// DeleteTempFile removes a temporary file
	DeleteTempFile(tempPath string) error

	// GetDiskUsage returns disk usage statistics for the root
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes temp files older than the specified duration
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}
