package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/browser-shell/internal/port"
)

// TempSuffix marks files that are still being written
const TempSuffix = ".downloading"

// defaultName is used when the engine suggests no usable file name
const defaultName = "download"

// Manager handles the download directory
type Manager struct {
	rootDir    string
	bufferSize int
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 256*1024)
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	if bufferSize <= 0 {
		bufferSize = 256 * 1024
	}

	m := &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
	}
	if err := m.EnsureRoot(); err != nil {
		return nil, err
	}
	return m, nil
}

// RootDir returns the download root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// EnsureRoot creates the root directory if it is missing
func (m *Manager) EnsureRoot() error {
	if err := os.MkdirAll(m.rootDir, 0755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}
	return nil
}

// SanitizeName reduces a suggested name to a single path element
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.FromSlash(name))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return defaultName
	}
	return name
}

// ResolveDestination returns a path under the root that does not exist yet.
// A taken name gets a numeric suffix before the extension: file.txt, file_1.txt, file_2.txt.
func (m *Manager) ResolveDestination(name string, reserved func(path string) bool) (string, error) {
	if err := m.EnsureRoot(); err != nil {
		return "", err
	}

	name = SanitizeName(name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(m.rootDir, name)
	for counter := 1; m.taken(candidate, reserved); counter++ {
		candidate = filepath.Join(m.rootDir, fmt.Sprintf("%s_%d%s", base, counter, ext))
	}
	return candidate, nil
}

func (m *Manager) taken(path string, reserved func(string) bool) bool {
	if m.FileExists(path) || m.FileExists(m.TempPath(path)) {
		return true
	}
	return reserved != nil && reserved(path)
}

// TempPath returns the in-progress path for a destination
func (m *Manager) TempPath(dest string) string {
	return dest + TempSuffix
}

// WriteFileWithResume streams reader into the temp file of dest
func (m *Manager) WriteFileWithResume(dest string, reader io.Reader, resume, final bool) (*port.WriteResult, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent dir: %w", err)
	}

	tempPath := m.TempPath(dest)
	result := &port.WriteResult{Path: dest}

	var f *os.File
	var err error

	if resume {
		if info, statErr := os.Stat(tempPath); statErr == nil {
			result.Resumed = true
			result.ResumedFrom = info.Size()
			f, err = os.OpenFile(tempPath, os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, fmt.Errorf("failed to open temp file for resume: %w", err)
			}
		} else {
			f, err = os.Create(tempPath)
			if err != nil {
				return nil, fmt.Errorf("failed to create temp file: %w", err)
			}
		}
	} else {
		f, err = os.Create(tempPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create temp file: %w", err)
		}
	}

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	result.BytesWritten = result.ResumedFrom + written
	if err != nil {
		f.Close()
		return result, fmt.Errorf("failed to write file: %w", err)
	}

	if err := f.Close(); err != nil {
		return result, fmt.Errorf("failed to close file: %w", err)
	}

	if !final {
		return result, nil
	}

	if err := os.Rename(tempPath, dest); err != nil {
		return result, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return result, nil
}

// FileExists checks if a path exists
func (m *Manager) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetTempFileInfo returns size and modification time of a temp file
// Returns (0, zero time, nil) if the file doesn't exist
func (m *Manager) GetTempFileInfo(tempPath string) (int64, time.Time, error) {
	info, err := os.Stat(tempPath)
	if os.IsNotExist(err) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	return info.Size(), info.ModTime(), nil
}

// DeleteTempFile removes a temporary file
func (m *Manager) DeleteTempFile(tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete temp file: %w", err)
	}
	return nil
}

// CleanOldTempFiles removes temp files older than the specified duration.
// Only the top level of the root is scanned; downloads never go deeper.
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read download dir: %w", err)
	}

	count := 0
	threshold := time.Now().Add(-olderThan)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != TempSuffix {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(threshold) {
			if removeErr := os.Remove(filepath.Join(m.rootDir, entry.Name())); removeErr == nil {
				count++
			}
		}
	}
	return count, nil
}
