package cookiefile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/port"
)

// Header is the first line of every cookie file
const Header = "# browser-shell cookies v1"

// BackupSuffix is appended to the primary path for the single retained backup
const BackupSuffix = ".bak"

// FileName is the primary cookie file inside the cookie directory
const FileName = "cookies.dat"

// Store reads and writes the cookie file.
// Each record is a JSON array of name, value, domain and path on its own line,
// so no field value can collide with the framing. A fifth element carries
// the cookie flags when any are set.
type Store struct {
	path   string
	logger *zap.Logger
}

// Ensure Store implements port.CookieStore
var _ port.CookieStore = (*Store)(nil)

// NewStore creates a store for the file at path
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the primary file path
func (s *Store) Path() string {
	return s.path
}

// BackupPath returns the backup file path
func (s *Store) BackupPath() string {
	return s.path + BackupSuffix
}

// Load reads the primary file, falling back to the backup when the primary
// is unreadable. A missing primary with no backup is an empty set.
// The returned error is non-nil only when recovery was attempted and failed;
// the cookie slice is then empty and the session can continue.
func (s *Store) Load() ([]domain.Cookie, *port.CookieLoadReport, error) {
	report := &port.CookieLoadReport{}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if _, statErr := os.Stat(s.BackupPath()); statErr != nil {
			return nil, report, nil
		}
		// interrupted save: the primary was moved aside but never rewritten
		return s.recover(report, fmt.Errorf("%w: primary missing", domain.ErrCorruptCookieFile))
	case err != nil:
		return s.recover(report, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		report.Empty = true
		report.Source = s.path
		s.logger.Warn("cookie file is empty", zap.String("path", s.path))
		return nil, report, nil
	}

	cookies, skipped, err := s.parse(data)
	if err != nil {
		return s.recover(report, err)
	}
	report.Source = s.path
	report.Skipped = skipped
	return cookies, report, nil
}

func (s *Store) recover(report *port.CookieLoadReport, cause error) ([]domain.Cookie, *port.CookieLoadReport, error) {
	report.RecoveryAttempted = true
	report.RecoveryErr = cause
	s.logger.Warn("cookie file unreadable, trying backup",
		zap.String("path", s.path),
		zap.Error(cause))

	data, err := os.ReadFile(s.BackupPath())
	if err != nil {
		return nil, report, fmt.Errorf("cookie recovery failed: %w", err)
	}
	cookies, skipped, err := s.parse(data)
	if err != nil {
		return nil, report, fmt.Errorf("cookie recovery failed: %w", err)
	}

	report.Recovered = true
	report.Source = s.BackupPath()
	report.Skipped = skipped
	return cookies, report, nil
}

// parse decodes a whole file. A wrong header fails the file; a bad record
// only skips that line.
func (s *Store) parse(data []byte) ([]domain.Cookie, int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", domain.ErrCorruptCookieFile, err)
		}
		return nil, 0, fmt.Errorf("%w: missing header", domain.ErrCorruptCookieFile)
	}
	if string(bytes.TrimRight(scanner.Bytes(), "\r")) != Header {
		return nil, 0, fmt.Errorf("%w: unknown header", domain.ErrCorruptCookieFile)
	}

	var cookies []domain.Cookie
	skipped := 0
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		cookie, err := decodeRecord(lineNo, line)
		if domain.IsSkippable(err) {
			skipped++
			s.logger.Error("skipping malformed cookie record",
				zap.String("path", s.path),
				zap.Error(err))
			continue
		}
		cookies = append(cookies, cookie)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("%w: %v", domain.ErrCorruptCookieFile, err)
	}
	return cookies, skipped, nil
}

// decodeRecord returns a SkippableError for any record that cannot be used
func decodeRecord(lineNo int, line []byte) (domain.Cookie, error) {
	where := fmt.Sprintf("line %d", lineNo)
	var fields []string
	if err := json.Unmarshal(line, &fields); err != nil {
		return domain.Cookie{}, domain.NewSkippableError(fmt.Errorf("%w: %v", domain.ErrMalformedCookie, err), where)
	}
	if len(fields) != 4 && len(fields) != 5 {
		return domain.Cookie{}, domain.NewSkippableError(
			fmt.Errorf("%w: expected 4 or 5 fields, got %d", domain.ErrMalformedCookie, len(fields)), where)
	}
	cookie := domain.Cookie{Name: fields[0], Value: fields[1], Domain: fields[2], Path: fields[3]}
	if len(fields) == 5 {
		for _, flag := range strings.Split(fields[4], ",") {
			switch flag {
			case flagHostOnly:
				cookie.HostOnly = true
			case flagSecure:
				cookie.Secure = true
			}
		}
	}
	if err := cookie.Validate(); err != nil {
		return domain.Cookie{}, domain.NewSkippableError(err, where)
	}
	return cookie, nil
}

const (
	flagHostOnly = "host_only"
	flagSecure   = "secure"
)

func encodeRecord(c domain.Cookie) ([]byte, error) {
	fields := []string{c.Name, c.Value, c.Domain, c.Path}
	var flags []string
	if c.HostOnly {
		flags = append(flags, flagHostOnly)
	}
	if c.Secure {
		flags = append(flags, flagSecure)
	}
	if len(flags) > 0 {
		fields = append(fields, strings.Join(flags, ","))
	}
	return json.Marshal(fields)
}

// hasValidHeader reports whether the primary is worth keeping as the backup
func (s *Store) hasValidHeader() bool {
	f, err := os.Open(s.path)
	if err != nil {
		return false
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimRight(line, "\r\n") == Header
}

// Save rewrites the full set. A readable previous primary becomes the backup
// first, so a failed write leaves the backup untouched. An unreadable primary
// is never rotated over the backup.
func (s *Store) Save(cookies []domain.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create cookie dir: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(Header)
	buf.WriteByte('\n')
	for _, c := range cookies {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("refusing to save cookie %q: %w", c.Name, err)
		}
		line, err := encodeRecord(c)
		if err != nil {
			return fmt.Errorf("failed to encode cookie %q: %w", c.Name, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if _, err := os.Stat(s.path); err == nil {
		if s.hasValidHeader() {
			if err := os.Rename(s.path, s.BackupPath()); err != nil {
				return fmt.Errorf("failed to back up cookie file: %w", err)
			}
		} else {
			s.logger.Warn("not rotating unreadable cookie file over the backup", zap.String("path", s.path))
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cookie temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync cookie file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close cookie file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}
	return nil
}
