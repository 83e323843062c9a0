package repository

import (
	"time"

	"github.com/vertextoedge/browser-shell/internal/domain"
)

// DownloadRepository persists download history across sessions
type DownloadRepository interface {
	// SaveDownload inserts or replaces the record keyed by its source URL
	SaveDownload(record *domain.DownloadRecord) error

	// GetDownload retrieves a record by source URL
	// Returns domain.ErrNotFound if no row exists
	GetDownload(id string) (*domain.DownloadRecord, error)

	// ListDownloads returns all records ordered by creation time
	ListDownloads() ([]*domain.DownloadRecord, error)

	// DeleteDownloads removes the given records
	// Returns the number of rows deleted
	DeleteDownloads(ids []string) (int, error)

	// PruneDownloads removes terminal records finished before olderThan
	// that were created before sessionStart
	PruneDownloads(olderThan, sessionStart time.Time) (int, error)
}
