package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"github.com/vertextoedge/browser-shell/internal/domain"
)

const downloadColumns = `url, suggested_name, dest_path, total_bytes, received_bytes,
	state, interrupt_reason, created_at, updated_at, finished_at`

// SaveDownload inserts or replaces the record keyed by its source URL
func (s *Store) SaveDownload(record *domain.DownloadRecord) error {
	query := `
		INSERT INTO downloads (` + downloadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			suggested_name = excluded.suggested_name,
			dest_path = excluded.dest_path,
			total_bytes = excluded.total_bytes,
			received_bytes = excluded.received_bytes,
			state = excluded.state,
			interrupt_reason = excluded.interrupt_reason,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			finished_at = excluded.finished_at
	`

	var reason sql.NullString
	if record.InterruptReason != "" {
		reason = sql.NullString{String: record.InterruptReason, Valid: true}
	}
	var finishedAt sql.NullInt64
	if record.FinishedAt != nil {
		finishedAt = sql.NullInt64{Int64: record.FinishedAt.UnixNano(), Valid: true}
	}

	_, err := s.db.Exec(query,
		record.ID, record.SuggestedName, record.DestPath,
		record.TotalBytes, record.ReceivedBytes,
		string(record.State), reason,
		record.CreatedAt.UnixNano(), record.UpdatedAt.UnixNano(), finishedAt,
	)
	return err
}

// GetDownload retrieves a record by source URL
func (s *Store) GetDownload(id string) (*domain.DownloadRecord, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE url = ?`

	record, err := scanDownload(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListDownloads returns all records ordered by creation time
func (s *Store) ListDownloads() ([]*domain.DownloadRecord, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads ORDER BY created_at ASC, url ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.DownloadRecord
	for rows.Next() {
		record, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteDownloads removes the given records
func (s *Store) DeleteDownloads(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := s.db.Exec("DELETE FROM downloads WHERE url IN ("+placeholders+")", args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// PruneDownloads removes terminal records finished before olderThan
// that were created before sessionStart
func (s *Store) PruneDownloads(olderThan, sessionStart time.Time) (int, error) {
	query := `
		DELETE FROM downloads
		WHERE state IN (?, ?, ?)
		  AND finished_at IS NOT NULL
		  AND finished_at < ?
		  AND created_at < ?
	`

	result, err := s.db.Exec(query,
		string(domain.DownloadCompleted), string(domain.DownloadCancelled), string(domain.DownloadInterrupted),
		olderThan.UnixNano(), sessionStart.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanDownload scans a single download row
func scanDownload(row rowScanner) (*domain.DownloadRecord, error) {
	record := &domain.DownloadRecord{}
	var state string
	var reason sql.NullString
	var createdAt, updatedAt int64
	var finishedAt sql.NullInt64

	err := row.Scan(
		&record.ID, &record.SuggestedName, &record.DestPath,
		&record.TotalBytes, &record.ReceivedBytes,
		&state, &reason, &createdAt, &updatedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	record.State = domain.DownloadState(state)
	if reason.Valid {
		record.InterruptReason = reason.String
	}
	record.CreatedAt = time.Unix(0, createdAt)
	record.UpdatedAt = time.Unix(0, updatedAt)
	if finishedAt.Valid {
		t := time.Unix(0, finishedAt.Int64)
		record.FinishedAt = &t
	}
	return record, nil
}
