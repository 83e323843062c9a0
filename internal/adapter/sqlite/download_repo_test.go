package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/browser-shell/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "profile", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(t *testing.T, url string, created time.Time) *domain.DownloadRecord {
	t.Helper()
	r := domain.NewDownloadRecord(url, "file.zip", "/tmp/file.zip", 2048, created)
	require.NoError(t, r.Activate(created))
	return r
}

func TestStore_SaveAndGetDownload(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Ping())

	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	r := record(t, "https://example.com/file.zip", created)
	require.NoError(t, r.ApplyProgress(1024, 2048, created.Add(time.Second)))
	require.NoError(t, store.SaveDownload(r))

	got, err := store.GetDownload(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, domain.DownloadActive, got.State)
	assert.EqualValues(t, 1024, got.ReceivedBytes)
	assert.EqualValues(t, 2048, got.TotalBytes)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, r.Interrupt("Network error", created.Add(2*time.Second)))
	require.NoError(t, store.SaveDownload(r))

	got, err = store.GetDownload(r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadInterrupted, got.State)
	assert.Equal(t, "Network error", got.InterruptReason)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(created.Add(2*time.Second)))
}

func TestStore_GetDownloadNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetDownload("https://nowhere.example/")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ListAndDeleteDownloads(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	urls := []string{"https://a.example/3", "https://a.example/1", "https://a.example/2"}
	for i, u := range urls {
		require.NoError(t, store.SaveDownload(record(t, u, base.Add(time.Duration(i)*time.Minute))))
	}

	list, err := store.ListDownloads()
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, r := range list {
		assert.Equal(t, urls[i], r.ID)
	}

	n, err := store.DeleteDownloads([]string{urls[0], urls[2], "https://missing.example/"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.DeleteDownloads(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err = store.ListDownloads()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, urls[1], list[0].ID)
}

func TestStore_PruneDownloads(t *testing.T) {
	store := openTestStore(t)
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sessionStart := old.Add(90 * 24 * time.Hour)

	finishedOld := record(t, "https://a.example/old", old)
	require.NoError(t, finishedOld.Complete(old.Add(time.Minute)))

	activeOld := record(t, "https://a.example/active", old)

	currentSession := record(t, "https://a.example/current", sessionStart.Add(time.Minute))
	require.NoError(t, currentSession.Cancel(sessionStart.Add(2*time.Minute)))

	for _, r := range []*domain.DownloadRecord{finishedOld, activeOld, currentSession} {
		require.NoError(t, store.SaveDownload(r))
	}

	n, err := store.PruneDownloads(sessionStart.Add(time.Hour), sessionStart)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetDownload(finishedOld.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetDownload(activeOld.ID)
	assert.NoError(t, err)
	_, err = store.GetDownload(currentSession.ID)
	assert.NoError(t, err)
}
