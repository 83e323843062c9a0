package cookiefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/browser-shell/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "cookies", FileName), nil)
}

func TestStore_RoundTrip(t *testing.T) {
	sets := map[string][]domain.Cookie{
		"plain": {
			{Name: "sid", Value: "abc123", Domain: ".example.com", Path: "/"},
			{Name: "lang", Value: "en", Domain: "example.com", Path: "/docs"},
		},
		"awkward characters": {
			{Name: "q", Value: `a|b;c,d"e\f`, Domain: "x.test", Path: "/a b"},
			{Name: "nl", Value: "line1\nline2\ttab", Domain: "x.test", Path: "/"},
			{Name: "utf8", Value: "café ☕", Domain: "", Path: ""},
		},
		"flags": {
			{Name: "tok", Value: "s", Domain: "a.test", Path: "/", HostOnly: true, Secure: true},
			{Name: "wide", Value: "w", Domain: "a.test", Path: "/", Secure: true},
		},
		"empty set": {},
	}

	for name, cookies := range sets {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t)
			require.NoError(t, s.Save(cookies))

			got, report, err := s.Load()
			require.NoError(t, err)
			assert.False(t, report.RecoveryAttempted)
			assert.Zero(t, report.Skipped)
			assert.ElementsMatch(t, cookies, got)
		})
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	got, report, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, report.RecoveryAttempted)
	assert.Empty(t, report.Source)
}

func TestStore_LoadEmptyFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("\n  \n"), 0600))

	got, report, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, report.Empty)
	assert.False(t, report.RecoveryAttempted)
}

func TestStore_SaveKeepsOneBackup(t *testing.T) {
	s := newTestStore(t)
	first := []domain.Cookie{{Name: "a", Value: "1", Domain: "d", Path: "/"}}
	second := []domain.Cookie{{Name: "b", Value: "2", Domain: "d", Path: "/"}}
	third := []domain.Cookie{{Name: "c", Value: "3", Domain: "d", Path: "/"}}

	require.NoError(t, s.Save(first))
	assert.NoFileExists(t, s.BackupPath())

	require.NoError(t, s.Save(second))
	require.NoError(t, s.Save(third))

	backup := NewStore(s.BackupPath(), nil)
	got, _, err := backup.Load()
	require.NoError(t, err)
	assert.Equal(t, second, got)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "only the primary and one backup remain")
}

func TestStore_RecoverFromBackup(t *testing.T) {
	s := newTestStore(t)
	good := []domain.Cookie{
		{Name: "sid", Value: "abc", Domain: "example.com", Path: "/"},
		{Name: "pref", Value: "dark", Domain: "example.com", Path: "/"},
	}
	require.NoError(t, s.Save(good))
	require.NoError(t, s.Save([]domain.Cookie{{Name: "new", Value: "x", Domain: "e", Path: "/"}}))

	// corrupt the primary; the backup holds the first set
	require.NoError(t, os.WriteFile(s.Path(), []byte("\x00\x01garbage|||"), 0600))

	got, report, err := s.Load()
	require.NoError(t, err)
	assert.True(t, report.RecoveryAttempted)
	assert.True(t, report.Recovered)
	assert.ErrorIs(t, report.RecoveryErr, domain.ErrCorruptCookieFile)
	assert.Equal(t, s.BackupPath(), report.Source)
	assert.Equal(t, good, got)
}

func TestStore_RecoverAfterInterruptedSave(t *testing.T) {
	s := newTestStore(t)
	good := []domain.Cookie{{Name: "sid", Value: "abc", Domain: "example.com", Path: "/"}}
	require.NoError(t, s.Save(good))
	require.NoError(t, os.Rename(s.Path(), s.BackupPath()))

	got, report, err := s.Load()
	require.NoError(t, err)
	assert.True(t, report.Recovered)
	assert.Equal(t, good, got)
}

func TestStore_RecoveryFails(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("not a cookie file\n"), 0600))

	got, report, err := s.Load()
	assert.Error(t, err)
	assert.Empty(t, got)
	assert.True(t, report.RecoveryAttempted)
	assert.False(t, report.Recovered)
}

func TestStore_SkipsMalformedRecords(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0700))
	content := Header + "\n" +
		`["sid","abc","example.com","/"]` + "\n" +
		`["too","few"]` + "\n" +
		`{"name":"object"}` + "\n" +
		`["","nameless","example.com","/"]` + "\n" +
		`["ok","1","example.com","/"]` + "\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0600))

	got, report, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, report.Skipped)
	assert.False(t, report.RecoveryAttempted)
	assert.Equal(t, []domain.Cookie{
		{Name: "sid", Value: "abc", Domain: "example.com", Path: "/"},
		{Name: "ok", Value: "1", Domain: "example.com", Path: "/"},
	}, got)
}

func TestStore_SaveRejectsInvalidUTF8(t *testing.T) {
	s := newTestStore(t)
	good := []domain.Cookie{{Name: "a", Value: "1", Domain: "a.test", Path: "/"}}
	require.NoError(t, s.Save(good))

	err := s.Save([]domain.Cookie{{Name: "bad", Value: "a\xffb", Domain: "a.test", Path: "/"}})
	assert.ErrorIs(t, err, domain.ErrMalformedCookie)

	// nothing was rewritten
	got, _, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, good, got)
}

func TestStore_SaveAfterRecoveryKeepsGoodBackup(t *testing.T) {
	s := newTestStore(t)
	good := []domain.Cookie{{Name: "a", Value: "1", Domain: "a.test", Path: "/"}}
	require.NoError(t, s.Save(good))
	require.NoError(t, s.Save(good))
	require.NoError(t, os.WriteFile(s.Path(), []byte("garbage"), 0600))

	got, report, err := s.Load()
	require.NoError(t, err)
	require.True(t, report.Recovered)
	require.Equal(t, good, got)

	next := append(got, domain.Cookie{Name: "b", Value: "2", Domain: "a.test", Path: "/"})
	require.NoError(t, s.Save(next))

	backup, err := os.ReadFile(s.BackupPath())
	require.NoError(t, err)
	assert.NotContains(t, string(backup), "garbage")
	assert.Contains(t, string(backup), `["a","1","a.test","/"]`)

	got, _, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, next, got)
}
