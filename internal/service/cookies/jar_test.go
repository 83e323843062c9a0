package cookies

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/adapter/cookiefile"
	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/port"
)

type failingStore struct {
	port.CookieStore
}

func (failingStore) Save([]domain.Cookie) error { return errors.New("read-only filesystem") }

func newJar(t *testing.T) (*Jar, *cookiefile.Store, *[]event.DomainEvent) {
	t.Helper()
	store := cookiefile.NewStore(filepath.Join(t.TempDir(), "cookies", cookiefile.FileName), nil)

	var mu sync.Mutex
	var events []event.DomainEvent
	dispatcher := event.NewInMemoryDispatcher(false, zap.NewNop())
	dispatcher.Subscribe(event.NewFuncHandler(func(e event.DomainEvent) error {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		return nil
	}, event.NameCookiesRecovered))

	return New(store, dispatcher, zap.NewNop()), store, &events
}

func TestJar_AddRemovePersists(t *testing.T) {
	jar, store, _ := newJar(t)

	sid := domain.Cookie{Name: "sid", Value: "1", Domain: "example.com", Path: "/"}
	require.NoError(t, jar.Add(sid))
	require.NoError(t, jar.Add(domain.Cookie{Name: "lang", Value: "en", Domain: "example.com", Path: "/"}))

	// same identity replaces
	sid.Value = "2"
	require.NoError(t, jar.Add(sid))
	assert.Equal(t, 2, jar.Len())

	onDisk, _, err := store.Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, jar.All(), onDisk)

	require.NoError(t, jar.Remove(domain.CookieKey{Name: "lang", Domain: "example.com", Path: "/"}))
	require.NoError(t, jar.Remove(domain.CookieKey{Name: "missing"}))

	onDisk, _, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, []domain.Cookie{sid}, onDisk)
}

func TestJar_AddRejectsMalformed(t *testing.T) {
	jar, _, _ := newJar(t)

	err := jar.Add(domain.Cookie{Value: "no name"})
	assert.ErrorIs(t, err, domain.ErrMalformedCookie)

	// would not survive the file round trip byte for byte
	err = jar.Add(domain.Cookie{Name: "bin", Value: "a\xffb", Domain: "a.test", Path: "/"})
	assert.ErrorIs(t, err, domain.ErrMalformedCookie)
	assert.Zero(t, jar.Len())
}

func TestJar_LoadRoundTrip(t *testing.T) {
	jar, store, events := newJar(t)
	want := []domain.Cookie{
		{Name: "a", Value: "1", Domain: "a.example", Path: "/"},
		{Name: "b", Value: "x|y", Domain: "b.example", Path: "/p"},
	}
	require.NoError(t, store.Save(want))

	report, err := jar.Load()
	require.NoError(t, err)
	assert.False(t, report.RecoveryAttempted)
	assert.Equal(t, want, jar.All())
	assert.Empty(t, *events)
}

func TestJar_LoadRecoversFromBackup(t *testing.T) {
	jar, store, events := newJar(t)
	good := []domain.Cookie{{Name: "a", Value: "1", Domain: "a.example", Path: "/"}}
	require.NoError(t, store.Save(good))
	require.NoError(t, store.Save(nil))
	require.NoError(t, os.WriteFile(store.Path(), []byte("garbage"), 0600))

	report, err := jar.Load()
	require.NoError(t, err)
	assert.True(t, report.Recovered)
	assert.Equal(t, good, jar.All())

	require.Len(t, *events, 1)
	recovered, ok := (*events)[0].(event.CookiesRecovered)
	require.True(t, ok)
	assert.True(t, recovered.Recovered)
	assert.Equal(t, 1, recovered.Restored)
}

func TestJar_LoadRecoveryFailureLeavesEmptyJar(t *testing.T) {
	jar, store, events := newJar(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0700))
	require.NoError(t, os.WriteFile(store.Path(), []byte("garbage"), 0600))

	report, err := jar.Load()
	assert.Error(t, err)
	assert.False(t, report.Recovered)
	assert.Zero(t, jar.Len())

	require.Len(t, *events, 1)
	recovered := (*events)[0].(event.CookiesRecovered)
	assert.False(t, recovered.Recovered)
	assert.NotEmpty(t, recovered.Error)
}

func TestJar_SaveFailureIsReported(t *testing.T) {
	jar := New(failingStore{}, nil, nil)

	err := jar.Add(domain.Cookie{Name: "a", Domain: "d", Path: "/"})
	assert.Error(t, err)
	// the in-memory set still holds the cookie; the next successful save reconciles disk
	assert.Equal(t, 1, jar.Len())
}
