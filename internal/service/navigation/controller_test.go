package navigation

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/config"
	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/port"
)

// fakeClock fires timers only when the test advances it
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due timers in order, outside the lock
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
		var due *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = t
				break
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.fired = true
		c.now = due.at
		c.mu.Unlock()
		due.fn()
	}
}

// fakeLoader records loads and hands back their observers
type fakeLoader struct {
	mu        sync.Mutex
	loads     []string
	observers []port.LoadObserver
	stops     int
}

func (l *fakeLoader) Load(url string, obs port.LoadObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads = append(l.loads, url)
	l.observers = append(l.observers, obs)
}

func (l *fakeLoader) Stop() {
	l.mu.Lock()
	l.stops++
	l.mu.Unlock()
}

func (l *fakeLoader) last() port.LoadObserver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.observers[len(l.observers)-1]
}

func (l *fakeLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loads)
}

type recorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *recorder) handle(e event.DomainEvent) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventName())
	}
	return out
}

type harness struct {
	c      *Controller
	clock  *fakeClock
	loader *fakeLoader
	rec    *recorder
}

func newHarness(t *testing.T, policy *CertificatePolicy) *harness {
	t.Helper()
	h := &harness{clock: newFakeClock(), loader: &fakeLoader{}, rec: &recorder{}}
	dispatcher := event.NewInMemoryDispatcher(false, zap.NewNop())
	dispatcher.Subscribe(event.NewFuncHandler(h.rec.handle))

	cfg := &Config{LoadTimeout: 30 * time.Second, MaxRetries: 3, RetryBackoff: time.Second}
	h.c = New("tab-1", cfg, h.loader, policy, h.clock, dispatcher, zap.NewNop())
	return h
}

// failCurrent starts the latest load, fails it and lets the backoff elapse
func (h *harness) failCurrent() {
	obs := h.loader.last()
	obs.LoadStarted()
	obs.LoadFinished(false)
	h.clock.Advance(10 * time.Second)
}

func TestController_RetryExhaustion(t *testing.T) {
	h := newHarness(t, nil)

	target, err := h.c.Navigate("example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)
	assert.Equal(t, 1, h.loader.count())

	for i := 1; i <= 3; i++ {
		h.failCurrent()
		assert.Equal(t, i+1, h.loader.count(), "failure %d schedules retry", i)
	}

	// the attempt after maxRetries automatic failures ends the navigation
	h.failCurrent()
	assert.Equal(t, 4, h.loader.count(), "no further retry")

	a, ok := h.c.Attempt()
	require.True(t, ok)
	assert.Equal(t, domain.LoadStatusFailed, a.Status)
	assert.Equal(t, 3, a.Retries)
	assert.Contains(t, a.LastError, domain.ErrRetriesExhausted.Error())

	assert.Equal(t, []string{
		event.NameNavigationRetrying,
		event.NameNavigationRetrying,
		event.NameNavigationRetrying,
		event.NameNavigationFailed,
	}, h.rec.names())
}

func TestController_TimeoutCountsAsFailure(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.c.Navigate("https://slow.example")
	require.NoError(t, err)

	obs := h.loader.last()
	stopsBefore := h.loader.stops
	obs.LoadStarted()
	h.clock.Advance(29 * time.Second)
	assert.Empty(t, h.rec.names())

	h.clock.Advance(time.Second)
	assert.Equal(t, []string{event.NameNavigationRetrying}, h.rec.names())
	a, _ := h.c.Attempt()
	assert.Contains(t, a.LastError, "timed out")
	assert.Equal(t, stopsBefore+1, h.loader.stops, "timed-out load is stopped")

	// a late finish from the timed-out load is ignored
	obs.LoadFinished(true)
	a, _ = h.c.Attempt()
	assert.Equal(t, domain.LoadStatusBackoff, a.Status)

	h.clock.Advance(time.Second)
	assert.Equal(t, 2, h.loader.count())
	h.loader.last().LoadStarted()
	h.loader.last().LoadFinished(true)

	a, _ = h.c.Attempt()
	assert.Equal(t, domain.LoadStatusSucceeded, a.Status)
	assert.Equal(t, []string{event.NameNavigationRetrying, event.NameNavigationSucceeded}, h.rec.names())
}

func TestController_FinishDisarmsTimeout(t *testing.T) {
	h := newHarness(t, nil)
	_, _ = h.c.Navigate("https://fast.example")

	h.loader.last().LoadStarted()
	h.loader.last().LoadFinished(true)
	h.clock.Advance(time.Minute)

	assert.Equal(t, []string{event.NameNavigationSucceeded}, h.rec.names())
	assert.Equal(t, 1, h.loader.count())
}

func TestController_NavigateResetsBudget(t *testing.T) {
	h := newHarness(t, nil)
	_, _ = h.c.Navigate("https://a.example")
	h.failCurrent()
	h.failCurrent()

	a, _ := h.c.Attempt()
	assert.Equal(t, 2, a.Retries)

	// stale observer from the old navigation
	stale := h.loader.last()

	_, _ = h.c.Navigate("https://b.example")
	a, _ = h.c.Attempt()
	assert.Zero(t, a.Retries)
	assert.Equal(t, "https://b.example", a.URL)

	stale.LoadStarted()
	stale.LoadFinished(false)
	a, _ = h.c.Attempt()
	assert.Zero(t, a.Retries, "callbacks from the previous navigation are ignored")
}

func TestController_PendingRetryCancelledByNavigate(t *testing.T) {
	h := newHarness(t, nil)
	_, _ = h.c.Navigate("https://a.example")
	obs := h.loader.last()
	obs.LoadStarted()
	obs.LoadFinished(false)

	_, _ = h.c.Navigate("https://b.example")
	h.clock.Advance(time.Minute)

	h.loader.mu.Lock()
	defer h.loader.mu.Unlock()
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, h.loader.loads)
}

func TestController_CertificateNeverPolicy(t *testing.T) {
	h := newHarness(t, NewCertificatePolicy(config.CertificateOverrideNever))
	_, _ = h.c.Navigate("https://self-signed.example")

	obs := h.loader.last()
	obs.LoadStarted()
	decision := obs.CertificateError(port.CertificateError{
		URL: "https://self-signed.example", Host: "self-signed.example", Class: "unknown_authority",
	})
	assert.Equal(t, port.CertificateReject, decision)

	obs.LoadFinished(false)
	h.clock.Advance(time.Minute)

	a, _ := h.c.Attempt()
	assert.Equal(t, domain.LoadStatusFailed, a.Status)
	assert.False(t, a.CertificateOverrideApplied)
	assert.Equal(t, 1, h.loader.count(), "a rejected certificate is not retried")
	assert.Equal(t, []string{event.NameNavigationFailed}, h.rec.names())
}

func TestController_CertificateOncePerSession(t *testing.T) {
	policy := NewCertificatePolicy(config.CertificateOverrideOncePerSession)
	h := newHarness(t, policy)
	_, _ = h.c.Navigate("https://self-signed.example")

	obs := h.loader.last()
	obs.LoadStarted()
	details := port.CertificateError{Host: "self-signed.example", Class: "unknown_authority"}
	assert.Equal(t, port.CertificateAcceptOnce, obs.CertificateError(details))
	obs.LoadFinished(true)

	a, _ := h.c.Attempt()
	assert.True(t, a.CertificateOverrideApplied)
	assert.Zero(t, a.Retries, "the override retry is not counted")
	assert.Equal(t, "unknown_authority", policy.AcceptedClass())

	// a second controller in the same session shares the policy
	other := New("tab-2", nil, &fakeLoader{}, policy, h.clock, nil, nil)
	_, _ = other.Navigate("https://other.example")
	assert.Equal(t, port.CertificateAcceptOnce, other.CertificateError(details))
	assert.Equal(t, port.CertificateReject,
		other.CertificateError(port.CertificateError{Class: "hostname_mismatch"}))

	assert.Equal(t, []string{event.NameCertificateOverridden, event.NameNavigationSucceeded}, h.rec.names())
}

func TestController_TitleFromCurrentLoadOnly(t *testing.T) {
	h := newHarness(t, nil)
	_, _ = h.c.Navigate("https://a.example")
	old := h.loader.last().(port.TitleObserver)

	_, _ = h.c.Navigate("https://b.example")
	old.TitleChanged("https://a.example", "Old")
	h.loader.last().(port.TitleObserver).TitleChanged("https://b.example", "New")

	require.Equal(t, []string{event.NameNavigationTitle}, h.rec.names())
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	assert.Equal(t, "New", h.rec.events[0].(event.NavigationTitleChanged).Title)
}

func TestController_Reload(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.c.Reload()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _ = h.c.Navigate("https://a.example")
	target, err := h.c.Reload()
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", target)
	assert.Equal(t, 2, h.loader.count())
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "example.com", want: "https://example.com"},
		{in: "  http://example.com/a ", want: "http://example.com/a"},
		{in: "HTTPS://Example.com", want: "HTTPS://Example.com"},
		{in: "localhost:8080/x", want: "https://localhost:8080/x"},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
