package cookies

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/logger"
	"github.com/vertextoedge/browser-shell/internal/port"
)

// Jar is the session's cookie set. Every add or remove rewrites the
// persisted file so memory and disk stay reconciled.
type Jar struct {
	store      port.CookieStore
	dispatcher event.EventDispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	cookies map[domain.CookieKey]domain.Cookie
}

// New creates an empty jar backed by store
func New(store port.CookieStore, dispatcher event.EventDispatcher, logger *zap.Logger) *Jar {
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jar{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		cookies:    make(map[domain.CookieKey]domain.Cookie),
	}
}

// Load replaces the in-memory set with the persisted one.
// Read failures are reported and logged; the session continues with what could be read.
func (j *Jar) Load() (*port.CookieLoadReport, error) {
	cookies, report, err := j.store.Load()

	j.mu.Lock()
	j.cookies = make(map[domain.CookieKey]domain.Cookie, len(cookies))
	for _, c := range cookies {
		j.cookies[c.Key()] = c
	}
	count := len(j.cookies)
	j.mu.Unlock()

	if report != nil && report.RecoveryAttempted {
		if report.Recovered {
			j.logger.Warn("cookies recovered from backup",
				zap.String("source", report.Source),
				zap.Int("count", count))
		} else {
			logger.Critical(j.logger, "cookie recovery failed, starting with an empty jar", zap.Error(err))
		}
		j.dispatcher.Dispatch(event.NewCookiesRecovered(report.Recovered, count, report.Skipped, err))
	}
	if report != nil && report.Skipped > 0 {
		j.logger.Error("dropped malformed cookies", zap.Int("skipped", report.Skipped))
	}

	j.logger.Info("cookies loaded", zap.Int("count", count))
	return report, err
}

// Add stores or replaces a cookie and persists the full set
func (j *Jar) Add(c domain.Cookie) error {
	if err := c.Validate(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies[c.Key()] = c
	return j.saveLocked()
}

// Remove deletes a cookie by identity and persists the full set.
// Removing an unknown cookie is not an error.
func (j *Jar) Remove(key domain.CookieKey) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.cookies[key]; !ok {
		return nil
	}
	delete(j.cookies, key)
	return j.saveLocked()
}

// All returns the cookies ordered by domain, path and name
func (j *Jar) All() []domain.Cookie {
	j.mu.Lock()
	out := j.snapshotLocked()
	j.mu.Unlock()
	return out
}

// Len returns the number of cookies
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cookies)
}

func (j *Jar) snapshotLocked() []domain.Cookie {
	out := make([]domain.Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		out = append(out, c)
	}
	domain.SortCookies(out)
	return out
}

// saveLocked writes under the jar lock so concurrent events persist in order
func (j *Jar) saveLocked() error {
	if err := j.store.Save(j.snapshotLocked()); err != nil {
		j.logger.Error("failed to persist cookies", zap.Error(err))
		return fmt.Errorf("failed to persist cookies: %w", err)
	}
	return nil
}
