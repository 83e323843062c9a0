package downloads

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/domain/repository"
	"github.com/vertextoedge/browser-shell/internal/logger"
	"github.com/vertextoedge/browser-shell/internal/port"
	"github.com/vertextoedge/browser-shell/internal/util/ratelimiter"
)

// SessionEndedReason is recorded on downloads that were still running when the last session closed
const SessionEndedReason = "session ended"

// Config holds download manager configuration
type Config struct {
	// PersistInterval bounds how often progress is written to history per download
	PersistInterval time.Duration
}

// DefaultConfig returns default download manager configuration
func DefaultConfig() *Config {
	return &Config{
		PersistInterval: 2 * time.Second,
	}
}

// entry serializes all work on one download. mu guards the record; pub is
// taken before mu is released so history writes and events for one download
// leave in the order the record changed.
type entry struct {
	mu       sync.Mutex
	pub      sync.Mutex
	record   *domain.DownloadRecord
	transfer port.Transfer
}

// publishLocked hands e over from mu to pub and runs fn. Caller holds e.mu.
func publishLocked(e *entry, fn func()) {
	e.pub.Lock()
	e.mu.Unlock()
	defer e.pub.Unlock()
	fn()
}

// Manager owns the set of download records for a session.
// Operations on distinct IDs only share the map read lock. Event handlers
// must not act on the download whose event they are handling.
type Manager struct {
	cfg        *Config
	fs         port.FileSystem
	history    repository.DownloadRepository
	dispatcher event.EventDispatcher
	logger     *zap.Logger
	persist    *ratelimiter.Keyed
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// New creates a download manager. history may be nil.
func New(
	cfg *Config,
	fs port.FileSystem,
	history repository.DownloadRepository,
	dispatcher event.EventDispatcher,
	logger *zap.Logger,
) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		cfg:        cfg,
		fs:         fs,
		history:    history,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}
	m.persist = ratelimiter.NewWithClock(cfg.PersistInterval, func() time.Time { return m.now() })
	return m
}

// SetClock replaces the time source. Call before any download is requested.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// RequestDownload accepts a new download: it resolves a collision-free
// destination, creates the record and activates it.
func (m *Manager) RequestDownload(ctx context.Context, sourceURL, suggestedName string, sizeHint int64, transfer port.Transfer) (domain.DownloadSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.DownloadSnapshot{}, err
	}
	if strings.TrimSpace(sourceURL) == "" {
		return domain.DownloadSnapshot{}, fmt.Errorf("%w: empty download url", domain.ErrInvalidInput)
	}
	if suggestedName == "" {
		suggestedName = nameFromURL(sourceURL)
	}

	m.mu.Lock()
	if existing, ok := m.entries[sourceURL]; ok {
		existing.mu.Lock()
		active := !existing.record.State.IsTerminal()
		existing.mu.Unlock()
		if active {
			m.mu.Unlock()
			return domain.DownloadSnapshot{}, fmt.Errorf("%w: %s", domain.ErrAlreadyExists, sourceURL)
		}
		m.removeLocked(sourceURL)
	}

	dest, err := m.fs.ResolveDestination(suggestedName, m.reservedLocked)
	if err != nil {
		m.mu.Unlock()
		return domain.DownloadSnapshot{}, fmt.Errorf("failed to resolve destination: %w", err)
	}

	now := m.now()
	record := domain.NewDownloadRecord(sourceURL, suggestedName, dest, sizeHint, now)
	if err := record.Activate(now); err != nil {
		m.mu.Unlock()
		return domain.DownloadSnapshot{}, err
	}

	e := &entry{record: record, transfer: transfer}
	// held until the creation events are out, so engine callbacks queue behind them
	e.pub.Lock()
	defer e.pub.Unlock()
	m.entries[sourceURL] = e
	m.order = append(m.order, sourceURL)
	count := len(m.order)
	snap := record.Snapshot()
	saved := *record
	m.mu.Unlock()

	m.logger.Info("download accepted",
		zap.String("url", sourceURL),
		zap.String("dest_path", dest),
		zap.Int64("size_hint", sizeHint))

	m.checkSpace(sourceURL, sizeHint)
	m.save(&saved)
	m.persist.Allow(sourceURL)

	m.dispatcher.Dispatch(event.NewDownloadCreated(snap))
	m.dispatcher.Dispatch(event.NewDownloadStateChanged(domain.DownloadPending, snap))
	m.dispatcher.Dispatch(event.NewDownloadListChanged(count, nil))
	return snap, nil
}

// reservedLocked reports destinations already claimed by tracked records.
// Caller holds m.mu.
func (m *Manager) reservedLocked(path string) bool {
	for _, e := range m.entries {
		if e.record.DestPath == path {
			return true
		}
	}
	return false
}

func (m *Manager) checkSpace(id string, sizeHint int64) {
	if sizeHint <= 0 {
		return
	}
	usage, err := m.fs.GetDiskUsage()
	if err != nil {
		m.logger.Debug("could not read disk usage", zap.Error(err))
		return
	}
	if uint64(sizeHint) > usage.Free {
		m.logger.Warn("download may not fit on disk",
			zap.String("url", id),
			zap.Int64("size_hint", sizeHint),
			zap.Uint64("free_bytes", usage.Free))
	}
}

// ReportProgress routes an engine byte count into the record.
// Updates for unknown or terminal records are rejected and logged.
func (m *Manager) ReportProgress(id string, received, total int64) error {
	e, err := m.lookup(id)
	if err != nil {
		logger.ContractViolation(m.logger, "progress for unknown download", zap.String("url", id))
		return err
	}
	return m.reportProgress(e, id, received, total)
}

func (m *Manager) reportProgress(e *entry, id string, received, total int64) error {
	e.mu.Lock()
	err := e.record.ApplyProgress(received, total, m.now())
	if err != nil {
		snap := e.record.Snapshot()
		e.mu.Unlock()
		return m.rejectProgress(id, received, snap, err)
	}
	snap := e.record.Snapshot()
	saved := *e.record
	publishLocked(e, func() {
		if ok, _ := m.persist.Allow(id); ok {
			m.save(&saved)
		}
		m.dispatcher.Dispatch(event.NewDownloadProgressed(snap))
	})
	return nil
}

func (m *Manager) rejectProgress(id string, received int64, snap domain.DownloadSnapshot, err error) error {
	switch {
	case errors.Is(err, domain.ErrTerminalState):
		logger.ContractViolation(m.logger, "progress for finished download",
			zap.String("url", id),
			zap.String("state", string(snap.State)),
			zap.Int64("received", received))
		return err
	case errors.Is(err, domain.ErrStaleProgress):
		m.logger.Debug("ignoring stale progress",
			zap.String("url", id),
			zap.Int64("received", received),
			zap.Int64("current", snap.ReceivedBytes))
		return err
	default:
		m.logger.Debug("ignoring progress", zap.String("url", id), zap.Error(err))
		return err
	}
}

// Finished marks full receipt reported by the engine
func (m *Manager) Finished(id string) error {
	return m.transition(id, "finished", false, completeFn)
}

// Interrupted records a non-recoverable engine fault
func (m *Manager) Interrupted(id, reason string) error {
	return m.transition(id, "interrupted", false, interruptFn(reason))
}

func completeFn(r *domain.DownloadRecord, now time.Time) error {
	return r.Complete(now)
}

func interruptFn(reason string) func(*domain.DownloadRecord, time.Time) error {
	if reason == "" {
		reason = "unknown error"
	}
	return func(r *domain.DownloadRecord, now time.Time) error {
		return r.Interrupt(reason, now)
	}
}

// Pause stops a running download
func (m *Manager) Pause(id string) error {
	return m.transition(id, "pause", true, func(r *domain.DownloadRecord, now time.Time) error {
		return r.Pause(now)
	}, func(t port.Transfer) { t.Pause() })
}

// Resume continues a paused download
func (m *Manager) Resume(id string) error {
	return m.transition(id, "resume", true, func(r *domain.DownloadRecord, now time.Time) error {
		return r.Resume(now)
	}, func(t port.Transfer) { t.Resume() })
}

// Cancel marks the record cancelled and then signals the transfer.
// The record is terminal even if the engine never acknowledges.
func (m *Manager) Cancel(id string) error {
	return m.transition(id, "cancel", true, func(r *domain.DownloadRecord, now time.Time) error {
		return r.Cancel(now)
	}, func(t port.Transfer) { t.Cancel() })
}

// TogglePause pauses an active download or resumes a paused one
func (m *Manager) TogglePause(id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	state := e.record.State
	e.mu.Unlock()

	if state == domain.DownloadPaused {
		return m.Resume(id)
	}
	return m.Pause(id)
}

// transition applies fn to the record under its lock. User actions on
// terminal records are logged no-ops; engine reports on them are contract
// violations. effect runs on the transfer after a successful transition,
// still under the record lock so actions on one download stay ordered.
func (m *Manager) transition(
	id, action string,
	userAction bool,
	fn func(*domain.DownloadRecord, time.Time) error,
	effects ...func(port.Transfer),
) error {
	e, err := m.lookup(id)
	if err != nil {
		if !userAction {
			logger.ContractViolation(m.logger, action+" for unknown download", zap.String("url", id))
		}
		return err
	}
	return m.transitionEntry(e, id, action, userAction, fn, effects...)
}

func (m *Manager) transitionEntry(
	e *entry,
	id, action string,
	userAction bool,
	fn func(*domain.DownloadRecord, time.Time) error,
	effects ...func(port.Transfer),
) error {
	e.mu.Lock()
	from := e.record.State
	if from.IsTerminal() {
		e.mu.Unlock()
		if userAction {
			m.logger.Debug("ignoring action on finished download",
				zap.String("url", id),
				zap.String("action", action),
				zap.String("state", string(from)))
		} else {
			logger.ContractViolation(m.logger, action+" for finished download",
				zap.String("url", id),
				zap.String("state", string(from)))
		}
		return nil
	}

	if err := fn(e.record, m.now()); err != nil {
		e.mu.Unlock()
		m.logger.Debug("rejected download transition",
			zap.String("url", id),
			zap.String("action", action),
			zap.Error(err))
		return err
	}
	if e.transfer != nil {
		for _, effect := range effects {
			effect(e.transfer)
		}
	}
	snap := e.record.Snapshot()
	saved := *e.record
	publishLocked(e, func() {
		if snap.State.IsTerminal() {
			m.persist.Forget(id)
		}
		m.save(&saved)
		m.dispatcher.Dispatch(event.NewDownloadStateChanged(from, snap))
	})
	return nil
}

// ClearFinished removes terminal records from the visible set and from history.
// Files on disk are untouched.
func (m *Manager) ClearFinished() int {
	m.mu.Lock()
	var removed []string
	for _, id := range m.order {
		e := m.entries[id]
		e.mu.Lock()
		terminal := e.record.State.IsTerminal()
		e.mu.Unlock()
		if terminal {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		m.removeLocked(id)
	}
	count := len(m.order)
	m.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}

	if m.history != nil {
		if _, err := m.history.DeleteDownloads(removed); err != nil {
			m.logger.Warn("failed to delete download history", zap.Error(err))
		}
	}
	m.logger.Info("cleared finished downloads", zap.Int("count", len(removed)))
	m.dispatcher.Dispatch(event.NewDownloadListChanged(count, removed))
	return len(removed)
}

// removeLocked drops id from the map and the order. Caller holds m.mu.
func (m *Manager) removeLocked(id string) {
	delete(m.entries, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.persist.Forget(id)
}

// Get returns a snapshot of one record
func (m *Manager) Get(id string) (domain.DownloadSnapshot, error) {
	e, err := m.lookup(id)
	if err != nil {
		return domain.DownloadSnapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Snapshot(), nil
}

// List returns snapshots in creation order
func (m *Manager) List() []domain.DownloadSnapshot {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.order))
	for _, id := range m.order {
		entries = append(entries, m.entries[id])
	}
	m.mu.RUnlock()

	snaps := make([]domain.DownloadSnapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snaps = append(snaps, e.record.Snapshot())
		e.mu.Unlock()
	}
	return snaps
}

// DownloadDir returns the download root
func (m *Manager) DownloadDir() string {
	return m.fs.RootDir()
}

// OpenDownloadFolder returns a file URL for the download root, for the host to open
func (m *Manager) OpenDownloadFolder() string {
	p := filepath.ToSlash(m.fs.RootDir())
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// Restore loads the previous session's history. Records that were still
// running are marked interrupted.
func (m *Manager) Restore() (int, error) {
	if m.history == nil {
		return 0, nil
	}
	records, err := m.history.ListDownloads()
	if err != nil {
		return 0, fmt.Errorf("failed to load download history: %w", err)
	}

	now := m.now()
	restored := 0
	m.mu.Lock()
	var stale []*domain.DownloadRecord
	for _, r := range records {
		if _, ok := m.entries[r.ID]; ok {
			continue
		}
		if !r.State.IsTerminal() {
			if err := r.Abandon(SessionEndedReason, now); err != nil {
				m.logger.Warn("skipping unreadable history record",
					zap.String("url", r.ID),
					zap.Error(err))
				continue
			}
			stale = append(stale, r)
		}
		m.entries[r.ID] = &entry{record: r}
		m.order = append(m.order, r.ID)
		restored++
	}
	count := len(m.order)
	m.mu.Unlock()

	for _, r := range stale {
		m.save(r)
	}
	if restored > 0 {
		m.logger.Info("restored download history",
			zap.Int("count", restored),
			zap.Int("interrupted", len(stale)))
		m.dispatcher.Dispatch(event.NewDownloadListChanged(count, nil))
	}
	return restored, nil
}

// Flush writes every tracked record to history
func (m *Manager) Flush() {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		saved := *e.record
		publishLocked(e, func() { m.save(&saved) })
	}
}

// Observer returns the engine callback sink for the download currently
// tracked under id. Callbacks arriving after that record was replaced by a
// new request for the same URL are dropped.
func (m *Manager) Observer(id string) port.TransferObserver {
	e, _ := m.lookup(id)
	return &observer{m: m, id: id, e: e}
}

// live reports whether e is still the record tracked under id
func (m *Manager) live(id string, e *entry) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return e != nil && m.entries[id] == e
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: download %s", domain.ErrNotFound, id)
	}
	return e, nil
}

// save writes to history; failures never fail the caller
func (m *Manager) save(r *domain.DownloadRecord) {
	if m.history == nil {
		return
	}
	if err := m.history.SaveDownload(r); err != nil {
		m.logger.Warn("failed to save download history",
			zap.String("url", r.ID),
			zap.Error(err))
	}
}

// nameFromURL derives a file name from the last path segment
func nameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := u.Path
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}

// observer adapts engine callbacks for one record to the manager.
// Rejections are already logged by the manager.
type observer struct {
	m  *Manager
	id string
	e  *entry
}

func (o *observer) current(callback string) bool {
	if o.m.live(o.id, o.e) {
		return true
	}
	logger.ContractViolation(o.m.logger, callback+" for a download that is no longer tracked",
		zap.String("url", o.id))
	return false
}

func (o *observer) BytesChanged(received, total int64) {
	if o.current("progress") {
		_ = o.m.reportProgress(o.e, o.id, received, total)
	}
}

func (o *observer) Finished() {
	if o.current("finished") {
		_ = o.m.transitionEntry(o.e, o.id, "finished", false, completeFn)
	}
}

func (o *observer) Interrupted(reason string) {
	if o.current("interrupted") {
		_ = o.m.transitionEntry(o.e, o.id, "interrupted", false, interruptFn(reason))
	}
}
