package navigation

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/port"
)

// Config holds retry controller configuration
type Config struct {
	LoadTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultConfig returns default retry controller configuration
func DefaultConfig() *Config {
	return &Config{
		LoadTimeout:  30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Second,
	}
}

// Controller drives page loads for one browsing context. It arms a timeout
// when a load starts, retries failed loads within the budget and reports a
// terminal failure once the budget is spent.
//
// Every load handed to the engine gets a generation number; callbacks and
// timers from an older generation are ignored.
type Controller struct {
	id         string
	cfg        *Config
	loader     port.PageLoader
	policy     *CertificatePolicy
	clock      Clock
	dispatcher event.EventDispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	attempt *domain.PageLoadAttempt
	gen     uint64
	timeout Timer
	retry   Timer
}

// New creates a controller for the browsing context id
func New(
	id string,
	cfg *Config,
	loader port.PageLoader,
	policy *CertificatePolicy,
	clock Clock,
	dispatcher event.EventDispatcher,
	logger *zap.Logger,
) *Controller {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if policy == nil {
		policy = NewCertificatePolicy("")
	}
	if clock == nil {
		clock = RealClock()
	}
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		id:         id,
		cfg:        cfg,
		loader:     loader,
		policy:     policy,
		clock:      clock,
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("context_id", id)),
	}
}

// Navigate starts a user-initiated load with a fresh retry budget
func (c *Controller) Navigate(raw string) (string, error) {
	target, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.stopTimersLocked()
	c.attempt = domain.NewPageLoadAttempt(target, c.cfg.MaxRetries, c.clock.Now())
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.logger.Debug("navigating", zap.String("url", target))
	c.loader.Stop()
	c.loader.Load(target, &loadObserver{c: c, gen: gen})
	return target, nil
}

// Reload navigates to the current target again with a fresh budget
func (c *Controller) Reload() (string, error) {
	c.mu.Lock()
	var target string
	if c.attempt != nil {
		target = c.attempt.URL
	}
	c.mu.Unlock()

	if target == "" {
		return "", fmt.Errorf("%w: nothing to reload", domain.ErrInvalidInput)
	}
	return c.Navigate(target)
}

// Stop abandons the current navigation without reporting a failure
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopTimersLocked()
	c.gen++
	c.mu.Unlock()
	c.loader.Stop()
}

// Attempt returns a copy of the current navigation state
func (c *Controller) Attempt() (domain.PageLoadAttempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt == nil {
		return domain.PageLoadAttempt{}, false
	}
	return *c.attempt, true
}

// LoadStarted arms the timeout for the current load
func (c *Controller) LoadStarted() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.loadStarted(gen)
}

// LoadFinished reports the result of the current load
func (c *Controller) LoadFinished(ok bool) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.loadFinished(gen, ok, "load failed")
}

// CertificateError decides a certificate problem on the current load
func (c *Controller) CertificateError(details port.CertificateError) port.CertificateDecision {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.certificateError(gen, details)
}

// currentLocked reports whether gen is the live load of a running navigation
func (c *Controller) currentLocked(gen uint64) bool {
	return gen == c.gen && c.attempt != nil && !c.attempt.IsTerminal()
}

func (c *Controller) loadStarted(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) {
		return
	}

	c.attempt.Arm(c.cfg.LoadTimeout, c.clock.Now())
	if c.timeout != nil {
		c.timeout.Stop()
	}
	c.timeout = c.clock.AfterFunc(c.cfg.LoadTimeout, func() {
		c.timedOut(gen)
	})
}

func (c *Controller) timedOut(gen uint64) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.timeout = nil
	// Stop before the retry is scheduled so it cannot cancel the retry's load
	c.loader.Stop()
	events := c.failLocked(fmt.Sprintf("%v after %s", domain.ErrLoadTimeout, c.cfg.LoadTimeout))
	c.mu.Unlock()

	c.dispatcher.DispatchAll(events)
}

func (c *Controller) loadFinished(gen uint64, ok bool, reason string) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	if c.timeout != nil {
		c.timeout.Stop()
		c.timeout = nil
	}

	var events []event.DomainEvent
	if ok {
		c.attempt.MarkSucceeded(c.clock.Now())
		events = append(events, event.NewNavigationSucceeded(c.id, c.attempt))
		c.logger.Debug("page loaded",
			zap.String("url", c.attempt.URL),
			zap.Int("retries", c.attempt.Retries))
	} else {
		events = c.failLocked(reason)
	}
	c.mu.Unlock()

	c.dispatcher.DispatchAll(events)
}

// failLocked applies the retry policy. Caller holds c.mu.
func (c *Controller) failLocked(reason string) []event.DomainEvent {
	now := c.clock.Now()
	a := c.attempt
	c.gen++

	if !a.MarkFailed(reason, now) {
		a.LastError = fmt.Sprintf("%v: %s", domain.ErrRetriesExhausted, reason)
		c.logger.Warn("page load failed, retries exhausted",
			zap.String("url", a.URL),
			zap.Int("retries", a.Retries),
			zap.String("reason", reason))
		return []event.DomainEvent{event.NewNavigationFailed(c.id, a)}
	}

	backoff := a.RetryBackoff(c.cfg.RetryBackoff)
	gen := c.gen
	target := a.URL
	c.retry = c.clock.AfterFunc(backoff, func() {
		c.startRetry(gen, target)
	})

	c.logger.Info("page load failed, retrying",
		zap.String("url", a.URL),
		zap.Int("retry", a.Retries),
		zap.Int("max_retries", a.MaxRetries),
		zap.String("reason", reason),
		zap.Duration("backoff", backoff))
	return []event.DomainEvent{event.NewNavigationRetrying(c.id, a, backoff)}
}

func (c *Controller) startRetry(gen uint64, target string) {
	c.mu.Lock()
	if gen != c.gen || c.attempt == nil || c.attempt.Status != domain.LoadStatusBackoff {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.attempt.Status = domain.LoadStatusLoading
	c.attempt.UpdatedAt = c.clock.Now()
	c.mu.Unlock()

	c.loader.Load(target, &loadObserver{c: c, gen: gen})
}

// certificateError consults the session policy. A rejection ends the
// navigation; the certificate will not become valid by retrying.
func (c *Controller) certificateError(gen uint64, details port.CertificateError) port.CertificateDecision {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return port.CertificateReject
	}

	accept, installed := c.policy.Decide(details.Class)
	if accept {
		c.attempt.CertificateOverrideApplied = true
		url := c.attempt.URL
		c.mu.Unlock()

		c.logger.Warn("accepting certificate error",
			zap.String("url", url),
			zap.String("host", details.Host),
			zap.String("class", details.Class),
			zap.String("description", details.Description),
			zap.Bool("override_installed", installed),
			zap.String("policy", c.policy.Mode()))
		c.dispatcher.Dispatch(event.NewCertificateOverridden(c.id, url, details.Host, details.Class))
		return port.CertificateAcceptOnce
	}

	if c.timeout != nil {
		c.timeout.Stop()
		c.timeout = nil
	}
	reason := fmt.Sprintf("%v: %s (%s)", domain.ErrCertificateReject, details.Description, details.Class)
	c.attempt.LastError = reason
	c.attempt.Status = domain.LoadStatusFailed
	c.attempt.Deadline = time.Time{}
	c.attempt.UpdatedAt = c.clock.Now()
	c.gen++
	ev := event.NewNavigationFailed(c.id, c.attempt)
	c.mu.Unlock()

	c.logger.Warn("certificate rejected",
		zap.String("url", details.URL),
		zap.String("host", details.Host),
		zap.String("class", details.Class))
	c.dispatcher.Dispatch(ev)
	return port.CertificateReject
}

func (c *Controller) stopTimersLocked() {
	if c.timeout != nil {
		c.timeout.Stop()
		c.timeout = nil
	}
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// loadObserver binds engine callbacks to the load they belong to
type loadObserver struct {
	c   *Controller
	gen uint64
}

func (o *loadObserver) LoadStarted() {
	o.c.loadStarted(o.gen)
}

func (o *loadObserver) LoadFinished(ok bool) {
	o.c.loadFinished(o.gen, ok, "load failed")
}

func (o *loadObserver) CertificateError(details port.CertificateError) port.CertificateDecision {
	return o.c.certificateError(o.gen, details)
}

func (o *loadObserver) TitleChanged(url, title string) {
	o.c.mu.Lock()
	live := o.gen == o.c.gen
	o.c.mu.Unlock()
	if live {
		o.c.dispatcher.Dispatch(event.NewNavigationTitleChanged(o.c.id, url, title))
	}
}

// LoadFailed lets engines that know why a load failed report the reason
func (o *loadObserver) LoadFailed(reason string) {
	o.c.loadFinished(o.gen, false, reason)
}
