package event

import (
	"time"

	"github.com/vertextoedge/browser-shell/internal/domain"
)

// Event names
const (
	NameDownloadCreated       = "download.created"
	NameDownloadProgressed    = "download.progressed"
	NameDownloadStateChanged  = "download.state_changed"
	NameDownloadListChanged   = "download.list_changed"
	NameNavigationRetrying    = "navigation.retrying"
	NameNavigationFailed      = "navigation.failed"
	NameNavigationSucceeded   = "navigation.succeeded"
	NameNavigationTitle       = "navigation.title_changed"
	NameCertificateOverridden = "navigation.certificate_override"
	NameCookiesRecovered      = "cookies.recovered"
	NameProxyStatus           = "proxy.status"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func now() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// DownloadCreated is raised when a download is accepted and activated
type DownloadCreated struct {
	BaseEvent
	Download domain.DownloadSnapshot `json:"download"`
}

// EventName returns the event name
func (e DownloadCreated) EventName() string { return NameDownloadCreated }

// NewDownloadCreated creates a new DownloadCreated event
func NewDownloadCreated(s domain.DownloadSnapshot) DownloadCreated {
	return DownloadCreated{BaseEvent: now(), Download: s}
}

// DownloadProgressed is raised for every accepted byte count
type DownloadProgressed struct {
	BaseEvent
	Download domain.DownloadSnapshot `json:"download"`
}

// EventName returns the event name
func (e DownloadProgressed) EventName() string { return NameDownloadProgressed }

// NewDownloadProgressed creates a new DownloadProgressed event
func NewDownloadProgressed(s domain.DownloadSnapshot) DownloadProgressed {
	return DownloadProgressed{BaseEvent: now(), Download: s}
}

// DownloadStateChanged is raised on every record transition
type DownloadStateChanged struct {
	BaseEvent
	From     domain.DownloadState    `json:"from"`
	To       domain.DownloadState    `json:"to"`
	Download domain.DownloadSnapshot `json:"download"`
}

// EventName returns the event name
func (e DownloadStateChanged) EventName() string { return NameDownloadStateChanged }

// NewDownloadStateChanged creates a new DownloadStateChanged event
func NewDownloadStateChanged(from domain.DownloadState, s domain.DownloadSnapshot) DownloadStateChanged {
	return DownloadStateChanged{BaseEvent: now(), From: from, To: s.State, Download: s}
}

// DownloadListChanged is raised when records are added to or removed from the visible set
type DownloadListChanged struct {
	BaseEvent
	Count   int      `json:"count"`
	Removed []string `json:"removed,omitempty"`
}

// EventName returns the event name
func (e DownloadListChanged) EventName() string { return NameDownloadListChanged }

// NewDownloadListChanged creates a new DownloadListChanged event
func NewDownloadListChanged(count int, removed []string) DownloadListChanged {
	return DownloadListChanged{BaseEvent: now(), Count: count, Removed: removed}
}

// NavigationRetrying is raised when a failed load is scheduled for another try
type NavigationRetrying struct {
	BaseEvent
	ContextID  string        `json:"context_id"`
	URL        string        `json:"url"`
	Retry      int           `json:"retry"`
	MaxRetries int           `json:"max_retries"`
	Reason     string        `json:"reason"`
	Backoff    time.Duration `json:"backoff"`
}

// EventName returns the event name
func (e NavigationRetrying) EventName() string { return NameNavigationRetrying }

// NewNavigationRetrying creates a new NavigationRetrying event
func NewNavigationRetrying(contextID string, a *domain.PageLoadAttempt, backoff time.Duration) NavigationRetrying {
	return NavigationRetrying{
		BaseEvent:  now(),
		ContextID:  contextID,
		URL:        a.URL,
		Retry:      a.Retries,
		MaxRetries: a.MaxRetries,
		Reason:     a.LastError,
		Backoff:    backoff,
	}
}

// NavigationFailed is raised once the retry budget is exhausted. It is terminal.
type NavigationFailed struct {
	BaseEvent
	ContextID string `json:"context_id"`
	URL       string `json:"url"`
	Retries   int    `json:"retries"`
	Reason    string `json:"reason"`
}

// EventName returns the event name
func (e NavigationFailed) EventName() string { return NameNavigationFailed }

// NewNavigationFailed creates a new NavigationFailed event
func NewNavigationFailed(contextID string, a *domain.PageLoadAttempt) NavigationFailed {
	return NavigationFailed{
		BaseEvent: now(),
		ContextID: contextID,
		URL:       a.URL,
		Retries:   a.Retries,
		Reason:    a.LastError,
	}
}

// NavigationSucceeded is raised when a load finishes successfully
type NavigationSucceeded struct {
	BaseEvent
	ContextID string `json:"context_id"`
	URL       string `json:"url"`
	Retries   int    `json:"retries"`
}

// EventName returns the event name
func (e NavigationSucceeded) EventName() string { return NameNavigationSucceeded }

// NewNavigationSucceeded creates a new NavigationSucceeded event
func NewNavigationSucceeded(contextID string, a *domain.PageLoadAttempt) NavigationSucceeded {
	return NavigationSucceeded{BaseEvent: now(), ContextID: contextID, URL: a.URL, Retries: a.Retries}
}

// NavigationTitleChanged carries the document title of a loaded page
type NavigationTitleChanged struct {
	BaseEvent
	ContextID string `json:"context_id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
}

// EventName returns the event name
func (e NavigationTitleChanged) EventName() string { return NameNavigationTitle }

// NewNavigationTitleChanged creates a new NavigationTitleChanged event
func NewNavigationTitleChanged(contextID, url, title string) NavigationTitleChanged {
	return NavigationTitleChanged{BaseEvent: now(), ContextID: contextID, URL: url, Title: title}
}

// CertificateOverridden is the audit record of a trust downgrade
type CertificateOverridden struct {
	BaseEvent
	ContextID string `json:"context_id"`
	URL       string `json:"url"`
	Host      string `json:"host"`
	Class     string `json:"class"`
}

// EventName returns the event name
func (e CertificateOverridden) EventName() string { return NameCertificateOverridden }

// NewCertificateOverridden creates a new CertificateOverridden event
func NewCertificateOverridden(contextID, url, host, class string) CertificateOverridden {
	return CertificateOverridden{BaseEvent: now(), ContextID: contextID, URL: url, Host: host, Class: class}
}

// CookiesRecovered reports an attempt to restore cookies from the backup file
type CookiesRecovered struct {
	BaseEvent
	Recovered bool   `json:"recovered"`
	Restored  int    `json:"restored"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// EventName returns the event name
func (e CookiesRecovered) EventName() string { return NameCookiesRecovered }

// NewCookiesRecovered creates a new CookiesRecovered event
func NewCookiesRecovered(recovered bool, restored, skipped int, err error) CookiesRecovered {
	e := CookiesRecovered{BaseEvent: now(), Recovered: recovered, Restored: restored, Skipped: skipped}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// ProxyStatusChanged reports the anonymization toggle state with a user-facing message
type ProxyStatusChanged struct {
	BaseEvent
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
	Message string `json:"message"`
}

// EventName returns the event name
func (e ProxyStatusChanged) EventName() string { return NameProxyStatus }

// NewProxyStatusChanged creates a new ProxyStatusChanged event
func NewProxyStatusChanged(enabled bool, address, message string) ProxyStatusChanged {
	return ProxyStatusChanged{BaseEvent: now(), Enabled: enabled, Address: address, Message: message}
}
