package event

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadCreated:
		h.logger.Info("download started",
			zap.String("url", e.Download.ID),
			zap.String("dest_path", e.Download.DestPath),
			zap.Int64("total_bytes", e.Download.TotalBytes),
		)
	case DownloadProgressed:
		// too chatty for anything but debug
		h.logger.Debug("download progressed",
			zap.String("url", e.Download.ID),
			zap.Int64("received_bytes", e.Download.ReceivedBytes),
		)
	case DownloadStateChanged:
		fields := []zap.Field{
			zap.String("url", e.Download.ID),
			zap.String("from", string(e.From)),
			zap.String("to", string(e.To)),
		}
		if e.Download.InterruptReason != "" {
			fields = append(fields, zap.String("reason", e.Download.InterruptReason))
		}
		if e.To == domain.DownloadInterrupted {
			h.logger.Warn("download interrupted", fields...)
		} else {
			h.logger.Info("download state changed", fields...)
		}
	case NavigationRetrying:
		h.logger.Info("retrying page load",
			zap.String("context_id", e.ContextID),
			zap.String("url", e.URL),
			zap.Int("retry", e.Retry),
			zap.Int("max_retries", e.MaxRetries),
			zap.String("reason", e.Reason),
			zap.Duration("backoff", e.Backoff),
		)
	case NavigationFailed:
		h.logger.Warn("page load failed",
			zap.String("context_id", e.ContextID),
			zap.String("url", e.URL),
			zap.Int("retries", e.Retries),
			zap.String("reason", e.Reason),
		)
	case CertificateOverridden:
		h.logger.Warn("certificate error overridden",
			zap.String("context_id", e.ContextID),
			zap.String("url", e.URL),
			zap.String("host", e.Host),
			zap.String("class", e.Class),
		)
	case CookiesRecovered:
		h.logger.Warn("cookie recovery attempted",
			zap.Bool("recovered", e.Recovered),
			zap.Int("restored", e.Restored),
			zap.Int("skipped", e.Skipped),
			zap.String("error", e.Error),
		)
	case ProxyStatusChanged:
		h.logger.Info("proxy status changed",
			zap.Bool("enabled", e.Enabled),
			zap.String("address", e.Address),
			zap.String("message", e.Message),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{AllEvents}
}

// MetricsHandler turns events into Prometheus metrics
type MetricsHandler struct {
	downloadsStarted    prometheus.Counter
	downloadsFinished   *prometheus.CounterVec
	bytesReceived       prometheus.Counter
	navigationRetries   prometheus.Counter
	navigationFailures  prometheus.Counter
	certificateOverride prometheus.Counter
	cookieRecoveries    *prometheus.CounterVec
	proxyEnabled        prometheus.Gauge

	// last byte count per download, used to turn absolute counts into increments
	mu       sync.Mutex
	received map[string]int64
}

// NewMetricsHandler registers the collectors on reg
func NewMetricsHandler(reg prometheus.Registerer) *MetricsHandler {
	factory := promauto.With(reg)
	return &MetricsHandler{
		downloadsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_shell_downloads_started_total",
			Help: "Total number of downloads accepted",
		}),
		downloadsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_shell_downloads_finished_total",
			Help: "Total number of downloads reaching a terminal state",
		}, []string{"state"}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_shell_download_bytes_total",
			Help: "Total bytes received by downloads",
		}),
		navigationRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_shell_navigation_retries_total",
			Help: "Total number of automatic page load retries",
		}),
		navigationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_shell_navigation_failures_total",
			Help: "Total number of page loads that exhausted their retries",
		}),
		certificateOverride: factory.NewCounter(prometheus.CounterOpts{
			Name: "browser_shell_certificate_overrides_total",
			Help: "Total number of certificate errors accepted",
		}),
		cookieRecoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_shell_cookie_recoveries_total",
			Help: "Cookie backup recovery attempts",
		}, []string{"result"}),
		proxyEnabled: factory.NewGauge(prometheus.GaugeOpts{
			Name: "browser_shell_proxy_enabled",
			Help: "1 when traffic is routed through the proxy",
		}),
		received: make(map[string]int64),
	}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadCreated:
		h.downloadsStarted.Inc()
	case DownloadProgressed:
		h.addReceived(e.Download.ID, e.Download.ReceivedBytes)
	case DownloadStateChanged:
		if e.To.IsTerminal() {
			h.downloadsFinished.WithLabelValues(string(e.To)).Inc()
			h.mu.Lock()
			delete(h.received, e.Download.ID)
			h.mu.Unlock()
		}
	case NavigationRetrying:
		h.navigationRetries.Inc()
	case NavigationFailed:
		h.navigationFailures.Inc()
	case CertificateOverridden:
		h.certificateOverride.Inc()
	case CookiesRecovered:
		result := "failed"
		if e.Recovered {
			result = "recovered"
		}
		h.cookieRecoveries.WithLabelValues(result).Inc()
	case ProxyStatusChanged:
		if e.Enabled {
			h.proxyEnabled.Set(1)
		} else {
			h.proxyEnabled.Set(0)
		}
	}
	return nil
}

func (h *MetricsHandler) addReceived(id string, received int64) {
	h.mu.Lock()
	delta := received - h.received[id]
	h.received[id] = received
	h.mu.Unlock()

	if delta > 0 {
		h.bytesReceived.Add(float64(delta))
	}
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameDownloadCreated,
		NameDownloadProgressed,
		NameDownloadStateChanged,
		NameNavigationRetrying,
		NameNavigationFailed,
		NameCertificateOverridden,
		NameCookiesRecovered,
		NameProxyStatus,
	}
}
