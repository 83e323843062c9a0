package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/adapter/cookiefile"
	"github.com/vertextoedge/browser-shell/internal/adapter/filesystem"
	"github.com/vertextoedge/browser-shell/internal/adapter/httpengine"
	"github.com/vertextoedge/browser-shell/internal/adapter/socks"
	"github.com/vertextoedge/browser-shell/internal/adapter/sqlite"
	"github.com/vertextoedge/browser-shell/internal/config"
	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/port"
	"github.com/vertextoedge/browser-shell/internal/service/cookies"
	"github.com/vertextoedge/browser-shell/internal/service/downloads"
	"github.com/vertextoedge/browser-shell/internal/service/maintenance"
	"github.com/vertextoedge/browser-shell/internal/service/navigation"
	"github.com/vertextoedge/browser-shell/internal/service/proxy"
	"github.com/vertextoedge/browser-shell/internal/service/tabs"
)

// Context is one browsing session. It owns every long-lived component and
// is passed explicitly to whatever needs them.
type Context struct {
	ID        string
	StartedAt time.Time

	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry

	Dispatcher  *event.InMemoryDispatcher
	FileSystem  *filesystem.Manager
	Downloads   *downloads.Manager
	Cookies     *cookies.Jar
	Proxy       *proxy.Toggle
	Engine      *httpengine.Engine
	Policy      *navigation.CertificatePolicy
	Tabs        *tabs.Set
	Maintenance *maintenance.Service

	// store is nil when the history database could not be opened
	store *sqlite.Store

	closeOnce sync.Once
}

// New builds a session from cfg. It fails only when the download directory
// or the profile directory cannot be created; every other problem is logged
// and the session runs degraded.
func New(cfg *config.Config, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Context{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Config:    cfg,
		Registry:  prometheus.NewRegistry(),
	}
	c.Logger = logger.With(zap.String("session_id", c.ID))

	if err := os.MkdirAll(cfg.CookieDir(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	fsManager, err := filesystem.NewManagerWithBufferSize(cfg.Downloads.RootDir, cfg.Downloads.GetBufferSize())
	if err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	c.FileSystem = fsManager

	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Dispatcher = event.NewInMemoryDispatcher(false, c.Logger)
	c.Dispatcher.Subscribe(event.NewLoggingHandler(c.Logger))
	c.Dispatcher.Subscribe(event.NewMetricsHandler(c.Registry))

	var history port.DownloadRepository
	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		c.Logger.Error("download history unavailable, continuing without it",
			zap.String("path", cfg.Database.Path),
			zap.Error(err))
	} else {
		c.store = store
		history = store
	}

	c.Downloads = downloads.New(&downloads.Config{
		PersistInterval: cfg.Downloads.GetProgressPersistInterval(),
	}, fsManager, history, c.Dispatcher, c.Logger.Named("downloads"))
	if _, err := c.Downloads.Restore(); err != nil {
		c.Logger.Warn("failed to restore download history", zap.Error(err))
	}

	cookieStore := cookiefile.NewStore(filepath.Join(cfg.CookieDir(), cookiefile.FileName), c.Logger.Named("cookies"))
	c.Cookies = cookies.New(cookieStore, c.Dispatcher, c.Logger.Named("cookies"))
	// failures are reported through the jar's events and logs
	_, _ = c.Cookies.Load()

	c.Proxy = proxy.New(socks.New(cfg.Proxy.Address, cfg.Proxy.GetProbeTimeout()), c.Dispatcher, c.Logger.Named("proxy"))

	engineCfg := httpengine.DefaultConfig()
	engineCfg.ReportInterval = cfg.Downloads.GetProgressReportInterval()
	engineCfg.Jar = c.Cookies.HTTPJar()
	c.Engine = httpengine.New(engineCfg, c.Proxy, fsManager, c.Logger.Named("engine"))
	c.Dispatcher.Subscribe(event.NewFuncHandler(func(event.DomainEvent) error {
		c.Engine.CloseIdleConnections()
		return nil
	}, event.NameProxyStatus))

	c.Policy = navigation.NewCertificatePolicy(cfg.Navigation.CertificateOverride)
	if cfg.Navigation.AllowsCertificateOverride() {
		c.Logger.Warn("certificate override policy enabled; the first accepted certificate error class stays trusted for the whole session",
			zap.String("policy", cfg.Navigation.CertificateOverride))
	}

	navCfg := &navigation.Config{
		LoadTimeout:  cfg.Navigation.GetLoadTimeout(),
		MaxRetries:   cfg.Navigation.MaxRetries,
		RetryBackoff: cfg.Navigation.GetRetryBackoff(),
	}
	navLogger := c.Logger.Named("navigation")
	c.Tabs = tabs.New(cfg.Navigation.HomeURL, func(id string) *navigation.Controller {
		return navigation.New(id, navCfg, c.Engine.NewPageLoader(), c.Policy, navigation.RealClock(), c.Dispatcher, navLogger)
	}, c.Logger.Named("tabs"))
	c.Dispatcher.Subscribe(c.Tabs)

	c.Maintenance = maintenance.New(&maintenance.Config{
		Interval:       cfg.Maintenance.GetInterval(),
		TempFileMaxAge: cfg.Maintenance.GetTempFileMaxAge(),
		HistoryMaxAge:  cfg.Maintenance.GetHistoryMaxAge(),
		SessionStart:   c.StartedAt,
	}, history, fsManager, c.Logger.Named("maintenance"))

	c.Logger.Info("session created",
		zap.String("download_dir", fsManager.RootDir()),
		zap.String("profile_dir", cfg.ProfileDir()),
		zap.Bool("history", c.store != nil),
		zap.Int("cookies", c.Cookies.Len()))
	return c, nil
}

// OpenHomeTab opens the startup tab
func (c *Context) OpenHomeTab() error {
	_, err := c.Tabs.OpenHome()
	return err
}

// StartDownload probes url, registers the download and starts the transfer.
// An empty name is taken from the server or the URL.
func (c *Context) StartDownload(ctx context.Context, url, name string) (domain.DownloadSnapshot, error) {
	probedName, size, err := c.Engine.Probe(ctx, url)
	if err != nil {
		// servers that refuse HEAD can still serve GET
		c.Logger.Debug("download probe failed", zap.String("url", url), zap.Error(err))
	}
	if name == "" {
		name = probedName
	}

	transfer := c.Engine.NewTransfer(url)
	snap, err := c.Downloads.RequestDownload(ctx, url, name, size, transfer)
	if err != nil {
		return domain.DownloadSnapshot{}, err
	}
	transfer.Start(snap.DestPath, c.Downloads.Observer(url))
	return snap, nil
}

// Ping reports whether the history database is reachable
func (c *Context) Ping() error {
	if c.store == nil {
		return fmt.Errorf("download history is not available")
	}
	return c.store.Ping()
}

// Close stops background work and releases the history database
func (c *Context) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.Maintenance.Stop()
		for _, t := range c.Tabs.List() {
			if ctrl, ok := c.Tabs.Controller(t.ID); ok {
				ctrl.Stop()
			}
		}
		c.Downloads.Flush()
		c.Engine.CloseIdleConnections()
		if c.store != nil {
			err = c.store.Close()
		}
		c.Logger.Info("session closed")
	})
	return err
}
