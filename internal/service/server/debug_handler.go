package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/port"
	"github.com/vertextoedge/browser-shell/internal/service/cookies"
	"github.com/vertextoedge/browser-shell/internal/service/downloads"
	"github.com/vertextoedge/browser-shell/internal/service/proxy"
	"github.com/vertextoedge/browser-shell/internal/service/tabs"
)

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	downloads *downloads.Manager
	cookies   *cookies.Jar
	proxy     *proxy.Toggle
	tabs      *tabs.Set
	fs        port.FileSystem
	hub       *EventHub
	logger    *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(
	dl *downloads.Manager,
	jar *cookies.Jar,
	toggle *proxy.Toggle,
	tabSet *tabs.Set,
	fs port.FileSystem,
	hub *EventHub,
	logger *zap.Logger,
) *DebugHandler {
	return &DebugHandler{
		downloads: dl,
		cookies:   jar,
		proxy:     toggle,
		tabs:      tabSet,
		fs:        fs,
		hub:       hub,
		logger:    logger,
	}
}

// Stats is the session summary returned by /debug/stats
type Stats struct {
	Downloads        map[domain.DownloadState]int `json:"downloads"`
	Tabs             int                          `json:"tabs"`
	Cookies          int                          `json:"cookies"`
	ProxyEnabled     bool                         `json:"proxy_enabled"`
	EventSubscribers int                          `json:"event_subscribers"`
	Disk             *port.DiskUsage              `json:"disk,omitempty"`
}

// HandleStats handles debug statistics requests
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := Stats{
		Downloads:        make(map[domain.DownloadState]int),
		Tabs:             h.tabs.Len(),
		Cookies:          h.cookies.Len(),
		ProxyEnabled:     h.proxy.Enabled(),
		EventSubscribers: h.hub.Clients(),
	}
	for _, s := range h.downloads.List() {
		stats.Downloads[s.State]++
	}

	if h.fs != nil {
		usage, err := h.fs.GetDiskUsage()
		if err != nil {
			h.logger.Warn("failed to get disk usage", zap.Error(err))
		} else {
			stats.Disk = usage
		}
	}

	writeJSON(w, http.StatusOK, stats)
}
