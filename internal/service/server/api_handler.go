package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/service/cookies"
	"github.com/vertextoedge/browser-shell/internal/service/downloads"
	"github.com/vertextoedge/browser-shell/internal/service/proxy"
	"github.com/vertextoedge/browser-shell/internal/service/tabs"
)

// DownloadStarter probes, registers and starts a download
type DownloadStarter interface {
	StartDownload(ctx context.Context, url, name string) (domain.DownloadSnapshot, error)
}

// APIHandler serves the control API
type APIHandler struct {
	starter   DownloadStarter
	downloads *downloads.Manager
	cookies   *cookies.Jar
	proxy     *proxy.Toggle
	tabs      *tabs.Set
	logger    *zap.Logger
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(
	starter DownloadStarter,
	dl *downloads.Manager,
	jar *cookies.Jar,
	toggle *proxy.Toggle,
	tabSet *tabs.Set,
	logger *zap.Logger,
) *APIHandler {
	return &APIHandler{
		starter:   starter,
		downloads: dl,
		cookies:   jar,
		proxy:     toggle,
		tabs:      tabSet,
		logger:    logger,
	}
}

// DownloadKey encodes a source URL for use as a path segment
func DownloadKey(sourceURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(sourceURL))
}

// downloadView adds the path key to a snapshot
type downloadView struct {
	domain.DownloadSnapshot
	Key string `json:"key"`
}

func viewOf(s domain.DownloadSnapshot) downloadView {
	return downloadView{DownloadSnapshot: s, Key: DownloadKey(s.ID)}
}

// HandleListDownloads handles GET /downloads
func (h *APIHandler) HandleListDownloads(w http.ResponseWriter, r *http.Request) {
	list := h.downloads.List()
	out := make([]downloadView, 0, len(list))
	for _, s := range list {
		out = append(out, viewOf(s))
	}
	writeJSON(w, http.StatusOK, out)
}

type startDownloadRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// HandleStartDownload handles POST /downloads
func (h *APIHandler) HandleStartDownload(w http.ResponseWriter, r *http.Request) {
	var req startDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	snap, err := h.starter.StartDownload(r.Context(), req.URL, req.Filename)
	if err != nil {
		h.writeDomainError(w, "failed to start download", err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(snap))
}

// HandleDownloadAction handles POST /downloads/{key}/{action}
func (h *APIHandler) HandleDownloadAction(w http.ResponseWriter, r *http.Request) {
	raw, err := base64.RawURLEncoding.DecodeString(r.PathValue("key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid download key")
		return
	}
	id := string(raw)

	var actionErr error
	switch r.PathValue("action") {
	case "pause":
		actionErr = h.downloads.Pause(id)
	case "resume":
		actionErr = h.downloads.Resume(id)
	case "cancel":
		actionErr = h.downloads.Cancel(id)
	case "toggle":
		actionErr = h.downloads.TogglePause(id)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if actionErr != nil {
		h.writeDomainError(w, "download action failed", actionErr)
		return
	}

	snap, err := h.downloads.Get(id)
	if err != nil {
		h.writeDomainError(w, "download action failed", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(snap))
}

// HandleClearDownloads handles POST /downloads/clear
func (h *APIHandler) HandleClearDownloads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": h.downloads.ClearFinished()})
}

// HandleDownloadFolder handles GET /downloads/folder
func (h *APIHandler) HandleDownloadFolder(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"dir": h.downloads.DownloadDir(),
		"url": h.downloads.OpenDownloadFolder(),
	})
}

// HandleListCookies handles GET /cookies
func (h *APIHandler) HandleListCookies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cookies.All())
}

// HandleDeleteCookie handles DELETE /cookies?name=&domain=&path=
func (h *APIHandler) HandleDeleteCookie(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := domain.CookieKey{Name: q.Get("name"), Domain: q.Get("domain"), Path: q.Get("path")}
	if key.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.cookies.Remove(key); err != nil {
		h.writeDomainError(w, "failed to remove cookie", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type proxyStatus struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

func (h *APIHandler) proxyStatus() proxyStatus {
	return proxyStatus{Enabled: h.proxy.Enabled(), Address: h.proxy.Address()}
}

// HandleProxyStatus handles GET /proxy
func (h *APIHandler) HandleProxyStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.proxyStatus())
}

// HandleProxyEnable handles POST /proxy/enable
func (h *APIHandler) HandleProxyEnable(w http.ResponseWriter, r *http.Request) {
	if err := h.proxy.Enable(r.Context()); err != nil {
		h.writeDomainError(w, "failed to enable proxy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.proxyStatus())
}

// HandleProxyDisable handles POST /proxy/disable
func (h *APIHandler) HandleProxyDisable(w http.ResponseWriter, r *http.Request) {
	h.proxy.Disable()
	writeJSON(w, http.StatusOK, h.proxyStatus())
}

// HandleListTabs handles GET /tabs
func (h *APIHandler) HandleListTabs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tabs.List())
}

type openTabRequest struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// HandleOpenTab handles POST /tabs. An empty body opens the home page.
func (h *APIHandler) HandleOpenTab(w http.ResponseWriter, r *http.Request) {
	var req openTabRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	tab, err := h.tabs.Open(req.URL, req.Label)
	if err != nil {
		h.writeDomainError(w, "failed to open tab", err)
		return
	}
	writeJSON(w, http.StatusCreated, tab)
}

type navigateRequest struct {
	URL string `json:"url"`
}

// HandleNavigateTab handles POST /tabs/{n}/navigate
func (h *APIHandler) HandleNavigateTab(w http.ResponseWriter, r *http.Request) {
	index, ok := tabIndex(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	target, err := h.tabs.Navigate(index, req.URL)
	if err != nil {
		h.writeDomainError(w, "failed to navigate", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"url": target})
}

// HandleCloseTab handles DELETE /tabs/{n}
func (h *APIHandler) HandleCloseTab(w http.ResponseWriter, r *http.Request) {
	index, ok := tabIndex(w, r)
	if !ok {
		return
	}
	if err := h.tabs.Close(index); err != nil {
		h.writeDomainError(w, "failed to close tab", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func tabIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "tab index must be a number")
		return 0, false
	}
	return n, true
}

// writeDomainError maps domain errors to status codes
func (h *APIHandler) writeDomainError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrMalformedCookie):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrLastTab),
		errors.Is(err, domain.ErrInvalidStateTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrProxyUnreachable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
