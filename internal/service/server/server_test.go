package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/config"
	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/session"
	"github.com/vertextoedge/browser-shell/internal/service/tabs"
)

// closedAddr returns an address nothing listens on
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newTestServer(t *testing.T, cfg *Config) (*Server, *httptest.Server) {
	t.Helper()
	dataDir := t.TempDir()
	body := fmt.Sprintf(
		"profile:\n  data_dir: %s\ndownloads:\n  root_dir: %s\n  progress_report_interval: 1ms\nproxy:\n  address: %s\n  probe_timeout: 500ms\n",
		dataDir, filepath.Join(dataDir, "Downloads"), closedAddr(t))
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	appCfg, err := config.Load(path)
	require.NoError(t, err)

	sess, err := session.New(appCfg, zap.NewNop())
	require.NoError(t, err)

	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := New(cfg, sess, zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.hub.Close()
		_ = sess.Close()
	})
	return s, ts
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// getJSON is safe to call from Eventually conditions
func getJSON(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if v != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(v))
	}
	resp, err := http.Post(url, "application/json", &body)
	require.NoError(t, err)
	return resp
}

func TestServer_Health(t *testing.T) {
	s, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, s.session.ID, body["session"])
}

func TestServer_DownloadLifecycle(t *testing.T) {
	content := []byte("quarterly numbers")
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="report.csv"`)
		w.Header().Set("Content-Length", fmt.Sprint(len(content)))
		if r.Method == http.MethodGet {
			w.Write(content)
		}
	}))
	defer origin.Close()

	_, ts := newTestServer(t, nil)
	sourceURL := origin.URL + "/export?id=7"

	resp := postJSON(t, ts.URL+"/downloads", startDownloadRequest{URL: sourceURL})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created downloadView
	decode(t, resp, &created)
	assert.Equal(t, sourceURL, created.ID)
	assert.Equal(t, DownloadKey(sourceURL), created.Key)
	assert.Equal(t, "report.csv", created.FileName)

	require.Eventually(t, func() bool {
		var list []downloadView
		return getJSON(ts.URL+"/downloads", &list) == nil &&
			len(list) == 1 && list[0].State == domain.DownloadCompleted
	}, 5*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(created.DestPath)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// actions on a finished download are accepted and change nothing
	resp = postJSON(t, ts.URL+"/downloads/"+created.Key+"/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var after downloadView
	decode(t, resp, &after)
	assert.Equal(t, domain.DownloadCompleted, after.State)

	resp = postJSON(t, ts.URL+"/downloads/clear", nil)
	var cleared map[string]int
	decode(t, resp, &cleared)
	assert.Equal(t, 1, cleared["removed"])
}

func TestServer_DownloadErrors(t *testing.T) {
	_, ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown download", "/downloads/" + DownloadKey("https://example.com/none") + "/cancel", http.StatusNotFound},
		{"bad key", "/downloads/!!!!/cancel", http.StatusBadRequest},
		{"unknown action", "/downloads/" + DownloadKey("https://example.com/none") + "/explode", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+tt.path, nil)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp, err := http.Post(ts.URL+"/downloads", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Tabs(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Inbox</title></head></html>")
	}))
	defer page.Close()

	_, ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/tabs", openTabRequest{URL: page.URL})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var opened tabs.Tab
	decode(t, resp, &opened)
	assert.Equal(t, 0, opened.Index)

	require.Eventually(t, func() bool {
		var list []tabs.Tab
		return getJSON(ts.URL+"/tabs", &list) == nil &&
			len(list) == 1 && list[0].Label == "Inbox"
	}, 5*time.Second, 10*time.Millisecond)

	resp = postJSON(t, ts.URL+"/tabs/0/navigate", navigateRequest{URL: page.URL + "/other"})
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/tabs/0", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "the last tab stays open")

	resp = postJSON(t, ts.URL+"/tabs/x/navigate", navigateRequest{URL: page.URL})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ProxyUnreachable(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/proxy/enable", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err := http.Get(ts.URL + "/proxy")
	require.NoError(t, err)
	var status proxyStatus
	decode(t, resp, &status)
	assert.False(t, status.Enabled)
}

func TestServer_EventsStream(t *testing.T) {
	s, ts := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	resp := postJSON(t, ts.URL+"/proxy/enable", nil)
	resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, event.NameProxyStatus, msg.Type)
	assert.Contains(t, string(msg.Data), "not reachable")

	resp, err = http.Get(ts.URL + "/debug/stats")
	require.NoError(t, err)
	var stats Stats
	decode(t, resp, &stats)
	assert.Equal(t, 1, stats.EventSubscribers)
	assert.False(t, stats.ProxyEnabled)
}

func TestServer_BasicAuth(t *testing.T) {
	_, ts := newTestServer(t, &Config{
		BindAddr:         "127.0.0.1:0",
		Username:         "admin",
		Password:         "secret",
		ProgressInterval: time.Millisecond,
	})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/tabs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/tabs", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "go_goroutines")
}
