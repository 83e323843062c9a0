package httpengine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/port"
)

// PageLoader fetches pages for one browsing context. A new Load cancels
// the previous one.
type PageLoader struct {
	engine *Engine
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Ensure PageLoader implements port.PageLoader
var _ port.PageLoader = (*PageLoader)(nil)

// NewPageLoader creates a loader that shares the engine's connections
func (e *Engine) NewPageLoader() *PageLoader {
	return &PageLoader{engine: e, logger: e.logger}
}

// Load starts fetching url; results arrive on obs from another goroutine
func (l *PageLoader) Load(url string, obs port.LoadObserver) {
	ctx, cancel := context.WithCancel(context.Background())

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.cancel = cancel
	l.mu.Unlock()

	go l.run(ctx, url, obs)
}

// Stop cancels the in-flight load. The observer hears nothing more.
func (l *PageLoader) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *PageLoader) run(ctx context.Context, url string, obs port.LoadObserver) {
	obs.LoadStarted()

	resp, err := l.fetch(ctx, url, l.engine.client)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		details, isCert := classifyCertificateError(url, err)
		if !isCert {
			fail(obs, err.Error())
			return
		}
		// a rejection already ended the navigation
		if obs.CertificateError(details) != port.CertificateAcceptOnce {
			return
		}
		l.logger.Warn("loading with certificate verification disabled",
			zap.String("url", url),
			zap.String("class", details.Class))
		resp, err = l.fetch(ctx, url, l.engine.insecureClient())
		if err != nil {
			if ctx.Err() == nil {
				fail(obs, err.Error())
			}
			return
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		fail(obs, fmt.Sprintf("server returned %s", resp.Status))
		return
	}

	title := ""
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		title = extractTitle(io.LimitReader(resp.Body, l.engine.cfg.MaxPageBytes))
	}
	if ctx.Err() != nil {
		return
	}

	if to, ok := obs.(port.TitleObserver); ok && title != "" {
		to.TitleChanged(resp.Request.URL.String(), title)
	}
	obs.LoadFinished(true)
}

func (l *PageLoader) fetch(ctx context.Context, url string, client *http.Client) (*http.Response, error) {
	req, err := l.engine.newRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return client.Do(req)
}

func fail(obs port.LoadObserver, reason string) {
	if fo, ok := obs.(port.LoadFailureObserver); ok {
		fo.LoadFailed(reason)
		return
	}
	obs.LoadFinished(false)
}

// extractTitle returns the trimmed text of the document's first <title>
func extractTitle(r io.Reader) string {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
