package httpengine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/port"
)

const userAgent = "browser-shell/1.0"

// Certificate error classes. An accepted override covers one class.
const (
	ClassUnknownAuthority = "unknown_authority"
	ClassHostnameMismatch = "hostname_mismatch"
	ClassExpired          = "expired"
	ClassInvalid          = "invalid"
)

// Config contains engine tuning
type Config struct {
	// ReportInterval throttles transfer byte callbacks
	ReportInterval time.Duration
	// MaxPageBytes bounds how much of a page is read for its title
	MaxPageBytes int64
	// Jar stores cookies set by pages; nil disables cookies
	Jar http.CookieJar
}

// DefaultConfig returns default engine configuration
func DefaultConfig() *Config {
	return &Config{
		ReportInterval: 250 * time.Millisecond,
		MaxPageBytes:   4 * 1024 * 1024,
	}
}

// Engine is a headless stand-in for a browser engine. Page loads and
// downloads share one connection pool that dials through dialer.
type Engine struct {
	cfg    *Config
	dialer port.ContextDialer
	fs     port.FileSystem
	logger *zap.Logger

	client *http.Client

	// insecure is built on first accepted certificate override
	mu       sync.Mutex
	insecure *http.Client
}

// New creates an engine. dialer is usually the proxy toggle.
func New(cfg *Config, dialer port.ContextDialer, fs port.FileSystem, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if dialer == nil {
		dialer = &net.Dialer{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:    cfg,
		dialer: dialer,
		fs:     fs,
		logger: logger,
	}
	e.client = &http.Client{Transport: e.newTransport(false), Jar: cfg.Jar}
	return e
}

func (e *Engine) newTransport(skipVerify bool) *http.Transport {
	return &http.Transport{
		DialContext: e.dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: skipVerify,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// insecureClient skips verification; only used after the policy accepted an override
func (e *Engine) insecureClient() *http.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.insecure == nil {
		e.insecure = &http.Client{Transport: e.newTransport(true), Jar: e.cfg.Jar}
	}
	return e.insecure
}

// CloseIdleConnections drops pooled connections, e.g. after the proxy was toggled
func (e *Engine) CloseIdleConnections() {
	e.client.CloseIdleConnections()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.insecure != nil {
		e.insecure.CloseIdleConnections()
	}
}

// Probe asks the server for the name and size of a download without fetching it
func (e *Engine) Probe(ctx context.Context, rawURL string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", 0, fmt.Errorf("probe failed with status: %s", resp.Status)
	}

	size := resp.ContentLength
	if size < 0 {
		size = 0
	}
	return fileName(resp), size, nil
}

func (e *Engine) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// fileName prefers Content-Disposition and falls back to the final URL path
func fileName(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return path.Base(params["filename"])
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if base := path.Base(resp.Request.URL.Path); base != "/" && base != "." {
			if unescaped, err := url.PathUnescape(base); err == nil {
				return unescaped
			}
			return base
		}
	}
	return ""
}

// classifyCertificateError maps a TLS verification failure to an override
// class. ok is false for errors that are not certificate problems.
func classifyCertificateError(rawURL string, err error) (port.CertificateError, bool) {
	details := port.CertificateError{URL: rawURL, Description: err.Error()}
	if u, parseErr := url.Parse(rawURL); parseErr == nil {
		details.Host = u.Hostname()
	}

	var unknown x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	var verify *tls.CertificateVerificationError

	switch {
	case errors.As(err, &unknown):
		details.Class = ClassUnknownAuthority
	case errors.As(err, &hostname):
		details.Class = ClassHostnameMismatch
	case errors.As(err, &invalid):
		if invalid.Reason == x509.Expired {
			details.Class = ClassExpired
		} else {
			details.Class = ClassInvalid
		}
	case errors.As(err, &verify):
		details.Class = ClassInvalid
	case strings.Contains(err.Error(), "x509:"):
		details.Class = ClassInvalid
	default:
		return port.CertificateError{}, false
	}
	return details, true
}
