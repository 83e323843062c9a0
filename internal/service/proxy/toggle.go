package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/port"
)

// Toggle switches engine traffic between a direct connection and the
// anonymization proxy. It never retries on its own; a failed Enable leaves
// the toggle off and the user decides what to do.
type Toggle struct {
	proxy      port.Proxy
	direct     port.ContextDialer
	dispatcher event.EventDispatcher
	logger     *zap.Logger

	mu      sync.RWMutex
	enabled bool
	dialer  port.ContextDialer
}

// New creates a toggle in the off state
func New(p port.Proxy, dispatcher event.EventDispatcher, logger *zap.Logger) *Toggle {
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Toggle{
		proxy:      p,
		direct:     &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Enable probes the proxy and routes traffic through it when reachable
func (t *Toggle) Enable(ctx context.Context) error {
	address := t.proxy.Address()

	if err := t.proxy.Probe(ctx); err != nil {
		t.setOff()
		msg := fmt.Sprintf("Anonymization proxy at %s is not reachable. Start the Tor service (or your SOCKS5 proxy) and try again.", address)
		t.logger.Warn("proxy unreachable", zap.String("address", address), zap.Error(err))
		t.dispatcher.Dispatch(event.NewProxyStatusChanged(false, address, msg))
		if !errors.Is(err, domain.ErrProxyUnreachable) {
			err = fmt.Errorf("%w: %v", domain.ErrProxyUnreachable, err)
		}
		return err
	}

	d, err := t.proxy.Dialer()
	if err != nil {
		t.setOff()
		t.logger.Error("failed to create proxy dialer", zap.String("address", address), zap.Error(err))
		t.dispatcher.Dispatch(event.NewProxyStatusChanged(false, address, err.Error()))
		return err
	}

	t.mu.Lock()
	t.enabled = true
	t.dialer = d
	t.mu.Unlock()

	t.logger.Info("anonymization enabled", zap.String("address", address))
	t.dispatcher.Dispatch(event.NewProxyStatusChanged(true, address, "Traffic is routed through "+address))
	return nil
}

// Disable returns to direct connections
func (t *Toggle) Disable() {
	t.mu.Lock()
	was := t.enabled
	t.enabled = false
	t.dialer = nil
	t.mu.Unlock()

	if !was {
		return
	}
	t.logger.Info("anonymization disabled")
	t.dispatcher.Dispatch(event.NewProxyStatusChanged(false, t.proxy.Address(), "Direct connection"))
}

// Enabled reports whether traffic goes through the proxy
func (t *Toggle) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Address returns the configured proxy endpoint
func (t *Toggle) Address() string {
	return t.proxy.Address()
}

// DialContext dials through the proxy when enabled and directly otherwise
func (t *Toggle) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.RLock()
	d := t.direct
	if t.enabled && t.dialer != nil {
		d = t.dialer
	}
	t.mu.RUnlock()
	return d.DialContext(ctx, network, address)
}

func (t *Toggle) setOff() {
	t.mu.Lock()
	t.enabled = false
	t.dialer = nil
	t.mu.Unlock()
}
