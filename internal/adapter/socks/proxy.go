package socks

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/port"
)

// Proxy is a SOCKS5 endpoint such as a local Tor daemon
type Proxy struct {
	address      string
	probeTimeout time.Duration
	forward      proxy.Dialer
}

// Ensure Proxy implements port.Proxy
var _ port.Proxy = (*Proxy)(nil)

// New creates a proxy adapter for address (host:port)
func New(address string, probeTimeout time.Duration) *Proxy {
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	return &Proxy{
		address:      address,
		probeTimeout: probeTimeout,
		forward:      proxy.Direct,
	}
}

// Address returns host:port of the proxy
func (p *Proxy) Address() string {
	return p.address
}

// Probe checks that the proxy port accepts TCP connections
func (p *Proxy) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrProxyUnreachable, p.address, err)
	}
	return conn.Close()
}

// Dialer returns a SOCKS5 dialer that routes through the proxy
func (p *Proxy) Dialer() (port.ContextDialer, error) {
	d, err := proxy.SOCKS5("tcp", p.address, nil, p.forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer for %s does not support contexts", p.address)
	}
	return cd, nil
}
