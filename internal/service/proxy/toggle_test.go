package proxy

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain"
	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/port"
)

type fakeProxy struct {
	probeErr  error
	dialerErr error
	dialer    *countingDialer
}

func (p *fakeProxy) Address() string { return "127.0.0.1:9050" }

func (p *fakeProxy) Probe(ctx context.Context) error { return p.probeErr }

func (p *fakeProxy) Dialer() (port.ContextDialer, error) {
	if p.dialerErr != nil {
		return nil, p.dialerErr
	}
	return p.dialer, nil
}

type countingDialer struct {
	mu    sync.Mutex
	dials []string
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, address)
	d.mu.Unlock()
	c1, c2 := net.Pipe()
	_ = c2.Close()
	return c1, nil
}

func newToggle(p port.Proxy) (*Toggle, *[]event.ProxyStatusChanged) {
	var statuses []event.ProxyStatusChanged
	dispatcher := event.NewInMemoryDispatcher(false, zap.NewNop())
	dispatcher.Subscribe(event.NewFuncHandler(func(e event.DomainEvent) error {
		statuses = append(statuses, e.(event.ProxyStatusChanged))
		return nil
	}, event.NameProxyStatus))
	return New(p, dispatcher, zap.NewNop()), &statuses
}

func TestToggle_EnableUnreachable(t *testing.T) {
	toggle, statuses := newToggle(&fakeProxy{probeErr: errors.New("connection refused")})

	err := toggle.Enable(context.Background())
	assert.ErrorIs(t, err, domain.ErrProxyUnreachable)
	assert.False(t, toggle.Enabled())

	require.Len(t, *statuses, 1)
	assert.False(t, (*statuses)[0].Enabled)
	assert.Contains(t, (*statuses)[0].Message, "127.0.0.1:9050")
	assert.Contains(t, (*statuses)[0].Message, "try again")
}

func TestToggle_EnableRoutesThroughProxy(t *testing.T) {
	p := &fakeProxy{dialer: &countingDialer{}}
	toggle, statuses := newToggle(p)

	require.NoError(t, toggle.Enable(context.Background()))
	assert.True(t, toggle.Enabled())

	conn, err := toggle.DialContext(context.Background(), "tcp", "example.com:443")
	require.NoError(t, err)
	_ = conn.Close()
	assert.Equal(t, []string{"example.com:443"}, p.dialer.dials)

	toggle.Disable()
	assert.False(t, toggle.Enabled())
	// disabling twice reports once
	toggle.Disable()

	require.Len(t, *statuses, 2)
	assert.True(t, (*statuses)[0].Enabled)
	assert.False(t, (*statuses)[1].Enabled)
}

func TestToggle_DirectWhenDisabled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	p := &fakeProxy{dialer: &countingDialer{}}
	toggle, _ := newToggle(p)

	conn, err := toggle.DialContext(context.Background(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	_ = conn.Close()
	assert.Empty(t, p.dialer.dials)
}

func TestToggle_FailedEnableTurnsOff(t *testing.T) {
	p := &fakeProxy{dialer: &countingDialer{}}
	toggle, _ := newToggle(p)
	require.NoError(t, toggle.Enable(context.Background()))

	p.probeErr = errors.New("tor stopped")
	assert.Error(t, toggle.Enable(context.Background()))
	assert.False(t, toggle.Enabled())
}
