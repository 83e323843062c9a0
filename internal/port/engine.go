package port

import (
	"context"
	"net"
)

// Transfer is the engine-side handle of one download.
// Implementations must not call back into the TransferObserver synchronously
// from Pause, Resume or Cancel.
type Transfer interface {
	Pause()
	Resume()
	Cancel()
}

// TransferObserver receives engine callbacks for one download
type TransferObserver interface {
	BytesChanged(received, total int64)
	Finished()
	Interrupted(reason string)
}

// CertificateDecision answers a certificate problem
type CertificateDecision int

// Certificate decisions
const (
	CertificateReject CertificateDecision = iota
	CertificateAcceptOnce
)

// CertificateError describes a certificate problem reported by the engine
type CertificateError struct {
	URL string
	// Host is the server name the certificate was checked against
	Host string
	// Class groups errors that an override applies to, e.g. "unknown_authority"
	Class       string
	Description string
}

// LoadObserver receives the engine callbacks for one navigation
type LoadObserver interface {
	LoadStarted()
	LoadFinished(ok bool)
	CertificateError(details CertificateError) CertificateDecision
}

// TitleObserver is implemented by observers that want the document title
type TitleObserver interface {
	TitleChanged(url, title string)
}

// LoadFailureObserver is implemented by observers that accept a failure reason
type LoadFailureObserver interface {
	LoadFailed(reason string)
}

// PageLoader starts page loads in the engine.
// Load returns immediately; results arrive on obs.
// Stop must not call back into an observer synchronously.
type PageLoader interface {
	Load(url string, obs LoadObserver)
	Stop()
}

// ContextDialer dials network connections
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Proxy is an anonymizing SOCKS endpoint
type Proxy interface {
	// Address returns host:port of the proxy
	Address() string

	// Probe checks that the proxy port accepts connections
	Probe(ctx context.Context) error

	// Dialer returns a dialer that routes through the proxy
	Dialer() (ContextDialer, error)
}
