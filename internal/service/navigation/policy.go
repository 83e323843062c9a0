package navigation

import (
	"sync"

	"github.com/vertextoedge/browser-shell/internal/config"
)

// CertificatePolicy decides certificate overrides for a whole session.
//
// With once_per_session the first certificate error of the session installs
// an override for that error class, and every later error of the same class
// is accepted until the session ends. This is a trust downgrade: a network
// attacker who can trigger one accepted error class can intercept the rest
// of the session's traffic for hosts failing the same way.
type CertificatePolicy struct {
	mode string

	mu       sync.Mutex
	accepted string
}

// NewCertificatePolicy creates a policy; unknown modes behave like never
func NewCertificatePolicy(mode string) *CertificatePolicy {
	return &CertificatePolicy{mode: mode}
}

// Mode returns the configured mode
func (p *CertificatePolicy) Mode() string {
	return p.mode
}

// Decide reports whether an error of class may be accepted, and whether
// this call installed the session override.
func (p *CertificatePolicy) Decide(class string) (accept, installed bool) {
	if p.mode != config.CertificateOverrideOncePerSession {
		return false, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.accepted {
	case "":
		p.accepted = class
		return true, true
	case class:
		return true, false
	}
	return false, false
}

// AcceptedClass returns the overridden class, empty when none
func (p *CertificatePolicy) AcceptedClass() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}
