package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vertextoedge/browser-shell/internal/config"
)

func TestCertificatePolicy(t *testing.T) {
	t.Run("never rejects everything", func(t *testing.T) {
		p := NewCertificatePolicy(config.CertificateOverrideNever)
		accept, installed := p.Decide("unknown_authority")
		assert.False(t, accept)
		assert.False(t, installed)
		assert.Empty(t, p.AcceptedClass())
	})

	t.Run("unknown mode behaves like never", func(t *testing.T) {
		p := NewCertificatePolicy("always")
		accept, _ := p.Decide("expired")
		assert.False(t, accept)
	})

	t.Run("once per session pins the first class", func(t *testing.T) {
		p := NewCertificatePolicy(config.CertificateOverrideOncePerSession)

		accept, installed := p.Decide("expired")
		assert.True(t, accept)
		assert.True(t, installed)

		accept, installed = p.Decide("expired")
		assert.True(t, accept)
		assert.False(t, installed)

		accept, _ = p.Decide("hostname_mismatch")
		assert.False(t, accept)
		assert.Equal(t, "expired", p.AcceptedClass())
	})
}
