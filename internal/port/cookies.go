package port

import (
	"github.com/vertextoedge/browser-shell/internal/domain"
)

// CookieLoadReport describes how a cookie file was read
type CookieLoadReport struct {
	// Source is the file the cookies came from, empty when nothing was read
	Source string

	// Empty is set when the primary file existed but held no data
	Empty bool

	// RecoveryAttempted is set when the primary could not be read and the backup was tried
	RecoveryAttempted bool

	// Recovered is set when the backup was read successfully
	Recovered bool

	// RecoveryErr holds the reason the primary was rejected
	RecoveryErr error

	// Skipped counts malformed records that were dropped
	Skipped int
}

// CookieStore persists the full cookie set
type CookieStore interface {
	Load() ([]domain.Cookie, *CookieLoadReport, error)
	Save(cookies []domain.Cookie) error
}
