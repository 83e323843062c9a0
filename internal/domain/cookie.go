package domain

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Cookie is the persisted subset of a browser cookie
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`

	// HostOnly cookies match Domain exactly, never its subdomains
	HostOnly bool `json:"host_only,omitempty"`

	// Secure cookies are only sent over https
	Secure bool `json:"secure,omitempty"`
}

// CookieKey identifies a cookie: two cookies with the same key replace each other
type CookieKey struct {
	Name   string
	Domain string
	Path   string
}

// Key returns the identity of the cookie
func (c Cookie) Key() CookieKey {
	return CookieKey{Name: c.Name, Domain: c.Domain, Path: c.Path}
}

// Validate checks that the cookie can be stored
func (c Cookie) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty name", ErrMalformedCookie)
	}
	for field, v := range map[string]string{"name": c.Name, "value": c.Value, "domain": c.Domain, "path": c.Path} {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: %s is not valid UTF-8", ErrMalformedCookie, field)
		}
	}
	return nil
}

// SortCookies orders cookies by domain, path, then name
func SortCookies(cookies []Cookie) {
	sort.Slice(cookies, func(i, j int) bool {
		a, b := cookies[i], cookies[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Name < b.Name
	})
}
