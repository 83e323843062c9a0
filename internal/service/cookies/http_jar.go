package cookies

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/vertextoedge/browser-shell/internal/domain"
)

// httpJar lets an http.Client read and write the session jar
type httpJar struct {
	jar *Jar
	now func() time.Time
}

// HTTPJar returns an http.CookieJar backed by j. Name, value, domain, path
// and the host-only and secure flags survive; expiry is only honoured as
// a removal.
func (j *Jar) HTTPJar() http.CookieJar {
	return &httpJar{jar: j, now: time.Now}
}

func (h *httpJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	host := canonicalHost(u.Hostname())
	if host == "" {
		return
	}
	secure := u.Scheme == "https"

	for _, hc := range cookies {
		c, reason := h.fromHTTP(host, secure, u.Path, hc)
		if reason != "" {
			h.jar.logger.Debug("cookie rejected",
				zap.String("name", hc.Name),
				zap.String("host", host),
				zap.String("domain", hc.Domain),
				zap.String("reason", reason))
			continue
		}

		var err error
		if hc.MaxAge < 0 || (!hc.Expires.IsZero() && hc.Expires.Before(h.now())) {
			err = h.jar.Remove(c.Key())
		} else {
			err = h.jar.Add(c)
		}
		if err != nil {
			h.jar.logger.Debug("cookie not stored",
				zap.String("name", hc.Name),
				zap.String("host", host),
				zap.Error(err))
		}
	}
}

// fromHTTP applies the storage rules of RFC 6265 section 5.3 that matter for
// the persisted subset. A non-empty reason means the cookie must be ignored.
func (h *httpJar) fromHTTP(host string, secure bool, reqPath string, hc *http.Cookie) (domain.Cookie, string) {
	if hc.Secure && !secure {
		return domain.Cookie{}, "secure cookie from insecure origin"
	}

	c := domain.Cookie{
		Name:   hc.Name,
		Value:  hc.Value,
		Path:   hc.Path,
		Secure: hc.Secure,
	}
	if c.Path == "" || !strings.HasPrefix(c.Path, "/") {
		c.Path = defaultPath(reqPath)
	}

	attr := canonicalHost(strings.TrimPrefix(hc.Domain, "."))
	switch {
	case attr == "":
		c.Domain = host
		c.HostOnly = true
		return c, ""
	case isIP(host):
		// IP hosts only take cookies for themselves
		if attr != host {
			return domain.Cookie{}, "domain attribute on an IP host"
		}
		c.Domain = host
		c.HostOnly = true
		return c, ""
	}

	if ps, _ := publicsuffix.PublicSuffix(attr); ps == attr {
		if attr != host {
			return domain.Cookie{}, "domain is a public suffix"
		}
		c.Domain = host
		c.HostOnly = true
		return c, ""
	}
	if !domainMatch(host, attr) {
		return domain.Cookie{}, "domain does not match request host"
	}
	c.Domain = attr
	return c, ""
}

func (h *httpJar) Cookies(u *url.URL) []*http.Cookie {
	host := canonicalHost(u.Hostname())
	secure := u.Scheme == "https"
	path := u.Path
	if path == "" {
		path = "/"
	}

	var out []*http.Cookie
	for _, c := range h.jar.All() {
		if c.Secure && !secure {
			continue
		}
		if c.HostOnly {
			if host != c.Domain {
				continue
			}
		} else if !domainMatch(host, c.Domain) {
			continue
		}
		if pathMatch(path, c.Path) {
			out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return out
}

func canonicalHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

func isIP(host string) bool {
	return net.ParseIP(host) != nil
}

func domainMatch(host, cookieDomain string) bool {
	if host == cookieDomain {
		return true
	}
	return !isIP(host) && strings.HasSuffix(host, "."+cookieDomain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" || reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

// defaultPath is the directory of the request path
func defaultPath(p string) string {
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}
