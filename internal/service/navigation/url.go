package navigation

import (
	"fmt"
	"strings"

	"github.com/vertextoedge/browser-shell/internal/domain"
)

// NormalizeURL prefixes https:// when the input has no http(s) scheme
func NormalizeURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", fmt.Errorf("%w: empty url", domain.ErrInvalidInput)
	}
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u, nil
	}
	return "https://" + u, nil
}
