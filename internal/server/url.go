package server

import (
	"net/url"
	"strings"
)

// normalizeTargetURL undoes an extra level of percent-encoding some clients
// apply to the url parameter and defaults the scheme to http.
func normalizeTargetURL(u string) string {
	s := strings.TrimSpace(u)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http%3a") || strings.HasPrefix(lower, "https%3a") {
		if dec, err := url.QueryUnescape(s); err == nil {
			s = dec
			lower = strings.ToLower(s)
		}
	}
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "http://" + s
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
