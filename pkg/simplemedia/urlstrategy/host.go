package urlstrategy

import (
	"strings"
)

// HostStrategy serves files from the host each asset was recorded under:
// scheme://host/path
type HostStrategy struct {
	Scheme string
}

// NewHost creates a host based strategy. An empty scheme means http.
func NewHost(scheme string) *HostStrategy {
	scheme = strings.TrimSuffix(scheme, "://")
	if scheme == "" {
		scheme = "http"
	}
	return &HostStrategy{Scheme: scheme}
}

func (s *HostStrategy) URL(host, path string) string {
	return s.HostURL(host) + ensureLeadingSlash(path)
}

func (s *HostStrategy) HostURL(host string) string {
	if host == "" {
		return ""
	}
	return s.Scheme + "://" + strings.TrimSuffix(host, "/")
}

func ensureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
