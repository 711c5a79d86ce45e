package urlstrategy

import (
	"strings"
)

// CDNStrategy generates URLs that point directly to a CDN regardless of the
// host an asset was uploaded through
type CDNStrategy struct {
	CDNBaseURL string // e.g., "https://cdn.example.com"
}

// NewCDNStrategy creates a new CDN URL strategy
func NewCDNStrategy(cdnBaseURL string) *CDNStrategy {
	// Ensure cdnBaseURL doesn't have trailing slash
	cdnBaseURL = strings.TrimSuffix(cdnBaseURL, "/")
	return &CDNStrategy{CDNBaseURL: cdnBaseURL}
}

func (s *CDNStrategy) URL(_ string, path string) string {
	return s.CDNBaseURL + ensureLeadingSlash(path)
}

func (s *CDNStrategy) HostURL(_ string) string {
	return s.CDNBaseURL
}
