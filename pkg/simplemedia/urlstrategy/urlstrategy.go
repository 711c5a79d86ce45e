// Package urlstrategy turns stored root-relative paths into public URLs.
package urlstrategy

// URLStrategy defines the interface for URL generation strategies
type URLStrategy interface {
	// URL returns the public URL of a stored path recorded under host
	URL(host, path string) string

	// HostURL returns the public base URL for host
	HostURL(host string) string
}
