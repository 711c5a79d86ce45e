package urlstrategy

import (
	"fmt"
)

// URLStrategyType represents the type of URL strategy
type URLStrategyType string

const (
	// Host strategy builds URLs from the host recorded on each asset
	StrategyTypeHost URLStrategyType = "host"

	// CDN strategy for direct CDN URLs
	StrategyTypeCDN URLStrategyType = "cdn"
)

// Config holds configuration for URL strategy creation
type Config struct {
	Type       URLStrategyType
	Scheme     string // For host strategy
	CDNBaseURL string // For CDN strategy
}

// NewURLStrategy creates a URL strategy based on the configuration
func NewURLStrategy(config Config) (URLStrategy, error) {
	switch config.Type {
	case StrategyTypeHost, "":
		return NewHost(config.Scheme), nil

	case StrategyTypeCDN:
		if config.CDNBaseURL == "" {
			return nil, fmt.Errorf("CDN base URL is required for CDN strategy")
		}
		return NewCDNStrategy(config.CDNBaseURL), nil

	default:
		return nil, fmt.Errorf("unknown URL strategy type: %s", config.Type)
	}
}

// NewRecommendedStrategy picks the CDN in production when one is configured
func NewRecommendedStrategy(environment, scheme, cdnURL string) URLStrategy {
	cfg := Config{Type: StrategyTypeHost, Scheme: scheme, CDNBaseURL: cdnURL}
	if environment == "production" && cdnURL != "" {
		cfg.Type = StrategyTypeCDN
	}
	s, _ := NewURLStrategy(cfg)
	return s
}
