package config

import (
	"fmt"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase sets the database URL; "memory" selects the in-memory repository
func WithDatabase(url string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("database URL cannot be empty")
		}
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithStorageRoot sets the directory media is stored under
func WithStorageRoot(root string) Option {
	return func(c *ServerConfig) error {
		if root == "" {
			return fmt.Errorf("storage root cannot be empty")
		}
		c.StorageRoot = root
		return nil
	}
}

// WithPublicHost sets the host and scheme used in returned URLs
func WithPublicHost(scheme, host string) Option {
	return func(c *ServerConfig) error {
		if scheme != "" {
			c.PublicScheme = scheme
		}
		c.PublicHost = host
		return nil
	}
}

// WithCDN sets the CDN base URL used in production
func WithCDN(baseURL string) Option {
	return func(c *ServerConfig) error {
		c.CDNBaseURL = baseURL
		return nil
	}
}

// WithSecretKey sets the shared API secret
func WithSecretKey(secret string) Option {
	return func(c *ServerConfig) error {
		c.SecretKey = secret
		return nil
	}
}

// WithRedis enables the details cache
func WithRedis(url string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("redis URL cannot be empty")
		}
		if ttl < 0 {
			return fmt.Errorf("cache ttl cannot be negative")
		}
		c.RedisURL = url
		if ttl > 0 {
			c.CacheTTL = ttl
		}
		return nil
	}
}

// WithGCSchedule sets the cron schedule of the garbage collector
func WithGCSchedule(spec string) Option {
	return func(c *ServerConfig) error {
		if spec == "" {
			return fmt.Errorf("gc schedule cannot be empty")
		}
		c.GCSchedule = spec
		return nil
	}
}

// WithFFmpeg sets the ffmpeg and ffprobe binaries
func WithFFmpeg(ffmpegPath, ffprobePath string) Option {
	return func(c *ServerConfig) error {
		c.FFmpegPath = ffmpegPath
		c.FFprobePath = ffprobePath
		return nil
	}
}

// WithImageQuality sets the encode quality inherited by profiles
func WithImageQuality(quality int) Option {
	return func(c *ServerConfig) error {
		if quality < 1 || quality > 100 {
			return fmt.Errorf("image quality must be between 1 and 100, got: %d", quality)
		}
		c.ImageQuality = quality
		return nil
	}
}

// WithS3Export configures the bucket export copies media into
func WithS3Export(bucket, region, endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		c.S3Bucket = bucket
		if region != "" {
			c.S3Region = region
		}
		c.S3Endpoint = endpoint
		c.S3UsePathStyle = usePathStyle
		return nil
	}
}

// WithProfiles appends type profiles
func WithProfiles(profiles ...simplemedia.TypeProfile) Option {
	return func(c *ServerConfig) error {
		c.Profiles = append(c.Profiles, profiles...)
		return nil
	}
}

// WithProfilesFile replaces the type profiles with those read from a YAML or
// JSON file
func WithProfilesFile(path string) Option {
	return func(c *ServerConfig) error {
		profiles, err := readProfiles(path)
		if err != nil {
			return err
		}
		c.ProfilesFile = path
		c.Profiles = profiles
		return nil
	}
}
