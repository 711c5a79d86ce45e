package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/cache"
	"github.com/tendant/simple-media/pkg/simplemedia/ffmpeg"
	"github.com/tendant/simple-media/pkg/simplemedia/imageproc"
	"github.com/tendant/simple-media/pkg/simplemedia/probe"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	repopg "github.com/tendant/simple-media/pkg/simplemedia/repo/postgres"
	fsstorage "github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	s3storage "github.com/tendant/simple-media/pkg/simplemedia/storage/s3"
	"github.com/tendant/simple-media/pkg/simplemedia/urlstrategy"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		LogLevel:     "info",
		LogFormat:    "text",
		DatabaseURL:  "memory",
		DBSchema:     "media",
		StorageRoot:  "./data/media",
		PublicScheme: "http",
		CacheTTL:     cache.DefaultTTL,
		GCSchedule:   "@every 10m",
		ImageQuality: 90,
		S3Region:     "us-east-1",
	}
}

// ServerConfig represents server configuration for the simple-media service.
// Field tags drive environment loading through cleanenv.
type ServerConfig struct {
	Port        string `env:"PORT" env-description:"HTTP listen port"`
	Environment string `env:"ENVIRONMENT" env-description:"development, production or testing"`
	LogLevel    string `env:"LOG_LEVEL" env-description:"debug, info, warn or error"`
	LogFormat   string `env:"LOG_FORMAT" env-description:"text or json"`

	// Database configuration
	DatabaseURL string `env:"DATABASE_URL" env-description:"memory or a postgres:// connection string"`
	DBSchema    string `env:"DB_SCHEMA" env-description:"Postgres schema to use"`

	// Storage configuration
	StorageRoot string `env:"STORAGE_ROOT" env-description:"root directory of stored media"`
	TempDir     string `env:"TEMP_DIR" env-description:"upload spool directory, defaults to <STORAGE_ROOT>/.tmp"`

	// Public URLs
	PublicScheme string `env:"PUBLIC_SCHEME" env-description:"scheme of returned media URLs"`
	PublicHost   string `env:"PUBLIC_HOST" env-description:"host recorded on new assets"`
	CDNBaseURL   string `env:"CDN_BASE_URL" env-description:"CDN base URL used in production"`
	URLStrategy  string `env:"URL_STRATEGY" env-description:"host or cdn; empty picks cdn in production when CDN_BASE_URL is set"`

	SecretKey string `env:"SECRET_KEY" env-description:"shared secret required on API calls"`

	// Read cache
	RedisURL string        `env:"REDIS_URL" env-description:"redis:// URL of the details cache, empty disables it"`
	CacheTTL time.Duration `env:"CACHE_TTL" env-description:"lifetime of cached details"`

	GCSchedule   string `env:"GC_SCHEDULE" env-description:"cron schedule of garbage collection"`
	ProfilesFile string `env:"PROFILES_FILE" env-description:"YAML or JSON file with type profiles"`

	// External tools
	FFmpegPath   string `env:"FFMPEG_PATH" env-description:"ffmpeg binary"`
	FFprobePath  string `env:"FFPROBE_PATH" env-description:"ffprobe binary"`
	ImageQuality int    `env:"IMAGE_QUALITY" env-description:"encode quality for profiles that leave it unset"`

	// Export target
	S3Bucket          string `env:"S3_BUCKET" env-description:"bucket that export copies media into"`
	S3Region          string `env:"S3_REGION"`
	S3Endpoint        string `env:"S3_ENDPOINT" env-description:"custom endpoint for S3-compatible services"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE"`
	S3Prefix          string `env:"S3_PREFIX"`
	S3CreateBucket    bool   `env:"S3_CREATE_BUCKET"`
	S3Encryption      string `env:"S3_ENCRYPTION" env-description:"AES256 or aws:kms"`
	S3KMSKeyID        string `env:"S3_KMS_KEY_ID"`
	S3CacheControl    string `env:"S3_CACHE_CONTROL" env-description:"Cache-Control for mirrored objects; - disables"`

	Profiles []simplemedia.TypeProfile
}

// DatabaseType reports "memory" or "postgres" from DatabaseURL
func (c *ServerConfig) DatabaseType() string {
	if c.DatabaseURL == "" || c.DatabaseURL == "memory" {
		return "memory"
	}
	if strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return "postgres"
	}
	return ""
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType() == "" {
		return fmt.Errorf("unsupported DATABASE_URL format (use 'memory' or 'postgresql://...')")
	}

	if c.StorageRoot == "" {
		return errors.New("storage_root is required")
	}

	if c.ImageQuality < 1 || c.ImageQuality > 100 {
		return fmt.Errorf("image_quality must be between 1 and 100, got %d", c.ImageQuality)
	}

	switch c.URLStrategy {
	case "", "host":
	case "cdn":
		if c.CDNBaseURL == "" {
			return errors.New("cdn_base_url is required for the cdn url strategy")
		}
	default:
		return fmt.Errorf("url_strategy must be 'host' or 'cdn', got %q", c.URLStrategy)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be 'text' or 'json', got %q", c.LogFormat)
	}

	if c.Environment == "production" && c.SecretKey == "" {
		return errors.New("secret_key is required in production")
	}

	keys := make(map[string]bool, len(c.Profiles))
	for i := range c.Profiles {
		if err := c.Profiles[i].Validate(); err != nil {
			return err
		}
		if keys[c.Profiles[i].Key] {
			return fmt.Errorf("duplicate profile key %s", c.Profiles[i].Key)
		}
		keys[c.Profiles[i].Key] = true
	}

	return nil
}

// Registry builds the profile registry. Profiles without a quality inherit
// ImageQuality.
func (c *ServerConfig) Registry() (*simplemedia.Registry, error) {
	profiles := make([]simplemedia.TypeProfile, len(c.Profiles))
	for i, p := range c.Profiles {
		if p.Quality == 0 {
			p.Quality = c.ImageQuality
		}
		if p.Cover.Profile != nil && p.Cover.Profile.Quality == 0 {
			cover := *p.Cover.Profile
			cover.Quality = c.ImageQuality
			p.Cover.Profile = &cover
		}
		profiles[i] = p
	}
	return simplemedia.NewRegistry(profiles...)
}

// Components holds the wired service along with the collaborators that
// commands outside the request path need.
type Components struct {
	Service    simplemedia.Service
	Repository simplemedia.Repository
	Store      *fsstorage.Store
	Registry   *simplemedia.Registry

	closers []func()
}

// Close releases pools and clients opened by Build
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (simplemedia.Service, error) {
	components, err := c.Build(ctx, logger)
	if err != nil {
		return nil, err
	}
	return components.Service, nil
}

// Build wires repository, store, processor, prober, extractor, cache and URL
// strategy into a Service.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	components := &Components{}
	var options []simplemedia.Option

	registry, err := c.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to build profile registry: %w", err)
	}
	components.Registry = registry
	options = append(options, simplemedia.WithRegistry(registry))

	// Set up repository
	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	if closeRepo != nil {
		components.closers = append(components.closers, closeRepo)
	}
	components.Repository = repo
	options = append(options, simplemedia.WithRepository(repo))

	store, err := fsstorage.New(fsstorage.Config{
		Root:      c.StorageRoot,
		TempDir:   c.TempDir,
		PruneDirs: true,
	}, fsstorage.WithLogger(logger))
	if err != nil {
		components.Close()
		return nil, fmt.Errorf("failed to build file store: %w", err)
	}
	components.Store = store
	options = append(options, simplemedia.WithFileStore(store))

	tool := ffmpeg.New(ffmpeg.Config{FFmpegPath: c.FFmpegPath, FFprobePath: c.FFprobePath}, logger)
	proberOptions := []probe.Option{probe.WithLogger(logger)}
	if tool.Available() {
		proberOptions = append(proberOptions, probe.WithDurationProber(tool))
		options = append(options, simplemedia.WithFrameExtractor(tool))
	} else {
		logger.Warn("ffmpeg not found, video duration and covers are disabled", "ffmpeg", c.FFmpegPath, "ffprobe", c.FFprobePath)
	}
	options = append(options,
		simplemedia.WithImageProcessor(imageproc.New(imageproc.WithLogger(logger))),
		simplemedia.WithProber(probe.New(proberOptions...)),
	)

	if c.RedisURL != "" {
		redisCache, err := cache.Dial(ctx, c.RedisURL, c.CacheTTL)
		if err != nil {
			components.Close()
			return nil, fmt.Errorf("failed to connect details cache: %w", err)
		}
		components.closers = append(components.closers, func() { redisCache.Close() })
		options = append(options, simplemedia.WithCache(redisCache))
	}

	urls, err := c.urlStrategy()
	if err != nil {
		components.Close()
		return nil, err
	}
	options = append(options,
		simplemedia.WithURLBuilder(urls),
		simplemedia.WithHost(c.PublicHost),
		simplemedia.WithLogger(logger),
		simplemedia.WithEventSink(simplemedia.NewLogEventSink(logger)),
	)

	svc, err := simplemedia.New(options...)
	if err != nil {
		components.Close()
		return nil, err
	}
	components.Service = svc
	return components, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simplemedia.Repository, func(), error) {
	switch c.DatabaseType() {
	case "memory":
		return memory.New(), nil, nil
	case "postgres":
		cfg, err := c.poolConfig()
		if err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database url: %s", c.DatabaseURL)
	}
}

func (c *ServerConfig) poolConfig() (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	schema := c.DBSchema
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	return cfg, nil
}

// PingPostgres verifies connectivity to Postgres with the configured search_path.
// It fails if the schema does not exist.
func (c *ServerConfig) PingPostgres(ctx context.Context) error {
	if c.DatabaseType() != "postgres" {
		return errors.New("a postgres database_url is required")
	}
	cfg, err := c.poolConfig()
	if err != nil {
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// MigrationDSN returns DatabaseURL with search_path set to DBSchema
func (c *ServerConfig) MigrationDSN() (string, error) {
	if c.DatabaseType() != "postgres" {
		return "", errors.New("a postgres database_url is required")
	}
	if c.DBSchema == "" {
		return c.DatabaseURL, nil
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("search_path", c.DBSchema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// urlStrategy honours an explicit URL_STRATEGY and otherwise picks the CDN
// in production when one is configured
func (c *ServerConfig) urlStrategy() (urlstrategy.URLStrategy, error) {
	if c.URLStrategy == "" {
		return urlstrategy.NewRecommendedStrategy(c.Environment, c.PublicScheme, c.CDNBaseURL), nil
	}
	return urlstrategy.NewURLStrategy(urlstrategy.Config{
		Type:       urlstrategy.URLStrategyType(c.URLStrategy),
		Scheme:     c.PublicScheme,
		CDNBaseURL: c.CDNBaseURL,
	})
}

// S3Config returns the export target configuration
func (c *ServerConfig) S3Config() (s3storage.Config, error) {
	if c.S3Bucket == "" {
		return s3storage.Config{}, errors.New("S3_BUCKET is required for export")
	}
	return s3storage.Config{
		Region:                 c.S3Region,
		Bucket:                 c.S3Bucket,
		Prefix:                 c.S3Prefix,
		AccessKeyID:            c.S3AccessKeyID,
		SecretAccessKey:        c.S3SecretAccessKey,
		Endpoint:               c.S3Endpoint,
		UsePathStyle:           c.S3UsePathStyle,
		Encryption:             c.S3Encryption,
		KMSKeyID:               c.S3KMSKeyID,
		CacheControl:           c.S3CacheControl,
		CreateBucketIfNotExist: c.S3CreateBucket,
	}, nil
}

// GCTypes lists profile keys with a positive retention window
func (c *ServerConfig) GCTypes() []string {
	var types []string
	for _, p := range c.Profiles {
		if p.Retention > 0 {
			types = append(types, p.Key)
		}
	}
	return types
}

// PhotoTypes lists the keys of photo profiles
func (c *ServerConfig) PhotoTypes() []string {
	var types []string
	for _, p := range c.Profiles {
		if p.Kind == simplemedia.KindPhoto {
			types = append(types, p.Key)
		}
	}
	return types
}

// SlogLevel maps LogLevel to a slog level, defaulting to info
func (c *ServerConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
