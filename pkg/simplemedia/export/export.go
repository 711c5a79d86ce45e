// Package export copies stored originals, variants and covers into an
// object store, keyed by their stored relative paths.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DefaultPageSize is the number of records read per repository page
const DefaultPageSize = 100

// Target receives exported files
type Target interface {
	Exists(ctx context.Context, relPath string) (bool, error)
	Upload(ctx context.Context, relPath, contentType string, r io.Reader) error
}

// Stats summarizes a run
type Stats struct {
	Assets   int
	Covers   int
	Uploaded int
	Skipped  int
	Missing  int
}

// Exporter walks visible assets and covers page by page
type Exporter struct {
	repository   simplemedia.Repository
	store        simplemedia.FileStore
	target       Target
	logger       *slog.Logger
	pageSize     int
	skipExisting bool
}

// Option configures an Exporter
type Option func(*Exporter)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// WithPageSize overrides DefaultPageSize
func WithPageSize(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithSkipExisting skips files already present in the target
func WithSkipExisting(skip bool) Option {
	return func(e *Exporter) {
		e.skipExisting = skip
	}
}

// New creates an Exporter
func New(repository simplemedia.Repository, store simplemedia.FileStore, target Target, options ...Option) *Exporter {
	e := &Exporter{
		repository: repository,
		store:      store,
		target:     target,
		logger:     slog.Default(),
		pageSize:   DefaultPageSize,
	}
	for _, option := range options {
		option(e)
	}
	e.logger = e.logger.With("component", "export")
	return e
}

// Run exports every visible asset, then every visible cover
func (e *Exporter) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	for offset := 0; ; {
		assets, err := e.repository.ListAssets(ctx, simplemedia.ListParams{Offset: offset, Limit: e.pageSize})
		if err != nil {
			return stats, fmt.Errorf("list assets at offset %d: %w", offset, err)
		}
		if len(assets) == 0 {
			break
		}
		offset += len(assets)

		for _, asset := range assets {
			if err := e.files(ctx, &stats, asset.OriginalPath(), asset.Paths()); err != nil {
				return stats, fmt.Errorf("export asset %s: %w", asset.FileID, err)
			}
			stats.Assets++
		}
		e.logger.Info("assets exported", "offset", offset)
	}

	for offset := 0; ; {
		covers, err := e.repository.ListCovers(ctx, simplemedia.ListParams{Offset: offset, Limit: e.pageSize})
		if err != nil {
			return stats, fmt.Errorf("list covers at offset %d: %w", offset, err)
		}
		if len(covers) == 0 {
			break
		}
		offset += len(covers)

		for _, cover := range covers {
			if err := e.files(ctx, &stats, cover.OriginalPath(), cover.Paths()); err != nil {
				return stats, fmt.Errorf("export cover %s: %w", cover.FileID, err)
			}
			stats.Covers++
		}
		e.logger.Info("covers exported", "offset", offset)
	}

	e.logger.Info("export complete", "assets", stats.Assets, "covers", stats.Covers,
		"uploaded", stats.Uploaded, "skipped", stats.Skipped, "missing", stats.Missing)
	return stats, nil
}

func (e *Exporter) files(ctx context.Context, stats *Stats, original string, variants []string) error {
	seen := map[string]bool{}
	for _, rel := range append([]string{original}, variants...) {
		if seen[rel] {
			continue
		}
		seen[rel] = true

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.file(ctx, stats, rel); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) file(ctx context.Context, stats *Stats, rel string) error {
	if e.skipExisting {
		exists, err := e.target.Exists(ctx, rel)
		if err != nil {
			return err
		}
		if exists {
			stats.Skipped++
			return nil
		}
	}

	abs := e.store.Abs(rel)
	f, err := os.Open(abs)
	if errors.Is(err, fs.ErrNotExist) {
		e.logger.Warn("file missing on disk", "path", rel)
		stats.Missing++
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(abs); err == nil {
		contentType = mt.String()
	}

	if err := e.target.Upload(ctx, rel, contentType, f); err != nil {
		return err
	}
	stats.Uploaded++
	return nil
}
