// Package probe determines the real format of an upload from its bytes
// rather than from the client supplied filename.
package probe

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DurationProber reports the playback duration of audio and video
type DurationProber interface {
	Duration(ctx context.Context, path string) (int, error)
}

// Prober implements simplemedia.Prober using content sniffing
type Prober struct {
	durations DurationProber
	logger    *slog.Logger
}

// Option configures a Prober
type Option func(*Prober)

// WithDurationProber enables duration lookup for audio and video
func WithDurationProber(d DurationProber) Option {
	return func(p *Prober) {
		p.durations = d
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// New creates a Prober
func New(options ...Option) *Prober {
	p := &Prober{logger: slog.Default()}
	for _, option := range options {
		option(p)
	}
	p.logger = p.logger.With("component", "probe")
	return p
}

// Probe returns the detected extension, MIME type and size of path. Image
// dimensions and media duration are filled in when available.
func (p *Prober) Probe(ctx context.Context, path string) (*simplemedia.ProbeResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", simplemedia.ErrUnreadableFile, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", simplemedia.ErrUnreadableFile, path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", simplemedia.ErrUnreadableFile, err)
	}
	ext := NormalizeExt(mt.Extension())
	if ext == "" {
		return nil, fmt.Errorf("%w: unrecognized format %s", simplemedia.ErrUnreadableFile, mt.String())
	}

	result := &simplemedia.ProbeResult{
		Ext:  ext,
		MIME: mt.String(),
		Size: info.Size(),
	}

	switch {
	case strings.HasPrefix(mt.String(), "image/"):
		if w, h, err := dimensions(path); err == nil {
			result.Width, result.Height = w, h
		}
	case strings.HasPrefix(mt.String(), "video/"), strings.HasPrefix(mt.String(), "audio/"):
		if p.durations != nil {
			secs, err := p.durations.Duration(ctx, path)
			if err != nil {
				p.logger.Warn("duration probe failed", "path", path, "err", err)
			} else {
				result.Duration = secs
			}
		}
	}
	return result, nil
}

// NormalizeExt lower-cases ext, strips the dot and maps jpeg to jpg
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

func dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

var _ simplemedia.Prober = (*Prober)(nil)
