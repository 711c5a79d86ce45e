package simplemedia

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) AssetUploaded(ctx context.Context, asset *Asset) error  { return nil }
func (n *NoopEventSink) AssetCropped(ctx context.Context, asset *Asset) error   { return nil }
func (n *NoopEventSink) AssetMarkedUse(ctx context.Context, asset *Asset) error { return nil }
func (n *NoopEventSink) AssetHidden(ctx context.Context, asset *Asset) error    { return nil }
func (n *NoopEventSink) AssetCollected(ctx context.Context, asset *Asset) error { return nil }

// LogEventSink writes each event to a logger at debug level
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink backed by logger
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger.With("component", "events")}
}

func (l *LogEventSink) log(ctx context.Context, event string, asset *Asset) error {
	l.logger.DebugContext(ctx, "asset event",
		"event", event,
		"file_id", asset.FileID,
		"type", asset.Type,
		"path", asset.OriginalPath(),
	)
	return nil
}

func (l *LogEventSink) AssetUploaded(ctx context.Context, asset *Asset) error {
	return l.log(ctx, "uploaded", asset)
}

func (l *LogEventSink) AssetCropped(ctx context.Context, asset *Asset) error {
	return l.log(ctx, "cropped", asset)
}

func (l *LogEventSink) AssetMarkedUse(ctx context.Context, asset *Asset) error {
	return l.log(ctx, "marked_use", asset)
}

func (l *LogEventSink) AssetHidden(ctx context.Context, asset *Asset) error {
	return l.log(ctx, "hidden", asset)
}

func (l *LogEventSink) AssetCollected(ctx context.Context, asset *Asset) error {
	return l.log(ctx, "collected", asset)
}
