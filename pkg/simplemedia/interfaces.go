package simplemedia

import (
	"context"
	"io"
	"time"
)

// FileStore is the content-addressed store that originals and derived files
// live in. Paths passed in and out are relative to the store root.
type FileStore interface {
	// Hash returns the content digest of the file at an absolute path
	Hash(path string) (string, error)

	// Put shards tempPath into baseDir by hash and month and moves it under
	// a freshly allocated unique name
	Put(ctx context.Context, tempPath, baseDir, hash, ext string, level int, now time.Time) (*StoredFile, error)

	// Spool copies a reader into a temporary file and returns its absolute path
	Spool(ctx context.Context, r io.Reader) (string, error)

	// TempPath returns an unused absolute path in the spool directory
	TempPath(suffix string) string

	// Abs resolves a relative path against the store root
	Abs(rel string) string

	// Rel converts an absolute path under the store root into a relative one
	Rel(abs string) string

	// Stat returns the size of the file at a relative path
	Stat(rel string) (int64, error)

	// Rename moves a relative path. A missing source is not an error.
	Rename(oldRel, newRel string) error

	// Remove deletes a relative path. A missing file is not an error.
	Remove(rel string) error
}

// Repository defines the interface for asset and cover persistence
type Repository interface {
	// CreateAsset inserts a new record and returns ErrDuplicateFileID when the id is taken
	CreateAsset(ctx context.Context, asset *Asset) error

	// GetAsset returns a visible asset, or ErrAssetNotFound for missing or hidden ones
	GetAsset(ctx context.Context, fileID string) (*Asset, error)
	UpdateAsset(ctx context.Context, asset *Asset) error

	// DeleteAsset removes the record permanently
	DeleteAsset(ctx context.Context, fileID string) error

	// ListCollectable returns unused assets of typeKey created at or before cutoff
	ListCollectable(ctx context.Context, typeKey string, cutoff time.Time, limit int) ([]*Asset, error)

	// ListAssets pages through visible assets ordered by creation
	ListAssets(ctx context.Context, params ListParams) ([]*Asset, error)

	// Cover operations
	CreateCover(ctx context.Context, cover *Cover) error
	GetCover(ctx context.Context, fileID string) (*Cover, error)
	UpdateCover(ctx context.Context, cover *Cover) error
	DeleteCover(ctx context.Context, fileID string) error
	ListCovers(ctx context.Context, params ListParams) ([]*Cover, error)
}

// ImageProcessor performs single-file image operations on absolute paths.
// Output files are written next to the source; an empty name selects the
// default naming for the operation.
type ImageProcessor interface {
	// Optimize applies orientation and re-encodes path in place
	Optimize(path string, quality, rotate int) error

	// Crop writes a crop of path. When auto is set the box width and height
	// give the target aspect ratio and the crop is centered.
	Crop(path string, box CropBox, auto bool, quality int, name string) (string, error)

	// CropSquare writes the centered square of side min(width, height)
	CropSquare(path string, quality int, name string) (string, error)

	// Resize writes path scaled to width x height. A zero height keeps the aspect ratio.
	Resize(path string, width, height, quality int, name string) (string, error)
}

// Prober inspects an upload to find its real format and size
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// FrameExtractor pulls a still image out of a video
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath, outPath string, at time.Duration) error
}

// DetailsCache caches Get responses by file_id
type DetailsCache interface {
	Get(ctx context.Context, fileID string) (*AssetDetails, error)
	Set(ctx context.Context, details *AssetDetails) error
	Delete(ctx context.Context, fileID string) error
}

// URLBuilder turns a stored relative path into a public URL
type URLBuilder interface {
	URL(host, path string) string
	HostURL(host string) string
}

// EventSink receives lifecycle notifications after each change is persisted.
// A returned error is logged and never fails the operation.
type EventSink interface {
	AssetUploaded(ctx context.Context, asset *Asset) error
	AssetCropped(ctx context.Context, asset *Asset) error
	AssetMarkedUse(ctx context.Context, asset *Asset) error
	AssetHidden(ctx context.Context, asset *Asset) error
	AssetCollected(ctx context.Context, asset *Asset) error
}
