package simplemedia

import "context"

// Service defines the main interface for the simple-media library
type Service interface {
	// Upload validates, stores and derives variants for a new asset
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)

	// Get returns the public view of a visible asset
	Get(ctx context.Context, fileID string) (*AssetDetails, error)

	// Crop re-derives the cropped variants of an asset from a new box
	Crop(ctx context.Context, fileID string, params CropParams) (*CropResult, error)

	// Lifecycle operations. MarkUse and MarkDelete return 1 on success and 0
	// when the asset is missing or hidden.
	MarkUse(ctx context.Context, fileID string) (int, error)
	MarkDelete(ctx context.Context, fileID string) (int, error)

	// GarbageCollect removes one batch of expired unused assets of a type.
	// It returns -1 with the error when a delete fails.
	GarbageCollect(ctx context.Context, typeKey string) (int, error)

	// Rederive rebuilds the variants of every visible asset of a photo type
	// from the current profile and removes variants it no longer produces.
	// It returns the number of assets rebuilt.
	Rederive(ctx context.Context, typeKey string) (int, error)

	// Registry returns the profile registry the service was built with
	Registry() *Registry
}
