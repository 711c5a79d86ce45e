package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Repository implements simplemedia.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	assets map[string]*simplemedia.Asset
	covers map[string]*simplemedia.Cover
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		assets: make(map[string]*simplemedia.Asset),
		covers: make(map[string]*simplemedia.Cover),
	}
}

// Asset operations

func (r *Repository) CreateAsset(ctx context.Context, asset *simplemedia.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[asset.FileID]; exists {
		return simplemedia.ErrDuplicateFileID
	}
	r.assets[asset.FileID] = copyAsset(asset)
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, fileID string) (*simplemedia.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, exists := r.assets[fileID]
	if !exists || asset.Hidden() {
		return nil, simplemedia.ErrAssetNotFound
	}
	return copyAsset(asset), nil
}

func (r *Repository) UpdateAsset(ctx context.Context, asset *simplemedia.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[asset.FileID]; !exists {
		return simplemedia.ErrAssetNotFound
	}
	r.assets[asset.FileID] = copyAsset(asset)
	return nil
}

func (r *Repository) DeleteAsset(ctx context.Context, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[fileID]; !exists {
		return simplemedia.ErrAssetNotFound
	}
	delete(r.assets, fileID)
	return nil
}

func (r *Repository) ListCollectable(ctx context.Context, typeKey string, cutoff time.Time, limit int) ([]*simplemedia.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplemedia.Asset
	for _, asset := range r.assets {
		if asset.Type != typeKey || asset.IsUse || asset.CreatedAt.After(cutoff) {
			continue
		}
		result = append(result, copyAsset(asset))
	}
	sortAssets(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *Repository) ListAssets(ctx context.Context, params simplemedia.ListParams) ([]*simplemedia.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplemedia.Asset
	for _, asset := range r.assets {
		if asset.Hidden() {
			continue
		}
		result = append(result, copyAsset(asset))
	}
	sortAssets(result)
	return page(result, params), nil
}

// Cover operations

func (r *Repository) CreateCover(ctx context.Context, cover *simplemedia.Cover) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.covers[cover.FileID]; exists {
		return simplemedia.ErrDuplicateFileID
	}
	r.covers[cover.FileID] = copyCover(cover)
	return nil
}

func (r *Repository) GetCover(ctx context.Context, fileID string) (*simplemedia.Cover, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cover, exists := r.covers[fileID]
	if !exists {
		return nil, simplemedia.ErrCoverNotFound
	}
	return copyCover(cover), nil
}

func (r *Repository) UpdateCover(ctx context.Context, cover *simplemedia.Cover) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.covers[cover.FileID]; !exists {
		return simplemedia.ErrCoverNotFound
	}
	r.covers[cover.FileID] = copyCover(cover)
	return nil
}

func (r *Repository) DeleteCover(ctx context.Context, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.covers[fileID]; !exists {
		return simplemedia.ErrCoverNotFound
	}
	delete(r.covers, fileID)
	return nil
}

func (r *Repository) ListCovers(ctx context.Context, params simplemedia.ListParams) ([]*simplemedia.Cover, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplemedia.Cover
	for _, cover := range r.covers {
		if cover.HiddenAt != 0 {
			continue
		}
		result = append(result, copyCover(cover))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].FileID < result[j].FileID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return page(result, params), nil
}

// Helper methods

func sortAssets(assets []*simplemedia.Asset) {
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].CreatedAt.Equal(assets[j].CreatedAt) {
			return assets[i].FileID < assets[j].FileID
		}
		return assets[i].CreatedAt.Before(assets[j].CreatedAt)
	})
}

func page[T any](items []T, params simplemedia.ListParams) []T {
	if params.Offset >= len(items) {
		return nil
	}
	if params.Offset > 0 {
		items = items[params.Offset:]
	}
	if params.Limit > 0 && len(items) > params.Limit {
		items = items[:params.Limit]
	}
	return items
}

// copyAsset returns a deep copy so callers cannot mutate stored maps
func copyAsset(asset *simplemedia.Asset) *simplemedia.Asset {
	c := *asset
	c.Derived = copyDerived(asset.Derived)
	if asset.Fields != nil {
		c.Fields = make(map[string]string, len(asset.Fields))
		for k, v := range asset.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}

func copyCover(cover *simplemedia.Cover) *simplemedia.Cover {
	c := *cover
	c.Derived = copyDerived(cover.Derived)
	return &c
}

func copyDerived(d simplemedia.Derived) simplemedia.Derived {
	return simplemedia.Derived{
		Sizes:      d.Sizes.Clone(),
		CropSquare: d.CropSquare.Clone(),
		CropCustom: d.CropCustom.Clone(),
	}
}

var _ simplemedia.Repository = (*Repository)(nil)
