package simplemedia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
)

// Lifecycle operations

func (s *service) MarkUse(ctx context.Context, fileID string) (int, error) {
	asset, err := s.repository.GetAsset(ctx, fileID)
	if errors.Is(err, ErrAssetNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if !asset.IsUse {
		asset.IsUse = true
		if err := s.repository.UpdateAsset(ctx, asset); err != nil {
			return 0, &PersistenceError{Op: "mark_use", FileID: fileID, Err: err}
		}
	}
	s.invalidate(ctx, fileID)
	s.logger.Info("asset marked in use", "file_id", fileID)
	s.notify(ctx, "marked_use", asset, s.events.AssetMarkedUse)
	return 1, nil
}

func (s *service) MarkDelete(ctx context.Context, fileID string) (int, error) {
	asset, err := s.repository.GetAsset(ctx, fileID)
	if errors.Is(err, ErrAssetNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	now := s.now().Unix()
	t := &tombstone{store: s.store, prefix: fmt.Sprintf("_%d.", now), renamed: map[string]string{}, logger: s.logger}

	if err := t.file(&asset.File, &asset.Derived); err != nil {
		t.rollback()
		return 0, err
	}

	var cover, coverBefore *Cover
	if asset.CoverID != "" {
		c, err := s.repository.GetCover(ctx, asset.CoverID)
		switch {
		case err == nil:
			cover = c
			coverBefore = c.clone()
			if err := t.file(&cover.File, &cover.Derived); err != nil {
				t.rollback()
				return 0, err
			}
			cover.HiddenAt = now
			if err := s.repository.UpdateCover(ctx, cover); err != nil {
				t.rollback()
				return 0, &PersistenceError{Op: "mark_delete_cover", FileID: cover.FileID, Err: err}
			}
		case errors.Is(err, ErrCoverNotFound):
		default:
			t.rollback()
			return 0, err
		}
	}

	asset.HiddenAt = now
	if err := s.repository.UpdateAsset(ctx, asset); err != nil {
		t.rollback()
		if cover != nil {
			if rerr := s.repository.UpdateCover(ctx, coverBefore); rerr != nil {
				s.logger.Error("failed to restore cover record", "file_id", cover.FileID, "err", rerr)
			}
		}
		return 0, &PersistenceError{Op: "mark_delete", FileID: fileID, Err: err}
	}
	s.invalidate(ctx, fileID)
	s.logger.Info("asset hidden", "file_id", fileID, "hidden_at", now, "renamed", len(t.renamed))
	s.notify(ctx, "hidden", asset, s.events.AssetHidden)
	return 1, nil
}

// tombstone renames files by prefixing their basename with "_<unix>.".
// A path shared by several variants is renamed once. rollback undoes the
// renames in reverse order.
type tombstone struct {
	store   FileStore
	prefix  string
	renamed map[string]string
	order   []string
	logger  *slog.Logger
}

func (t *tombstone) file(file *File, derived *Derived) error {
	original := file.OriginalPath()
	if _, err := t.rename(original); err != nil {
		return err
	}
	file.Name = t.prefix + file.Name

	for _, variants := range []Variants{derived.Sizes, derived.CropSquare, derived.CropCustom} {
		for w, p := range variants {
			next, err := t.rename(p)
			if err != nil {
				return err
			}
			variants[w] = next
		}
	}
	return nil
}

func (t *tombstone) rename(rel string) (string, error) {
	if next, ok := t.renamed[rel]; ok {
		return next, nil
	}
	dir, base := path.Split(rel)
	next := dir + t.prefix + base
	if err := t.store.Rename(rel, next); err != nil {
		return "", err
	}
	t.renamed[rel] = next
	t.order = append(t.order, rel)
	return next, nil
}

func (t *tombstone) rollback() {
	for i := len(t.order) - 1; i >= 0; i-- {
		rel := t.order[i]
		if err := t.store.Rename(t.renamed[rel], rel); err != nil {
			t.logger.Error("failed to restore tombstoned file", "path", rel, "err", err)
		}
	}
	t.order = nil
	t.renamed = map[string]string{}
}

// GarbageCollect permanently removes one batch of unused assets older than
// the profile's retention window. It stops at the first failed delete and
// returns -1 with the error.
func (s *service) GarbageCollect(ctx context.Context, typeKey string) (int, error) {
	profile, err := s.registry.Lookup(typeKey)
	if err != nil {
		return -1, &ValidationError{Field: "type", Err: err}
	}
	if profile.Retention <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-profile.Retention)
	assets, err := s.repository.ListCollectable(ctx, profile.Key, cutoff, s.gcBatchSize)
	if err != nil {
		gcRunsTotal.WithLabelValues(profile.Key, "failed").Inc()
		return -1, &PersistenceError{Op: "list_collectable", Err: err}
	}

	count := 0
	for _, asset := range assets {
		collected, err := s.collect(ctx, asset)
		if err != nil {
			gcRunsTotal.WithLabelValues(profile.Key, "failed").Inc()
			s.logger.Error("garbage collection aborted", "type", profile.Key, "file_id", asset.FileID, "collected", count, "err", err)
			return -1, err
		}
		if collected {
			count++
		}
	}

	gcRunsTotal.WithLabelValues(profile.Key, "ok").Inc()
	gcCollectedTotal.WithLabelValues(profile.Key).Add(float64(count))
	if count > 0 {
		s.logger.Info("garbage collected", "type", profile.Key, "count", count, "cutoff", cutoff)
	}
	return count, nil
}

// collect deletes an asset with its cover and files. An asset marked in use
// since it was listed is skipped and reported as not collected.
func (s *service) collect(ctx context.Context, asset *Asset) (bool, error) {
	if asset.IsUse {
		return false, nil
	}

	if asset.CoverID != "" {
		cover, err := s.repository.GetCover(ctx, asset.CoverID)
		switch {
		case err == nil:
			if err := s.removeFiles(cover.OriginalPath(), cover.Paths()); err != nil {
				return false, err
			}
			if err := s.repository.DeleteCover(ctx, cover.FileID); err != nil {
				return false, &PersistenceError{Op: "delete_cover", FileID: cover.FileID, Err: err}
			}
		case errors.Is(err, ErrCoverNotFound):
		default:
			return false, &PersistenceError{Op: "get_cover", FileID: asset.CoverID, Err: err}
		}
	}

	if err := s.removeFiles(asset.OriginalPath(), asset.Paths()); err != nil {
		return false, err
	}
	if err := s.repository.DeleteAsset(ctx, asset.FileID); err != nil {
		return false, &PersistenceError{Op: "delete", FileID: asset.FileID, Err: err}
	}
	s.invalidate(ctx, asset.FileID)
	s.notify(ctx, "collected", asset, s.events.AssetCollected)
	return true, nil
}

// removeFiles deletes an original and its variants. Missing files count as
// already deleted.
func (s *service) removeFiles(original string, variants []string) error {
	if err := s.store.Remove(original); err != nil {
		return err
	}
	for _, p := range variants {
		if p == original {
			continue
		}
		if err := s.store.Remove(p); err != nil {
			return err
		}
	}
	return nil
}
