package simplemedia

import (
	"context"
)

// RederivePageSize is the number of records fetched per page by Rederive
const RederivePageSize = 100

func (s *service) Rederive(ctx context.Context, typeKey string) (int, error) {
	profile, err := s.registry.Lookup(typeKey)
	if err != nil {
		return 0, &ValidationError{Field: "type", Err: err}
	}
	if profile.Kind != KindPhoto {
		return 0, &ValidationError{Field: "type", Err: ErrNoVariants}
	}

	count := 0
	for offset := 0; ; offset += RederivePageSize {
		assets, err := s.repository.ListAssets(ctx, ListParams{Offset: offset, Limit: RederivePageSize})
		if err != nil {
			return count, &PersistenceError{Op: "list", Err: err}
		}

		for _, asset := range assets {
			if err := ctx.Err(); err != nil {
				return count, err
			}
			if asset.Type != profile.Key {
				continue
			}

			next, err := s.planner.rederive(profile, asset.File, asset.Derived)
			if err != nil {
				processingFailures.WithLabelValues("rederive").Inc()
				s.logger.Warn("rederive failed, keeping variants", "file_id", asset.FileID, "err", err)
				continue
			}
			asset.Derived = next
			if err := s.repository.UpdateAsset(ctx, asset); err != nil {
				return count, &PersistenceError{Op: "rederive", FileID: asset.FileID, Err: err}
			}
			s.invalidate(ctx, asset.FileID)
			count++
		}

		if len(assets) < RederivePageSize {
			break
		}
	}

	s.logger.Info("variants rederived", "type", profile.Key, "count", count)
	return count, nil
}
