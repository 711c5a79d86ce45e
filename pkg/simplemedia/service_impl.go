package simplemedia

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia/retry"
	"github.com/tendant/simple-media/pkg/simplemedia/urlstrategy"
)

const (
	// DefaultIDAttempts bounds file_id generation on uniqueness violations
	DefaultIDAttempts = 50

	// DefaultGCBatchSize is the number of assets examined per collection pass
	DefaultGCBatchSize = 50

	// DefaultCoverOffset is where in a video the cover frame is taken
	DefaultCoverOffset = time.Second
)

// NewToken returns "<unix seconds>.<32 hex chars>". It is used for both
// file ids and stored filenames.
func NewToken(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%d.%s", now.Unix(), hex.EncodeToString(id[:]))
}

// service implements the Service interface
type service struct {
	repository Repository
	registry   *Registry
	store      FileStore
	processor  ImageProcessor
	prober     Prober
	extractor  FrameExtractor
	cache      DetailsCache
	urls       URLBuilder
	events     EventSink
	logger     *slog.Logger

	host        string
	now         func() time.Time
	newID       func(now time.Time) string
	idAttempts  int
	gcBatchSize int
	coverOffset time.Duration

	planner *planner
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithRegistry sets the profile registry
func WithRegistry(registry *Registry) Option {
	return func(s *service) {
		s.registry = registry
	}
}

// WithFileStore sets the content-addressed store
func WithFileStore(store FileStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithImageProcessor sets the image processor
func WithImageProcessor(processor ImageProcessor) Option {
	return func(s *service) {
		s.processor = processor
	}
}

// WithProber sets the format prober
func WithProber(prober Prober) Option {
	return func(s *service) {
		s.prober = prober
	}
}

// WithFrameExtractor enables video covers
func WithFrameExtractor(extractor FrameExtractor) Option {
	return func(s *service) {
		s.extractor = extractor
	}
}

// WithCache sets the Get response cache
func WithCache(cache DetailsCache) Option {
	return func(s *service) {
		s.cache = cache
	}
}

// WithEventSink sets the receiver of lifecycle notifications
func WithEventSink(events EventSink) Option {
	return func(s *service) {
		s.events = events
	}
}

// WithURLBuilder sets how stored paths become public URLs
func WithURLBuilder(urls URLBuilder) Option {
	return func(s *service) {
		s.urls = urls
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithHost sets the host recorded on new assets
func WithHost(host string) Option {
	return func(s *service) {
		s.host = host
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithIDGenerator overrides file_id generation
func WithIDGenerator(fn func(now time.Time) string) Option {
	return func(s *service) {
		s.newID = fn
	}
}

// WithIDAttempts overrides the file_id retry bound
func WithIDAttempts(n int) Option {
	return func(s *service) {
		s.idAttempts = n
	}
}

// WithGCBatchSize overrides the collection batch size
func WithGCBatchSize(n int) Option {
	return func(s *service) {
		s.gcBatchSize = n
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger:      slog.Default(),
		now:         time.Now,
		newID:       NewToken,
		idAttempts:  DefaultIDAttempts,
		gcBatchSize: DefaultGCBatchSize,
		coverOffset: DefaultCoverOffset,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("file store is required")
	}
	if s.processor == nil {
		return nil, fmt.Errorf("image processor is required")
	}
	if s.prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	if s.urls == nil {
		s.urls = urlstrategy.NewHost("http")
	}
	if s.events == nil {
		s.events = NewNoopEventSink()
	}

	s.logger = s.logger.With("component", "simplemedia")
	s.planner = &planner{store: s.store, processor: s.processor, logger: s.logger}
	return s, nil
}

func (s *service) Registry() *Registry {
	return s.registry
}

// Upload operations

func (s *service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	profile, err := s.registry.Lookup(req.Type)
	if err != nil {
		return nil, &ValidationError{Field: "type", Err: err}
	}

	fields, err := requiredFields(profile, req.Fields)
	if err != nil {
		return nil, err
	}

	tempPath := req.Path
	if tempPath == "" {
		if req.Reader == nil {
			return nil, &ValidationError{Field: "upload_file", Err: ErrUnreadableFile}
		}
		tempPath, err = s.store.Spool(ctx, req.Reader)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tempPath)
	}

	info, err := s.validate(ctx, profile, tempPath)
	if err != nil {
		uploadsTotal.WithLabelValues(profile.Key, "rejected").Inc()
		return nil, err
	}

	file, err := s.commitOriginal(ctx, tempPath, profile, info)
	if err != nil {
		uploadsTotal.WithLabelValues(profile.Key, "failed").Inc()
		return nil, err
	}

	asset := &Asset{
		File:      file,
		Kind:      profile.Kind,
		Type:      profile.Key,
		Duration:  info.Duration,
		Fields:    fields,
		CreatedAt: s.now().UTC(),
	}
	err = s.withFreshID(ctx, func(id string) { asset.FileID = id }, func() error {
		return s.repository.CreateAsset(ctx, asset)
	})
	if err != nil {
		s.discard(file)
		uploadsTotal.WithLabelValues(profile.Key, "failed").Inc()
		return nil, err
	}

	if profile.Kind == KindPhoto {
		if err := s.deriveOriginal(profile, asset, info, req.Rotate, req.Crop); err != nil {
			uploadsTotal.WithLabelValues(profile.Key, "failed").Inc()
			return nil, err
		}
	}

	if profile.Kind == KindVideo && profile.Cover.IsNeed && s.extractor != nil {
		cover, err := s.extractCover(ctx, profile, asset)
		if err != nil {
			s.logger.Warn("cover extraction failed", "file_id", asset.FileID, "err", err)
		} else {
			asset.CoverID = cover.FileID
		}
	}

	if err := s.repository.UpdateAsset(ctx, asset); err != nil {
		uploadsTotal.WithLabelValues(profile.Key, "failed").Inc()
		return nil, &PersistenceError{Op: "update", FileID: asset.FileID, Err: err}
	}

	uploadsTotal.WithLabelValues(profile.Key, "ok").Inc()
	s.logger.Info("asset uploaded", "file_id", asset.FileID, "type", asset.Type, "size", asset.Size, "hash", asset.Hash)
	s.notify(ctx, "uploaded", asset, s.events.AssetUploaded)
	return &UploadResult{
		Host:   s.urls.HostURL(asset.Host),
		FileID: asset.FileID,
	}, nil
}

// requiredFields copies the profile's custom fields out of supplied and
// reports the first one missing
func requiredFields(profile *TypeProfile, supplied map[string]string) (map[string]string, error) {
	fields := make(map[string]string, len(profile.Fields))
	for _, name := range profile.Fields {
		v, ok := supplied[name]
		if !ok {
			return nil, &ValidationError{Field: name, Err: ErrMissingField}
		}
		fields[name] = v
	}
	return fields, nil
}

func (s *service) validate(ctx context.Context, profile *TypeProfile, path string) (*ProbeResult, error) {
	info, err := s.prober.Probe(ctx, path)
	if err != nil {
		if !errors.Is(err, ErrUnreadableFile) {
			err = fmt.Errorf("%w: %v", ErrUnreadableFile, err)
		}
		return nil, &ValidationError{Field: "upload_file", Err: err}
	}
	if info.Size < profile.MinSize {
		return nil, &ValidationError{Field: "upload_file", Err: ErrTooSmall}
	}
	if profile.MaxSize > 0 && info.Size > profile.MaxSize {
		return nil, &ValidationError{Field: "upload_file", Err: ErrTooLarge}
	}
	if !profile.Allows(info.Ext) {
		return nil, &ValidationError{Field: "upload_file", Err: fmt.Errorf("%w: %s", ErrDisallowedType, info.Ext)}
	}
	return info, nil
}

// commitOriginal hashes tempPath and moves it into the profile's shard directory
func (s *service) commitOriginal(ctx context.Context, tempPath string, profile *TypeProfile, info *ProbeResult) (File, error) {
	hash, err := s.store.Hash(tempPath)
	if err != nil {
		return File{}, err
	}
	stored, err := s.store.Put(ctx, tempPath, profile.Dir, hash, info.Ext, profile.ShardLevel(), s.now())
	if err != nil {
		s.logger.Error("failed to store original", "type", profile.Key, "hash", hash, "err", err)
		return File{}, err
	}
	return File{
		Host: s.host,
		Dir:  stored.Dir,
		Name: stored.Name,
		Ext:  stored.Ext,
		Hash: hash,
		Size: info.Size,
	}, nil
}

// withFreshID assigns a new id and runs create until it stops reporting a
// duplicate or the attempt bound is reached
func (s *service) withFreshID(ctx context.Context, assign func(id string), create func() error) error {
	var lastID string
	_, err := retry.Do(ctx, s.idAttempts, retry.On(ErrDuplicateFileID), func(int) (struct{}, error) {
		lastID = s.newID(s.now())
		assign(lastID)
		return struct{}{}, create()
	})
	if errors.Is(err, retry.ErrExhausted) {
		s.logger.Error("file id allocation exhausted", "attempts", s.idAttempts, "last_id", lastID)
		return &PersistenceError{Op: "create", FileID: lastID, Err: ErrPersistenceExhausted}
	}
	if err != nil {
		return &PersistenceError{Op: "create", FileID: lastID, Err: err}
	}
	return nil
}

// discard removes a committed original that no record references
func (s *service) discard(file File) {
	if err := s.store.Remove(file.OriginalPath()); err != nil {
		s.logger.Error("failed to remove unreferenced original", "path", file.OriginalPath(), "err", err)
	}
}

// deriveOriginal optimizes a photo original in place and plans its variants.
// A failure leaves the already persisted record without variants.
func (s *service) deriveOriginal(profile *TypeProfile, asset *Asset, info *ProbeResult, rotate int, crop *CropParams) error {
	path := asset.OriginalPath()
	if info.Size > profile.OptimizeFloor {
		if err := s.processor.Optimize(s.store.Abs(path), qualityOf(profile), rotate); err != nil {
			processingFailures.WithLabelValues("optimize").Inc()
			s.logger.Error("optimize failed, record left without variants", "file_id", asset.FileID, "path", path, "err", err)
			return &ProcessingError{Op: "optimize", Path: path, Err: fmt.Errorf("%w: %v", ErrOptimizeFailed, err)}
		}
	}

	derived, err := s.planner.plan(profile, asset.File, asset.Derived, crop)
	if err != nil {
		processingFailures.WithLabelValues("crop").Inc()
		s.logger.Error("variant planning failed, record left without variants", "file_id", asset.FileID, "err", err)
		return err
	}
	asset.Derived = derived

	if size, err := s.store.Stat(path); err == nil {
		asset.Size = size
	}
	return nil
}

// extractCover grabs a frame from a video and stores it as the asset's cover
func (s *service) extractCover(ctx context.Context, profile *TypeProfile, asset *Asset) (*Cover, error) {
	tmp := s.store.TempPath(".jpg")
	defer os.Remove(tmp)

	if err := s.extractor.ExtractFrame(ctx, s.store.Abs(asset.OriginalPath()), tmp, s.coverOffset); err != nil {
		return nil, err
	}
	return s.storeCover(ctx, profile, tmp)
}

// storeCover commits an image as a cover of the given parent profile
func (s *service) storeCover(ctx context.Context, parent *TypeProfile, path string) (*Cover, error) {
	profile := parent.Cover.Profile
	info, err := s.prober.Probe(ctx, path)
	if err != nil {
		return nil, &ValidationError{Field: "cover", Err: err}
	}
	if len(profile.AllowTypes) > 0 && !profile.Allows(info.Ext) {
		return nil, &ValidationError{Field: "cover", Err: ErrDisallowedType}
	}

	file, err := s.commitOriginal(ctx, path, profile, info)
	if err != nil {
		return nil, err
	}

	cover := &Cover{
		File:      file,
		MediaKind: parent.Kind,
		Type:      parent.Key,
		CreatedAt: s.now().UTC(),
	}
	err = s.withFreshID(ctx, func(id string) { cover.FileID = id }, func() error {
		return s.repository.CreateCover(ctx, cover)
	})
	if err != nil {
		s.discard(file)
		return nil, err
	}

	derived, err := s.planner.plan(profile, cover.File, Derived{}, nil)
	if err != nil {
		s.logger.Warn("cover variant planning failed", "file_id", cover.FileID, "err", err)
	} else {
		cover.Derived = derived
	}
	if err := s.repository.UpdateCover(ctx, cover); err != nil {
		return nil, &PersistenceError{Op: "update_cover", FileID: cover.FileID, Err: err}
	}
	return cover, nil
}

// Read operations

func (s *service) Get(ctx context.Context, fileID string) (*AssetDetails, error) {
	if s.cache != nil {
		details, err := s.cache.Get(ctx, fileID)
		if err == nil {
			return details, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cache read failed", "file_id", fileID, "err", err)
		}
	}

	asset, err := s.repository.GetAsset(ctx, fileID)
	if err != nil {
		return nil, err
	}

	details := s.details(ctx, asset)
	if s.cache != nil {
		if err := s.cache.Set(ctx, details); err != nil {
			s.logger.Warn("cache write failed", "file_id", fileID, "err", err)
		}
	}
	return details, nil
}

func (s *service) details(ctx context.Context, asset *Asset) *AssetDetails {
	details := &AssetDetails{
		FileID:     asset.FileID,
		Kind:       asset.Kind,
		Type:       asset.Type,
		Fields:     asset.Fields,
		Original:   s.urls.URL(asset.Host, asset.OriginalPath()),
		Sizes:      s.variantURLs(asset.Host, asset.Sizes, ""),
		CropSquare: s.variantURLs(asset.Host, asset.CropSquare, ""),
		CropCustom: s.variantURLs(asset.Host, asset.CropCustom, ""),
		Duration:   asset.Duration,
		Hash:       asset.Hash,
		Size:       asset.Size,
		CreatedAt:  asset.CreatedAt.Unix(),
		IsUse:      asset.IsUse,
	}
	if details.Sizes == nil {
		details.Sizes = Variants{}
	}

	if asset.CoverID != "" {
		cover, err := s.repository.GetCover(ctx, asset.CoverID)
		switch {
		case err == nil:
			details.Cover = &CoverDetails{
				FileID:     cover.FileID,
				Original:   s.urls.URL(cover.Host, cover.OriginalPath()),
				Sizes:      s.variantURLs(cover.Host, cover.Sizes, ""),
				CropSquare: s.variantURLs(cover.Host, cover.CropSquare, ""),
				CropCustom: s.variantURLs(cover.Host, cover.CropCustom, ""),
			}
		case errors.Is(err, ErrCoverNotFound):
		default:
			s.logger.Warn("failed to load cover", "file_id", asset.FileID, "cover_id", asset.CoverID, "err", err)
		}
	}
	return details
}

func (s *service) variantURLs(host string, variants Variants, suffix string) Variants {
	if len(variants) == 0 {
		return nil
	}
	out := make(Variants, len(variants))
	for w, p := range variants {
		out[w] = s.urls.URL(host, p) + suffix
	}
	return out
}

// Crop operations

func (s *service) Crop(ctx context.Context, fileID string, params CropParams) (*CropResult, error) {
	asset, err := s.repository.GetAsset(ctx, fileID)
	if err != nil {
		return nil, err
	}
	profile, err := s.registry.Lookup(asset.Type)
	if err != nil {
		return nil, &ValidationError{Field: "type", Err: err}
	}
	if profile.Kind != KindPhoto {
		return nil, ErrCropNotSupported
	}

	next, err := s.planner.recrop(profile, asset.File, asset.Derived, &params)
	if err != nil {
		processingFailures.WithLabelValues("crop").Inc()
		return nil, err
	}
	asset.Derived = next
	if err := s.repository.UpdateAsset(ctx, asset); err != nil {
		return nil, &PersistenceError{Op: "update", FileID: asset.FileID, Err: err}
	}
	s.invalidate(ctx, asset.FileID)

	variants := next.Sizes
	if profile.CropCustom.IsNeed && profile.CropCustom.Default != nil {
		variants = next.CropCustom
	}
	suffix := fmt.Sprintf("?time=%d", s.now().Unix())
	result := &CropResult{
		Sizes:    s.variantURLs(asset.Host, variants, suffix),
		Original: s.urls.URL(asset.Host, asset.OriginalPath()),
	}
	if result.Sizes == nil {
		result.Sizes = Variants{}
	}
	s.logger.Info("asset cropped", "file_id", asset.FileID, "widths", variants.Widths())
	s.notify(ctx, "cropped", asset, s.events.AssetCropped)
	return result, nil
}

// notify delivers a lifecycle event. Sink failures are logged only.
func (s *service) notify(ctx context.Context, event string, asset *Asset, fn func(context.Context, *Asset) error) {
	if err := fn(ctx, asset); err != nil {
		s.logger.Warn("event sink failed", "event", event, "file_id", asset.FileID, "err", err)
	}
}

func (s *service) invalidate(ctx context.Context, fileID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, fileID); err != nil {
		s.logger.Warn("cache invalidation failed", "file_id", fileID, "err", err)
	}
}
