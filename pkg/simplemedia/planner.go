package simplemedia

import (
	"fmt"
	"log/slog"
	"slices"
)

type cropKind int

const (
	cropSquare cropKind = iota
	cropCustom
)

func (k cropKind) String() string {
	if k == cropSquare {
		return "crop_square"
	}
	return "crop_custom"
}

// planner derives resized and cropped variants of an original according to
// its profile and reconciles them with the variants stored before.
type planner struct {
	store     FileStore
	processor ImageProcessor
	logger    *slog.Logger
}

// plan produces every variant category of the profile. Only a failed crop
// for a cropped profile is an error; other failures degrade to fallbacks.
func (p *planner) plan(profile *TypeProfile, file File, previous Derived, crop *CropParams) (Derived, error) {
	quality := qualityOf(profile)

	sizes, err := p.planSizes(profile, file, crop, quality)
	if err != nil {
		return previous, err
	}

	next := Derived{Sizes: sizes}
	next.CropSquare = p.planCrop(profile, file, nil, cropSquare, previous.CropSquare, quality)
	next.CropCustom = p.planCrop(profile, file, crop, cropCustom, previous.CropCustom, quality)

	p.cleanup(file, previous, next)
	return next, nil
}

// rederive re-plans an asset against the current profile without a caller
// box. Custom crops are kept while the profile still configures them since
// the box they were cut from is not recorded.
func (p *planner) rederive(profile *TypeProfile, file File, previous Derived) (Derived, error) {
	quality := qualityOf(profile)

	sizes, err := p.planSizes(profile, file, nil, quality)
	if err != nil {
		return previous, err
	}

	next := Derived{Sizes: sizes}
	next.CropSquare = p.planCrop(profile, file, nil, cropSquare, previous.CropSquare, quality)
	if profile.CropCustom.IsNeed && len(previous.CropCustom) > 0 {
		next.CropCustom = previous.CropCustom.Clone()
	} else {
		next.CropCustom = p.planCrop(profile, file, nil, cropCustom, previous.CropCustom, quality)
	}

	p.cleanup(file, previous, next)
	return next, nil
}

// recrop re-derives the category a caller supplied box applies to: the
// custom crop when configured, otherwise the sizes of a cropped profile.
func (p *planner) recrop(profile *TypeProfile, file File, previous Derived, crop *CropParams) (Derived, error) {
	quality := qualityOf(profile)
	next := previous.Clone()

	switch {
	case profile.CropCustom.IsNeed && profile.CropCustom.Default != nil:
		variants, ok := p.cropAndResize(profile, file, crop, cropCustom, quality)
		if !ok {
			return previous, &ProcessingError{Op: "crop", Path: file.OriginalPath(), Err: ErrCropFailed}
		}
		next.CropCustom = variants
	case profile.Cropped:
		sizes, err := p.planSizes(profile, file, crop, quality)
		if err != nil {
			return previous, err
		}
		next.Sizes = sizes
	default:
		return previous, ErrCropNotSupported
	}

	p.cleanup(file, previous, next)
	return next, nil
}

// planSizes resizes the original, or a crop of it for cropped profiles, to
// every configured size. A failed resize falls back to the original.
func (p *planner) planSizes(profile *TypeProfile, file File, crop *CropParams, quality int) (Variants, error) {
	dims := profile.SortedSizes()
	if len(dims) == 0 {
		return Variants{}, nil
	}

	original := p.store.Abs(file.OriginalPath())
	source := original
	intermediate := ""

	if profile.Cropped {
		box, auto := legacyCropBox(profile, crop)
		out, err := p.processor.Crop(original, box, auto, quality, "")
		if err != nil {
			p.logger.Warn("crop failed", "path", file.OriginalPath(), "type", profile.Key, "err", err)
			return nil, &ProcessingError{Op: "crop", Path: file.OriginalPath(), Err: ErrCropFailed}
		}
		source, intermediate = out, out
	}

	sizes := make(Variants, len(dims))
	for _, d := range dims {
		out, err := p.processor.Resize(source, d.Width, d.Height, quality, "")
		if err != nil {
			p.logger.Warn("resize failed, using original", "path", file.OriginalPath(), "width", d.Width, "err", err)
			out = original
		}
		sizes[d.Width] = p.store.Rel(out)
	}

	p.dropIntermediate(intermediate, sizes)
	return sizes, nil
}

// planCrop produces one crop category. When the category is disabled its old
// files are left to cleanup; when the crop fails the previous map is kept.
func (p *planner) planCrop(profile *TypeProfile, file File, crop *CropParams, kind cropKind, previous Variants, quality int) Variants {
	spec := profile.CropSquare
	if kind == cropCustom {
		spec = profile.CropCustom
		if spec.IsNeed && spec.Default == nil {
			return nil
		}
	}
	if !spec.IsNeed {
		return nil
	}

	variants, ok := p.cropAndResize(profile, file, crop, kind, quality)
	if !ok {
		return previous.Clone()
	}
	return variants
}

func (p *planner) cropAndResize(profile *TypeProfile, file File, crop *CropParams, kind cropKind, quality int) (Variants, bool) {
	original := p.store.Abs(file.OriginalPath())
	spec := profile.CropSquare
	name := fmt.Sprintf("%s_square.%s", file.Name, file.Ext)
	if kind == cropCustom {
		spec = profile.CropCustom
		name = fmt.Sprintf("%s_custom.%s", file.Name, file.Ext)
	}

	var (
		cropped string
		err     error
	)
	if kind == cropSquare {
		cropped, err = p.processor.CropSquare(original, quality, name)
	} else if crop.Complete() {
		cropped, err = p.processor.Crop(original, crop.Box(), false, quality, name)
	} else {
		box := CropBox{Width: spec.Default.Width, Height: spec.Default.Height}
		cropped, err = p.processor.Crop(original, box, true, quality, name)
	}
	if err != nil {
		p.logger.Warn("crop failed, keeping previous variants", "kind", kind.String(), "path", file.OriginalPath(), "err", err)
		return nil, false
	}

	variants := make(Variants, len(spec.Resize))
	for _, w := range sortedInts(spec.Resize) {
		height := 0
		var out string
		if kind == cropSquare {
			height = w
			out = fmt.Sprintf("%s_square_%dx%d.%s", file.Name, w, w, file.Ext)
		} else {
			out = fmt.Sprintf("%s_custom_%d.%s", file.Name, w, file.Ext)
		}
		resized, err := p.processor.Resize(cropped, w, height, quality, out)
		if err != nil {
			p.logger.Warn("resize failed, using crop", "kind", kind.String(), "width", w, "err", err)
			resized = cropped
		}
		variants[w] = p.store.Rel(resized)
	}

	p.dropIntermediate(cropped, variants)
	return variants, true
}

// dropIntermediate removes a full-size crop unless a variant points at it
func (p *planner) dropIntermediate(abs string, variants Variants) {
	if abs == "" {
		return
	}
	rel := p.store.Rel(abs)
	if variants.Contains(rel) {
		return
	}
	if err := p.store.Remove(rel); err != nil {
		p.logger.Warn("failed to remove intermediate crop", "path", rel, "err", err)
	}
}

// cleanup deletes files referenced by previous but not by next
func (p *planner) cleanup(file File, previous, next Derived) {
	keep := map[string]bool{file.OriginalPath(): true}
	for _, path := range next.Paths() {
		keep[path] = true
	}
	for _, path := range previous.Paths() {
		if keep[path] {
			continue
		}
		if err := p.store.Remove(path); err != nil {
			p.logger.Warn("failed to remove stale variant", "path", path, "err", err)
		}
		keep[path] = true
	}
}

// legacyCropBox returns the caller's box when complete, otherwise an
// auto-centered box with the aspect of the first configured size.
func legacyCropBox(profile *TypeProfile, crop *CropParams) (CropBox, bool) {
	if crop.Complete() {
		return crop.Box(), false
	}
	box := CropBox{}
	if len(profile.Sizes) > 0 && len(profile.Sizes[0]) == 2 {
		box.Width, box.Height = profile.Sizes[0][0], profile.Sizes[0][1]
	}
	return box, true
}

func qualityOf(profile *TypeProfile) int {
	if profile.Quality > 0 && profile.Quality <= 100 {
		return profile.Quality
	}
	return 90
}

func sortedInts(in []int) []int {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
