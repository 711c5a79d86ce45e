// Package imageproc implements simplemedia.ImageProcessor on top of
// disintegration/imaging. Every operation reads one file and writes one file
// next to it, encoded in the source's real format.
package imageproc

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DefaultQuality is the JPEG quality used when a caller passes zero
const DefaultQuality = 90

// ErrUnsupportedFormat indicates the source is not a JPEG, PNG or GIF
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Processor is the imaging backed image processor
type Processor struct {
	logger *slog.Logger
	filter imaging.ResampleFilter
}

// Option configures a Processor
type Option func(*Processor)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithFilter overrides the resampling filter used by Resize
func WithFilter(filter imaging.ResampleFilter) Option {
	return func(p *Processor) {
		p.filter = filter
	}
}

// New creates a Processor
func New(options ...Option) *Processor {
	p := &Processor{
		logger: slog.Default(),
		filter: imaging.Lanczos,
	}
	for _, option := range options {
		option(p)
	}
	p.logger = p.logger.With("component", "imageproc")
	return p
}

// Info reports the dimensions and format of an image without decoding pixels
func Info(path string) (width, height int, format string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, "", err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, "", err
	}
	return cfg.Width, cfg.Height, format, nil
}

// Optimize applies the rotation hint, or the EXIF orientation when the hint
// is zero, and re-encodes path in place.
func (p *Processor) Optimize(path string, quality, rotate int) error {
	src, format, err := decode(path)
	if err != nil {
		return &simplemedia.ProcessingError{Op: "optimize", Path: path, Err: err}
	}

	if rotate == 0 {
		rotate = OrientationRotation(path)
	}
	if rotate != 0 {
		src = Rotate(src, rotate)
	}

	if err := writeAtomic(path, src, format, quality); err != nil {
		return &simplemedia.ProcessingError{Op: "optimize", Path: path, Err: err}
	}
	p.logger.Debug("image optimized", "path", path, "rotate", rotate, "format", format)
	return nil
}

// OrientationRotation maps the EXIF orientation of path to a counter-clockwise
// angle in degrees. Files without EXIF data map to zero.
func OrientationRotation(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return rotationForOrientation(orientation)
}

func rotationForOrientation(orientation int) int {
	switch orientation {
	case 3:
		return 180
	case 6:
		return -90
	case 8:
		return 90
	}
	return 0
}

// Rotate turns img counter-clockwise by angle degrees
func Rotate(img image.Image, angle int) *image.NRGBA {
	switch ((angle % 360) + 360) % 360 {
	case 0:
		return imaging.Clone(img)
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	}
	return imaging.Rotate(img, float64(angle), color.Transparent)
}

// CropRect resolves the crop rectangle for a source of srcW x srcH. With a
// target aspect (box.Width, box.Height) the largest box of that aspect is
// used, otherwise the largest square. Auto mode centers it; explicit mode
// places it at (box.Left, box.Top) and clamps it to the source.
func CropRect(srcW, srcH int, box simplemedia.CropBox, auto bool) (image.Rectangle, error) {
	var maxW, maxH int
	if box.Width > 0 && box.Height > 0 {
		possibleW := int(float64(srcH) / float64(box.Height) * float64(box.Width))
		if possibleW <= srcW {
			maxW, maxH = possibleW, srcH
		} else {
			maxW, maxH = srcW, int(float64(srcW)/float64(box.Width)*float64(box.Height))
		}
	} else {
		maxW = min(srcW, srcH)
		maxH = maxW
	}

	var left, top, width, height int
	if auto {
		left = (srcW - maxW) / 2
		top = (srcH - maxH) / 2
		width, height = maxW, maxH
	} else {
		left = max(box.Left, 0)
		top = max(box.Top, 0)
		width = min(box.Width, maxW, srcW-left)
		height = min(box.Height, maxH, srcH-top)
	}

	if width <= 0 || height <= 0 {
		return image.Rectangle{}, fmt.Errorf("empty crop box %dx%d at %d,%d", width, height, left, top)
	}
	return image.Rect(left, top, left+width, top+height), nil
}

// Crop writes a crop of path next to it. The default output name is
// <basename>_<w>x<h>.<ext>.
func (p *Processor) Crop(path string, box simplemedia.CropBox, auto bool, quality int, name string) (string, error) {
	src, format, err := decode(path)
	if err != nil {
		return "", &simplemedia.ProcessingError{Op: "crop", Path: path, Err: err}
	}

	b := src.Bounds()
	rect, err := CropRect(b.Dx(), b.Dy(), box, auto)
	if err != nil {
		return "", &simplemedia.ProcessingError{Op: "crop", Path: path, Err: err}
	}
	rect = rect.Add(b.Min)
	dst := imaging.Crop(src, rect)

	if name == "" {
		base, ext := splitName(path)
		name = fmt.Sprintf("%s_%dx%d%s", base, rect.Dx(), rect.Dy(), ext)
	}
	out := filepath.Join(filepath.Dir(path), name)
	if err := writeAtomic(out, dst, format, quality); err != nil {
		return "", &simplemedia.ProcessingError{Op: "crop", Path: path, Err: err}
	}
	return out, nil
}

// CropSquare writes the centered square of side min(width, height)
func (p *Processor) CropSquare(path string, quality int, name string) (string, error) {
	return p.Crop(path, simplemedia.CropBox{}, true, quality, name)
}

// Resize writes path scaled to width x height. A zero height keeps the
// aspect ratio. The default output name is <first segment>_<w>x<h>.<ext>
// where the first segment is the basename up to its first underscore.
func (p *Processor) Resize(path string, width, height, quality int, name string) (string, error) {
	if width <= 0 || height < 0 {
		return "", &simplemedia.ProcessingError{Op: "resize", Path: path, Err: fmt.Errorf("invalid size %dx%d", width, height)}
	}
	src, format, err := decode(path)
	if err != nil {
		return "", &simplemedia.ProcessingError{Op: "resize", Path: path, Err: err}
	}

	dst := imaging.Resize(src, width, height, p.filter)
	if name == "" {
		base, ext := splitName(path)
		first, _, _ := strings.Cut(base, "_")
		name = fmt.Sprintf("%s_%dx%d%s", first, dst.Bounds().Dx(), dst.Bounds().Dy(), ext)
	}
	out := filepath.Join(filepath.Dir(path), name)
	if err := writeAtomic(out, dst, format, quality); err != nil {
		return "", &simplemedia.ProcessingError{Op: "resize", Path: path, Err: err}
	}
	return out, nil
}

func splitName(path string) (base, ext string) {
	file := filepath.Base(path)
	ext = filepath.Ext(file)
	return strings.TrimSuffix(file, ext), ext
}

func decode(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, "", err
	}
	if !supported(format) {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, "", err
	}
	img, err := imaging.Decode(f)
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}

func supported(format string) bool {
	switch format {
	case "jpeg", "png", "gif":
		return true
	}
	return false
}

// encode writes img in the given source format. PNG output keeps the alpha
// channel; JPEG uses quality.
func encode(w io.Writer, img image.Image, format string, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	switch format {
	case "jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case "png":
		return imaging.Encode(w, img, imaging.PNG)
	case "gif":
		return imaging.Encode(w, img, imaging.GIF)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// writeAtomic encodes into a temp file in the target directory and renames it over path
func writeAtomic(path string, img image.Image, format string, quality int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".img-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := encode(tmp, img, format, quality); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

var _ simplemedia.ImageProcessor = (*Processor)(nil)
