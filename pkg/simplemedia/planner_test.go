package simplemedia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeRoot = "/srv/media"

// fakeStore maps relative paths under fakeRoot and records removals
type fakeStore struct {
	removed []string
}

func (s *fakeStore) Hash(string) (string, error) { return "", nil }
func (s *fakeStore) Put(context.Context, string, string, string, string, int, time.Time) (*StoredFile, error) {
	return nil, errors.New("not implemented")
}
func (s *fakeStore) Spool(context.Context, io.Reader) (string, error) { return "", nil }
func (s *fakeStore) TempPath(suffix string) string                    { return "/tmp/x" + suffix }
func (s *fakeStore) Abs(rel string) string                            { return fakeRoot + rel }
func (s *fakeStore) Rel(abs string) string                            { return strings.TrimPrefix(abs, fakeRoot) }
func (s *fakeStore) Stat(string) (int64, error)                       { return 0, nil }
func (s *fakeStore) Rename(string, string) error                      { return nil }
func (s *fakeStore) Remove(rel string) error {
	s.removed = append(s.removed, rel)
	return nil
}

type cropCall struct {
	box  CropBox
	auto bool
	name string
}

// fakeProcessor names outputs predictably without touching the filesystem
type fakeProcessor struct {
	failResize map[int]bool
	failSquare bool
	failCrop   bool
	crops      []cropCall
}

func (p *fakeProcessor) Optimize(string, int, int) error { return nil }

func (p *fakeProcessor) Crop(src string, box CropBox, auto bool, _ int, name string) (string, error) {
	p.crops = append(p.crops, cropCall{box: box, auto: auto, name: name})
	if p.failCrop {
		return "", errors.New("crop failed")
	}
	if name == "" {
		base := strings.TrimSuffix(path.Base(src), path.Ext(src))
		name = fmt.Sprintf("%s_cropped%s", base, path.Ext(src))
	}
	return path.Join(path.Dir(src), name), nil
}

func (p *fakeProcessor) CropSquare(src string, _ int, name string) (string, error) {
	if p.failSquare {
		return "", errors.New("square failed")
	}
	return path.Join(path.Dir(src), name), nil
}

func (p *fakeProcessor) Resize(src string, width, height, _ int, name string) (string, error) {
	if p.failResize[width] {
		return "", errors.New("resize failed")
	}
	if name == "" {
		base := strings.TrimSuffix(path.Base(src), path.Ext(src))
		first, _, _ := strings.Cut(base, "_")
		name = fmt.Sprintf("%s_%dx%d%s", first, width, height, path.Ext(src))
	}
	return path.Join(path.Dir(src), name), nil
}

func newTestPlanner(proc *fakeProcessor) (*planner, *fakeStore) {
	store := &fakeStore{}
	return &planner{store: store, processor: proc, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, store
}

var testFile = File{Dir: "/photo/655/ab/cd/", Name: "1700000000.f00d", Ext: "jpg"}

func TestPlanner_SizesAscendingWithResizeFallback(t *testing.T) {
	proc := &fakeProcessor{failResize: map[int]bool{200: true}}
	p, _ := newTestPlanner(proc)
	profile := &TypeProfile{Key: "avatar", Sizes: [][]int{{300, 300}, {100, 100}, {200, 200}}}

	got, err := p.plan(profile, testFile, Derived{}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{100, 200, 300}, got.Sizes.Widths())
	assert.Equal(t, "/photo/655/ab/cd/1700000000.f00d_100x100.jpg", got.Sizes[100])
	assert.Equal(t, testFile.OriginalPath(), got.Sizes[200])
	assert.Equal(t, "/photo/655/ab/cd/1700000000.f00d_300x300.jpg", got.Sizes[300])
	assert.Nil(t, got.CropSquare)
	assert.Nil(t, got.CropCustom)
}

func TestPlanner_SquareCrop(t *testing.T) {
	proc := &fakeProcessor{}
	p, store := newTestPlanner(proc)
	profile := &TypeProfile{Key: "avatar", CropSquare: CropSpec{IsNeed: true, Resize: []int{200, 100}}}

	got, err := p.plan(profile, testFile, Derived{}, nil)
	require.NoError(t, err)

	assert.Equal(t, Variants{
		100: "/photo/655/ab/cd/1700000000.f00d_square_100x100.jpg",
		200: "/photo/655/ab/cd/1700000000.f00d_square_200x200.jpg",
	}, got.CropSquare)
	assert.Contains(t, store.removed, "/photo/655/ab/cd/1700000000.f00d_square.jpg")
}

func TestPlanner_SquareResizeFailureKeepsIntermediate(t *testing.T) {
	proc := &fakeProcessor{failResize: map[int]bool{100: true}}
	p, store := newTestPlanner(proc)
	profile := &TypeProfile{Key: "avatar", CropSquare: CropSpec{IsNeed: true, Resize: []int{100, 200}}}

	got, err := p.plan(profile, testFile, Derived{}, nil)
	require.NoError(t, err)

	intermediate := "/photo/655/ab/cd/1700000000.f00d_square.jpg"
	assert.Equal(t, intermediate, got.CropSquare[100])
	assert.NotContains(t, store.removed, intermediate)
}

func TestPlanner_SquareFailureKeepsPrevious(t *testing.T) {
	proc := &fakeProcessor{failSquare: true}
	p, store := newTestPlanner(proc)
	profile := &TypeProfile{Key: "avatar", CropSquare: CropSpec{IsNeed: true, Resize: []int{100}}}
	previous := Derived{CropSquare: Variants{100: "/photo/old_square_100x100.jpg"}}

	got, err := p.plan(profile, testFile, previous, nil)
	require.NoError(t, err)
	assert.Equal(t, previous.CropSquare, got.CropSquare)
	assert.NotContains(t, store.removed, "/photo/old_square_100x100.jpg")
}

func TestPlanner_CustomCropExplicitAndDefault(t *testing.T) {
	profile := &TypeProfile{
		Key:        "banner",
		CropCustom: CropSpec{IsNeed: true, Default: &Dimension{Width: 16, Height: 9}, Resize: []int{320}},
	}

	t.Run("ExplicitBox", func(t *testing.T) {
		proc := &fakeProcessor{}
		p, _ := newTestPlanner(proc)
		l, tp, w, h := 10, 20, 300, 200
		crop := &CropParams{Left: &l, Top: &tp, Width: &w, Height: &h}

		got, err := p.plan(profile, testFile, Derived{}, crop)
		require.NoError(t, err)
		require.Len(t, proc.crops, 1)
		assert.False(t, proc.crops[0].auto)
		assert.Equal(t, CropBox{Left: 10, Top: 20, Width: 300, Height: 200}, proc.crops[0].box)
		assert.Equal(t, "/photo/655/ab/cd/1700000000.f00d_custom_320.jpg", got.CropCustom[320])
	})

	t.Run("IncompleteBoxUsesDefault", func(t *testing.T) {
		proc := &fakeProcessor{}
		p, _ := newTestPlanner(proc)
		w := 300
		_, err := p.plan(profile, testFile, Derived{}, &CropParams{Width: &w})
		require.NoError(t, err)
		require.Len(t, proc.crops, 1)
		assert.True(t, proc.crops[0].auto)
		assert.Equal(t, CropBox{Width: 16, Height: 9}, proc.crops[0].box)
	})
}

func TestPlanner_CroppedProfileCropFailure(t *testing.T) {
	proc := &fakeProcessor{failCrop: true}
	p, _ := newTestPlanner(proc)
	profile := &TypeProfile{Key: "legacy", Cropped: true, Sizes: [][]int{{100, 50}}}
	previous := Derived{Sizes: Variants{100: "/old.jpg"}}

	got, err := p.plan(profile, testFile, previous, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCropFailed)
	assert.True(t, IsProcessing(err))
	assert.Equal(t, previous, got)
}

func TestPlanner_CroppedProfileAutoBoxFromFirstSize(t *testing.T) {
	proc := &fakeProcessor{}
	p, store := newTestPlanner(proc)
	profile := &TypeProfile{Key: "legacy", Cropped: true, Sizes: [][]int{{160, 90}, {320, 180}}}

	got, err := p.plan(profile, testFile, Derived{}, nil)
	require.NoError(t, err)
	require.Len(t, proc.crops, 1)
	assert.True(t, proc.crops[0].auto)
	assert.Equal(t, CropBox{Width: 160, Height: 90}, proc.crops[0].box)
	assert.Equal(t, []int{160, 320}, got.Sizes.Widths())
	// the full-size crop is not referenced by any size
	assert.Contains(t, store.removed, "/photo/655/ab/cd/1700000000.f00d_cropped.jpg")
}

func TestPlanner_CleanupRemovesStaleVariantsOnly(t *testing.T) {
	proc := &fakeProcessor{}
	p, store := newTestPlanner(proc)
	profile := &TypeProfile{Key: "avatar", Sizes: [][]int{{100, 100}}}
	previous := Derived{
		Sizes: Variants{
			100: "/photo/655/ab/cd/1700000000.f00d_100x100.jpg",
			400: "/photo/655/ab/cd/1700000000.f00d_400x400.jpg",
			500: testFile.OriginalPath(),
		},
		CropSquare: Variants{50: "/photo/655/ab/cd/1700000000.f00d_square_50x50.jpg"},
	}

	_, err := p.plan(profile, testFile, previous, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"/photo/655/ab/cd/1700000000.f00d_400x400.jpg",
		"/photo/655/ab/cd/1700000000.f00d_square_50x50.jpg",
	}, store.removed)
}

func TestPlanner_Recrop(t *testing.T) {
	l, tp, w, h := 0, 0, 100, 100
	crop := &CropParams{Left: &l, Top: &tp, Width: &w, Height: &h}

	t.Run("NotSupported", func(t *testing.T) {
		p, _ := newTestPlanner(&fakeProcessor{})
		profile := &TypeProfile{Key: "plain", Sizes: [][]int{{100, 100}}}
		_, err := p.recrop(profile, testFile, Derived{}, crop)
		assert.ErrorIs(t, err, ErrCropNotSupported)
	})

	t.Run("CustomOnlyTouchesCustom", func(t *testing.T) {
		proc := &fakeProcessor{}
		p, _ := newTestPlanner(proc)
		profile := &TypeProfile{
			Key:        "banner",
			Sizes:      [][]int{{100, 100}},
			CropCustom: CropSpec{IsNeed: true, Default: &Dimension{Width: 1, Height: 1}, Resize: []int{64}},
		}
		previous := Derived{Sizes: Variants{100: "/keep_100x100.jpg"}}

		got, err := p.recrop(profile, testFile, previous, crop)
		require.NoError(t, err)
		assert.Equal(t, previous.Sizes, got.Sizes)
		assert.Equal(t, "/photo/655/ab/cd/1700000000.f00d_custom_64.jpg", got.CropCustom[64])
	})

	t.Run("CroppedRederivesSizes", func(t *testing.T) {
		proc := &fakeProcessor{}
		p, _ := newTestPlanner(proc)
		profile := &TypeProfile{Key: "legacy", Cropped: true, Sizes: [][]int{{100, 100}}}

		got, err := p.recrop(profile, testFile, Derived{}, crop)
		require.NoError(t, err)
		require.Len(t, proc.crops, 1)
		assert.False(t, proc.crops[0].auto)
		assert.Contains(t, got.Sizes, 100)
	})
}
