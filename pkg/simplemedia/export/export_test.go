package export_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/export"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	"github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	memtarget "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

func writeFile(t *testing.T, store *fs.Store, rel, content string) {
	t.Helper()
	abs := store.Abs(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
}

func TestExporter_Run(t *testing.T) {
	ctx := context.Background()
	store, err := fs.New(fs.Config{Root: t.TempDir()})
	require.NoError(t, err)
	repo := memory.New()
	target := memtarget.New()

	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("n%d", i)
		asset := &simplemedia.Asset{
			File:      simplemedia.File{Dir: "/photo/655/ab/", Name: name, Ext: "jpg"},
			FileID:    fmt.Sprintf("a%d", i),
			Type:      "avatar",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		variant := fmt.Sprintf("/photo/655/ab/%s_100x100.jpg", name)
		// The second asset's resize fell back to the original
		if i == 1 {
			variant = asset.OriginalPath()
		}
		asset.Sizes = simplemedia.Variants{100: variant}
		writeFile(t, store, asset.OriginalPath(), "orig"+name)
		if i != 1 {
			writeFile(t, store, variant, "v"+name)
		}
		require.NoError(t, repo.CreateAsset(ctx, asset))
	}

	hidden := &simplemedia.Asset{
		File:      simplemedia.File{Dir: "/photo/655/ab/", Name: "_1.hidden", Ext: "jpg"},
		FileID:    "hidden",
		CreatedAt: base,
		HiddenAt:  1,
	}
	require.NoError(t, repo.CreateAsset(ctx, hidden))

	cover := &simplemedia.Cover{
		File:      simplemedia.File{Dir: "/video/cover/", Name: "c", Ext: "jpg"},
		FileID:    "c1",
		CreatedAt: base,
	}
	require.NoError(t, repo.CreateCover(ctx, cover))
	// cover original is missing on disk

	stats, err := export.New(repo, store, target, export.WithPageSize(2)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Assets)
	assert.Equal(t, 1, stats.Covers)
	assert.Equal(t, 5, stats.Uploaded)
	assert.Equal(t, 1, stats.Missing)
	assert.NotContains(t, target.Keys(), hidden.OriginalPath())
	assert.Contains(t, target.Keys(), "/photo/655/ab/n0_100x100.jpg")

	again, err := export.New(repo, store, target, export.WithSkipExisting(true)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Uploaded)
	assert.Equal(t, 5, again.Skipped)
}
