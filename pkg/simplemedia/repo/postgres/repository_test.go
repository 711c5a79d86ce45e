package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

func TestHandlePostgresError(t *testing.T) {
	r := &Repository{}

	err := r.handlePostgresError("create asset", &pgconn.PgError{Code: "23505", ConstraintName: "assets_pkey"})
	assert.ErrorIs(t, err, simplemedia.ErrDuplicateFileID)

	err = r.handlePostgresError("get asset", &pgconn.PgError{Code: "42P01"})
	assert.Contains(t, err.Error(), "migration required")

	plain := errors.New("connection reset")
	assert.ErrorIs(t, r.handlePostgresError("get asset", plain), plain)
}

func TestDerivedEncoding(t *testing.T) {
	in := simplemedia.Derived{
		Sizes:      simplemedia.Variants{200: "/p/b.jpg", 100: "/p/a.jpg"},
		CropSquare: simplemedia.Variants{50: "/p/s.jpg"},
	}
	sizes, square, custom, err := encodeDerived(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"100":"/p/a.jpg","200":"/p/b.jpg"}`, string(sizes))
	assert.NotNil(t, square)
	assert.Nil(t, custom)

	out, err := decodeDerived(sizes, square, custom)
	require.NoError(t, err)
	assert.Equal(t, in.Sizes, out.Sizes)
	assert.Equal(t, in.CropSquare, out.CropSquare)
	assert.Nil(t, out.CropCustom)
}

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, Migrate(dsn, nil, "up", nil))

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewWithPool(pool)
}

func testAsset(created time.Time) *simplemedia.Asset {
	return &simplemedia.Asset{
		File: simplemedia.File{
			Host: "media.example.com", Dir: "/photo/655/ab/", Name: "n", Ext: "jpg", Hash: "ab", Size: 10,
		},
		Derived:   simplemedia.Derived{Sizes: simplemedia.Variants{100: "/photo/655/ab/n_100x100.jpg"}},
		FileID:    fmt.Sprintf("%d.test%d", created.Unix(), time.Now().UnixNano()),
		Kind:      simplemedia.KindPhoto,
		Type:      "pgtest",
		Fields:    map[string]string{"k": "v"},
		CreatedAt: created.UTC().Truncate(time.Microsecond),
	}
}

func TestRepository_AssetLifecycle(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	asset := testAsset(time.Now().Add(-48 * time.Hour))
	require.NoError(t, repo.CreateAsset(ctx, asset))
	t.Cleanup(func() { _ = repo.DeleteAsset(ctx, asset.FileID) })

	assert.ErrorIs(t, repo.CreateAsset(ctx, asset), simplemedia.ErrDuplicateFileID)

	got, err := repo.GetAsset(ctx, asset.FileID)
	require.NoError(t, err)
	assert.Equal(t, asset.Sizes, got.Sizes)
	assert.Equal(t, "v", got.Fields["k"])
	assert.Nil(t, got.CropSquare)

	collectable, err := repo.ListCollectable(ctx, "pgtest", time.Now().Add(-24*time.Hour), 50)
	require.NoError(t, err)
	found := false
	for _, a := range collectable {
		found = found || a.FileID == asset.FileID
	}
	assert.True(t, found)

	asset.HiddenAt = time.Now().Unix()
	require.NoError(t, repo.UpdateAsset(ctx, asset))
	_, err = repo.GetAsset(ctx, asset.FileID)
	assert.ErrorIs(t, err, simplemedia.ErrAssetNotFound)

	require.NoError(t, repo.DeleteAsset(ctx, asset.FileID))
	assert.ErrorIs(t, repo.DeleteAsset(ctx, asset.FileID), simplemedia.ErrAssetNotFound)
}

func TestRepository_CoverLifecycle(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	cover := &simplemedia.Cover{
		File:      simplemedia.File{Dir: "/video/cover/", Name: "c", Ext: "jpg", Hash: "cd"},
		FileID:    fmt.Sprintf("cover.%d", time.Now().UnixNano()),
		MediaKind: simplemedia.KindVideo,
		Type:      "clip",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.CreateCover(ctx, cover))

	cover.Sizes = simplemedia.Variants{200: "/video/cover/c_200x200.jpg"}
	require.NoError(t, repo.UpdateCover(ctx, cover))

	got, err := repo.GetCover(ctx, cover.FileID)
	require.NoError(t, err)
	assert.Equal(t, cover.Sizes, got.Sizes)
	assert.Equal(t, simplemedia.KindVideo, got.MediaKind)

	require.NoError(t, repo.DeleteCover(ctx, cover.FileID))
	_, err = repo.GetCover(ctx, cover.FileID)
	assert.ErrorIs(t, err, simplemedia.ErrCoverNotFound)
}
