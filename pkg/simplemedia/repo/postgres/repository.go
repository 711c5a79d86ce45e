package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplemedia.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return simplemedia.ErrDuplicateFileID
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

const assetColumns = `file_id, kind, type, host, dir, name, ext, hash, size, duration,
	fields, sizes, crop_square, crop_custom, cover_id, created_at, is_use, hidden_at`

const coverColumns = `file_id, media_type, type, host, dir, name, ext, hash, size,
	sizes, crop_square, crop_custom, created_at, hidden_at`

// Asset operations

func (r *Repository) CreateAsset(ctx context.Context, asset *simplemedia.Asset) error {
	row, err := assetRow(asset)
	if err != nil {
		return err
	}
	query := `INSERT INTO assets (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	if _, err := r.db.Exec(ctx, query, row...); err != nil {
		return r.handlePostgresError("create asset", err)
	}
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, fileID string) (*simplemedia.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE file_id = $1 AND hidden_at = 0`

	asset, err := scanAsset(r.db.QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemedia.ErrAssetNotFound
		}
		return nil, r.handlePostgresError("get asset", err)
	}
	return asset, nil
}

func (r *Repository) UpdateAsset(ctx context.Context, asset *simplemedia.Asset) error {
	row, err := assetRow(asset)
	if err != nil {
		return err
	}
	query := `
		UPDATE assets SET
			kind = $2, type = $3, host = $4, dir = $5, name = $6, ext = $7,
			hash = $8, size = $9, duration = $10, fields = $11, sizes = $12,
			crop_square = $13, crop_custom = $14, cover_id = $15,
			created_at = $16, is_use = $17, hidden_at = $18
		WHERE file_id = $1`

	tag, err := r.db.Exec(ctx, query, row...)
	if err != nil {
		return r.handlePostgresError("update asset", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemedia.ErrAssetNotFound
	}
	return nil
}

func (r *Repository) DeleteAsset(ctx context.Context, fileID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM assets WHERE file_id = $1`, fileID)
	if err != nil {
		return r.handlePostgresError("delete asset", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemedia.ErrAssetNotFound
	}
	return nil
}

func (r *Repository) ListCollectable(ctx context.Context, typeKey string, cutoff time.Time, limit int) ([]*simplemedia.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets
		WHERE type = $1 AND is_use = FALSE AND created_at <= $2
		ORDER BY created_at, file_id
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, typeKey, cutoff, limit)
	if err != nil {
		return nil, r.handlePostgresError("list collectable", err)
	}
	return collectAssets(rows)
}

func (r *Repository) ListAssets(ctx context.Context, params simplemedia.ListParams) ([]*simplemedia.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets
		WHERE hidden_at = 0
		ORDER BY created_at, file_id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, r.handlePostgresError("list assets", err)
	}
	return collectAssets(rows)
}

// Cover operations

func (r *Repository) CreateCover(ctx context.Context, cover *simplemedia.Cover) error {
	row, err := coverRow(cover)
	if err != nil {
		return err
	}
	query := `INSERT INTO covers (` + coverColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if _, err := r.db.Exec(ctx, query, row...); err != nil {
		return r.handlePostgresError("create cover", err)
	}
	return nil
}

func (r *Repository) GetCover(ctx context.Context, fileID string) (*simplemedia.Cover, error) {
	query := `SELECT ` + coverColumns + ` FROM covers WHERE file_id = $1`

	cover, err := scanCover(r.db.QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemedia.ErrCoverNotFound
		}
		return nil, r.handlePostgresError("get cover", err)
	}
	return cover, nil
}

func (r *Repository) UpdateCover(ctx context.Context, cover *simplemedia.Cover) error {
	row, err := coverRow(cover)
	if err != nil {
		return err
	}
	query := `
		UPDATE covers SET
			media_type = $2, type = $3, host = $4, dir = $5, name = $6, ext = $7,
			hash = $8, size = $9, sizes = $10, crop_square = $11, crop_custom = $12,
			created_at = $13, hidden_at = $14
		WHERE file_id = $1`

	tag, err := r.db.Exec(ctx, query, row...)
	if err != nil {
		return r.handlePostgresError("update cover", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemedia.ErrCoverNotFound
	}
	return nil
}

func (r *Repository) DeleteCover(ctx context.Context, fileID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM covers WHERE file_id = $1`, fileID)
	if err != nil {
		return r.handlePostgresError("delete cover", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemedia.ErrCoverNotFound
	}
	return nil
}

func (r *Repository) ListCovers(ctx context.Context, params simplemedia.ListParams) ([]*simplemedia.Cover, error) {
	query := `SELECT ` + coverColumns + ` FROM covers
		WHERE hidden_at = 0
		ORDER BY created_at, file_id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, r.handlePostgresError("list covers", err)
	}
	defer rows.Close()

	var covers []*simplemedia.Cover
	for rows.Next() {
		cover, err := scanCover(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan cover", err)
		}
		covers = append(covers, cover)
	}
	return covers, rows.Err()
}

// Helper methods

func assetRow(a *simplemedia.Asset) ([]interface{}, error) {
	fields, err := json.Marshal(orEmpty(a.Fields))
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	sizes, square, custom, err := encodeDerived(a.Derived)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		a.FileID, string(a.Kind), a.Type, a.Host, a.Dir, a.Name, a.Ext, a.Hash, a.Size, a.Duration,
		fields, sizes, square, custom, a.CoverID, a.CreatedAt, a.IsUse, a.HiddenAt,
	}, nil
}

func coverRow(c *simplemedia.Cover) ([]interface{}, error) {
	sizes, square, custom, err := encodeDerived(c.Derived)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		c.FileID, string(c.MediaKind), c.Type, c.Host, c.Dir, c.Name, c.Ext, c.Hash, c.Size,
		sizes, square, custom, c.CreatedAt, c.HiddenAt,
	}, nil
}

// encodeDerived returns JSON for each category; disabled crop categories are NULL
func encodeDerived(d simplemedia.Derived) (sizes, square, custom []byte, err error) {
	sizesMap := d.Sizes
	if sizesMap == nil {
		sizesMap = simplemedia.Variants{}
	}
	if sizes, err = json.Marshal(sizesMap); err != nil {
		return nil, nil, nil, fmt.Errorf("encode sizes: %w", err)
	}
	if d.CropSquare != nil {
		if square, err = json.Marshal(d.CropSquare); err != nil {
			return nil, nil, nil, fmt.Errorf("encode crop_square: %w", err)
		}
	}
	if d.CropCustom != nil {
		if custom, err = json.Marshal(d.CropCustom); err != nil {
			return nil, nil, nil, fmt.Errorf("encode crop_custom: %w", err)
		}
	}
	return sizes, square, custom, nil
}

func decodeDerived(sizes, square, custom []byte) (simplemedia.Derived, error) {
	var d simplemedia.Derived
	for _, v := range []struct {
		raw []byte
		dst *simplemedia.Variants
	}{{sizes, &d.Sizes}, {square, &d.CropSquare}, {custom, &d.CropCustom}} {
		if len(v.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(v.raw, v.dst); err != nil {
			return d, fmt.Errorf("decode variants: %w", err)
		}
	}
	return d, nil
}

func scanAsset(row pgx.Row) (*simplemedia.Asset, error) {
	var (
		a                             simplemedia.Asset
		kind                          string
		fields, sizes, square, custom []byte
	)
	err := row.Scan(
		&a.FileID, &kind, &a.Type, &a.Host, &a.Dir, &a.Name, &a.Ext, &a.Hash, &a.Size, &a.Duration,
		&fields, &sizes, &square, &custom, &a.CoverID, &a.CreatedAt, &a.IsUse, &a.HiddenAt)
	if err != nil {
		return nil, err
	}
	a.Kind = simplemedia.MediaKind(kind)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &a.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
	}
	if a.Derived, err = decodeDerived(sizes, square, custom); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanCover(row pgx.Row) (*simplemedia.Cover, error) {
	var (
		c                     simplemedia.Cover
		kind                  string
		sizes, square, custom []byte
	)
	err := row.Scan(
		&c.FileID, &kind, &c.Type, &c.Host, &c.Dir, &c.Name, &c.Ext, &c.Hash, &c.Size,
		&sizes, &square, &custom, &c.CreatedAt, &c.HiddenAt)
	if err != nil {
		return nil, err
	}
	c.MediaKind = simplemedia.MediaKind(kind)
	if c.Derived, err = decodeDerived(sizes, square, custom); err != nil {
		return nil, err
	}
	return &c, nil
}

func collectAssets(rows pgx.Rows) ([]*simplemedia.Asset, error) {
	defer rows.Close()

	var assets []*simplemedia.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

var _ simplemedia.Repository = (*Repository)(nil)
