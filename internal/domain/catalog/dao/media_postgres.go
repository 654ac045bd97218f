package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-gateway/internal/domain/catalog/entity"
)

// MediaPostgres implements media library repository for PostgreSQL
type MediaPostgres struct {
	pool *pgxpool.Pool
}

// NewMediaPostgres creates a new PostgreSQL media repository
func NewMediaPostgres(pool *pgxpool.Pool) *MediaPostgres {
	return &MediaPostgres{pool: pool}
}

const mediaColumns = `id, tenant_id, ref, object_key, content_type, url, created_at`

// Create registers an uploaded object under a tenant-unique ref
func (r *MediaPostgres) Create(ctx context.Context, asset *entity.MediaAsset) error {
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO media_assets (`+mediaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		asset.ID,
		asset.TenantID,
		asset.Ref,
		asset.ObjectKey,
		asset.ContentType,
		asset.URL,
		asset.CreatedAt,
	)
	if isUniqueViolation(err) {
		return entity.ErrMediaExists
	}
	if err != nil {
		return fmt.Errorf("inserting media asset: %w", err)
	}
	return nil
}

// GetByRef retrieves a tenant's media asset by ref, case-insensitively
func (r *MediaPostgres) GetByRef(ctx context.Context, tenantID, ref string) (*entity.MediaAsset, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+mediaColumns+`
		FROM media_assets
		WHERE tenant_id = $1 AND LOWER(ref) = LOWER($2)
		LIMIT 1
	`, tenantID, ref)
	return scanMedia(row)
}

// List returns a tenant's media assets
func (r *MediaPostgres) List(ctx context.Context, tenantID string) ([]entity.MediaAsset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+mediaColumns+` FROM media_assets WHERE tenant_id = $1 ORDER BY ref ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying media assets: %w", err)
	}
	defer rows.Close()

	var assets []entity.MediaAsset
	for rows.Next() {
		a, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

// Delete removes a media asset record
func (r *MediaPostgres) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM media_assets WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("deleting media asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrMediaNotFound
	}
	return nil
}

func scanMedia(row pgx.Row) (*entity.MediaAsset, error) {
	var a entity.MediaAsset
	err := row.Scan(&a.ID, &a.TenantID, &a.Ref, &a.ObjectKey, &a.ContentType, &a.URL, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning media asset: %w", err)
	}
	return &a, nil
}
