package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-gateway/internal/domain/catalog/entity"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CatalogPostgres implements catalog item repository for PostgreSQL
type CatalogPostgres struct {
	pool *pgxpool.Pool
}

// NewCatalogPostgres creates a new PostgreSQL catalog repository
func NewCatalogPostgres(pool *pgxpool.Pool) *CatalogPostgres {
	return &CatalogPostgres{pool: pool}
}

const itemColumns = `id, tenant_id, sku, name, price_minor, currency, image_ref, active, created_at, updated_at`

// Create inserts a new catalog item
func (r *CatalogPostgres) Create(ctx context.Context, item *entity.Item) error {
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO catalog_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		item.ID,
		item.TenantID,
		item.SKU,
		item.Name,
		item.PriceMinor,
		item.Currency,
		item.ImageRef,
		item.Active,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return entity.ErrItemExists
	}
	if err != nil {
		return fmt.Errorf("inserting catalog item: %w", err)
	}
	return nil
}

// Update saves the mutable fields of an item
func (r *CatalogPostgres) Update(ctx context.Context, item *entity.Item) error {
	item.UpdatedAt = time.Now()

	tag, err := r.pool.Exec(ctx, `
		UPDATE catalog_items
		SET name = $3, price_minor = $4, currency = $5, image_ref = $6, active = $7, updated_at = $8
		WHERE id = $1 AND tenant_id = $2
	`,
		item.ID,
		item.TenantID,
		item.Name,
		item.PriceMinor,
		item.Currency,
		item.ImageRef,
		item.Active,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating catalog item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrItemNotFound
	}
	return nil
}

// GetByID retrieves an item of the tenant
func (r *CatalogPostgres) GetByID(ctx context.Context, tenantID, id string) (*entity.Item, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+itemColumns+` FROM catalog_items WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanItem(row)
}

// FindActive looks up an active item by sku or name, case-insensitively.
// A sku match wins over a name match.
func (r *CatalogPostgres) FindActive(ctx context.Context, tenantID, ref string) (*entity.Item, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM catalog_items
		WHERE tenant_id = $1 AND active AND (LOWER(sku) = LOWER($2) OR LOWER(name) = LOWER($2))
		ORDER BY (LOWER(sku) = LOWER($2)) DESC, created_at ASC
		LIMIT 1
	`, tenantID, ref)
	return scanItem(row)
}

// ListActive returns up to limit active items, used for the reply context
func (r *CatalogPostgres) ListActive(ctx context.Context, tenantID string, limit int) ([]entity.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM catalog_items
		WHERE tenant_id = $1 AND active
		ORDER BY name ASC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying active items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// List returns all items of a tenant
func (r *CatalogPostgres) List(ctx context.Context, tenantID string, limit, offset int) ([]entity.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM catalog_items
		WHERE tenant_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItem(row pgx.Row) (*entity.Item, error) {
	var item entity.Item
	err := row.Scan(
		&item.ID,
		&item.TenantID,
		&item.SKU,
		&item.Name,
		&item.PriceMinor,
		&item.Currency,
		&item.ImageRef,
		&item.Active,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning catalog item: %w", err)
	}
	return &item, nil
}

func scanItems(rows pgx.Rows) ([]entity.Item, error) {
	var items []entity.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
