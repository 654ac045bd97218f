package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-gateway/internal/domain/tenant/entity"
)

// TenantPostgres implements tenant repository for PostgreSQL
type TenantPostgres struct {
	pool *pgxpool.Pool
}

// NewTenantPostgres creates a new PostgreSQL tenant repository
func NewTenantPostgres(pool *pgxpool.Pool) *TenantPostgres {
	return &TenantPostgres{pool: pool}
}

const tenantColumns = `id, name, status, agent_sender_ids, persona_prompt, fallback_reply, created_at, updated_at`

// Create inserts a new tenant together with its audit entry
func (r *TenantPostgres) Create(ctx context.Context, t *entity.Tenant, audit *entity.AuditEntry) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tenants (`+tenantColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			t.ID,
			t.Name,
			string(t.Status),
			nonNil(t.AgentSenderIDs),
			t.PersonaPrompt,
			t.FallbackReply,
			t.CreatedAt,
			t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting tenant: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

// GetByID retrieves a tenant by ID
func (r *TenantPostgres) GetByID(ctx context.Context, id string) (*entity.Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

// List retrieves tenants ordered by creation time
func (r *TenantPostgres) List(ctx context.Context, limit, offset int) ([]entity.Tenant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer rows.Close()

	var tenants []entity.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// UpdateStatus changes the tenant status and records the audit entry
func (r *TenantPostgres) UpdateStatus(ctx context.Context, id string, status entity.Status, audit *entity.AuditEntry) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1
		`, id, string(status))
		if err != nil {
			return fmt.Errorf("updating tenant status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return entity.ErrTenantNotFound
		}
		return insertAudit(ctx, tx, audit)
	})
}

// UpdateProfile replaces the reply configuration of a tenant
func (r *TenantPostgres) UpdateProfile(ctx context.Context, t *entity.Tenant, audit *entity.AuditEntry) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tenants
			SET name = $2, agent_sender_ids = $3, persona_prompt = $4, fallback_reply = $5, updated_at = NOW()
			WHERE id = $1
		`,
			t.ID,
			t.Name,
			nonNil(t.AgentSenderIDs),
			t.PersonaPrompt,
			t.FallbackReply,
		)
		if err != nil {
			return fmt.Errorf("updating tenant profile: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return entity.ErrTenantNotFound
		}
		return insertAudit(ctx, tx, audit)
	})
}

// scanTenant scans a single tenant row
func scanTenant(row pgx.Row) (*entity.Tenant, error) {
	var t entity.Tenant
	var status string

	err := row.Scan(
		&t.ID,
		&t.Name,
		&status,
		&t.AgentSenderIDs,
		&t.PersonaPrompt,
		&t.FallbackReply,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tenant: %w", err)
	}

	t.Status = entity.Status(status)
	return &t, nil
}
