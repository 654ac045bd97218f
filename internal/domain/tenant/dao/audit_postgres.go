package dao

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-gateway/internal/domain/tenant/entity"
)

// AuditPostgres reads the administrative audit log
type AuditPostgres struct {
	pool *pgxpool.Pool
}

// NewAuditPostgres creates a new PostgreSQL audit log reader
func NewAuditPostgres(pool *pgxpool.Pool) *AuditPostgres {
	return &AuditPostgres{pool: pool}
}

// List retrieves audit entries newest first, optionally for one tenant
func (r *AuditPostgres) List(ctx context.Context, tenantID string, limit, offset int) ([]entity.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, action, actor, COALESCE(tenant_id::text, ''), COALESCE(channel_account_id::text, ''),
		       details, created_at
		FROM admin_audit_log
		WHERE ($1 = '' OR tenant_id::text = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		var action string
		var details []byte

		if err := rows.Scan(&e.ID, &action, &e.Actor, &e.TenantID, &e.ChannelAccountID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = entity.AuditAction(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decoding audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
