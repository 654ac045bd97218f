package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	"github.com/vadim/neo-gateway/internal/domain/tenant/entity"
)

// ChannelAccountPostgres implements channel account repository for PostgreSQL
type ChannelAccountPostgres struct {
	pool *pgxpool.Pool
}

// NewChannelAccountPostgres creates a new PostgreSQL channel account repository
func NewChannelAccountPostgres(pool *pgxpool.Pool) *ChannelAccountPostgres {
	return &ChannelAccountPostgres{pool: pool}
}

const accountColumns = `id, tenant_id, channel_type, external_id, display_name, access_token, verification_state, created_at, updated_at`

// Create registers a channel account; a taken (channel_type, external_id) yields ErrChannelAccountExists
func (r *ChannelAccountPostgres) Create(ctx context.Context, acc *entity.ChannelAccount, audit *entity.AuditEntry) error {
	now := time.Now()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO channel_accounts (`+accountColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			acc.ID,
			acc.TenantID,
			string(acc.ChannelType),
			acc.ExternalID,
			acc.DisplayName,
			acc.AccessToken,
			string(acc.VerificationState),
			acc.CreatedAt,
			acc.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return entity.ErrChannelAccountExists
		}
		if err != nil {
			return fmt.Errorf("inserting channel account: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

// GetByID retrieves a channel account by ID
func (r *ChannelAccountPostgres) GetByID(ctx context.Context, id string) (*entity.ChannelAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM channel_accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByExternalID retrieves a channel account by its provider-side identifier
func (r *ChannelAccountPostgres) GetByExternalID(ctx context.Context, channelType channel.Type, externalID string) (*entity.ChannelAccount, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM channel_accounts
		WHERE channel_type = $1 AND external_id = $2
	`, string(channelType), externalID)
	return scanAccount(row)
}

// LookupResolution loads the account and its owning tenant in one round trip
func (r *ChannelAccountPostgres) LookupResolution(ctx context.Context, channelType channel.Type, externalID string) (*entity.Resolution, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT a.id, a.tenant_id, a.channel_type, a.external_id, a.display_name, a.access_token,
		       a.verification_state, a.created_at, a.updated_at,
		       t.id, t.name, t.status, t.agent_sender_ids, t.persona_prompt, t.fallback_reply,
		       t.created_at, t.updated_at
		FROM channel_accounts a
		JOIN tenants t ON t.id = a.tenant_id
		WHERE a.channel_type = $1 AND a.external_id = $2
	`, string(channelType), externalID)

	var res entity.Resolution
	var accType, verification, status string

	err := row.Scan(
		&res.Account.ID,
		&res.Account.TenantID,
		&accType,
		&res.Account.ExternalID,
		&res.Account.DisplayName,
		&res.Account.AccessToken,
		&verification,
		&res.Account.CreatedAt,
		&res.Account.UpdatedAt,
		&res.Tenant.ID,
		&res.Tenant.Name,
		&status,
		&res.Tenant.AgentSenderIDs,
		&res.Tenant.PersonaPrompt,
		&res.Tenant.FallbackReply,
		&res.Tenant.CreatedAt,
		&res.Tenant.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up channel account: %w", err)
	}

	res.Account.ChannelType = channel.Type(accType)
	res.Account.VerificationState = entity.VerificationState(verification)
	res.Tenant.Status = entity.Status(status)
	return &res, nil
}

// ListByTenant retrieves the channel accounts owned by a tenant
func (r *ChannelAccountPostgres) ListByTenant(ctx context.Context, tenantID string) ([]entity.ChannelAccount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM channel_accounts
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying channel accounts: %w", err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

// List retrieves all channel accounts
func (r *ChannelAccountPostgres) List(ctx context.Context) ([]entity.ChannelAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM channel_accounts ORDER BY channel_type, external_id`)
	if err != nil {
		return nil, fmt.Errorf("querying channel accounts: %w", err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

// Reassign moves a channel account to another tenant. Existing conversations keep their tenant.
func (r *ChannelAccountPostgres) Reassign(ctx context.Context, accountID, tenantID string, audit *entity.AuditEntry) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE channel_accounts SET tenant_id = $2, updated_at = NOW() WHERE id = $1
		`, accountID, tenantID)
		if err != nil {
			return fmt.Errorf("reassigning channel account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return entity.ErrChannelAccountNotFound
		}
		return insertAudit(ctx, tx, audit)
	})
}

// UpdateAccessToken replaces the outbound credential of a channel account
func (r *ChannelAccountPostgres) UpdateAccessToken(ctx context.Context, accountID, token string, audit *entity.AuditEntry) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE channel_accounts SET access_token = $2, updated_at = NOW() WHERE id = $1
		`, accountID, token)
		if err != nil {
			return fmt.Errorf("updating access token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return entity.ErrChannelAccountNotFound
		}
		return insertAudit(ctx, tx, audit)
	})
}

// MarkVerified records that traffic for the account has been attributed successfully
func (r *ChannelAccountPostgres) MarkVerified(ctx context.Context, accountID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE channel_accounts
		SET verification_state = $2, updated_at = NOW()
		WHERE id = $1 AND verification_state <> $2
	`, accountID, string(entity.VerificationVerified))
	if err != nil {
		return fmt.Errorf("marking account verified: %w", err)
	}
	return nil
}

// scanAccount scans a single channel account row
func scanAccount(row pgx.Row) (*entity.ChannelAccount, error) {
	var acc entity.ChannelAccount
	var channelType, verification string

	err := row.Scan(
		&acc.ID,
		&acc.TenantID,
		&channelType,
		&acc.ExternalID,
		&acc.DisplayName,
		&acc.AccessToken,
		&verification,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning channel account: %w", err)
	}

	acc.ChannelType = channel.Type(channelType)
	acc.VerificationState = entity.VerificationState(verification)
	return &acc, nil
}

// scanAccounts scans multiple channel account rows
func scanAccounts(rows pgx.Rows) ([]entity.ChannelAccount, error) {
	var accounts []entity.ChannelAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}
