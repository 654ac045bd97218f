package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-gateway/internal/domain/action/entity"
)

// InvocationPostgres implements action invocation repository for PostgreSQL
type InvocationPostgres struct {
	pool *pgxpool.Pool
}

// NewInvocationPostgres creates a new PostgreSQL invocation repository
func NewInvocationPostgres(pool *pgxpool.Pool) *InvocationPostgres {
	return &InvocationPostgres{pool: pool}
}

const invocationColumns = `id, message_id, tenant_id, conversation_id, kind, token_index, argument,
	target_id, idempotency_key, outcome, reason, created_at, completed_at`

// Claim inserts the invocation unless its idempotency key is already taken,
// in which case the stored invocation is returned
func (r *InvocationPostgres) Claim(ctx context.Context, inv *entity.Invocation) (bool, *entity.Invocation, error) {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}

	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO action_invocations (`+invocationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`,
		inv.ID,
		inv.MessageID,
		inv.TenantID,
		inv.ConversationID,
		string(inv.Kind),
		inv.TokenIndex,
		inv.Argument,
		inv.TargetID,
		inv.IdempotencyKey,
		string(inv.Outcome),
		inv.Reason,
		inv.CreatedAt,
		inv.CompletedAt,
	).Scan(&id)
	if err == nil {
		return true, nil, nil
	}
	if err != pgx.ErrNoRows {
		return false, nil, fmt.Errorf("claiming invocation: %w", err)
	}

	existing, err := r.GetByKey(ctx, inv.IdempotencyKey)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		return false, nil, entity.ErrInvocationNotFound
	}
	return false, existing, nil
}

// Complete records the final outcome of a claimed invocation
func (r *InvocationPostgres) Complete(ctx context.Context, id string, outcome entity.Outcome, targetID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE action_invocations
		SET outcome = $2, target_id = $3, reason = $4, completed_at = NOW()
		WHERE id = $1
	`, id, string(outcome), targetID, reason)
	if err != nil {
		return fmt.Errorf("completing invocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrInvocationNotFound
	}
	return nil
}

// GetByKey retrieves an invocation by its idempotency key
func (r *InvocationPostgres) GetByKey(ctx context.Context, key string) (*entity.Invocation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+invocationColumns+` FROM action_invocations WHERE idempotency_key = $1
	`, key)
	return scanInvocation(row)
}

// ListByConversation returns the invocations of a tenant's conversation, newest first
func (r *InvocationPostgres) ListByConversation(ctx context.Context, tenantID, conversationID string, limit, offset int) ([]entity.Invocation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invocationColumns+`
		FROM action_invocations
		WHERE tenant_id = $1 AND conversation_id = $2
		ORDER BY created_at DESC, token_index DESC
		LIMIT $3 OFFSET $4
	`, tenantID, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer rows.Close()

	var invocations []entity.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, *inv)
	}
	return invocations, rows.Err()
}

// CountStalePending counts invocations still pending that were claimed
// before createdBefore, i.e. left behind by a pipeline that died mid-dispatch
func (r *InvocationPostgres) CountStalePending(ctx context.Context, createdBefore time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM action_invocations
		WHERE outcome = $1 AND created_at < $2
	`, string(entity.OutcomePending), createdBefore).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting stale invocations: %w", err)
	}
	return n, nil
}

func scanInvocation(row pgx.Row) (*entity.Invocation, error) {
	var inv entity.Invocation
	var kind, outcome string
	err := row.Scan(
		&inv.ID,
		&inv.MessageID,
		&inv.TenantID,
		&inv.ConversationID,
		&kind,
		&inv.TokenIndex,
		&inv.Argument,
		&inv.TargetID,
		&inv.IdempotencyKey,
		&outcome,
		&inv.Reason,
		&inv.CreatedAt,
		&inv.CompletedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning invocation: %w", err)
	}
	inv.Kind = entity.Kind(kind)
	inv.Outcome = entity.Outcome(outcome)
	return &inv, nil
}
