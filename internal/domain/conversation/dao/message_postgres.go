package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-gateway/internal/domain/conversation/entity"
)

// MessagePostgres implements message reads and delivery bookkeeping for PostgreSQL
type MessagePostgres struct {
	pool *pgxpool.Pool
}

// NewMessagePostgres creates a new PostgreSQL message repository
func NewMessagePostgres(pool *pgxpool.Pool) *MessagePostgres {
	return &MessagePostgres{pool: pool}
}

const messageColumns = `id, conversation_id, tenant_id, channel_account_id, seq, direction, sender_external_id,
	provider_message_id, text, image_ref, actions, delivery_status, delivery_error,
	delivered_provider_ids, delivery_attempts, provider_timestamp, created_at`

// GetByID retrieves a message by ID
func (r *MessagePostgres) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// ListByConversation retrieves messages in sequence order
func (r *MessagePostgres) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]entity.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq ASC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Recent retrieves the last n messages of a conversation, oldest first
func (r *MessagePostgres) Recent(ctx context.Context, conversationID string, n int) ([]entity.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// CountByConversation returns the number of messages in a conversation
func (r *MessagePostgres) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM messages WHERE conversation_id = $1", conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// MarkDeliverySent records a successful delivery and the provider ids it produced
func (r *MessagePostgres) MarkDeliverySent(ctx context.Context, id string, providerIDs []string, attempts int) error {
	if providerIDs == nil {
		providerIDs = []string{}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET delivery_status = $2, delivered_provider_ids = $3, delivery_attempts = $4, delivery_error = ''
		WHERE id = $1
	`, id, string(entity.DeliverySent), providerIDs, attempts)
	if err != nil {
		return fmt.Errorf("marking delivery sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrMessageNotFound
	}
	return nil
}

// MarkDeliveryFailed records a persistent delivery failure. Provider ids of chunks
// that did get through are kept so their echoes are still recognized.
func (r *MessagePostgres) MarkDeliveryFailed(ctx context.Context, id, reason string, providerIDs []string, attempts int) error {
	if providerIDs == nil {
		providerIDs = []string{}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET delivery_status = $2, delivery_error = $3, delivered_provider_ids = $4, delivery_attempts = $5
		WHERE id = $1
	`, id, string(entity.DeliveryFailed), reason, providerIDs, attempts)
	if err != nil {
		return fmt.Errorf("marking delivery failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrMessageNotFound
	}
	return nil
}

// DeliveryFailuresSince counts failed deliveries per tenant created after since
func (r *MessagePostgres) DeliveryFailuresSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id::text, COUNT(*)
		FROM messages
		WHERE delivery_status = $1 AND created_at >= $2
		GROUP BY tenant_id
	`, string(entity.DeliveryFailed), since)
	if err != nil {
		return nil, fmt.Errorf("querying delivery failures: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var tenantID string
		var count int64
		if err := rows.Scan(&tenantID, &count); err != nil {
			return nil, fmt.Errorf("scanning delivery failures: %w", err)
		}
		out[tenantID] = count
	}
	return out, rows.Err()
}

// scanMessage scans a single message row
func scanMessage(row pgx.Row) (*entity.Message, error) {
	var msg entity.Message
	var direction, status string
	var actions []byte

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.TenantID,
		&msg.ChannelAccountID,
		&msg.Seq,
		&direction,
		&msg.SenderExternalID,
		&msg.ProviderMessageID,
		&msg.Text,
		&msg.ImageRef,
		&actions,
		&status,
		&msg.DeliveryError,
		&msg.DeliveredProviderIDs,
		&msg.DeliveryAttempts,
		&msg.ProviderTimestamp,
		&msg.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	msg.Direction = entity.Direction(direction)
	msg.DeliveryStatus = entity.DeliveryStatus(status)
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &msg.Actions); err != nil {
			return nil, fmt.Errorf("decoding message actions: %w", err)
		}
	}
	return &msg, nil
}

// scanMessages scans multiple message rows
func scanMessages(rows pgx.Rows) ([]entity.Message, error) {
	var messages []entity.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}
