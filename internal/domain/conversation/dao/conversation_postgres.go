package dao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-gateway/internal/domain/conversation/entity"
)

// ConversationPostgres implements the deduplicating conversation store for PostgreSQL
type ConversationPostgres struct {
	pool *pgxpool.Pool
}

// NewConversationPostgres creates a new PostgreSQL conversation repository
func NewConversationPostgres(pool *pgxpool.Pool) *ConversationPostgres {
	return &ConversationPostgres{pool: pool}
}

const conversationColumns = `id, tenant_id, channel_account_id, customer_external_id, customer_name,
	last_message_text, last_message_at, last_message_direction, message_seq, archived_at,
	created_at, updated_at`

// UpsertConversation creates the conversation if absent, otherwise updates only its
// snapshot fields. The tenant of an existing conversation is never changed.
func (r *ConversationPostgres) UpsertConversation(ctx context.Context, key entity.ConversationKey, snap entity.Snapshot) (*entity.Conversation, error) {
	now := time.Now()
	var lastAt *time.Time
	if !snap.At.IsZero() {
		lastAt = &snap.At
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (
			id, tenant_id, channel_account_id, customer_external_id, customer_name,
			last_message_text, last_message_at, last_message_direction, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (tenant_id, channel_account_id, customer_external_id) DO UPDATE SET
			customer_name = COALESCE(NULLIF(EXCLUDED.customer_name, ''), conversations.customer_name),
			last_message_text = EXCLUDED.last_message_text,
			last_message_at = EXCLUDED.last_message_at,
			last_message_direction = EXCLUDED.last_message_direction,
			updated_at = EXCLUDED.updated_at
		RETURNING `+conversationColumns,
		uuid.NewString(),
		key.TenantID,
		key.ChannelAccountID,
		key.CustomerExternalID,
		snap.CustomerName,
		snap.Text,
		lastAt,
		string(snap.Direction),
		now,
	)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("upserting conversation: %w", err)
	}
	return conv, nil
}

// InsertMessage appends a message to an existing conversation. A provider message id
// already stored for the conversation's channel account yields ErrDuplicateMessage.
func (r *ConversationPostgres) InsertMessage(ctx context.Context, conversationID string, in entity.RecordInput) (*entity.Message, error) {
	var msg *entity.Message

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		conv, err := lockConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if conv == nil {
			return entity.ErrConversationNotFound
		}

		msg, err = appendMessage(ctx, tx, conv, in)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE conversations SET message_seq = $2, updated_at = NOW() WHERE id = $1`, conv.ID, msg.Seq)
		if err != nil {
			return fmt.Errorf("advancing message sequence: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// RecordMessage upserts the conversation and appends the message in one transaction.
// The conversation row is locked for the duration, so sequence numbers follow commit
// order, and the snapshot is only refreshed when the message was actually inserted.
func (r *ConversationPostgres) RecordMessage(ctx context.Context, in entity.RecordInput) (*entity.RecordResult, error) {
	if in.ProviderMessageID == "" {
		return nil, entity.ErrEmptyProviderID
	}
	if !in.Direction.Valid() {
		return nil, entity.ErrInvalidDirection
	}

	var result entity.RecordResult

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		conv, err := ensureConversation(ctx, tx, in.Key(), in.CustomerName)
		if err != nil {
			return err
		}

		msg, err := appendMessage(ctx, tx, conv, in)
		if err != nil {
			return err
		}

		snapAt := msg.CreatedAt
		if msg.ProviderTimestamp != nil {
			snapAt = *msg.ProviderTimestamp
		}
		snapText := entity.SnapshotText(msg.Text, msg.ImageRef)

		row := tx.QueryRow(ctx, `
			UPDATE conversations SET
				message_seq = $2,
				last_message_text = $3,
				last_message_at = $4,
				last_message_direction = $5,
				customer_name = COALESCE(NULLIF($6, ''), customer_name),
				archived_at = NULL,
				updated_at = NOW()
			WHERE id = $1
			RETURNING `+conversationColumns,
			conv.ID,
			msg.Seq,
			snapText,
			snapAt,
			string(msg.Direction),
			in.CustomerName,
		)
		updated, err := scanConversation(row)
		if err != nil {
			return fmt.Errorf("updating conversation snapshot: %w", err)
		}
		if updated == nil {
			return entity.ErrConversationNotFound
		}

		result.Conversation = *updated
		result.Message = *msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetByID retrieves a conversation by ID
func (r *ConversationPostgres) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

// GetByKey retrieves a conversation by its natural key
func (r *ConversationPostgres) GetByKey(ctx context.Context, key entity.ConversationKey) (*entity.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE tenant_id = $1 AND channel_account_id = $2 AND customer_external_id = $3
	`, key.TenantID, key.ChannelAccountID, key.CustomerExternalID)
	return scanConversation(row)
}

// ListByTenant retrieves a tenant's conversations, most recent activity first
func (r *ConversationPostgres) ListByTenant(ctx context.Context, filter entity.ListFilter) ([]entity.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE tenant_id = $1 AND ($2 OR archived_at IS NULL)
		ORDER BY last_message_at DESC NULLS LAST, updated_at DESC
		LIMIT $3 OFFSET $4
	`, filter.TenantID, filter.IncludeArchived, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []entity.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

// CountByTenant returns the number of conversations of a tenant
func (r *ConversationPostgres) CountByTenant(ctx context.Context, tenantID string, includeArchived bool) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM conversations WHERE tenant_id = $1 AND ($2 OR archived_at IS NULL)
	`, tenantID, includeArchived).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return count, nil
}

// Archive hides a conversation from default listings. Conversations are never deleted.
func (r *ConversationPostgres) Archive(ctx context.Context, tenantID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET archived_at = COALESCE(archived_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("archiving conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationPostgres) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ensureConversation creates the conversation if needed and locks its row
func ensureConversation(ctx context.Context, tx pgx.Tx, key entity.ConversationKey, customerName string) (*entity.Conversation, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO conversations (id, tenant_id, channel_account_id, customer_external_id, customer_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, channel_account_id, customer_external_id) DO NOTHING
	`, uuid.NewString(), key.TenantID, key.ChannelAccountID, key.CustomerExternalID, customerName)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE tenant_id = $1 AND channel_account_id = $2 AND customer_external_id = $3
		FOR UPDATE
	`, key.TenantID, key.ChannelAccountID, key.CustomerExternalID)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("locking conversation: %w", err)
	}
	if conv == nil {
		return nil, entity.ErrConversationNotFound
	}
	return conv, nil
}

func lockConversation(ctx context.Context, tx pgx.Tx, id string) (*entity.Conversation, error) {
	row := tx.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1 FOR UPDATE`, id)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("locking conversation: %w", err)
	}
	return conv, nil
}

// appendMessage inserts the message with the next sequence number of the locked conversation
func appendMessage(ctx context.Context, tx pgx.Tx, conv *entity.Conversation, in entity.RecordInput) (*entity.Message, error) {
	var seen bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE channel_account_id = $1
			  AND (provider_message_id = $2 OR $2 = ANY(delivered_provider_ids))
		)
	`, conv.ChannelAccountID, in.ProviderMessageID).Scan(&seen)
	if err != nil {
		return nil, fmt.Errorf("checking duplicate message: %w", err)
	}
	if seen {
		return nil, entity.ErrDuplicateMessage
	}

	actions := in.Actions
	if actions == nil {
		actions = []entity.ActionRecord{}
	}
	payload, err := json.Marshal(actions)
	if err != nil {
		return nil, fmt.Errorf("encoding message actions: %w", err)
	}

	status := in.DeliveryStatus
	if status == "" {
		status = entity.DeliveryNone
	}

	var providerTS *time.Time
	if !in.ProviderTimestamp.IsZero() {
		ts := in.ProviderTimestamp
		providerTS = &ts
	}

	msg := &entity.Message{
		ID:                in.ID,
		ConversationID:    conv.ID,
		TenantID:          conv.TenantID,
		ChannelAccountID:  conv.ChannelAccountID,
		Seq:               conv.MessageSeq + 1,
		Direction:         in.Direction,
		SenderExternalID:  in.SenderExternalID,
		ProviderMessageID: in.ProviderMessageID,
		Text:              in.Text,
		ImageRef:          in.ImageRef,
		Actions:           in.Actions,
		DeliveryStatus:    status,
		ProviderTimestamp: providerTS,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (
			id, conversation_id, tenant_id, channel_account_id, seq, direction, sender_external_id,
			provider_message_id, text, image_ref, actions, delivery_status, provider_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (channel_account_id, provider_message_id) DO NOTHING
		RETURNING created_at
	`,
		msg.ID,
		msg.ConversationID,
		msg.TenantID,
		msg.ChannelAccountID,
		msg.Seq,
		string(msg.Direction),
		msg.SenderExternalID,
		msg.ProviderMessageID,
		msg.Text,
		msg.ImageRef,
		payload,
		string(msg.DeliveryStatus),
		msg.ProviderTimestamp,
	).Scan(&msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrDuplicateMessage
	}
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	conv.MessageSeq = msg.Seq
	return msg, nil
}

// scanConversation scans a single conversation row
func scanConversation(row pgx.Row) (*entity.Conversation, error) {
	var conv entity.Conversation
	var direction string

	err := row.Scan(
		&conv.ID,
		&conv.TenantID,
		&conv.ChannelAccountID,
		&conv.CustomerExternalID,
		&conv.CustomerName,
		&conv.LastMessageText,
		&conv.LastMessageAt,
		&direction,
		&conv.MessageSeq,
		&conv.ArchivedAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.LastMessageDirection = entity.Direction(direction)
	return &conv, nil
}
