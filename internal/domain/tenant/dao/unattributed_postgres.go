package dao

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	"github.com/vadim/neo-gateway/internal/domain/tenant/entity"
)

// UnattributedPostgres implements the unattributed inbox for PostgreSQL
type UnattributedPostgres struct {
	pool *pgxpool.Pool
}

// NewUnattributedPostgres creates a new PostgreSQL unattributed inbox repository
func NewUnattributedPostgres(pool *pgxpool.Pool) *UnattributedPostgres {
	return &UnattributedPostgres{pool: pool}
}

const unattributedColumns = `id, channel_type, account_external_id, customer_external_id, provider_message_id,
	text_preview, status, hit_count, first_seen_at, last_seen_at`

// Record upserts an inbox entry for the event. firstForAccount is true when the
// account had no pending entries before this call.
func (r *UnattributedPostgres) Record(ctx context.Context, ev channel.InboundEvent) (firstForAccount bool, err error) {
	err = withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var pending bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM unattributed_events
				WHERE channel_type = $1 AND account_external_id = $2 AND status = $3
			)
		`, string(ev.ChannelType), ev.AccountExternalID, string(entity.UnattributedPendingReview)).Scan(&pending)
		if err != nil {
			return fmt.Errorf("checking pending entries: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO unattributed_events (
				id, channel_type, account_external_id, customer_external_id, provider_message_id,
				text_preview, status, hit_count, first_seen_at, last_seen_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, 1, NOW(), NOW())
			ON CONFLICT (channel_type, account_external_id, provider_message_id) DO UPDATE SET
				hit_count = unattributed_events.hit_count + 1,
				last_seen_at = NOW()
		`,
			uuid.NewString(),
			string(ev.ChannelType),
			ev.AccountExternalID,
			ev.CustomerExternalID,
			ev.ProviderMessageID,
			ev.Preview(),
			string(entity.UnattributedPendingReview),
		)
		if err != nil {
			return fmt.Errorf("recording unattributed event: %w", err)
		}

		firstForAccount = !pending
		return nil
	})
	return firstForAccount, err
}

// List retrieves inbox entries, newest first
func (r *UnattributedPostgres) List(ctx context.Context, filter entity.UnattributedFilter) ([]entity.UnattributedEvent, error) {
	query := `SELECT ` + unattributedColumns + ` FROM unattributed_events`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += fmt.Sprintf(` ORDER BY last_seen_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unattributed events: %w", err)
	}
	defer rows.Close()

	var events []entity.UnattributedEvent
	for rows.Next() {
		ev, err := scanUnattributed(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// GetByID retrieves a single inbox entry
func (r *UnattributedPostgres) GetByID(ctx context.Context, id string) (*entity.UnattributedEvent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+unattributedColumns+` FROM unattributed_events WHERE id = $1`, id)
	return scanUnattributed(row)
}

// Dismiss marks an inbox entry as reviewed
func (r *UnattributedPostgres) Dismiss(ctx context.Context, id string, audit *entity.AuditEntry) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE unattributed_events SET status = $2 WHERE id = $1
		`, id, string(entity.UnattributedDismissed))
		if err != nil {
			return fmt.Errorf("dismissing unattributed event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return entity.ErrUnattributedNotFound
		}
		return insertAudit(ctx, tx, audit)
	})
}

// CountPending returns how many inbox entries await review
func (r *UnattributedPostgres) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM unattributed_events WHERE status = $1",
		string(entity.UnattributedPendingReview),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unattributed events: %w", err)
	}
	return count, nil
}

func scanUnattributed(row pgx.Row) (*entity.UnattributedEvent, error) {
	var ev entity.UnattributedEvent
	var channelType, status string

	err := row.Scan(
		&ev.ID,
		&channelType,
		&ev.AccountExternalID,
		&ev.CustomerExternalID,
		&ev.ProviderMessageID,
		&ev.TextPreview,
		&status,
		&ev.HitCount,
		&ev.FirstSeenAt,
		&ev.LastSeenAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning unattributed event: %w", err)
	}

	ev.ChannelType = channel.Type(channelType)
	ev.Status = entity.UnattributedStatus(status)
	return &ev, nil
}
