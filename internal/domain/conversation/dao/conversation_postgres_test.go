package dao

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/neo-gateway/internal/config"
	"github.com/vadim/neo-gateway/internal/database"
	"github.com/vadim/neo-gateway/internal/domain/conversation/entity"
)

// testPool connects to TEST_DATABASE_URL, migrates it and seeds one tenant with
// one channel account. Tests are skipped without a database.
func testPool(t *testing.T) (*pgxpool.Pool, string, string) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	m, err := database.NewMigrator(dsn)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	m.Close()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, config.Database{PostgresDSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tenantID, accountID := uuid.NewString(), uuid.NewString()
	_, err = pool.Exec(ctx, `INSERT INTO tenants (id, name) VALUES ($1, 'dao test')`, tenantID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO channel_accounts (id, tenant_id, channel_type, external_id)
		VALUES ($1, $2, 'facebook', $3)
	`, accountID, tenantID, "page-"+accountID)
	require.NoError(t, err)

	return pool, tenantID, accountID
}

func TestRecordMessageDeduplicatesRedelivery(t *testing.T) {
	pool, tenantID, accountID := testPool(t)
	repo := NewConversationPostgres(pool)
	ctx := context.Background()

	in := entity.RecordInput{
		TenantID:           tenantID,
		ChannelAccountID:   accountID,
		CustomerExternalID: "cust-1",
		Direction:          entity.DirectionCustomerToPage,
		SenderExternalID:   "cust-1",
		ProviderMessageID:  "m-" + uuid.NewString(),
		Text:               "hi",
	}

	first, err := repo.RecordMessage(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Message.Seq)
	assert.Equal(t, "hi", first.Conversation.LastMessageText)

	_, err = repo.RecordMessage(ctx, in)
	assert.ErrorIs(t, err, entity.ErrDuplicateMessage)

	conv, err := repo.GetByID(ctx, first.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), conv.MessageSeq)
}

func TestRecordMessageTreatsEchoOfDeliveredReplyAsDuplicate(t *testing.T) {
	pool, tenantID, accountID := testPool(t)
	repo := NewConversationPostgres(pool)
	messages := NewMessagePostgres(pool)
	ctx := context.Background()

	reply, err := repo.RecordMessage(ctx, entity.RecordInput{
		TenantID:           tenantID,
		ChannelAccountID:   accountID,
		CustomerExternalID: "cust-2",
		Direction:          entity.DirectionPageToCustomer,
		SenderExternalID:   "page",
		ProviderMessageID:  entity.ReplyProviderID("m-" + uuid.NewString()),
		Text:               "The price is 100",
		DeliveryStatus:     entity.DeliveryPending,
	})
	require.NoError(t, err)

	mid := "mid." + uuid.NewString()
	require.NoError(t, messages.MarkDeliverySent(ctx, reply.Message.ID, []string{mid}, 1))

	_, err = repo.RecordMessage(ctx, entity.RecordInput{
		TenantID:           tenantID,
		ChannelAccountID:   accountID,
		CustomerExternalID: "cust-2",
		Direction:          entity.DirectionPageToCustomer,
		SenderExternalID:   "page",
		ProviderMessageID:  mid,
		Text:               "The price is 100",
	})
	assert.ErrorIs(t, err, entity.ErrDuplicateMessage)
}

func TestRecordMessageAssignsSequentialSeq(t *testing.T) {
	pool, tenantID, accountID := testPool(t)
	repo := NewConversationPostgres(pool)
	messages := NewMessagePostgres(pool)
	ctx := context.Background()

	var convID string
	for i, text := range []string{"one", "two", "three"} {
		res, err := repo.RecordMessage(ctx, entity.RecordInput{
			TenantID:           tenantID,
			ChannelAccountID:   accountID,
			CustomerExternalID: "cust-3",
			Direction:          entity.DirectionCustomerToPage,
			SenderExternalID:   "cust-3",
			ProviderMessageID:  "m-" + uuid.NewString(),
			Text:               text,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), res.Message.Seq)
		convID = res.Conversation.ID
	}

	list, err := messages.ListByConversation(ctx, convID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "one", list[0].Text)
	assert.Equal(t, "three", list[2].Text)
}
