package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/neo-gateway/internal/domain/conversation/entity"
)

type fakeConversations struct {
	byID     map[string]*entity.Conversation
	recorded []entity.RecordInput
	seen     map[string]bool
	err      error
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{byID: map[string]*entity.Conversation{}, seen: map[string]bool{}}
}

func (f *fakeConversations) RecordMessage(_ context.Context, in entity.RecordInput) (*entity.RecordResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := in.ChannelAccountID + "|" + in.ProviderMessageID
	if f.seen[key] {
		return nil, entity.ErrDuplicateMessage
	}
	f.seen[key] = true
	f.recorded = append(f.recorded, in)
	return &entity.RecordResult{
		Conversation: entity.Conversation{ID: "conv-1", TenantID: in.TenantID},
		Message:      entity.Message{ProviderMessageID: in.ProviderMessageID},
	}, nil
}

func (f *fakeConversations) UpsertConversation(_ context.Context, key entity.ConversationKey, _ entity.Snapshot) (*entity.Conversation, error) {
	return &entity.Conversation{ID: "conv-1", TenantID: key.TenantID}, nil
}

func (f *fakeConversations) InsertMessage(_ context.Context, conversationID string, in entity.RecordInput) (*entity.Message, error) {
	if _, ok := f.byID[conversationID]; !ok {
		return nil, entity.ErrConversationNotFound
	}
	return &entity.Message{ConversationID: conversationID, ProviderMessageID: in.ProviderMessageID}, nil
}

func (f *fakeConversations) GetByID(_ context.Context, id string) (*entity.Conversation, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConversations) ListByTenant(_ context.Context, filter entity.ListFilter) ([]entity.Conversation, error) {
	var out []entity.Conversation
	for _, c := range f.byID {
		if c.TenantID == filter.TenantID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConversations) CountByTenant(_ context.Context, tenantID string, _ bool) (int64, error) {
	var n int64
	for _, c := range f.byID {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (f *fakeConversations) Archive(_ context.Context, tenantID, id string) error {
	c, ok := f.byID[id]
	if !ok || c.TenantID != tenantID {
		return entity.ErrConversationNotFound
	}
	return nil
}

type fakeMessages struct {
	byConv map[string][]entity.Message
	sent   map[string][]string
	failed map[string]string
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		byConv: map[string][]entity.Message{},
		sent:   map[string][]string{},
		failed: map[string]string{},
	}
}

func (f *fakeMessages) GetByID(_ context.Context, _ string) (*entity.Message, error) {
	return nil, nil
}

func (f *fakeMessages) ListByConversation(_ context.Context, convID string, limit, offset int) ([]entity.Message, error) {
	msgs := f.byConv[convID]
	if offset >= len(msgs) {
		return nil, nil
	}
	end := min(offset+limit, len(msgs))
	return msgs[offset:end], nil
}

func (f *fakeMessages) Recent(_ context.Context, convID string, n int) ([]entity.Message, error) {
	msgs := f.byConv[convID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (f *fakeMessages) CountByConversation(_ context.Context, convID string) (int64, error) {
	return int64(len(f.byConv[convID])), nil
}

func (f *fakeMessages) MarkDeliverySent(_ context.Context, id string, providerIDs []string, _ int) error {
	f.sent[id] = providerIDs
	return nil
}

func (f *fakeMessages) MarkDeliveryFailed(_ context.Context, id, reason string, _ []string, _ int) error {
	f.failed[id] = reason
	return nil
}

func TestRecordTreatsRedeliveryAsDuplicate(t *testing.T) {
	convs := newFakeConversations()
	svc := New(convs, newFakeMessages())
	ctx := context.Background()

	in := entity.RecordInput{
		TenantID:           "tenant-a",
		ChannelAccountID:   "acc-1",
		CustomerExternalID: "cust-1",
		Direction:          entity.DirectionCustomerToPage,
		ProviderMessageID:  "m1",
		Text:               "hi",
	}

	res, err := svc.Record(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "m1", res.Message.ProviderMessageID)

	_, err = svc.Record(ctx, in)
	assert.ErrorIs(t, err, entity.ErrDuplicateMessage)
	assert.Len(t, convs.recorded, 1)
}

func TestRecordWrapsStorageErrors(t *testing.T) {
	convs := newFakeConversations()
	convs.err = errors.New("connection reset")
	svc := New(convs, newFakeMessages())

	_, err := svc.Record(context.Background(), entity.RecordInput{ProviderMessageID: "m1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, entity.ErrDuplicateMessage)
	assert.Contains(t, err.Error(), "recording message")
}

func TestGetConversationIsTenantScoped(t *testing.T) {
	convs := newFakeConversations()
	convs.byID["conv-1"] = &entity.Conversation{ID: "conv-1", TenantID: "tenant-a"}
	svc := New(convs, newFakeMessages())
	ctx := context.Background()

	conv, err := svc.GetConversation(ctx, "tenant-a", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)

	_, err = svc.GetConversation(ctx, "tenant-b", "conv-1")
	assert.ErrorIs(t, err, entity.ErrConversationNotFound)

	_, err = svc.GetConversation(ctx, "tenant-a", "missing")
	assert.ErrorIs(t, err, entity.ErrConversationNotFound)
}

func TestListMessagesPaging(t *testing.T) {
	convs := newFakeConversations()
	convs.byID["conv-1"] = &entity.Conversation{ID: "conv-1", TenantID: "tenant-a"}
	msgs := newFakeMessages()
	for i := 1; i <= 5; i++ {
		msgs.byConv["conv-1"] = append(msgs.byConv["conv-1"], entity.Message{Seq: int64(i)})
	}
	svc := New(convs, msgs)
	ctx := context.Background()

	out, err := svc.ListMessages(ctx, ListMessagesInput{TenantID: "tenant-a", ConversationID: "conv-1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, out.Messages, 2)
	assert.Equal(t, int64(5), out.Total)
	assert.True(t, out.HasMore)
	assert.Equal(t, int64(1), out.Messages[0].Seq)

	out, err = svc.ListMessages(ctx, ListMessagesInput{TenantID: "tenant-a", ConversationID: "conv-1", Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, out.Messages, 1)
	assert.False(t, out.HasMore)

	_, err = svc.ListMessages(ctx, ListMessagesInput{TenantID: "tenant-b", ConversationID: "conv-1"})
	assert.ErrorIs(t, err, entity.ErrConversationNotFound)
}

func TestListConversations(t *testing.T) {
	convs := newFakeConversations()
	convs.byID["c1"] = &entity.Conversation{ID: "c1", TenantID: "tenant-a"}
	convs.byID["c2"] = &entity.Conversation{ID: "c2", TenantID: "tenant-a"}
	convs.byID["c3"] = &entity.Conversation{ID: "c3", TenantID: "tenant-b"}
	svc := New(convs, newFakeMessages())

	out, err := svc.ListConversations(context.Background(), ListConversationsInput{TenantID: "tenant-a"})
	require.NoError(t, err)
	assert.Len(t, out.Conversations, 2)
	assert.Equal(t, int64(2), out.Total)
	assert.False(t, out.HasMore)
}

func TestArchive(t *testing.T) {
	convs := newFakeConversations()
	convs.byID["c1"] = &entity.Conversation{ID: "c1", TenantID: "tenant-a"}
	svc := New(convs, newFakeMessages())
	ctx := context.Background()

	require.NoError(t, svc.Archive(ctx, "tenant-a", "c1"))
	assert.ErrorIs(t, svc.Archive(ctx, "tenant-b", "c1"), entity.ErrConversationNotFound)
}

func TestDeliveryBookkeeping(t *testing.T) {
	msgs := newFakeMessages()
	svc := New(newFakeConversations(), msgs)
	ctx := context.Background()

	require.NoError(t, svc.MarkDeliverySent(ctx, "msg-1", []string{"mid.1", "mid.2"}, 1))
	require.NoError(t, svc.MarkDeliveryFailed(ctx, "msg-2", "provider 500", nil, 3))

	assert.Equal(t, []string{"mid.1", "mid.2"}, msgs.sent["msg-1"])
	assert.Equal(t, "provider 500", msgs.failed["msg-2"])
}
