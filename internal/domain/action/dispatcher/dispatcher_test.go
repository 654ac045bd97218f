package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/neo-gateway/internal/domain/action/entity"
	catalog "github.com/vadim/neo-gateway/internal/domain/catalog/entity"
)

type memStore struct {
	mu        sync.Mutex
	byKey     map[string]*entity.Invocation
	claimErr  error
	completed int
}

func newMemStore() *memStore {
	return &memStore{byKey: map[string]*entity.Invocation{}}
}

func (s *memStore) Claim(_ context.Context, inv *entity.Invocation) (bool, *entity.Invocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return false, nil, s.claimErr
	}
	if existing, ok := s.byKey[inv.IdempotencyKey]; ok {
		cp := *existing
		return false, &cp, nil
	}
	cp := *inv
	s.byKey[inv.IdempotencyKey] = &cp
	return true, nil, nil
}

func (s *memStore) Complete(_ context.Context, id string, outcome entity.Outcome, targetID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.byKey {
		if inv.ID == id {
			inv.Outcome = outcome
			inv.TargetID = targetID
			inv.Reason = reason
			s.completed++
			return nil
		}
	}
	return entity.ErrInvocationNotFound
}

type fakeCatalog struct {
	items   []catalog.Item
	images  map[string]string
	cart    map[string]int
	findErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		items: []catalog.Item{
			{ID: "item-widget", SKU: "SKU-1", Name: "Widget", Active: true},
			{ID: "item-old", SKU: "SKU-0", Name: "Old Thing", Active: false},
		},
		images: map[string]string{"widget-front": "https://cdn.example/widget.png"},
		cart:   map[string]int{},
	}
}

func (c *fakeCatalog) FindActiveItem(_ context.Context, _ string, ref string) (*catalog.Item, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	for _, it := range c.items {
		if it.Active && it.Matches(ref) {
			cp := it
			return &cp, nil
		}
	}
	return nil, catalog.ErrItemNotFound
}

func (c *fakeCatalog) AddToCart(_ context.Context, conversationID, itemID string) (int, error) {
	c.cart[conversationID+"|"+itemID]++
	return c.cart[conversationID+"|"+itemID], nil
}

func (c *fakeCatalog) ResolveImage(_ context.Context, _ string, ref string) (string, error) {
	url, ok := c.images[strings.ToLower(ref)]
	if !ok {
		return "", catalog.ErrMediaNotFound
	}
	return url, nil
}

func newTestDispatcher() (*Dispatcher, *memStore, *fakeCatalog) {
	store := newMemStore()
	cat := newFakeCatalog()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, cat, logger), store, cat
}

func input(text string) Input {
	return Input{
		TenantID:        "tenant-a",
		ConversationID:  "conv-1",
		SourceMessageID: "msg-in-1",
		ReplyMessageID:  "msg-out-1",
		Text:            text,
	}
}

func TestAddToCartActiveItem(t *testing.T) {
	d, store, cat := newTestDispatcher()

	res := d.Dispatch(context.Background(), input("Done! [ADD_TO_CART: Widget]"))

	assert.Equal(t, "Done!", res.CleanedText)
	assert.NotContains(t, res.CleanedText, "[")
	require.Len(t, res.Invocations, 1)
	inv := res.Invocations[0]
	assert.Equal(t, entity.KindAddToCart, inv.Kind)
	assert.Equal(t, entity.OutcomeApplied, inv.Outcome)
	assert.Equal(t, "item-widget", inv.TargetID)
	assert.Equal(t, "msg-out-1", inv.MessageID)
	assert.Equal(t, 1, cat.cart["conv-1|item-widget"])
	assert.Len(t, store.byKey, 1)
}

func TestAddToCartUnknownItemIsRejected(t *testing.T) {
	d, _, cat := newTestDispatcher()

	res := d.Dispatch(context.Background(), input("Great choice [ADD_TO_CART: Unknown-Item] see you soon"))

	assert.Equal(t, "Great choice see you soon", res.CleanedText)
	require.Len(t, res.Invocations, 1)
	assert.Equal(t, entity.OutcomeRejected, res.Invocations[0].Outcome)
	assert.Contains(t, res.Invocations[0].Reason, "Unknown-Item")
	assert.Empty(t, cat.cart)
}

func TestAddToCartInactiveItemIsRejected(t *testing.T) {
	d, _, cat := newTestDispatcher()

	res := d.Dispatch(context.Background(), input("[ADD_TO_CART: Old Thing]"))

	require.Len(t, res.Invocations, 1)
	assert.Equal(t, entity.OutcomeRejected, res.Invocations[0].Outcome)
	assert.Empty(t, cat.cart)
}

func TestPriceScenario(t *testing.T) {
	d, _, cat := newTestDispatcher()

	res := d.Dispatch(context.Background(), input("The price is 100 [ADD_TO_CART: SKU-1]"))

	assert.Equal(t, "The price is 100", res.CleanedText)
	require.Len(t, res.Invocations, 1)
	assert.Equal(t, entity.OutcomeApplied, res.Invocations[0].Outcome)
	assert.Equal(t, 1, cat.cart["conv-1|item-widget"])
}

func TestRedispatchNeverAppliesTwice(t *testing.T) {
	d, store, cat := newTestDispatcher()
	ctx := context.Background()
	text := "Here you go [SEND_IMAGE: widget-front] [ADD_TO_CART: Widget]"

	first := d.Dispatch(ctx, input(text))
	require.Len(t, first.Attachments, 1)

	retry := input(text)
	retry.ReplyMessageID = "msg-out-2"
	second := d.Dispatch(ctx, retry)

	assert.Equal(t, 1, cat.cart["conv-1|item-widget"])
	assert.Empty(t, second.Attachments, "image must not be re-sent")
	require.Len(t, second.Invocations, 2)
	assert.Equal(t, first.Invocations[0].ID, second.Invocations[0].ID)
	assert.Equal(t, first.Invocations[1].ID, second.Invocations[1].ID)
	assert.Equal(t, "Here you go", second.CleanedText)
	assert.Len(t, store.byKey, 2)
	assert.Equal(t, 2, store.completed)
}

func TestSendImage(t *testing.T) {
	d, _, _ := newTestDispatcher()

	res := d.Dispatch(context.Background(), input("Look [SEND_IMAGE: Widget-Front] [SEND_IMAGE: missing]"))

	assert.Equal(t, "Look", res.CleanedText)
	require.Len(t, res.Attachments, 1)
	assert.Equal(t, "https://cdn.example/widget.png", res.Attachments[0].URL)
	require.Len(t, res.Invocations, 2)
	assert.Equal(t, entity.OutcomeApplied, res.Invocations[0].Outcome)
	assert.Equal(t, entity.OutcomeRejected, res.Invocations[1].Outcome)
}

func TestBadTokenDoesNotStopOthers(t *testing.T) {
	d, _, cat := newTestDispatcher()

	res := d.Dispatch(context.Background(), input("[ADD_TO_CART:] [ADD_TO_CART: nope] [ADD_TO_CART: Widget] ok"))

	assert.Equal(t, "ok", res.CleanedText)
	require.Len(t, res.Invocations, 3)
	assert.Equal(t, entity.OutcomeRejected, res.Invocations[0].Outcome)
	assert.Equal(t, entity.OutcomeRejected, res.Invocations[1].Outcome)
	assert.Equal(t, entity.OutcomeApplied, res.Invocations[2].Outcome)
	assert.Equal(t, 1, cat.cart["conv-1|item-widget"])
}

func TestInfrastructureErrorsMarkFailed(t *testing.T) {
	d, store, cat := newTestDispatcher()
	cat.findErr = errors.New("db down")

	res := d.Dispatch(context.Background(), input("[ADD_TO_CART: Widget] thanks"))
	require.Len(t, res.Invocations, 1)
	assert.Equal(t, entity.OutcomeFailed, res.Invocations[0].Outcome)
	assert.Equal(t, "thanks", res.CleanedText)

	store.claimErr = errors.New("db down")
	cat.findErr = nil
	res = d.Dispatch(context.Background(), input("[ADD_TO_CART: Widget]"))
	require.Len(t, res.Invocations, 1)
	assert.Equal(t, entity.OutcomeFailed, res.Invocations[0].Outcome)
	assert.Empty(t, cat.cart, "no effect without a claim")
}

func TestMalformedTokensAreNotExecuted(t *testing.T) {
	d, store, cat := newTestDispatcher()

	res := d.Dispatch(context.Background(), input("[ADD_TO_CART: [Widget]] [REMOVE_ALL: x]"))

	assert.Empty(t, res.Invocations)
	assert.Empty(t, store.byKey)
	assert.Empty(t, cat.cart)
}
