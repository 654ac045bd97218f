package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/vadim/neo-gateway/internal/domain/catalog/entity"
	conversation "github.com/vadim/neo-gateway/internal/domain/conversation/entity"
	tenant "github.com/vadim/neo-gateway/internal/domain/tenant/entity"
)

type scriptedCompleter struct {
	calls   atomic.Int32
	replies []string
	errs    []error
	block   bool
	last    Prompt
}

func (c *scriptedCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	i := int(c.calls.Add(1)) - 1
	c.last = p
	if c.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "", nil
}

type fakeMessages struct {
	msgs []conversation.Message
	err  error
	n    int
}

func (f *fakeMessages) RecentMessages(_ context.Context, _ string, n int) ([]conversation.Message, error) {
	f.n = n
	return f.msgs, f.err
}

type fakeCatalog struct {
	items []catalog.Item
	cart  []catalog.CartLine
	err   error
	limit int
}

func (f *fakeCatalog) ActiveItems(_ context.Context, _ string, limit int) ([]catalog.Item, error) {
	f.limit = limit
	return f.items, f.err
}

func (f *fakeCatalog) Cart(_ context.Context, _ string) ([]catalog.CartLine, error) {
	return f.cart, f.err
}

func newOrchestrator(c Completer, msgs *fakeMessages, cat *fakeCatalog) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(c, msgs, cat, Config{
		ContextMessages: 5,
		CatalogItems:    10,
		Timeout:         50 * time.Millisecond,
		RetryDelay:      time.Millisecond,
	}, logger)
}

func request() Request {
	return Request{
		Tenant:         tenant.Tenant{ID: "tenant-a", PersonaPrompt: "You sell widgets."},
		ConversationID: "conv-1",
		CustomerName:   "Kerry",
	}
}

func TestReplySuccess(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"The price is 100 [ADD_TO_CART: SKU-1]"}}
	msgs := &fakeMessages{msgs: []conversation.Message{
		{Direction: conversation.DirectionCustomerToPage, Text: "hi"},
		{Direction: conversation.DirectionPageToCustomer, Text: "hello!"},
		{Direction: conversation.DirectionCustomerToPage, Text: "price?"},
	}}
	cat := &fakeCatalog{
		items: []catalog.Item{{SKU: "SKU-1", Name: "Widget", PriceMinor: 10000, Currency: "USD"}},
		cart:  []catalog.CartLine{{SKU: "SKU-2", Name: "Gadget", Quantity: 2}},
	}
	o := newOrchestrator(c, msgs, cat)

	text, err := o.Reply(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "The price is 100 [ADD_TO_CART: SKU-1]", text)
	assert.Equal(t, int32(1), c.calls.Load())
	assert.Equal(t, 5, msgs.n)
	assert.Equal(t, 10, cat.limit)

	p := c.last
	assert.Contains(t, p.System, "You sell widgets.")
	assert.Contains(t, p.System, "[ADD_TO_CART:")
	assert.Contains(t, p.System, "Widget (sku SKU-1): 100.00 USD")
	assert.Contains(t, p.System, "2 x Gadget")
	assert.Contains(t, p.System, "Kerry")
	require.Len(t, p.Turns, 3)
	assert.Equal(t, SpeakerBusiness, p.Turns[1].Speaker)
	assert.Equal(t, Turn{Speaker: SpeakerCustomer, Text: "price?"}, p.Turns[2])
}

func TestReplyRetriesOnce(t *testing.T) {
	c := &scriptedCompleter{
		errs:    []error{errors.New("502 bad gateway")},
		replies: []string{"", "Hello again"},
	}
	o := newOrchestrator(c, &fakeMessages{}, &fakeCatalog{})

	text, err := o.Reply(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "Hello again", text)
	assert.Equal(t, int32(2), c.calls.Load())
}

func TestReplyGivesUpAfterRetry(t *testing.T) {
	c := &scriptedCompleter{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	o := newOrchestrator(c, &fakeMessages{}, &fakeCatalog{})

	_, err := o.Reply(context.Background(), request())
	assert.ErrorIs(t, err, ErrCompletionUnavailable)
	assert.Equal(t, int32(2), c.calls.Load())
}

func TestReplyTimeout(t *testing.T) {
	c := &scriptedCompleter{block: true}
	o := newOrchestrator(c, &fakeMessages{}, &fakeCatalog{})

	start := time.Now()
	_, err := o.Reply(context.Background(), request())
	assert.ErrorIs(t, err, ErrCompletionUnavailable)
	assert.Equal(t, int32(2), c.calls.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestReplyEmptyTextIsUnavailable(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"  ", "\n"}}
	o := newOrchestrator(c, &fakeMessages{}, &fakeCatalog{})

	_, err := o.Reply(context.Background(), request())
	assert.ErrorIs(t, err, ErrCompletionUnavailable)
}

func TestReplyHistoryFailure(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"x"}}
	o := newOrchestrator(c, &fakeMessages{err: errors.New("db down")}, &fakeCatalog{})

	_, err := o.Reply(context.Background(), request())
	assert.ErrorIs(t, err, ErrCompletionUnavailable)
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestBuildPromptWithoutCatalog(t *testing.T) {
	o := newOrchestrator(&scriptedCompleter{}, &fakeMessages{msgs: []conversation.Message{
		{Direction: conversation.DirectionCustomerToPage, ImageRef: "media-1"},
		{Direction: conversation.DirectionCustomerToPage},
	}}, &fakeCatalog{err: errors.New("db down")})

	req := request()
	req.Tenant.PersonaPrompt = ""
	p, err := o.BuildPrompt(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, p.System, defaultPersona)
	assert.Contains(t, p.System, "(no items available)")
	assert.Contains(t, p.System, "(empty)")
	require.Len(t, p.Turns, 1)
	assert.Equal(t, "[image]", p.Turns[0].Text)
}

func TestFallback(t *testing.T) {
	assert.Equal(t, "default", Fallback(tenant.Tenant{}, "default"))
	assert.Equal(t, "We'll be right back", Fallback(tenant.Tenant{FallbackReply: " We'll be right back "}, "default"))
}
