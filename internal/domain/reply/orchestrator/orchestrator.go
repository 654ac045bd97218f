package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	catalog "github.com/vadim/neo-gateway/internal/domain/catalog/entity"
	conversation "github.com/vadim/neo-gateway/internal/domain/conversation/entity"
	tenant "github.com/vadim/neo-gateway/internal/domain/tenant/entity"
)

// ErrCompletionUnavailable means no reply could be generated; callers send a fallback
var ErrCompletionUnavailable = errors.New("completion unavailable")

var errEmptyReply = errors.New("empty reply")

// Speaker tells who said a turn
type Speaker string

const (
	SpeakerCustomer Speaker = "customer"
	SpeakerBusiness Speaker = "business"
)

// Turn is one message of the context window
type Turn struct {
	Speaker Speaker
	Text    string
}

// Prompt is everything the completion collaborator sees
type Prompt struct {
	System string
	Turns  []Turn
}

// Completer generates reply text for a prompt
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// MessageSource loads the recent history of a conversation
type MessageSource interface {
	RecentMessages(ctx context.Context, conversationID string, n int) ([]conversation.Message, error)
}

// CatalogSource loads the sellable items and the current cart
type CatalogSource interface {
	ActiveItems(ctx context.Context, tenantID string, limit int) ([]catalog.Item, error)
	Cart(ctx context.Context, conversationID string) ([]catalog.CartLine, error)
}

// Config bounds the context window and the completion call
type Config struct {
	ContextMessages int
	CatalogItems    int
	Timeout         time.Duration
	RetryDelay      time.Duration
}

// Orchestrator builds the reply context and calls the completion collaborator
type Orchestrator struct {
	completer Completer
	messages  MessageSource
	catalog   CatalogSource
	cfg       Config
	logger    *slog.Logger
}

// New creates a new reply orchestrator
func New(completer Completer, messages MessageSource, catalog CatalogSource, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.ContextMessages <= 0 {
		cfg.ContextMessages = 20
	}
	if cfg.CatalogItems <= 0 {
		cfg.CatalogItems = 50
	}
	return &Orchestrator{
		completer: completer,
		messages:  messages,
		catalog:   catalog,
		cfg:       cfg,
		logger:    logger,
	}
}

// Request identifies the conversation to answer
type Request struct {
	Tenant         tenant.Tenant
	ConversationID string
	CustomerName   string
}

// Reply returns raw reply text, tokens included. It makes one attempt plus a
// single retry after RetryDelay and then gives up with ErrCompletionUnavailable.
func (o *Orchestrator) Reply(ctx context.Context, req Request) (string, error) {
	prompt, err := o.BuildPrompt(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, ctx.Err())
			case <-time.After(o.cfg.RetryDelay):
			}
		}

		text, err := o.complete(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		o.logger.Warn("completion attempt failed",
			"attempt", attempt,
			"tenant_id", req.Tenant.ID,
			"conversation_id", req.ConversationID,
			"error", err,
		)
	}

	return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, lastErr)
}

func (o *Orchestrator) complete(ctx context.Context, prompt Prompt) (string, error) {
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	text, err := o.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptyReply
	}
	return text, nil
}

// BuildPrompt assembles the bounded context window. History is required;
// catalog and cart are best-effort.
func (o *Orchestrator) BuildPrompt(ctx context.Context, req Request) (Prompt, error) {
	history, err := o.messages.RecentMessages(ctx, req.ConversationID, o.cfg.ContextMessages)
	if err != nil {
		return Prompt{}, fmt.Errorf("loading history: %w", err)
	}

	items, err := o.catalog.ActiveItems(ctx, req.Tenant.ID, o.cfg.CatalogItems)
	if err != nil {
		o.logger.Warn("reply context without catalog", "tenant_id", req.Tenant.ID, "error", err)
		items = nil
	}
	cart, err := o.catalog.Cart(ctx, req.ConversationID)
	if err != nil {
		o.logger.Warn("reply context without cart", "conversation_id", req.ConversationID, "error", err)
		cart = nil
	}

	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		text := m.Text
		if text == "" && m.ImageRef != "" {
			text = "[image]"
		}
		if text == "" {
			continue
		}
		speaker := SpeakerCustomer
		if m.Direction == conversation.DirectionPageToCustomer {
			speaker = SpeakerBusiness
		}
		turns = append(turns, Turn{Speaker: speaker, Text: text})
	}

	return Prompt{
		System: systemPrompt(req, items, cart),
		Turns:  turns,
	}, nil
}

const defaultPersona = "You are a helpful sales assistant answering customers of an online shop. Keep replies short and friendly."

const tokenProtocol = `You can trigger actions by writing tokens in your reply:
[ADD_TO_CART: <sku or item name>] adds one unit of a catalog item to the customer's cart.
[SEND_IMAGE: <image ref or item name>] sends an image to the customer.
Only use items listed in the catalog. Tokens are removed before the customer reads the reply.`

func systemPrompt(req Request, items []catalog.Item, cart []catalog.CartLine) string {
	var b strings.Builder

	persona := strings.TrimSpace(req.Tenant.PersonaPrompt)
	if persona == "" {
		persona = defaultPersona
	}
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(tokenProtocol)

	if req.CustomerName != "" {
		fmt.Fprintf(&b, "\n\nThe customer's name is %s.", req.CustomerName)
	}

	b.WriteString("\n\nCatalog:")
	if len(items) == 0 {
		b.WriteString("\n(no items available)")
	}
	for _, it := range items {
		fmt.Fprintf(&b, "\n- %s (sku %s): %s", it.Name, it.SKU, it.Price())
	}

	b.WriteString("\n\nCart:")
	if len(cart) == 0 {
		b.WriteString("\n(empty)")
	}
	for _, l := range cart {
		fmt.Fprintf(&b, "\n- %d x %s (sku %s)", l.Quantity, l.Name, l.SKU)
	}

	return b.String()
}

// Fallback returns the canned acknowledgement for a tenant
func Fallback(t tenant.Tenant, defaultReply string) string {
	if reply := strings.TrimSpace(t.FallbackReply); reply != "" {
		return reply
	}
	return defaultReply
}
