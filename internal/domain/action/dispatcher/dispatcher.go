package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/neo-gateway/internal/domain/action/entity"
	"github.com/vadim/neo-gateway/internal/domain/action/parser"
	catalog "github.com/vadim/neo-gateway/internal/domain/catalog/entity"
	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
)

// InvocationStore persists invocations keyed by their idempotency key
type InvocationStore interface {
	// Claim inserts inv unless its key exists. When the key exists the
	// stored invocation is returned and claimed is false.
	Claim(ctx context.Context, inv *entity.Invocation) (claimed bool, existing *entity.Invocation, err error)
	Complete(ctx context.Context, id string, outcome entity.Outcome, targetID, reason string) error
}

// Catalog is the live tenant state tokens are validated and applied against
type Catalog interface {
	FindActiveItem(ctx context.Context, tenantID, ref string) (*catalog.Item, error)
	AddToCart(ctx context.Context, conversationID, itemID string) (int, error)
	ResolveImage(ctx context.Context, tenantID, ref string) (string, error)
}

// Dispatcher executes the command tokens of a generated reply exactly once
type Dispatcher struct {
	store   InvocationStore
	catalog Catalog
	logger  *slog.Logger
}

// New creates a new action dispatcher
func New(store InvocationStore, catalog Catalog, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		catalog: catalog,
		logger:  logger,
	}
}

// Input identifies the reply being dispatched
type Input struct {
	TenantID       string
	ConversationID string
	// SourceMessageID is the inbound message the reply answers; it seeds the idempotency keys
	SourceMessageID string
	// ReplyMessageID is the id the outbound message will be stored under
	ReplyMessageID string
	Text           string
}

// Result is the customer-facing text with the effects of its tokens
type Result struct {
	CleanedText string
	Attachments []channel.Attachment
	Invocations []entity.Invocation
}

// Dispatch parses the reply and applies each token in order. A failing token
// never stops the remaining ones.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) *Result {
	parsed := parser.Parse(in.Text)

	res := &Result{CleanedText: parsed.CleanedText}
	for _, tok := range parsed.Tokens {
		inv, att := d.dispatchToken(ctx, in, tok)
		res.Invocations = append(res.Invocations, inv)
		if att != nil {
			res.Attachments = append(res.Attachments, *att)
		}
	}
	return res
}

func (d *Dispatcher) dispatchToken(ctx context.Context, in Input, tok entity.Token) (entity.Invocation, *channel.Attachment) {
	inv := entity.Invocation{
		ID:             uuid.NewString(),
		MessageID:      in.ReplyMessageID,
		TenantID:       in.TenantID,
		ConversationID: in.ConversationID,
		Kind:           tok.Kind,
		TokenIndex:     tok.Index,
		Argument:       tok.Argument,
		IdempotencyKey: entity.IdempotencyKey(in.SourceMessageID, tok.Kind, tok.Index),
		Outcome:        entity.OutcomePending,
		CreatedAt:      time.Now(),
	}
	if tok.Err != nil {
		inv.Outcome = entity.OutcomeRejected
		inv.Reason = tok.Err.Error()
	}

	claimed, existing, err := d.store.Claim(ctx, &inv)
	if err != nil {
		d.logger.Error("failed to claim action invocation",
			"kind", string(tok.Kind), "conversation_id", in.ConversationID, "error", err)
		inv.Outcome = entity.OutcomeFailed
		inv.Reason = "claim failed"
		return inv, nil
	}
	if !claimed {
		// at most once: a claim left pending by a crashed pipeline is not
		// retried here, the monitoring digest reports it
		d.logger.Info("action invocation already dispatched",
			"idempotency_key", inv.IdempotencyKey, "outcome", string(existing.Outcome))
		return *existing, nil
	}
	if inv.Outcome == entity.OutcomeRejected {
		return inv, nil
	}

	var att *channel.Attachment
	switch tok.Kind {
	case entity.KindAddToCart:
		d.addToCart(ctx, in, &inv)
	case entity.KindSendImage:
		att = d.sendImage(ctx, in, &inv)
	}

	now := time.Now()
	inv.CompletedAt = &now
	if err := d.store.Complete(ctx, inv.ID, inv.Outcome, inv.TargetID, inv.Reason); err != nil {
		d.logger.Error("failed to record action outcome",
			"invocation_id", inv.ID, "outcome", string(inv.Outcome), "error", err)
	}

	d.logger.Info("action dispatched",
		"kind", string(inv.Kind),
		"outcome", string(inv.Outcome),
		"tenant_id", in.TenantID,
		"conversation_id", in.ConversationID,
		"reason", inv.Reason,
	)
	return inv, att
}

func (d *Dispatcher) addToCart(ctx context.Context, in Input, inv *entity.Invocation) {
	item, err := d.catalog.FindActiveItem(ctx, in.TenantID, inv.Argument)
	if errors.Is(err, catalog.ErrItemNotFound) {
		inv.Outcome = entity.OutcomeRejected
		inv.Reason = fmt.Sprintf("no active catalog item %q", inv.Argument)
		return
	}
	if err != nil {
		inv.Outcome = entity.OutcomeFailed
		inv.Reason = err.Error()
		return
	}

	inv.TargetID = item.ID
	if _, err := d.catalog.AddToCart(ctx, in.ConversationID, item.ID); err != nil {
		inv.Outcome = entity.OutcomeFailed
		inv.Reason = err.Error()
		return
	}
	inv.Outcome = entity.OutcomeApplied
}

func (d *Dispatcher) sendImage(ctx context.Context, in Input, inv *entity.Invocation) *channel.Attachment {
	url, err := d.catalog.ResolveImage(ctx, in.TenantID, inv.Argument)
	if errors.Is(err, catalog.ErrMediaNotFound) {
		inv.Outcome = entity.OutcomeRejected
		inv.Reason = fmt.Sprintf("image %q does not resolve", inv.Argument)
		return nil
	}
	if err != nil {
		inv.Outcome = entity.OutcomeFailed
		inv.Reason = err.Error()
		return nil
	}

	inv.TargetID = url
	inv.Outcome = entity.OutcomeApplied
	return &channel.Attachment{Ref: inv.Argument, URL: url}
}
