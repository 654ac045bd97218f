package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	actionentity "github.com/vadim/neo-gateway/internal/domain/action/entity"
	"github.com/vadim/neo-gateway/internal/domain/action/dispatcher"
	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	"github.com/vadim/neo-gateway/internal/domain/channel/outbound"
	conversation "github.com/vadim/neo-gateway/internal/domain/conversation/entity"
	"github.com/vadim/neo-gateway/internal/domain/reply/orchestrator"
	tenant "github.com/vadim/neo-gateway/internal/domain/tenant/entity"
)

// ErrShuttingDown is returned by Submit once Shutdown has started
var ErrShuttingDown = errors.New("gateway is shutting down")

// Resolver attributes inbound events to a tenant
type Resolver interface {
	Resolve(ctx context.Context, ev channel.InboundEvent) (*tenant.Resolution, error)
}

// Store persists conversation messages
type Store interface {
	Record(ctx context.Context, in conversation.RecordInput) (*conversation.RecordResult, error)
	MarkDeliverySent(ctx context.Context, messageID string, providerIDs []string, attempts int) error
	MarkDeliveryFailed(ctx context.Context, messageID, reason string, providerIDs []string, attempts int) error
}

// Replier produces the raw AI reply for a conversation
type Replier interface {
	Reply(ctx context.Context, req orchestrator.Request) (string, error)
}

// Dispatcher applies the action tokens of a reply
type Dispatcher interface {
	Dispatch(ctx context.Context, in dispatcher.Input) *dispatcher.Result
}

// Deliverer sends replies to the customer
type Deliverer interface {
	Deliver(ctx context.Context, d outbound.Delivery) (*outbound.Receipt, error)
}

// Config tunes the pipeline. PipelineTimeout bounds attribution, persistence
// and completion once the conversation's turn came up; FinishTimeout bounds
// recording and delivering the reply after that.
type Config struct {
	PipelineTimeout time.Duration
	FinishTimeout   time.Duration
	FallbackReply   string
}

// Gateway runs the inbound pipeline: attribute, persist, reply, dispatch, deliver.
// Messages of one conversation are processed one at a time in arrival order;
// different conversations run in parallel.
type Gateway struct {
	resolver   Resolver
	store      Store
	replier    Replier
	dispatcher Dispatcher
	deliverer  Deliverer
	locks      *LockTable
	cfg        Config
	logger     *slog.Logger

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// New creates a new gateway
func New(
	resolver Resolver,
	store Store,
	replier Replier,
	dispatcher Dispatcher,
	deliverer Deliverer,
	cfg Config,
	logger *slog.Logger,
) *Gateway {
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = 90 * time.Second
	}
	if cfg.FinishTimeout <= 0 {
		cfg.FinishTimeout = 30 * time.Second
	}
	return &Gateway{
		resolver:   resolver,
		store:      store,
		replier:    replier,
		dispatcher: dispatcher,
		deliverer:  deliverer,
		locks:      NewLockTable(),
		cfg:        cfg,
		logger:     logger,
	}
}

// conversationKey identifies a conversation before attribution. An external
// account id maps to exactly one tenant at a time, so the key is equivalent
// to (tenant, account, customer).
func conversationKey(ev channel.InboundEvent) string {
	return string(ev.ChannelType) + "|" + ev.AccountExternalID + "|" + ev.CustomerExternalID
}

// Submit queues the events of one webhook delivery. Queue positions are taken
// before Submit returns, so calling it in arrival order preserves that order
// per conversation. The returned channel is closed once every event finished.
// Pipelines run detached from ctx. Time spent queued behind earlier messages
// of the same conversation does not count against the pipeline timeout.
func (g *Gateway) Submit(ctx context.Context, events []channel.InboundEvent) (<-chan struct{}, error) {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return nil, ErrShuttingDown
	}
	g.inflight.Add(len(events))
	g.mu.Unlock()

	tickets := make([]*Ticket, len(events))
	for i, ev := range events {
		tickets[i] = g.locks.Reserve(conversationKey(ev))
	}

	base := context.WithoutCancel(ctx)
	done := make(chan struct{})
	var batch sync.WaitGroup
	batch.Add(len(events))

	for i, ev := range events {
		go func(ev channel.InboundEvent, ticket *Ticket) {
			defer g.inflight.Done()
			defer batch.Done()

			if err := ticket.Wait(base); err != nil {
				ticket.Release()
				g.logger.Error("pipeline aborted waiting for conversation",
					"provider_message_id", ev.ProviderMessageID, "error", err)
				return
			}
			defer ticket.Release()

			pctx, cancel := context.WithTimeout(base, g.cfg.PipelineTimeout)
			defer cancel()

			if err := g.Process(pctx, ev); err != nil {
				g.logger.Error("inbound pipeline failed",
					"channel_type", string(ev.ChannelType),
					"account_external_id", ev.AccountExternalID,
					"provider_message_id", ev.ProviderMessageID,
					"error", err,
				)
			}
		}(ev, tickets[i])
	}

	go func() {
		batch.Wait()
		close(done)
	}()
	return done, nil
}

// Shutdown stops accepting events and waits for in-flight pipelines
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs the whole pipeline for one event. Callers must hold the
// conversation's ticket. Unattributed and duplicate events are not errors.
func (g *Gateway) Process(ctx context.Context, ev channel.InboundEvent) error {
	res, err := g.resolver.Resolve(ctx, ev)
	if err != nil {
		if errors.Is(err, tenant.ErrUnattributedChannel) {
			return nil
		}
		return fmt.Errorf("resolving tenant: %w", err)
	}

	direction := conversation.ClassifyDirection(ev.SenderExternalID, res.Account.ExternalID, res.Tenant.AgentSenderIDs)

	var imageRef string
	if len(ev.MediaRefs) > 0 {
		imageRef = ev.MediaRefs[0]
	}

	rec, err := g.store.Record(ctx, conversation.RecordInput{
		TenantID:           res.Tenant.ID,
		ChannelAccountID:   res.Account.ID,
		CustomerExternalID: ev.CustomerExternalID,
		CustomerName:       ev.CustomerName,
		Direction:          direction,
		SenderExternalID:   ev.SenderExternalID,
		ProviderMessageID:  ev.ProviderMessageID,
		Text:               ev.Text,
		ImageRef:           imageRef,
		DeliveryStatus:     conversation.DeliveryNone,
		ProviderTimestamp:  ev.Timestamp,
	})
	if err != nil {
		if errors.Is(err, conversation.ErrDuplicateMessage) {
			g.logger.Debug("duplicate inbound message ignored",
				"tenant_id", res.Tenant.ID, "provider_message_id", ev.ProviderMessageID)
			return nil
		}
		return fmt.Errorf("recording inbound message: %w", err)
	}

	if direction == conversation.DirectionPageToCustomer {
		return nil
	}
	if !res.Tenant.IsActive() {
		g.logger.Info("tenant suspended, reply skipped",
			"tenant_id", res.Tenant.ID, "conversation_id", rec.Conversation.ID)
		return nil
	}

	return g.reply(ctx, res, rec, ev)
}

func (g *Gateway) reply(ctx context.Context, res *tenant.Resolution, rec *conversation.RecordResult, ev channel.InboundEvent) error {
	fallback := orchestrator.Fallback(res.Tenant, g.cfg.FallbackReply)
	replyID := uuid.NewString()

	result := &dispatcher.Result{}
	raw, err := g.replier.Reply(ctx, orchestrator.Request{
		Tenant:         res.Tenant,
		ConversationID: rec.Conversation.ID,
		CustomerName:   ev.CustomerName,
	})
	if err != nil {
		g.logger.Warn("completion unavailable, sending fallback",
			"tenant_id", res.Tenant.ID, "conversation_id", rec.Conversation.ID, "error", err)
	} else {
		result = g.dispatcher.Dispatch(ctx, dispatcher.Input{
			TenantID:        res.Tenant.ID,
			ConversationID:  rec.Conversation.ID,
			SourceMessageID: rec.Message.ID,
			ReplyMessageID:  replyID,
			Text:            raw,
		})
	}

	text := result.CleanedText
	if text == "" && len(result.Attachments) == 0 {
		text = fallback
	}

	var imageRef string
	if len(result.Attachments) > 0 {
		imageRef = result.Attachments[0].Ref
	}

	// the reply is recorded and delivered even when completion used up ctx
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.FinishTimeout)
	defer cancel()

	stored, err := g.store.Record(fctx, conversation.RecordInput{
		ID:                 replyID,
		TenantID:           res.Tenant.ID,
		ChannelAccountID:   res.Account.ID,
		CustomerExternalID: ev.CustomerExternalID,
		Direction:          conversation.DirectionPageToCustomer,
		SenderExternalID:   res.Account.ExternalID,
		ProviderMessageID:  conversation.ReplyProviderID(ev.ProviderMessageID),
		Text:               text,
		ImageRef:           imageRef,
		Actions:            actionRecords(result.Invocations),
		DeliveryStatus:     conversation.DeliveryPending,
		ProviderTimestamp:  time.Now(),
	})
	if err != nil {
		if errors.Is(err, conversation.ErrDuplicateMessage) {
			return nil
		}
		return fmt.Errorf("recording reply: %w", err)
	}

	receipt, err := g.deliverer.Deliver(fctx, outbound.Delivery{
		Account:            res.Account,
		CustomerExternalID: ev.CustomerExternalID,
		Text:               text,
		Attachments:        result.Attachments,
	})
	if err != nil {
		var ids []string
		attempts := 0
		if receipt != nil {
			ids, attempts = receipt.ProviderMessageIDs, receipt.Attempts
		}
		if merr := g.store.MarkDeliveryFailed(fctx, stored.Message.ID, err.Error(), ids, attempts); merr != nil {
			return fmt.Errorf("marking delivery failed: %w", merr)
		}
		g.logger.Error("reply delivery failed",
			"tenant_id", res.Tenant.ID,
			"conversation_id", rec.Conversation.ID,
			"message_id", stored.Message.ID,
			"error", err,
		)
		return nil
	}

	if err := g.store.MarkDeliverySent(fctx, stored.Message.ID, receipt.ProviderMessageIDs, receipt.Attempts); err != nil {
		return fmt.Errorf("marking delivery sent: %w", err)
	}

	g.logger.Info("reply delivered",
		"tenant_id", res.Tenant.ID,
		"conversation_id", rec.Conversation.ID,
		"message_id", stored.Message.ID,
		"actions", len(result.Invocations),
		"attachments", len(result.Attachments),
	)
	return nil
}

func actionRecords(invs []actionentity.Invocation) []conversation.ActionRecord {
	if len(invs) == 0 {
		return nil
	}
	out := make([]conversation.ActionRecord, 0, len(invs))
	for _, inv := range invs {
		out = append(out, conversation.ActionRecord{
			Kind:     string(inv.Kind),
			Argument: inv.Argument,
			Outcome:  string(inv.Outcome),
			TargetID: inv.TargetID,
			Reason:   inv.Reason,
		})
	}
	return out
}
