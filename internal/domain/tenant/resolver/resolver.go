package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vadim/neo-gateway/internal/alert"
	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	"github.com/vadim/neo-gateway/internal/domain/tenant/entity"
)

// Repository looks up channel account ownership
type Repository interface {
	LookupResolution(ctx context.Context, channelType channel.Type, externalID string) (*entity.Resolution, error)
	MarkVerified(ctx context.Context, accountID string) error
}

// UnattributedRecorder stores events whose account has no owner
type UnattributedRecorder interface {
	Record(ctx context.Context, ev channel.InboundEvent) (firstForAccount bool, err error)
}

const lookupTimeout = 10 * time.Second

type cacheEntry struct {
	res       entity.Resolution
	expiresAt time.Time
}

// Resolver maps a channel account external id to its owning tenant.
// It never guesses: a missing mapping is recorded in the unattributed inbox.
type Resolver struct {
	repo     Repository
	inbox    UnattributedRecorder
	notifier alert.Notifier
	logger   *slog.Logger
	ttl      time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
	gen   uint64
	group singleflight.Group
}

// New creates a new tenant resolver. A zero ttl caches until invalidated.
func New(repo Repository, inbox UnattributedRecorder, notifier alert.Notifier, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:     repo,
		inbox:    inbox,
		notifier: notifier,
		logger:   logger,
		ttl:      ttl,
		cache:    make(map[string]cacheEntry),
	}
}

func cacheKey(channelType channel.Type, externalID string) string {
	return string(channelType) + ":" + externalID
}

// Resolve returns the tenant and account owning the event's channel account,
// or ErrUnattributedChannel after recording the event for review.
func (r *Resolver) Resolve(ctx context.Context, ev channel.InboundEvent) (*entity.Resolution, error) {
	key := cacheKey(ev.ChannelType, ev.AccountExternalID)

	if res, ok := r.cached(key); ok {
		return res, nil
	}

	// the shared lookup must not die with whichever caller started it
	flight := r.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return r.lookup(lctx, key, ev.ChannelType, ev.AccountExternalID)
	})

	var v any
	select {
	case out := <-flight:
		if out.Err != nil {
			return nil, out.Err
		}
		v = out.Val
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res := v.(*entity.Resolution); res != nil {
		cp := *res
		return &cp, nil
	}

	if err := r.recordUnattributed(ctx, ev); err != nil {
		return nil, err
	}
	return nil, entity.ErrUnattributedChannel
}

func (r *Resolver) cached(key string) (*entity.Resolution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.cache[key]
	if !ok {
		return nil, false
	}
	if r.ttl > 0 && time.Now().After(e.expiresAt) {
		return nil, false
	}
	res := e.res
	return &res, true
}

func (r *Resolver) lookup(ctx context.Context, key string, channelType channel.Type, externalID string) (*entity.Resolution, error) {
	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	res, err := r.repo.LookupResolution(ctx, channelType, externalID)
	if err != nil {
		return nil, fmt.Errorf("looking up channel account: %w", err)
	}
	if res == nil {
		// absence is never cached so a fresh registration takes effect immediately
		return nil, nil
	}

	if res.Account.VerificationState != entity.VerificationVerified {
		if err := r.repo.MarkVerified(ctx, res.Account.ID); err != nil {
			r.logger.Warn("failed to mark channel account verified", "account_id", res.Account.ID, "error", err)
		} else {
			res.Account.VerificationState = entity.VerificationVerified
		}
	}

	r.mu.Lock()
	if r.gen == gen {
		r.cache[key] = cacheEntry{res: *res, expiresAt: time.Now().Add(r.ttl)}
	}
	r.mu.Unlock()

	return res, nil
}

func (r *Resolver) recordUnattributed(ctx context.Context, ev channel.InboundEvent) error {
	first, err := r.inbox.Record(ctx, ev)
	if err != nil {
		return fmt.Errorf("recording unattributed event: %w", err)
	}

	r.logger.Warn("inbound event on unattributed channel account",
		"channel_type", string(ev.ChannelType),
		"account_external_id", ev.AccountExternalID,
		"provider_message_id", ev.ProviderMessageID,
	)

	if !first {
		return nil
	}

	a := alert.New(alert.KindUnattributedChannel,
		fmt.Sprintf("inbound traffic for unmapped %s account %s", ev.ChannelType, ev.AccountExternalID))
	a.ChannelType = string(ev.ChannelType)
	a.AccountExternalID = ev.AccountExternalID
	if err := r.notifier.Notify(ctx, a); err != nil {
		r.logger.Error("failed to send unattributed channel alert", "error", err)
	}
	return nil
}

// Invalidate drops the cached attribution of one channel account
func (r *Resolver) Invalidate(channelType channel.Type, externalID string) {
	key := cacheKey(channelType, externalID)

	r.mu.Lock()
	delete(r.cache, key)
	r.gen++
	r.mu.Unlock()

	r.group.Forget(key)
}

// InvalidateTenant drops every cached attribution that points at the tenant
func (r *Resolver) InvalidateTenant(tenantID string) {
	r.mu.Lock()
	var keys []string
	for key, e := range r.cache {
		if e.res.Tenant.ID == tenantID {
			delete(r.cache, key)
			keys = append(keys, key)
		}
	}
	r.gen++
	r.mu.Unlock()

	for _, key := range keys {
		r.group.Forget(key)
	}
}
