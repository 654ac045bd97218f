package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vadim/neo-gateway/internal/alert"
)

// DeliveryStats reports failed outbound deliveries per tenant
type DeliveryStats interface {
	DeliveryFailuresSince(ctx context.Context, since time.Time) (map[string]int64, error)
}

// InboxStats reports the unattributed inbox backlog
type InboxStats interface {
	CountPending(ctx context.Context) (int64, error)
}

// ActionStats reports action invocations that never reached an outcome
type ActionStats interface {
	CountStalePending(ctx context.Context, createdBefore time.Time) (int64, error)
}

// staleActionAge is how long an invocation may stay pending before it counts
// as abandoned by a crashed pipeline
const staleActionAge = 10 * time.Minute

// Digest summarizes delivery failures, unattributed traffic and abandoned
// action invocations, escalating a single alert when there is anything to report.
type Digest struct {
	deliveries DeliveryStats
	inbox      InboxStats
	actions    ActionStats
	notifier   alert.Notifier
	logger     *slog.Logger

	mu      sync.Mutex
	lastRun time.Time
	now     func() time.Time
}

// NewDigest creates a new monitoring digest starting its window at creation time
func NewDigest(deliveries DeliveryStats, inbox InboxStats, actions ActionStats, notifier alert.Notifier, logger *slog.Logger) *Digest {
	return &Digest{
		deliveries: deliveries,
		inbox:      inbox,
		actions:    actions,
		notifier:   notifier,
		logger:     logger,
		lastRun:    time.Now(),
		now:        time.Now,
	}
}

// Summary is the content of one digest
type Summary struct {
	Since               time.Time
	Until               time.Time
	DeliveryFailures    map[string]int64
	TotalFailures       int64
	PendingUnattributed int64
	StaleActions        int64
}

// Empty reports whether the digest has nothing worth escalating
func (s Summary) Empty() bool {
	return s.TotalFailures == 0 && s.PendingUnattributed == 0 && s.StaleActions == 0
}

// Run builds the digest for the window since the previous run and sends it.
// The window only advances when the digest was built successfully.
func (d *Digest) Run(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	until := d.now()
	failures, err := d.deliveries.DeliveryFailuresSince(ctx, d.lastRun)
	if err != nil {
		return fmt.Errorf("counting delivery failures: %w", err)
	}
	pending, err := d.inbox.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("counting unattributed events: %w", err)
	}
	stale, err := d.actions.CountStalePending(ctx, until.Add(-staleActionAge))
	if err != nil {
		return fmt.Errorf("counting stale action invocations: %w", err)
	}

	sum := Summary{
		Since:               d.lastRun,
		Until:               until,
		DeliveryFailures:    failures,
		PendingUnattributed: pending,
		StaleActions:        stale,
	}
	for _, n := range failures {
		sum.TotalFailures += n
	}
	d.lastRun = until

	if sum.Empty() {
		d.logger.Debug("monitoring digest empty")
		return nil
	}

	msg := fmt.Sprintf("%d failed deliveries, %d unattributed events pending review", sum.TotalFailures, sum.PendingUnattributed)
	if sum.StaleActions > 0 {
		msg += fmt.Sprintf(", %d action invocations stuck pending", sum.StaleActions)
	}
	a := alert.New(alert.KindMonitoringDigest, msg)
	a.Details = map[string]any{
		"since":                sum.Since.UTC().Format(time.RFC3339),
		"until":                sum.Until.UTC().Format(time.RFC3339),
		"pending_unattributed": sum.PendingUnattributed,
		"stale_actions":        sum.StaleActions,
		"failures_by_tenant":   topTenants(failures, 20),
	}
	if err := d.notifier.Notify(ctx, a); err != nil {
		return fmt.Errorf("sending monitoring digest: %w", err)
	}
	return nil
}

type tenantFailures struct {
	TenantID string `json:"tenant_id"`
	Failures int64  `json:"failures"`
}

func topTenants(failures map[string]int64, n int) []tenantFailures {
	out := make([]tenantFailures, 0, len(failures))
	for id, count := range failures {
		out = append(out, tenantFailures{TenantID: id, Failures: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		return out[i].TenantID < out[j].TenantID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
