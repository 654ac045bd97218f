package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an operational alert
type Kind string

const (
	KindUnattributedChannel Kind = "unattributed_channel"
	KindCredentialRejected  Kind = "credential_rejected"
	KindDeliveryFailed      Kind = "delivery_failed"
	KindMonitoringDigest    Kind = "monitoring_digest"
)

// Alert is a systemic condition escalated to operators
type Alert struct {
	ID                string         `json:"id"`
	Kind              Kind           `json:"kind"`
	TenantID          string         `json:"tenant_id,omitempty"`
	ChannelType       string         `json:"channel_type,omitempty"`
	AccountExternalID string         `json:"account_external_id,omitempty"`
	Message           string         `json:"message"`
	Details           map[string]any `json:"details,omitempty"`
	Time              time.Time      `json:"time"`
}

// Notifier delivers alerts to the operational channel
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// New fills in the alert id and timestamp
func New(kind Kind, message string) Alert {
	return Alert{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: message,
		Time:    time.Now().UTC(),
	}
}

// LogNotifier writes alerts to the structured log
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by the logger
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the alert at error level
func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	attrs := []any{
		"alert_id", a.ID,
		"kind", string(a.Kind),
		"tenant_id", a.TenantID,
		"channel_type", a.ChannelType,
		"account_external_id", a.AccountExternalID,
	}
	if len(a.Details) > 0 {
		attrs = append(attrs, "details", a.Details)
	}
	n.logger.ErrorContext(ctx, "ALERT: "+a.Message, attrs...)
	return nil
}

// Fanout sends every alert to all notifiers, returning the first error
type Fanout []Notifier

// Notify implements Notifier
func (f Fanout) Notify(ctx context.Context, a Alert) error {
	var firstErr error
	for _, n := range f {
		if err := n.Notify(ctx, a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
