package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vadim/neo-gateway/internal/alert"
	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	tenant "github.com/vadim/neo-gateway/internal/domain/tenant/entity"
	"github.com/vadim/neo-gateway/internal/httpx/upstream/meta"
)

// ErrDeliveryFailed means a reply could not be delivered after retries.
// The stored message is kept and marked failed.
var ErrDeliveryFailed = errors.New("delivery failed")

// Sender is the provider send API
type Sender interface {
	SendMessengerMessage(ctx context.Context, in meta.MessengerSendInput) (*meta.SendOutput, error)
	SendWhatsAppMessage(ctx context.Context, in meta.WhatsAppSendInput) (*meta.SendOutput, error)
}

// Policy configures delivery retries
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// Adapter delivers replies through the channel a conversation lives on
type Adapter struct {
	sender   Sender
	notifier alert.Notifier
	policy   Policy
	logger   *slog.Logger
}

// New creates a new outbound adapter
func New(sender Sender, notifier alert.Notifier, policy Policy, logger *slog.Logger) *Adapter {
	if policy.Attempts <= 0 {
		policy.Attempts = 3
	}
	if policy.Backoff <= 0 {
		policy.Backoff = 500 * time.Millisecond
	}
	return &Adapter{
		sender:   sender,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
	}
}

// Delivery is one reply to send
type Delivery struct {
	Account            tenant.ChannelAccount
	CustomerExternalID string
	Text               string
	Attachments        []channel.Attachment
}

// Receipt reports what reached the provider
type Receipt struct {
	ProviderMessageIDs []string
	Attempts           int
}

type part struct {
	text     string
	imageURL string
}

// Deliver sends the text in provider-sized chunks followed by the attachments.
// It stops at the first part that cannot be delivered; the receipt still lists
// the parts that were.
func (a *Adapter) Deliver(ctx context.Context, d Delivery) (*Receipt, error) {
	receipt := &Receipt{}

	var parts []part
	for _, chunk := range ChunkText(d.Text, d.Account.ChannelType.MaxTextRunes()) {
		parts = append(parts, part{text: chunk})
	}
	for _, att := range d.Attachments {
		parts = append(parts, part{imageURL: att.URL})
	}

	for _, p := range parts {
		id, attempts, err := a.sendWithRetry(ctx, d, p)
		receipt.Attempts += attempts
		if err != nil {
			a.escalate(ctx, d, err)
			return receipt, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
		if id != "" {
			receipt.ProviderMessageIDs = append(receipt.ProviderMessageIDs, id)
		}
	}
	return receipt, nil
}

func (a *Adapter) sendWithRetry(ctx context.Context, d Delivery, p part) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= a.policy.Attempts; attempt++ {
		if attempt > 1 {
			wait := a.policy.Backoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return "", attempt - 1, ctx.Err()
			case <-time.After(wait):
			}
		}

		id, err := a.send(ctx, d, p)
		if err == nil {
			return id, attempt, nil
		}
		lastErr = err

		a.logger.Warn("outbound send attempt failed",
			"channel_type", string(d.Account.ChannelType),
			"account_id", d.Account.ID,
			"attempt", attempt,
			"error", err,
		)
		if !retryable(ctx, err) {
			return "", attempt, err
		}
	}
	return "", a.policy.Attempts, lastErr
}

func (a *Adapter) send(ctx context.Context, d Delivery, p part) (string, error) {
	switch d.Account.ChannelType {
	case channel.TypeFacebook:
		out, err := a.sender.SendMessengerMessage(ctx, meta.MessengerSendInput{
			PageID:      d.Account.ExternalID,
			AccessToken: d.Account.AccessToken,
			RecipientID: d.CustomerExternalID,
			Text:        p.text,
			ImageURL:    p.imageURL,
		})
		if err != nil {
			return "", err
		}
		return out.MessageID, nil
	case channel.TypeWhatsApp:
		out, err := a.sender.SendWhatsAppMessage(ctx, meta.WhatsAppSendInput{
			PhoneNumberID: d.Account.ExternalID,
			AccessToken:   d.Account.AccessToken,
			To:            d.CustomerExternalID,
			Text:          p.text,
			ImageURL:      p.imageURL,
		})
		if err != nil {
			return "", err
		}
		return out.MessageID, nil
	default:
		return "", channel.ErrUnsupportedChannel
	}
}

// retryable treats transport errors, 5xx and throttling as transient
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, channel.ErrUnsupportedChannel) {
		return false
	}
	var apiErr *meta.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient() && !apiErr.IsAuth()
	}
	return true
}

func (a *Adapter) escalate(ctx context.Context, d Delivery, err error) {
	kind := alert.KindDeliveryFailed
	msg := fmt.Sprintf("delivery to %s account %s failed", d.Account.ChannelType, d.Account.ExternalID)

	var apiErr *meta.APIError
	if errors.As(err, &apiErr) && apiErr.IsAuth() {
		kind = alert.KindCredentialRejected
		msg = fmt.Sprintf("%s account %s credential rejected by provider", d.Account.ChannelType, d.Account.ExternalID)
	}

	al := alert.New(kind, msg)
	al.TenantID = d.Account.TenantID
	al.ChannelType = string(d.Account.ChannelType)
	al.AccountExternalID = d.Account.ExternalID
	al.Details = map[string]any{"error": err.Error()}

	if nerr := a.notifier.Notify(ctx, al); nerr != nil {
		a.logger.Error("failed to send delivery alert", "error", nerr)
	}
}
