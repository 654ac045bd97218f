package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	"github.com/vadim/neo-gateway/internal/domain/channel/normalizer"
	"github.com/vadim/neo-gateway/internal/domain/gateway"
	"github.com/vadim/neo-gateway/internal/httpx/response"
	"github.com/vadim/neo-gateway/internal/httpx/upstream/meta"
)

// MaxWebhookBody bounds a single webhook delivery (1MB)
const MaxWebhookBody = 1 << 20

// EventSubmitter queues normalized events for processing
type EventSubmitter interface {
	Submit(ctx context.Context, events []channel.InboundEvent) (<-chan struct{}, error)
}

// WebhookConfig holds the provider secrets and the acknowledgement window
type WebhookConfig struct {
	AppSecret   string
	VerifyToken string
	AckWindow   time.Duration
}

// WebhookHandler receives Messenger and WhatsApp webhook deliveries
type WebhookHandler struct {
	submitter EventSubmitter
	cfg       WebhookConfig
	logger    *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(submitter EventSubmitter, cfg WebhookConfig, logger *slog.Logger) *WebhookHandler {
	if cfg.AckWindow <= 0 {
		cfg.AckWindow = 5 * time.Second
	}
	return &WebhookHandler{
		submitter: submitter,
		cfg:       cfg,
		logger:    logger,
	}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Get("/webhooks/{channel}", h.Verify())
	r.Post("/webhooks/{channel}", h.Receive())
}

// Verify handles GET /webhooks/{channel}, the subscription handshake
func (h *WebhookHandler) Verify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := channel.ParseType(chi.URLParam(r, "channel")); err != nil {
			response.NotFound(w, err.Error())
			return
		}

		challenge, ok := meta.VerifyChallenge(r.URL.Query(), h.cfg.VerifyToken)
		if !ok {
			response.Forbidden(w, "verification failed")
			return
		}

		response.Text(w, http.StatusOK, challenge)
	}
}

// Receive handles POST /webhooks/{channel}
func (h *WebhookHandler) Receive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelType, err := channel.ParseType(chi.URLParam(r, "channel"))
		if err != nil {
			response.NotFound(w, err.Error())
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
		if err != nil {
			response.BadRequest(w, "failed to read body")
			return
		}

		if err := meta.VerifySignature(h.cfg.AppSecret, r.Header.Get(meta.SignatureHeader), body); err != nil {
			h.logger.Warn("webhook signature rejected", "channel_type", string(channelType), "error", err)
			response.Unauthorized(w, err.Error())
			return
		}

		events, err := normalizer.Normalize(channelType, body)
		if err != nil {
			var nerr *normalizer.NormalizationError
			if !errors.As(err, &nerr) {
				response.InternalError(w, "internal server error")
				return
			}
			// acknowledged anyway; a retry would carry the same payload
			h.logger.Warn("webhook payload not normalized",
				"channel_type", string(channelType),
				"events", len(events),
				"error", err,
			)
		}
		if len(events) == 0 {
			response.OK(w, map[string]string{"status": "ignored"})
			return
		}

		done, err := h.submitter.Submit(r.Context(), events)
		if err != nil {
			if errors.Is(err, gateway.ErrShuttingDown) {
				response.Unavailable(w, err.Error())
				return
			}
			response.InternalError(w, "internal server error")
			return
		}

		timer := time.NewTimer(h.cfg.AckWindow)
		defer timer.Stop()

		select {
		case <-done:
			response.OK(w, map[string]string{"status": "processed"})
		case <-timer.C:
			h.logger.Info("ack window elapsed, pipeline continues in background",
				"channel_type", string(channelType), "events", len(events))
			response.OK(w, map[string]string{"status": "accepted"})
		case <-r.Context().Done():
		}
	}
}
