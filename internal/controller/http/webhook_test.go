package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	"github.com/vadim/neo-gateway/internal/domain/gateway"
	"github.com/vadim/neo-gateway/internal/httpx/upstream/meta"
)

const testSecret = "app-secret"

type fakeSubmitter struct {
	mu     sync.Mutex
	events []channel.InboundEvent
	block  chan struct{}
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, events []channel.InboundEvent) (<-chan struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.events = append(f.events, events...)
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if f.block != nil {
			<-f.block
		}
		close(done)
	}()
	return done, nil
}

func newWebhookRouter(sub EventSubmitter, ack time.Duration) *chi.Mux {
	r := chi.NewRouter()
	h := NewWebhookHandler(sub, WebhookConfig{
		AppSecret:   testSecret,
		VerifyToken: "verify-me",
		AckWindow:   ack,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.RegisterRoutes(r)
	return r
}

const messengerBody = `{"object":"page","entry":[{"id":"page-1","messaging":[{"sender":{"id":"psid-1"},"recipient":{"id":"page-1"},"timestamp":1700000000000,"message":{"mid":"m1","text":"How much?"}}]}]}`

func signedRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(meta.SignatureHeader, meta.SignatureFor(testSecret, []byte(body)))
	return req
}

func TestWebhookVerifyHandshake(t *testing.T) {
	r := newWebhookRouter(&fakeSubmitter{}, time.Second)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/telegram?hub.mode=subscribe", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	sub := &fakeSubmitter{}
	r := newWebhookRouter(sub, time.Second)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(messengerBody))
	req.Header.Set(meta.SignatureHeader, meta.SignatureFor("other-secret", []byte(messengerBody)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(messengerBody)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, sub.events)
}

func TestWebhookSubmitsNormalizedEvents(t *testing.T) {
	sub := &fakeSubmitter{}
	r := newWebhookRouter(sub, time.Second)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("/webhooks/facebook", messengerBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "processed")
	require.Len(t, sub.events, 1)
	assert.Equal(t, "m1", sub.events[0].ProviderMessageID)
	assert.Equal(t, "page-1", sub.events[0].AccountExternalID)
}

func TestWebhookAcknowledgesMalformedPayload(t *testing.T) {
	sub := &fakeSubmitter{}
	r := newWebhookRouter(sub, time.Second)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("/webhooks/facebook", `{"object":"instagram","entry":[]}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("/webhooks/whatsapp", `not json`))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, sub.events)
}

func TestWebhookAcksAfterWindow(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	defer close(sub.block)
	r := newWebhookRouter(sub, 20*time.Millisecond)

	start := time.Now()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("/webhooks/facebook", messengerBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "accepted")
	assert.Less(t, time.Since(start), time.Second)
}

func TestWebhookDuringShutdown(t *testing.T) {
	r := newWebhookRouter(&fakeSubmitter{err: gateway.ErrShuttingDown}, time.Second)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("/webhooks/facebook", messengerBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
