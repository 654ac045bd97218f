package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Envelope is the message body published to the broker
type Envelope struct {
	Meta Meta  `json:"meta"`
	Data Alert `json:"data"`
}

// Meta carries event identity and provenance
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// eventType returns the versioned routing-friendly event name
func eventType(k Kind) string {
	return "gateway.alert." + string(k) + ".v1"
}

func newEnvelope(a Alert, producer string) Envelope {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Time.IsZero() {
		a.Time = time.Now().UTC()
	}
	env := Envelope{
		Meta: Meta{
			ID:   a.ID,
			Time: a.Time,
			Type: eventType(a.Kind),
		},
		Data: a,
	}
	if producer != "" {
		env.Meta.Producer = &producer
	}
	return env
}

// AMQPConfig holds broker publishing settings
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	Producer   string
}

// ErrNotifierClosed is returned by Notify after Close
var ErrNotifierClosed = errors.New("alert notifier is closed")

// AMQPNotifier publishes alerts to a RabbitMQ topic exchange. A dropped
// connection is re-dialed by the next Notify.
type AMQPNotifier struct {
	url        string
	exchange   string
	routingKey string
	producer   string
	logger     *slog.Logger
	dial       func(url string) (*amqp.Connection, error)

	mu     sync.Mutex
	conn   *amqp.Connection
	closed bool
}

// NewAMQPNotifier dials the broker and declares the alert exchange
func NewAMQPNotifier(cfg AMQPConfig, logger *slog.Logger) (*AMQPNotifier, error) {
	n := &AMQPNotifier{
		url:        cfg.URL,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		producer:   cfg.Producer,
		logger:     logger,
		dial:       amqp.Dial,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.connectLocked(); err != nil {
		return nil, err
	}
	return n, nil
}

// connectLocked returns the live connection, dialing and declaring the
// exchange when there is none. Callers hold n.mu.
func (n *AMQPNotifier) connectLocked() (*amqp.Connection, error) {
	if n.closed {
		return nil, ErrNotifierClosed
	}
	if n.conn != nil && !n.conn.IsClosed() {
		return n.conn, nil
	}

	conn, err := n.dial(n.url)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(n.exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}

	n.conn = conn
	go n.watch(conn, conn.NotifyClose(make(chan *amqp.Error, 1)))
	return conn, nil
}

// watch forgets conn once the broker closes it
func (n *AMQPNotifier) watch(conn *amqp.Connection, errCh <-chan *amqp.Error) {
	err, ok := <-errCh
	if !ok {
		// graceful close
		return
	}

	n.mu.Lock()
	if n.conn == conn {
		n.conn = nil
	}
	n.mu.Unlock()

	n.logger.Warn("broker connection lost, will re-dial on next alert", "error", err)
}

// Notify publishes the alert as a persistent JSON message
func (n *AMQPNotifier) Notify(ctx context.Context, a Alert) error {
	env := newEnvelope(a, n.producer)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	conn, err := n.connectLocked()
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	key := n.routingKey + "." + string(a.Kind)
	err = ch.PublishWithContext(ctx, n.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.Meta.ID,
		Type:         env.Meta.Type,
		Timestamp:    env.Meta.Time,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}

	n.logger.Debug("alert published", "kind", string(a.Kind), "exchange", n.exchange, "key", key)
	return nil
}

// Close closes the broker connection; later Notify calls fail
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}
