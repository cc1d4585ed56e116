package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

// Publisher is the subset of *amqp.Channel the dispatcher needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPDispatcher publishes alerts as persistent JSON messages on a durable
// queue. Outbound rate is capped so a burst of mismatches cannot flood the
// notification system.
type AMQPDispatcher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	ch      Publisher
	queue   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// DialAMQP connects, opens a channel and declares queue.
func DialAMQP(url, queue string, perSecond float64, logger *slog.Logger) (*AMQPDispatcher, error) {
	if queue == "" {
		return nil, errors.New("notify: queue name is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	d := NewAMQPDispatcher(ch, queue, perSecond, logger)
	d.conn = conn
	return d, nil
}

// NewAMQPDispatcher wraps an open channel. perSecond <= 0 disables pacing.
func NewAMQPDispatcher(ch Publisher, queue string, perSecond float64, logger *slog.Logger) *AMQPDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &AMQPDispatcher{ch: ch, queue: queue, limiter: lim, logger: logger}
}

func (d *AMQPDispatcher) Dispatch(ctx context.Context, a Alert) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: pacing: %w", err)
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("notify: encode alert: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         "alert." + string(a.Severity),
		Body:         body,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ch.PublishWithContext(ctx, "", d.queue, false, false, msg); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	d.logger.DebugContext(ctx, "notification_published", "queue", d.queue, "related_entity_id", a.RelatedEntityID)
	return nil
}

// Close closes the underlying connection when the dispatcher dialed it.
func (d *AMQPDispatcher) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
