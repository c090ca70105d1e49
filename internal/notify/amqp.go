package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/config"
)

// publishTimeout bounds one publish so a stalled broker cannot hold up a handler.
const publishTimeout = 3 * time.Second

// Message is the body published for each notification.
type Message struct {
	ID      string    `json:"id"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// publisher is the part of *amqp.Channel the notifier uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notifications to a RabbitMQ queue.
type AMQPNotifier struct {
	conn   *amqp.Connection
	ch     publisher
	queue  string
	source string
	logger *zap.Logger
	now    func() time.Time
}

// DialAMQP connects to the broker and declares the notification queue.
func DialAMQP(cfg config.AMQPConfig, source string, logger *zap.Logger) (*AMQPNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("notify: amqp url is empty")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "angler.notifications"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}
	n := newAMQPNotifier(ch, queue, source, logger)
	n.conn = conn
	return n, nil
}

func newAMQPNotifier(ch publisher, queue, source string, logger *zap.Logger) *AMQPNotifier {
	return &AMQPNotifier{
		ch:     ch,
		queue:  queue,
		source: source,
		logger: logger.Named("notify.amqp"),
		now:    time.Now,
	}
}

// Notify publishes msg. Failures are logged.
func (n *AMQPNotifier) Notify(ctx context.Context, msg string) {
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(Message{
		ID:      uuid.NewString(),
		Source:  n.source,
		Message: msg,
		SentAt:  n.now().UTC(),
	})
	if err != nil {
		n.logger.Error("Failed to encode notification", zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = n.ch.PublishWithContext(pubCtx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.now(),
		Body:         body,
	})
	if err != nil {
		n.logger.Warn("Failed to publish notification", zap.String("queue", n.queue), zap.Error(err))
	}
}

// PlayAlert is a no-op; alerts are local.
func (n *AMQPNotifier) PlayAlert(context.Context) {}

// Close closes the channel and the connection.
func (n *AMQPNotifier) Close() error {
	var errs []error
	if n.ch != nil {
		errs = append(errs, n.ch.Close())
	}
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
	}
	return errors.Join(errs...)
}
