// Package notify publishes newly cached posts to a message broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/types"
)

// RabbitMQ publishes one message per new post to a direct exchange.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

// PostMessage is the body of a published message.
type PostMessage struct {
	Action    string     `json:"action"`
	SourceID  string     `json:"sourceId"`
	Post      types.Post `json:"post"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewRabbitMQ connects and declares the exchange, queue and binding.
func NewRabbitMQ(cfg config.NotifyConfig, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	fail := func(step string, err error) (*RabbitMQ, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fail("bind queue", err)
	}

	logger = logger.With("component", "notify")
	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.Queue,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// NewPosts publishes every post in posts. It stops at the first failure.
func (r *RabbitMQ) NewPosts(ctx context.Context, sourceID string, posts []types.Post) error {
	for _, p := range posts {
		body, err := json.Marshal(PostMessage{
			Action:    "new",
			SourceID:  sourceID,
			Post:      p,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}

		err = r.channel.PublishWithContext(ctx, r.exchange, r.routingKey, false, false,
			amqp.Publishing{
				DeliveryMode: amqp.Persistent,
				ContentType:  "application/json",
				MessageId:    p.ID,
				Body:         body,
				Timestamp:    time.Now(),
			},
		)
		if err != nil {
			return fmt.Errorf("publish %s: %w", p.URL, err)
		}
	}

	r.logger.Debug("published new posts", "source", sourceID, "count", len(posts))
	return nil
}

// Close closes the channel and connection.
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
