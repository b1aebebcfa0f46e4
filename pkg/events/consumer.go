package events

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tasktide/tasktide-backend/pkg/broker"
	"github.com/tasktide/tasktide-backend/pkg/logger"
	"github.com/tasktide/tasktide-backend/pkg/metrics"
)

// Handler processes one decoded envelope. A returned error drops the message:
// it is nacked without requeue so a poison message can never block the queue.
type Handler func(ctx context.Context, envelope Envelope) error

// deliverySource is the broker surface a consumer needs.
type deliverySource interface {
	Deliveries(ctx context.Context, queue string) (<-chan amqp.Delivery, error)
	OnReconnect(rearm broker.RearmFunc)
}

// Consumer subscribes durable queues and dispatches deliveries to handlers
// one at a time, in delivery order.
type Consumer struct {
	source deliverySource
	logg   *logger.Logger
	mtr    *metrics.EventingMetrics
}

// NewConsumer wires a consumer over an established broker connection.
func NewConsumer(source deliverySource, logg *logger.Logger, mtr *metrics.EventingMetrics) (*Consumer, error) {
	if source == nil {
		return nil, errors.New("delivery source is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{source: source, logg: logg, mtr: mtr}, nil
}

// Consume arms a long-lived subscription on the named queue and returns once
// the subscription is registered; the handler runs later, on delivery. The
// subscription is re-armed automatically after a broker reconnect.
func (c *Consumer) Consume(ctx context.Context, queue string, handler Handler) error {
	if queue == "" {
		return errors.New("queue name is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}

	deliveries, err := c.source.Deliveries(ctx, queue)
	if err != nil {
		return err
	}
	go c.loop(ctx, queue, deliveries, handler)

	c.source.OnReconnect(func(ctx context.Context) {
		rearmed, err := c.source.Deliveries(ctx, queue)
		if err != nil {
			c.logg.Error(c.logg.WithField(ctx, "queue", queue), "failed to re-arm consumer after reconnect", err)
			return
		}
		c.logg.Info(c.logg.WithField(ctx, "queue", queue), "consumer re-armed after reconnect")
		go c.loop(ctx, queue, rearmed, handler)
	})

	return nil
}

// loop drains the delivery channel sequentially. It exits when the broker
// closes the channel (connection loss or shutdown).
func (c *Consumer) loop(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, handler Handler) {
	for delivery := range deliveries {
		c.handleDelivery(ctx, queue, delivery, handler)
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, queue string, delivery amqp.Delivery, handler Handler) {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"queue":       queue,
		"routing_key": delivery.RoutingKey,
	})

	var envelope Envelope
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		c.logg.Error(logCtx, "dropping malformed event envelope", err)
		c.drop(queue, delivery)
		return
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})

	if err := handler(ctx, envelope); err != nil {
		c.logg.Error(logCtx, "handler failed, dropping event", err)
		c.drop(queue, delivery)
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logg.Error(logCtx, "failed to ack delivery", err)
	}
}

// drop nacks without requeue: the message is removed, not retried. Losing one
// event is preferred over a poison message blocking the queue forever.
func (c *Consumer) drop(queue string, delivery amqp.Delivery) {
	c.mtr.IncConsumerDrop(queue)
	if err := delivery.Nack(false, false); err != nil {
		c.logg.Error(context.Background(), "failed to nack delivery", err)
	}
}
