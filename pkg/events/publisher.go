package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tasktide/tasktide-backend/pkg/enums"
	"github.com/tasktide/tasktide-backend/pkg/logger"
	"github.com/tasktide/tasktide-backend/pkg/metrics"
)

// channelPublisher is the broker surface a publisher needs.
type channelPublisher interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// Publisher serializes envelopes and hands them to the broker for durable
// delivery under a routing key equal to the event type.
type Publisher struct {
	channel channelPublisher
	logg    *logger.Logger
	mtr     *metrics.EventingMetrics
	timeout time.Duration
}

// NewPublisher wires a publisher over an established broker connection.
func NewPublisher(channel channelPublisher, logg *logger.Logger, mtr *metrics.EventingMetrics, timeout time.Duration) (*Publisher, error) {
	if channel == nil {
		return nil, errors.New("broker channel is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Publisher{channel: channel, logg: logg, mtr: mtr, timeout: timeout}, nil
}

// Publish sends one envelope with the persistence flag set. It reports false
// when the broker refuses the message; callers must treat false as "delivery
// uncertain" and never roll back the mutation that triggered the event.
func (p *Publisher) Publish(ctx context.Context, envelope Envelope) bool {
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})

	body, err := json.Marshal(envelope)
	if err != nil {
		p.logg.Warn(p.logg.WithField(logCtx, "error", err.Error()), "failed to encode event envelope")
		p.mtr.IncPublishFailure(string(envelope.EventType))
		return false
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.EventID,
		Type:         string(envelope.EventType),
		Timestamp:    envelope.Timestamp,
		Headers: amqp.Table{
			"timestamp-ms": envelope.Timestamp.UnixMilli(),
		},
		Body: body,
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.channel.Publish(ctx, string(envelope.EventType), msg); err != nil {
		p.logg.Warn(p.logg.WithField(logCtx, "error", err.Error()), "event publish refused by broker")
		p.mtr.IncPublishFailure(string(envelope.EventType))
		return false
	}

	p.logg.Debug(logCtx, "event published")
	return true
}

// envelopePublisher lets the emitter be tested without a broker.
type envelopePublisher interface {
	Publish(ctx context.Context, envelope Envelope) bool
}

// Emitter is the surface handed to mutation handlers: it stamps identity and
// time onto the envelope so publish time is set by the producer, never the
// consumer.
type Emitter struct {
	publisher envelopePublisher
	logg      *logger.Logger
	now       func() time.Time
}

// NewEmitter wires an emitter over a publisher.
func NewEmitter(publisher envelopePublisher, logg *logger.Logger) (*Emitter, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Emitter{publisher: publisher, logg: logg, now: time.Now}, nil
}

// EmitMutationEvent builds and publishes the envelope describing a committed
// mutation. A false return means delivery is uncertain; the caller's
// transaction has already committed and must proceed regardless.
func (e *Emitter) EmitMutationEvent(ctx context.Context, eventType enums.EventType, aggregateID string, payload any) bool {
	if !eventType.IsValid() {
		e.logg.Warn(e.logg.WithField(ctx, "event_type", string(eventType)), "refusing to emit unknown event type")
		return false
	}
	if aggregateID == "" {
		e.logg.Warn(e.logg.WithEventType(ctx, string(eventType)), "refusing to emit event without aggregate id")
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "failed to encode event payload")
		return false
	}

	envelope := Envelope{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     data,
		Timestamp:   e.now().UTC(),
	}
	return e.publisher.Publish(ctx, envelope)
}
