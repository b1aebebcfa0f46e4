package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/tasktide/tasktide-backend/pkg/config"
	"github.com/tasktide/tasktide-backend/pkg/logger"
	"github.com/tasktide/tasktide-backend/pkg/metrics"
)

// State tracks the connection lifecycle explicitly instead of nil checks on
// shared handles.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateClosing      State = "closing"
)

// ErrNotReady is returned when a publish or subscribe is attempted before the
// connection reached the Ready state (or after it was lost).
var ErrNotReady = errors.New("broker connection not ready")

// amqpConnection is the subset of *amqp.Connection the manager uses; a seam
// for dial injection in tests.
type amqpConnection interface {
	Channel() (*amqp.Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

type dialFunc func(url string) (amqpConnection, error)

// RearmFunc re-establishes a consumer subscription after a reconnect.
type RearmFunc func(ctx context.Context)

// Connection manages one resilient AMQP connection and channel, declares the
// process topology on connect, and supervises reconnects after a loss.
type Connection struct {
	cfg      config.BrokerConfig
	topology Topology
	logg     *logger.Logger
	mtr      *metrics.EventingMetrics
	dial     dialFunc

	mu    sync.Mutex
	state State
	conn  amqpConnection
	ch    *amqp.Channel

	rearmMu sync.Mutex
	rearms  []RearmFunc
}

// NewConnection builds an unconnected manager. Call Connect before use.
func NewConnection(cfg config.BrokerConfig, topology Topology, logg *logger.Logger, mtr *metrics.EventingMetrics) (*Connection, error) {
	if cfg.URL == "" {
		return nil, errors.New("broker url is required")
	}
	if err := topology.validate(); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Connection{
		cfg:      cfg,
		topology: topology,
		logg:     logg,
		mtr:      mtr,
		state:    StateDisconnected,
		dial: func(url string) (amqpConnection, error) {
			return amqp.Dial(url)
		},
	}, nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the broker, opens a channel and declares the topology. It
// retries with a fixed delay up to the configured attempt budget; exhausting
// the budget is fatal and the caller must abort startup.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("connect called in state %q", state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	attempts := c.cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"attempt":      attempt,
			"max_attempts": attempts,
		})

		if err := c.establish(ctx); err != nil {
			lastErr = err
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "broker connection attempt failed")
			if attempt == attempts {
				break
			}
			if err := sleep(ctx, c.cfg.ConnectDelay); err != nil {
				lastErr = err
				break
			}
			continue
		}

		c.logg.Info(logCtx, "broker connection established")
		go c.supervise(ctx)
		return nil
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
	return fmt.Errorf("broker unreachable after %d attempts: %w", attempts, lastErr)
}

// establish performs one dial + channel open + topology declaration.
func (c *Connection) establish(ctx context.Context) error {
	conn, err := c.dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}

	if err := c.topology.declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.state = StateReady
	c.mu.Unlock()
	return nil
}

// supervise watches for connection loss and re-runs the connect sequence with
// exponential backoff, then re-arms every registered consumer. It exits when
// the connection is closed deliberately or the context is canceled.
func (c *Connection) supervise(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		closed := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-ctx.Done():
			return
		case amqpErr := <-closed:
			if c.State() == StateClosing {
				return
			}
			if amqpErr != nil {
				c.logg.Warn(c.logg.WithField(ctx, "error", amqpErr.Error()), "broker connection lost")
			}
		}

		c.mu.Lock()
		c.state = StateConnecting
		c.conn = nil
		c.ch = nil
		c.mu.Unlock()

		backoff := retry.WithCappedDuration(c.cfg.ReconnectMaxDelay, retry.NewExponential(c.cfg.ReconnectBaseDelay))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := c.establish(ctx); err != nil {
				c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "broker reconnect attempt failed")
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			// Context canceled during shutdown.
			return
		}

		c.mtr.IncReconnect()
		c.logg.Info(ctx, "broker connection reestablished")
		c.rearmAll(ctx)
	}
}

// OnReconnect registers a callback that re-establishes a consumer
// subscription after the supervisor restores the connection.
func (c *Connection) OnReconnect(rearm RearmFunc) {
	if rearm == nil {
		return
	}
	c.rearmMu.Lock()
	defer c.rearmMu.Unlock()
	c.rearms = append(c.rearms, rearm)
}

func (c *Connection) rearmAll(ctx context.Context) {
	c.rearmMu.Lock()
	rearms := make([]RearmFunc, len(c.rearms))
	copy(rearms, c.rearms)
	c.rearmMu.Unlock()

	for _, rearm := range rearms {
		rearm(ctx)
	}
}

// Publish sends one message to the topology exchange under the routing key.
// The channel is not re-entrant, so access is serialized.
func (c *Connection) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || c.ch == nil {
		return ErrNotReady
	}
	return c.ch.PublishWithContext(ctx, c.topology.Exchange, routingKey, false, false, msg)
}

// Deliveries opens a manual-ack subscription on the named queue. Each call
// uses a fresh channel so one slow consumer cannot stall the shared publish
// channel.
func (c *Connection) Deliveries(ctx context.Context, queue string) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if state != StateReady || conn == nil {
		return nil, ErrNotReady
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening consumer channel: %w", err)
	}
	// Deliver one message at a time, in publish order.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("setting qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(
		ctx,
		queue,
		"",    // consumer tag, broker-generated
		false, // auto-ack off: handlers decide ack/nack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consuming %q: %w", queue, err)
	}
	return deliveries, nil
}

// Close tears the channel and connection down. Teardown errors are aggregated
// and logged, never returned: a closing process cannot act on them.
func (c *Connection) Close(ctx context.Context) {
	c.mu.Lock()
	c.state = StateClosing
	ch := c.ch
	conn := c.conn
	c.ch = nil
	c.conn = nil
	c.mu.Unlock()

	var closeErr error
	if ch != nil {
		closeErr = multierr.Append(closeErr, ch.Close())
	}
	if conn != nil {
		closeErr = multierr.Append(closeErr, conn.Close())
	}
	if closeErr != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", closeErr.Error()), "errors during broker teardown")
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
