package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names are per consumer role. Every service process declares the full
// topology on connect; declaration is idempotent on the broker side.
const (
	QueueNotifications = "notifications-task-queue"
	QueueRealtime      = "realtime-events-queue"
	QueueAuthEvents    = "auth-events-queue"
)

// QueueSpec describes one durable queue and the routing patterns bound to it.
type QueueSpec struct {
	Name     string
	Bindings []string
}

// Topology is the set of exchanges, queues and bindings a process requires.
type Topology struct {
	Exchange string
	Queues   []QueueSpec
}

// DefaultTopology returns the topology shared by all services: one topic
// exchange with a durable queue per consumer role.
func DefaultTopology(exchange string) Topology {
	return Topology{
		Exchange: exchange,
		Queues: []QueueSpec{
			{Name: QueueNotifications, Bindings: []string{"task.#", "comment.#"}},
			{Name: QueueRealtime, Bindings: []string{"task.#", "comment.#"}},
			{Name: QueueAuthEvents, Bindings: []string{"user.#"}},
		},
	}
}

func (t Topology) validate() error {
	if t.Exchange == "" {
		return fmt.Errorf("exchange name is required")
	}
	for _, queue := range t.Queues {
		if queue.Name == "" {
			return fmt.Errorf("queue name is required")
		}
		if len(queue.Bindings) == 0 {
			return fmt.Errorf("queue %q has no bindings", queue.Name)
		}
	}
	return nil
}

// declare creates the exchange, queues and bindings. All declarations use
// durable resources so they survive broker restarts.
func (t Topology) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		t.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declaring exchange %q: %w", t.Exchange, err)
	}

	for _, queue := range t.Queues {
		if _, err := ch.QueueDeclare(
			queue.Name,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("declaring queue %q: %w", queue.Name, err)
		}
		for _, pattern := range queue.Bindings {
			if err := ch.QueueBind(queue.Name, pattern, t.Exchange, false, nil); err != nil {
				return fmt.Errorf("binding %q to %q via %q: %w", queue.Name, t.Exchange, pattern, err)
			}
		}
	}
	return nil
}
