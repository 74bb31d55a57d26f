package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"glamtrack/internal/config"
	"glamtrack/internal/domain"
	"glamtrack/internal/wire"
)

// Routing keys published by the booking backend.
const (
	routingKeyStatus   = "order.status"
	routingKeyAssigned = "order.assigned"
)

// statusMessage is the backend's order status change payload.
type statusMessage struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// assignedMessage is the backend's professional assignment payload.
type assignedMessage struct {
	OrderID          string `json:"order_id"`
	ProfessionalID   string `json:"professional_id"`
	ProfessionalName string `json:"professional_name"`
	TrackingStarted  bool   `json:"tracking_started"`
}

// Consumer ingests order events from the booking backend over RabbitMQ
// and feeds them into the tracker for room fan-out.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     config.AMQPConfig
	tracker *Tracker
}

// NewConsumer connects to RabbitMQ and declares the ingest topology:
// a topic exchange with one durable queue bound to the order routing keys.
func NewConsumer(cfg config.AMQPConfig, tracker *Tracker) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.Qos(10, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	for _, key := range []string{routingKeyStatus, routingKeyAssigned} {
		if err := channel.QueueBind(queue.Name, key, cfg.Exchange, false, nil); err != nil {
			_ = channel.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("bind queue: %w", err)
		}
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		cfg:     cfg,
		tracker: tracker,
	}, nil
}

// Run consumes order events until ctx is cancelled or the channel dies.
func (c *Consumer) Run(ctx context.Context) error {
	consumerTag := "glamtrack-relay-" + uuid.NewString()
	deliveries, err := c.channel.Consume(c.cfg.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	log.Printf("relay: consuming order events from queue %q", c.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("amqp delivery channel closed")
			}

			if err := c.handle(ctx, delivery); err != nil {
				log.Printf("relay: failed to handle %s message: %v", delivery.RoutingKey, err)
				_ = delivery.Nack(false, false)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close releases the AMQP channel and connection.
func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// handle dispatches one delivery by routing key.
func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) error {
	switch delivery.RoutingKey {
	case routingKeyStatus:
		var msg statusMessage
		if err := json.Unmarshal(delivery.Body, &msg); err != nil {
			return fmt.Errorf("parse status message: %w", err)
		}
		if msg.OrderID == "" || msg.Status == "" {
			return fmt.Errorf("status message missing order_id or status")
		}
		return c.tracker.HandleOrderStatus(ctx, msg.OrderID, domain.OrderStatus(msg.Status))

	case routingKeyAssigned:
		var msg assignedMessage
		if err := json.Unmarshal(delivery.Body, &msg); err != nil {
			return fmt.Errorf("parse assignment message: %w", err)
		}
		if msg.OrderID == "" {
			return fmt.Errorf("assignment message missing order_id")
		}
		c.tracker.HandleProfessionalAssigned(ctx, msg.OrderID, wire.ProfessionalAssignedPayload{
			ProfessionalID:   msg.ProfessionalID,
			ProfessionalName: msg.ProfessionalName,
			TrackingStarted:  msg.TrackingStarted,
		})
		return nil

	default:
		// Unknown keys are acked and dropped.
		log.Printf("relay: ignoring message with routing key %q", delivery.RoutingKey)
		return nil
	}
}
