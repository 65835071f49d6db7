package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/streadway/amqp"
)

type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier sends notifications to a RabbitMQ queue.
type AMQPNotifier struct {
	mu      sync.Mutex
	channel amqpChannel
	conn    *amqp.Connection
	queue   string
}

// DialAMQP connects to the broker, declares a durable queue, and returns a notifier publishing to it.
func DialAMQP(url, queue string) (*AMQPNotifier, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return nil, errors.New("amqp notifier: queue is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp notifier: dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp notifier: open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp notifier: declare queue %s: %w", queue, err)
	}
	notifier := newAMQPNotifier(channel, queue)
	notifier.conn = conn
	return notifier, nil
}

func newAMQPNotifier(channel amqpChannel, queue string) *AMQPNotifier {
	return &AMQPNotifier{channel: channel, queue: queue}
}

// Notify publishes the notification as a persistent JSON message.
func (n *AMQPNotifier) Notify(ctx context.Context, notification Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, data, err := encodeMessage(notification)
	if err != nil {
		return err
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Kind),
		Timestamp:    msg.OccurredAt,
		Headers:      amqp.Table{"orderId": msg.OrderID, "orderNumber": msg.OrderNumber},
		Body:         data,
	}

	// amqp channels are not safe for concurrent publishing.
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.channel.Publish("", n.queue, false, false, publishing); err != nil {
		return fmt.Errorf("amqp notifier: publish: %w", err)
	}
	return nil
}

// Close releases the channel and the connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var errs []error
	if n.channel != nil {
		errs = append(errs, n.channel.Close())
	}
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
	}
	return errors.Join(errs...)
}
