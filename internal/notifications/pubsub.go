package notifications

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubNotifier publishes notifications to the topic consumed by the mail worker.
type PubSubNotifier struct {
	topic *pubsub.Topic
}

// NewPubSubNotifier constructs a Pub/Sub backed notifier.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	return &PubSubNotifier{topic: topic}, nil
}

// Notify publishes the notification and waits for the server acknowledgement.
func (n *PubSubNotifier) Notify(ctx context.Context, notification Notification) error {
	msg, data, err := encodeMessage(notification)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"kind":        string(msg.Kind),
		"orderId":     msg.OrderID,
		"orderNumber": msg.OrderNumber,
	}
	if msg.ID != "" {
		attrs["notificationId"] = msg.ID
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: orderingKey(n.topic, msg.OrderID),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func orderingKey(topic *pubsub.Topic, orderID string) string {
	if !topic.EnableMessageOrdering {
		return ""
	}
	return orderID
}
