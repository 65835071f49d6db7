package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	domain "github.com/urishop/api/internal/domain"
)

func sampleNotification(kind Kind) Notification {
	eta := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	return Notification{
		ID:   "ntf_1",
		Kind: kind,
		Order: domain.Order{
			ID:          "ord_1",
			OrderNumber: "ORD-1717171717171-001",
			Status:      domain.OrderStatusShipped,
			Customer:    domain.Customer{FirstName: "Ana", LastName: "Gómez", Email: "ana@example.com"},
			Items:       []domain.LineItem{{Quantity: 2}, {Quantity: 1}},
			Pricing:     domain.Pricing{Total: 25700},
			Payment:     domain.Payment{Currency: "USD"},
			Tracking:    &domain.Tracking{Carrier: "Andreani", TrackingNumber: "AR1", EstimatedDelivery: &eta},
		},
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKindForStatus(t *testing.T) {
	cases := map[domain.OrderStatus]Kind{
		domain.OrderStatusConfirmed: KindConfirmation,
		domain.OrderStatusShipped:   KindShipped,
		domain.OrderStatusDelivered: KindDelivered,
		domain.OrderStatusCancelled: KindCancelled,
	}
	for status, want := range cases {
		got, ok := KindForStatus(status)
		assert.True(t, ok, status)
		assert.Equal(t, want, got)
	}
	for _, status := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusRefunded} {
		_, ok := KindForStatus(status)
		assert.False(t, ok, status)
	}
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(sampleNotification(KindShipped))
	require.NoError(t, err)

	assert.Equal(t, "Order #ORD-1717171717171-001 is on its way", msg.Subject)
	assert.Equal(t, "Ana Gómez", msg.Recipient.Name)
	assert.Equal(t, 3, msg.TotalItems)
	require.NotNil(t, msg.Tracking)
	assert.Equal(t, "AR1", msg.Tracking.TrackingNumber)

	_, err = NewMessage(Notification{Kind: "sms"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	notifier := NewLogNotifier(zap.New(core))

	require.NoError(t, notifier.Notify(context.Background(), sampleNotification(KindConfirmation)))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "confirmation", fields["kind"])
	assert.Equal(t, "a***@example.com", fields["recipient"])
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPNotifierPublishesPersistentJSON(t *testing.T) {
	channel := &fakeChannel{}
	notifier := newAMQPNotifier(channel, "orders.notifications")

	require.NoError(t, notifier.Notify(context.Background(), sampleNotification(KindDelivered)))
	require.Len(t, channel.published, 1)

	pub := channel.published[0]
	assert.Equal(t, "orders.notifications", channel.keys[0])
	assert.Equal(t, uint8(amqp.Persistent), pub.DeliveryMode)
	assert.Equal(t, "delivered", pub.Type)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.Body, &msg))
	assert.Equal(t, "ord_1", msg.OrderID)

	require.NoError(t, notifier.Close())
	assert.True(t, channel.closed)
}

func TestAMQPNotifierWrapsPublishErrors(t *testing.T) {
	notifier := newAMQPNotifier(&fakeChannel{err: amqp.ErrClosed}, "q")
	err := notifier.Notify(context.Background(), sampleNotification(KindCancelled))
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestFanoutDeliversToAllDrivers(t *testing.T) {
	var calls atomic.Int32
	ok := NotifierFunc(func(context.Context, Notification) error {
		calls.Add(1)
		return nil
	})
	boom := errors.New("boom")
	failing := NotifierFunc(func(context.Context, Notification) error {
		calls.Add(1)
		return boom
	})

	fanout := NewFanout(2).Add("log", ok).Add("pubsub", failing).Add("amqp", ok).Add("nil", nil)
	assert.Equal(t, 3, fanout.Len())

	err := fanout.Notify(context.Background(), sampleNotification(KindShipped))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "pubsub")
	assert.EqualValues(t, 3, calls.Load())
}

func TestFanoutRejectsUnknownKind(t *testing.T) {
	err := NewFanout(0).Notify(context.Background(), Notification{Kind: "fax"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
