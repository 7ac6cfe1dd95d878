package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/adapter/storage"
	"github.com/rl1809/dapr-shop/internal/core/domain"
)

// Mock Sender
type mockSender struct {
	err  error
	sent []domain.Notification
}

func (m *mockSender) Send(ctx context.Context, n domain.Notification) error {
	m.sent = append(m.sent, n)
	return m.err
}

func newTestNotifications(sender Sender, opts NotificationOptions) (*NotificationService, *storage.MemoryAdapter, *mockPublisher) {
	store := storage.NewMemoryAdapter()
	pub := &mockPublisher{}
	return NewNotificationService(store, sender, pub, zap.NewNop(), opts), store, pub
}

func TestSend_Sent(t *testing.T) {
	svc, store, pub := newTestNotifications(&mockSender{}, NotificationOptions{})
	ctx := context.Background()

	n, err := svc.Send(ctx, domain.NotificationRequest{
		Type: domain.NotificationTypeSMS, Recipient: "+15550100", Message: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationStatusSent, n.Status)
	require.NotNil(t, n.SentAt)
	assert.Empty(t, n.Error)

	item, err := store.Get(ctx, "notification-"+n.ID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, domain.NotificationStatusSent, decodeStored[domain.Notification](item.Value).Status)

	assert.Equal(t, 1, pub.count(domain.TopicNotificationSent))

	got, err := svc.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
}

func TestSend_Failed(t *testing.T) {
	svc, _, _ := newTestNotifications(&mockSender{err: ErrSendFailed}, NotificationOptions{})

	n, err := svc.Send(context.Background(), domain.NotificationRequest{
		Type: domain.NotificationTypeEmail, Recipient: "a@example.com", Message: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationStatusFailed, n.Status)
	assert.Equal(t, "Failed to send notification", n.Error)
	assert.Nil(t, n.SentAt)
	assert.True(t, n.Status.Terminal())
}

func TestSend_Validation(t *testing.T) {
	svc, _, _ := newTestNotifications(&mockSender{}, NotificationOptions{})

	_, err := svc.Send(context.Background(), domain.NotificationRequest{Type: domain.NotificationTypeEmail})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetByID_Missing(t *testing.T) {
	svc, _, _ := newTestNotifications(&mockSender{}, NotificationOptions{})

	_, err := svc.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistory_EmptyByDefault(t *testing.T) {
	svc, _, _ := newTestNotifications(&mockSender{}, NotificationOptions{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Send(ctx, domain.NotificationRequest{
			Type: domain.NotificationTypeEmail, Recipient: "a@example.com", Message: "hi",
		})
		require.NoError(t, err)
	}

	assert.Empty(t, svc.History(ctx, "a@example.com", 10))
	assert.Empty(t, svc.History(ctx, "", 10))
}

func TestHistory_Indexed(t *testing.T) {
	svc, _, _ := newTestNotifications(&mockSender{}, NotificationOptions{History: true})
	ctx := context.Background()

	var ids []string
	for _, r := range []string{"a@example.com", "b@example.com", "a@example.com"} {
		n, err := svc.Send(ctx, domain.NotificationRequest{Type: domain.NotificationTypeEmail, Recipient: r, Message: "hi"})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	a := svc.History(ctx, "a@example.com", 10)
	require.Len(t, a, 2)
	assert.Equal(t, ids[2], a[0].ID)
	assert.Equal(t, ids[0], a[1].ID)

	all := svc.History(ctx, "", 2)
	require.Len(t, all, 2)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[1], all[1].ID)
}

func TestReactions(t *testing.T) {
	sender := &mockSender{}
	svc, _, _ := newTestNotifications(sender, NotificationOptions{})
	ctx := context.Background()

	svc.OnOrderCreated(ctx, domain.OrderCreatedEvent{
		OrderID: "o-1", CustomerID: "c-7", Total: decimal.RequireFromString("59.98"), CreatedAt: fixedNow,
	})
	svc.OnOrderStatusUpdated(ctx, domain.OrderStatusUpdatedEvent{OrderID: "o-1", Status: domain.OrderStatusShipped})
	svc.OnOrderStatusUpdated(ctx, domain.OrderStatusUpdatedEvent{OrderID: "o-1", CustomerID: "c-7", Status: domain.OrderStatusPending})
	svc.OnInventoryAlert(ctx, domain.InventoryAlertEvent{ProductID: "p-1", ProductName: "Tent", CurrentQuantity: 3})
	svc.OnInventoryAlert(ctx, domain.InventoryAlertEvent{ProductID: "p-1", ProductName: "Tent", CurrentQuantity: 0})

	require.Len(t, sender.sent, 5)

	assert.Equal(t, "customer-c-7@example.com", sender.sent[0].Recipient)
	assert.Equal(t, "Order Confirmation - o-1", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Message, "Total: $59.98")

	assert.Equal(t, "customer@example.com", sender.sent[1].Recipient)
	assert.Equal(t, "Order Shipped - o-1", sender.sent[1].Subject)

	assert.Equal(t, "customer-c-7@example.com", sender.sent[2].Recipient)
	assert.Equal(t, "Order Update - o-1", sender.sent[2].Subject)

	assert.Equal(t, "admin@example.com", sender.sent[3].Recipient)
	assert.Equal(t, "Low Stock Alert - Tent", sender.sent[3].Subject)
	assert.Equal(t, "Out of Stock - Tent", sender.sent[4].Subject)
}

func TestHandleEvent(t *testing.T) {
	sender := &mockSender{}
	svc, _, _ := newTestNotifications(sender, NotificationOptions{})
	ctx := context.Background()

	require.NoError(t, svc.HandleEvent(ctx, domain.TopicOrderCreated, []byte(`{"orderId":"o-2","customerId":"c-1","total":10}`)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Order Confirmation - o-2", sender.sent[0].Subject)

	assert.Error(t, svc.HandleEvent(ctx, domain.TopicInventoryAlert, []byte(`{not json`)))
	assert.Error(t, svc.HandleEvent(ctx, "order-deleted", []byte(`{}`)))

	// a failed delivery is still an acknowledged event
	sender.err = errors.New("smtp down")
	assert.NoError(t, svc.HandleEvent(ctx, domain.TopicOrderStatusUpdated, []byte(`{"orderId":"o-2","status":"shipped"}`)))
}

func TestSimulatedSender_PushSuccessRatio(t *testing.T) {
	sender := NewSimulatedSender(0, 42)
	svc, _, _ := newTestNotifications(sender, NotificationOptions{})
	ctx := context.Background()

	sent := 0
	const total = 1000
	for i := 0; i < total; i++ {
		n, err := svc.Send(ctx, domain.NotificationRequest{Type: domain.NotificationTypePush, Recipient: "device-1", Message: "ping"})
		require.NoError(t, err)
		if n.Status == domain.NotificationStatusSent {
			sent++
		}
	}
	assert.InDelta(t, 0.85, float64(sent)/total, 0.05)
}

func TestSimulatedSender_Rates(t *testing.T) {
	assert.Equal(t, 0.95, SuccessRate(domain.NotificationTypeEmail))
	assert.Equal(t, 0.90, SuccessRate(domain.NotificationTypeSMS))
	assert.Equal(t, 0.85, SuccessRate(domain.NotificationTypePush))
	assert.Equal(t, 0.90, SuccessRate(domain.NotificationType("fax")))
}

func TestSimulatedSender_DelayIsCancellable(t *testing.T) {
	sender := NewSimulatedSender(time.Hour, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := sender.Send(ctx, domain.Notification{Type: domain.NotificationTypeEmail})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
