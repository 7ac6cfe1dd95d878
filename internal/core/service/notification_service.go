package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/core/domain"
	"github.com/rl1809/dapr-shop/internal/port"
)

const (
	DefaultHistoryLimit = 50
	historyKey          = "notification-history"
	adminRecipient      = "admin@example.com"
	fallbackRecipient   = "customer@example.com"
)

type NotificationOptions struct {
	// History keeps recipient indexes so History can answer; without it
	// History is always empty
	History bool
}

type NotificationService struct {
	notifications *records[domain.Notification]
	store         port.StateStore
	sender        Sender
	publisher     port.EventPublisher
	logger        *zap.Logger
	opts          NotificationOptions
	now           func() time.Time
}

func NewNotificationService(store port.StateStore, sender Sender, publisher port.EventPublisher, logger *zap.Logger, opts NotificationOptions) *NotificationService {
	return &NotificationService{
		notifications: newRecords(store, logger, "notification-", "", func(n domain.Notification) string { return n.ID }),
		store:         store,
		sender:        sender,
		publisher:     publisher,
		logger:        logger,
		opts:          opts,
		now:           time.Now,
	}
}

// Send records a pending notification, hands it to the sender and records
// the outcome. A failed delivery is not an error; it shows in the status.
func (s *NotificationService) Send(ctx context.Context, req domain.NotificationRequest) (domain.Notification, error) {
	if req.Recipient == "" || req.Message == "" {
		return domain.Notification{}, domain.Validationf("recipient and message are required")
	}

	n := domain.Notification{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Message:   req.Message,
		Data:      req.Data,
		Status:    domain.NotificationStatusPending,
		CreatedAt: s.now(),
	}
	s.notifications.put(ctx, n)

	if err := s.sender.Send(ctx, n); err != nil {
		n.Status = domain.NotificationStatusFailed
		n.Error = SendFailureMessage
		s.logger.Error("failed to send notification",
			zap.String("notificationId", n.ID),
			zap.String("type", string(n.Type)),
			zap.String("recipient", n.Recipient),
			zap.Error(err),
		)
	} else {
		sentAt := s.now()
		n.Status = domain.NotificationStatusSent
		n.SentAt = &sentAt
		s.logger.Info("notification sent",
			zap.String("notificationId", n.ID),
			zap.String("type", string(n.Type)),
			zap.String("recipient", n.Recipient),
		)
	}
	s.notifications.put(ctx, n)

	if s.opts.History {
		s.index(ctx, n)
	}

	event := domain.NotificationSentEvent{
		NotificationID: n.ID,
		Type:           n.Type,
		Recipient:      n.Recipient,
		Status:         n.Status,
		CreatedAt:      n.CreatedAt,
		SentAt:         n.SentAt,
	}
	if err := s.publisher.Publish(ctx, domain.TopicNotificationSent, event); err != nil {
		s.logger.Warn("could not publish notification sent event", zap.String("notificationId", n.ID), zap.Error(err))
	}
	return n, nil
}

func (s *NotificationService) index(ctx context.Context, n domain.Notification) {
	for _, key := range []string{historyKey, historyKey + "-" + n.Recipient} {
		if err := appendIndex(ctx, s.store, key, n.ID, true); err != nil {
			s.logger.Warn("could not update notification history", zap.String("index", key), zap.Error(err))
		}
	}
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (domain.Notification, error) {
	n, ok := s.notifications.get(ctx, id)
	if !ok {
		s.logger.Warn("notification not found", zap.String("notificationId", id))
		return domain.Notification{}, domain.NotFoundf("Notification not found")
	}
	return n, nil
}

// History returns the most recent notifications, optionally for one
// recipient. It is empty unless history indexing is enabled.
func (s *NotificationService) History(ctx context.Context, recipient string, limit int) []domain.Notification {
	out := []domain.Notification{}
	if !s.opts.History {
		return out
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	key := historyKey
	if recipient != "" {
		key = historyKey + "-" + recipient
	}
	ids, err := readIndex(ctx, s.store, key)
	if err != nil {
		s.logger.Warn("could not read notification history", zap.String("index", key), zap.Error(err))
		return out
	}
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		if n, ok := s.notifications.get(ctx, id); ok {
			out = append(out, n)
		}
	}
	return out
}

// HandleEvent decodes a bus event and reacts to it. Only undecodable or
// unknown events are reported as errors.
func (s *NotificationService) HandleEvent(ctx context.Context, topic string, data []byte) error {
	switch topic {
	case domain.TopicOrderCreated:
		var ev domain.OrderCreatedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		s.OnOrderCreated(ctx, ev)
	case domain.TopicOrderStatusUpdated:
		var ev domain.OrderStatusUpdatedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		s.OnOrderStatusUpdated(ctx, ev)
	case domain.TopicInventoryAlert:
		var ev domain.InventoryAlertEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		s.OnInventoryAlert(ctx, ev)
	default:
		return fmt.Errorf("unsupported topic %q", topic)
	}
	return nil
}

func (s *NotificationService) OnOrderCreated(ctx context.Context, ev domain.OrderCreatedEvent) {
	s.react(ctx, "order created", domain.NotificationRequest{
		Type:      domain.NotificationTypeEmail,
		Recipient: fmt.Sprintf("customer-%s@example.com", ev.CustomerID),
		Subject:   "Order Confirmation - " + ev.OrderID,
		Message:   fmt.Sprintf("Your order %s has been created successfully. Total: $%s", ev.OrderID, ev.Total.StringFixed(2)),
		Data: map[string]any{
			"orderId":   ev.OrderID,
			"total":     ev.Total,
			"items":     ev.Items,
			"createdAt": ev.CreatedAt,
		},
	})
}

var statusSubjects = map[domain.OrderStatus]string{
	domain.OrderStatusConfirmed: "Order Confirmed",
	domain.OrderStatusShipped:   "Order Shipped",
	domain.OrderStatusDelivered: "Order Delivered",
	domain.OrderStatusCancelled: "Order Cancelled",
}

func (s *NotificationService) OnOrderStatusUpdated(ctx context.Context, ev domain.OrderStatusUpdatedEvent) {
	recipient := fallbackRecipient
	if ev.CustomerID != "" {
		recipient = fmt.Sprintf("customer-%s@example.com", ev.CustomerID)
	}
	subject, ok := statusSubjects[ev.Status]
	if !ok {
		subject = "Order Update"
	}
	s.react(ctx, "order status updated", domain.NotificationRequest{
		Type:      domain.NotificationTypeEmail,
		Recipient: recipient,
		Subject:   subject + " - " + ev.OrderID,
		Message:   fmt.Sprintf("Your order %s status has been updated to: %s", ev.OrderID, ev.Status),
		Data: map[string]any{
			"orderId":   ev.OrderID,
			"status":    ev.Status,
			"updatedAt": ev.UpdatedAt,
		},
	})
}

func (s *NotificationService) OnInventoryAlert(ctx context.Context, ev domain.InventoryAlertEvent) {
	subject := "Low Stock Alert - " + ev.ProductName
	if ev.CurrentQuantity <= 0 {
		subject = "Out of Stock - " + ev.ProductName
	}
	s.react(ctx, "inventory alert", domain.NotificationRequest{
		Type:      domain.NotificationTypeEmail,
		Recipient: adminRecipient,
		Subject:   subject,
		Message: fmt.Sprintf("Product %s (%s) is running low on stock. Current quantity: %d",
			ev.ProductName, ev.ProductID, ev.CurrentQuantity),
		Data: map[string]any{
			"productId":       ev.ProductID,
			"productName":     ev.ProductName,
			"currentQuantity": ev.CurrentQuantity,
			"stockLevel":      ev.StockLevel,
			"threshold":       ev.Threshold,
			"timestamp":       ev.Timestamp,
		},
	})
}

func (s *NotificationService) react(ctx context.Context, what string, req domain.NotificationRequest) {
	n, err := s.Send(ctx, req)
	if err != nil {
		s.logger.Error("error handling "+what+" event", zap.Error(err))
		return
	}
	s.logger.Info("processed "+what+" notification", zap.String("notificationId", n.ID), zap.String("status", string(n.Status)))
}
