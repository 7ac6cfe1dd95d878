package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics published on the pub/sub bus.
const (
	TopicOrderCreated       = "order-created"
	TopicOrderStatusUpdated = "order-status-updated"
	TopicInventoryAlert     = "inventory-alert"
	TopicNotificationSent   = "notification-sent"
)

type OrderCreatedEvent struct {
	OrderID    string          `json:"orderId"`
	CustomerID string          `json:"customerId"`
	Total      decimal.Decimal `json:"total"`
	Items      []OrderItem     `json:"items"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type OrderStatusUpdatedEvent struct {
	OrderID        string      `json:"orderId"`
	CustomerID     string      `json:"customerId,omitempty"`
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previousStatus,omitempty"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

type InventoryAlertEvent struct {
	ProductID       string    `json:"productId"`
	ProductName     string    `json:"productName"`
	CurrentQuantity int       `json:"currentQuantity"`
	StockLevel      string    `json:"stockLevel"`
	Threshold       int       `json:"threshold"`
	Timestamp       time.Time `json:"timestamp"`
}

type NotificationSentEvent struct {
	NotificationID string             `json:"notificationId"`
	Type           NotificationType   `json:"type"`
	Recipient      string             `json:"recipient"`
	Status         NotificationStatus `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	SentAt         *time.Time         `json:"sentAt,omitempty"`
}
