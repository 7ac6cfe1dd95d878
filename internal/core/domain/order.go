package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// CanTransition reports whether the forward-only status graph allows moving
// from s to next. Staying on the same status is always allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem snapshots the product name and unit price at creation time.
type OrderItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Subtotal is unit price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	Items      []OrderItem     `json:"items"`
	Total      decimal.Decimal `json:"total"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// OrderLine is a requested product and quantity.
type OrderLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

// OrderTotal sums the item subtotals.
func OrderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// DemoOrders returns the fixed sample orders, stamped relative to now.
func DemoOrders(now time.Time) []Order {
	laptop := []OrderItem{{
		ProductID:   "product-001",
		ProductName: "Gaming Laptop",
		Quantity:    1,
		Price:       decimal.RequireFromString("1899.99"),
	}}
	mice := []OrderItem{{
		ProductID:   "product-002",
		ProductName: "Wireless Mouse",
		Quantity:    2,
		Price:       decimal.RequireFromString("29.99"),
	}}
	return []Order{
		{
			ID:         "order-001",
			CustomerID: "customer-001",
			Items:      laptop,
			Total:      OrderTotal(laptop),
			Status:     OrderStatusConfirmed,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:         "order-002",
			CustomerID: "customer-002",
			Items:      mice,
			Total:      OrderTotal(mice),
			Status:     OrderStatusShipped,
			CreatedAt:  now.Add(-24 * time.Hour),
			UpdatedAt:  now,
		},
	}
}
