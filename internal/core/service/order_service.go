package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/core/domain"
	"github.com/rl1809/dapr-shop/internal/port"
)

type OrderOptions struct {
	// AtomicReservation releases already reserved items when a later item
	// of the same order fails
	AtomicReservation bool

	// StrictTransitions rejects status changes outside the forward-only graph
	StrictTransitions bool
}

type OrderService struct {
	orders    *records[domain.Order]
	catalog   port.Catalog
	publisher port.EventPublisher
	logger    *zap.Logger
	opts      OrderOptions
	now       func() time.Time
}

func NewOrderService(store port.StateStore, catalog port.Catalog, publisher port.EventPublisher, logger *zap.Logger, opts OrderOptions) *OrderService {
	s := &OrderService{
		orders:    newRecords(store, logger, "order-", "order-index", func(o domain.Order) string { return o.ID }),
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
	for _, o := range domain.DemoOrders(s.now()) {
		s.orders.remember(o)
	}
	return s
}

func (s *OrderService) List(ctx context.Context) []domain.Order {
	return s.orders.all(ctx)
}

func (s *OrderService) GetByID(ctx context.Context, id string) (domain.Order, error) {
	o, ok := s.orders.get(ctx, id)
	if !ok {
		s.logger.Warn("order not found", zap.String("orderId", id))
		return domain.Order{}, orderNotFound()
	}
	return o, nil
}

// Create reserves stock for every line in request order, then persists a
// pending order and announces it.
func (s *OrderService) Create(ctx context.Context, customerID string, lines []domain.OrderLine) (domain.Order, error) {
	if customerID == "" {
		return domain.Order{}, domain.Validationf("customerId is required")
	}
	if len(lines) == 0 {
		return domain.Order{}, domain.Validationf("order must contain at least one item")
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			s.rollback(ctx, items)
			return domain.Order{}, domain.Validationf("quantity for product %s must be at least 1", line.ProductID)
		}
		product, err := s.catalog.Reserve(ctx, line.ProductID, line.Quantity)
		if err != nil {
			s.logger.Error("error processing order item", zap.String("productId", line.ProductID), zap.Error(err))
			s.rollback(ctx, items)
			return domain.Order{}, err
		}
		items = append(items, domain.OrderItem{
			ProductID:   line.ProductID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       product.Price,
		})
	}

	now := s.now()
	order := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Items:      items,
		Total:      domain.OrderTotal(items),
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.orders.put(ctx, order)

	event := domain.OrderCreatedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Total:      order.Total,
		Items:      order.Items,
		CreatedAt:  order.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, domain.TopicOrderCreated, event); err != nil {
		s.logger.Warn("could not publish order created event", zap.String("orderId", order.ID), zap.Error(err))
	}

	s.logger.Info("created new order", zap.String("orderId", order.ID), zap.String("total", order.Total.StringFixed(2)))
	return order, nil
}

// rollback gives back reserved stock in reverse order. Without
// AtomicReservation earlier reservations stay applied.
func (s *OrderService) rollback(ctx context.Context, reserved []domain.OrderItem) {
	if !s.opts.AtomicReservation {
		return
	}
	for i := len(reserved) - 1; i >= 0; i-- {
		item := reserved[i]
		if err := s.catalog.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("could not release reserved stock",
				zap.String("productId", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (s *OrderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.Validationf("invalid order status %q", status)
	}

	before, after, err := s.orders.mutate(ctx, id, func(o *domain.Order) error {
		if s.opts.StrictTransitions && !o.Status.CanTransition(status) {
			return domain.InvalidTransitionf("Cannot change order status from %s to %s", o.Status, status)
		}
		o.Status = status
		o.UpdatedAt = s.now()
		return nil
	})
	switch {
	case errors.Is(err, errRecordMissing):
		return domain.Order{}, orderNotFound()
	case errors.Is(err, errConflict):
		return domain.Order{}, domain.Conflictf("Order %s is being modified concurrently", id)
	case err != nil:
		var de *domain.Error
		if errors.As(err, &de) {
			return domain.Order{}, err
		}
		return domain.Order{}, domain.Internal("update order "+id, err)
	}

	event := domain.OrderStatusUpdatedEvent{
		OrderID:        id,
		CustomerID:     after.CustomerID,
		Status:         after.Status,
		PreviousStatus: before.Status,
		UpdatedAt:      after.UpdatedAt,
	}
	if err := s.publisher.Publish(ctx, domain.TopicOrderStatusUpdated, event); err != nil {
		s.logger.Warn("could not publish order status updated event", zap.String("orderId", id), zap.Error(err))
	}

	s.logger.Info("updated order status", zap.String("orderId", id), zap.String("status", string(status)))
	return after, nil
}

// Seed copies the demo orders into the store without touching keys that
// already exist.
func (s *OrderService) Seed(ctx context.Context) error {
	for _, o := range domain.DemoOrders(s.now()) {
		if err := s.orders.seed(ctx, o); err != nil {
			return domain.Internal("seed order "+o.ID, err)
		}
	}
	return nil
}

func orderNotFound() error {
	return domain.NotFoundf("Order not found")
}
