package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/core/domain"
	"github.com/rl1809/dapr-shop/internal/port"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

type InventoryService struct {
	products  *records[domain.Product]
	publisher port.EventPublisher
	logger    *zap.Logger
	threshold int
	now       func() time.Time
}

func NewInventoryService(store port.StateStore, publisher port.EventPublisher, logger *zap.Logger, threshold int) *InventoryService {
	if threshold <= 0 {
		threshold = domain.DefaultLowStockThreshold
	}
	s := &InventoryService{
		products:  newRecords(store, logger, "product-", "product-index", func(p domain.Product) string { return p.ID }),
		publisher: publisher,
		logger:    logger,
		threshold: threshold,
		now:       time.Now,
	}
	for _, p := range domain.DemoProducts(s.now()) {
		s.products.remember(p)
	}
	return s
}

// Page is one slice of a product listing.
type Page struct {
	Items    []domain.Product
	Total    int
	Page     int
	PageSize int
}

func (s *InventoryService) List(ctx context.Context, page, pageSize int) Page {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	all := s.products.all(ctx)

	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return Page{Items: all[start:end], Total: len(all), Page: page, PageSize: pageSize}
}

// Search matches term case-insensitively against name, description and
// category.
func (s *InventoryService) Search(ctx context.Context, term string) []domain.Product {
	term = strings.ToLower(term)
	out := []domain.Product{}
	for _, p := range s.products.all(ctx) {
		if strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Description), term) ||
			strings.Contains(strings.ToLower(string(p.Category)), term) {
			out = append(out, p)
		}
	}
	return out
}

func (s *InventoryService) GetByID(ctx context.Context, id string) (domain.Product, error) {
	p, ok := s.products.get(ctx, id)
	if !ok {
		s.logger.Warn("product not found", zap.String("productId", id))
		return domain.Product{}, productNotFound(id)
	}
	return p, nil
}

func (s *InventoryService) Create(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	if in.Quantity < 0 {
		return domain.Product{}, domain.Validationf("quantity must not be negative")
	}
	if !in.Price.IsPositive() {
		return domain.Product{}, domain.Validationf("price must be positive")
	}
	now := s.now()
	p := domain.Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Quantity:    in.Quantity,
		Category:    in.Category,
		SKU:         in.SKU,
		ImageURL:    in.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.products.put(ctx, p)
	s.logger.Info("product created", zap.String("productId", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (s *InventoryService) Update(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error) {
	_, after, err := s.products.mutate(ctx, id, func(p *domain.Product) error {
		patch.Apply(p)
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.Product{}, s.mapErr(id, err)
	}
	// only quantity updates raise alerts
	return after, nil
}

// UpdateQuantity sets the stock level and raises an alert when the product
// enters the low-stock band.
func (s *InventoryService) UpdateQuantity(ctx context.Context, id string, quantity int) (domain.Product, error) {
	if quantity < 0 {
		return domain.Product{}, domain.Validationf("quantity must not be negative")
	}
	before, after, err := s.products.mutate(ctx, id, func(p *domain.Product) error {
		p.Quantity = quantity
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.Product{}, s.mapErr(id, err)
	}
	s.logger.Info("product quantity updated",
		zap.String("productId", id),
		zap.Int("previous", before.Quantity),
		zap.Int("quantity", after.Quantity),
	)
	s.checkLowStock(ctx, before.Quantity, after)
	return after, nil
}

// LowStock lists products at or below threshold. A negative threshold means
// the configured default.
func (s *InventoryService) LowStock(ctx context.Context, threshold int) []domain.Product {
	if threshold < 0 {
		threshold = s.threshold
	}
	out := []domain.Product{}
	for _, p := range s.products.all(ctx) {
		if p.Quantity <= threshold {
			out = append(out, p)
		}
	}
	return out
}

func (s *InventoryService) Threshold() int { return s.threshold }

// Reserve decrements stock only if enough is available.
func (s *InventoryService) Reserve(ctx context.Context, id string, quantity int) (domain.Product, error) {
	before, after, err := s.products.mutate(ctx, id, func(p *domain.Product) error {
		if p.Quantity < quantity {
			return domain.InsufficientStockf("Insufficient inventory for product %s", id)
		}
		p.Quantity -= quantity
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.Product{}, s.mapErr(id, err)
	}
	s.checkLowStock(ctx, before.Quantity, after)
	return before, nil
}

func (s *InventoryService) Release(ctx context.Context, id string, quantity int) error {
	before, after, err := s.products.mutate(ctx, id, func(p *domain.Product) error {
		p.Quantity += quantity
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return s.mapErr(id, err)
	}
	s.checkLowStock(ctx, before.Quantity, after)
	return nil
}

// Seed copies the demo catalog into the store without touching keys that
// already exist.
func (s *InventoryService) Seed(ctx context.Context) error {
	for _, p := range domain.DemoProducts(s.now()) {
		if err := s.products.seed(ctx, p); err != nil {
			return domain.Internal("seed product "+p.ID, err)
		}
	}
	return nil
}

func (s *InventoryService) checkLowStock(ctx context.Context, before int, p domain.Product) {
	if !domain.CrossedLowStock(before, p.Quantity, s.threshold) {
		return
	}
	event := domain.InventoryAlertEvent{
		ProductID:       p.ID,
		ProductName:     p.Name,
		CurrentQuantity: p.Quantity,
		StockLevel:      domain.StockLevel(p.Quantity),
		Threshold:       s.threshold,
		Timestamp:       s.now(),
	}
	if err := s.publisher.Publish(ctx, domain.TopicInventoryAlert, event); err != nil {
		s.logger.Warn("could not publish inventory alert", zap.String("productId", p.ID), zap.Error(err))
		return
	}
	s.logger.Info("inventory alert published", zap.String("productId", p.ID), zap.Int("quantity", p.Quantity))
}

func (s *InventoryService) mapErr(id string, err error) error {
	switch {
	case errors.Is(err, errRecordMissing):
		return productNotFound(id)
	case errors.Is(err, errConflict):
		return domain.Conflictf("Product %s is being modified concurrently", id)
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Internal("update product "+id, err)
}

func productNotFound(id string) error {
	return domain.NotFoundf("Product %s not found", id)
}
