package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/dapr-shop/internal/adapter/storage"
	"github.com/rl1809/dapr-shop/internal/core/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestInventory(t *testing.T) (*InventoryService, *storage.MemoryAdapter, *mockPublisher) {
	t.Helper()
	store := storage.NewMemoryAdapter()
	pub := &mockPublisher{}
	svc := NewInventoryService(store, pub, zap.NewNop(), domain.DefaultLowStockThreshold)
	svc.now = func() time.Time { return fixedNow }
	return svc, store, pub
}

func TestInventory_CreateThenGet(t *testing.T) {
	svc, store, _ := newTestInventory(t)
	ctx := context.Background()

	in := domain.ProductInput{
		Name:        "Desk Lamp",
		Description: "LED lamp",
		Price:       decimal.RequireFromString("24.50"),
		Quantity:    12,
		Category:    domain.CategoryHomeGarden,
		SKU:         "LAMP-001",
	}
	created, err := svc.Create(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.Description, got.Description)
	assert.True(t, in.Price.Equal(got.Price))
	assert.Equal(t, in.Quantity, got.Quantity)
	assert.Equal(t, in.Category, got.Category)
	assert.Equal(t, in.SKU, got.SKU)
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))

	item, err := store.Get(ctx, "product-"+created.ID)
	require.NoError(t, err)
	require.NotNil(t, item)

	index, err := store.Get(ctx, "product-index")
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID}, decodeStored[[]string](index.Value))
}

func TestInventory_GetMissing(t *testing.T) {
	svc, _, _ := newTestInventory(t)

	_, err := svc.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.EqualError(t, err, "Product nope not found")
}

func TestInventory_LowStockAlertIsEdgeTriggered(t *testing.T) {
	svc, _, pub := newTestInventory(t)
	ctx := context.Background()

	_, err := svc.UpdateQuantity(ctx, "product-001", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, pub.count(domain.TopicInventoryAlert))

	_, err = svc.UpdateQuantity(ctx, "product-001", 5)
	require.NoError(t, err)
	_, err = svc.UpdateQuantity(ctx, "product-001", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, pub.count(domain.TopicInventoryAlert))

	alert := pub.last(domain.TopicInventoryAlert).(domain.InventoryAlertEvent)
	assert.Equal(t, "product-001", alert.ProductID)
	assert.Equal(t, "Gaming Laptop", alert.ProductName)
	assert.Equal(t, 5, alert.CurrentQuantity)
	assert.Equal(t, "low_stock", alert.StockLevel)
	assert.Equal(t, 10, alert.Threshold)

	_, err = svc.UpdateQuantity(ctx, "product-001", 20)
	require.NoError(t, err)
	_, err = svc.UpdateQuantity(ctx, "product-001", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, pub.count(domain.TopicInventoryAlert))
	assert.Equal(t, "out_of_stock", pub.last(domain.TopicInventoryAlert).(domain.InventoryAlertEvent).StockLevel)
}

func TestInventory_AlertPublishFailureIsSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pub := &mockPublisher{err: errors.New("broker down")}
	svc := NewInventoryService(storage.NewMemoryAdapter(), pub, zap.New(core), 0)

	p, err := svc.UpdateQuantity(context.Background(), "product-002", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Quantity)
	assert.Equal(t, 1, logs.FilterMessage("could not publish inventory alert").Len())
}

func TestInventory_UpdateQuantityRejectsNegative(t *testing.T) {
	svc, _, _ := newTestInventory(t)

	_, err := svc.UpdateQuantity(context.Background(), "product-001", -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestInventory_UpdateMergesFields(t *testing.T) {
	svc, _, _ := newTestInventory(t)
	ctx := context.Background()
	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }

	name := "Gaming Laptop X"
	p, err := svc.Update(ctx, "product-001", domain.ProductPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, p.Name)
	assert.Equal(t, 15, p.Quantity)
	assert.True(t, p.UpdatedAt.Equal(later))

	_, err = svc.Update(ctx, "missing", domain.ProductPatch{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInventory_UpdateDoesNotAlert(t *testing.T) {
	svc, _, pub := newTestInventory(t)
	ctx := context.Background()

	qty := 3
	p, err := svc.Update(ctx, "product-001", domain.ProductPatch{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Quantity)
	assert.Equal(t, 0, pub.count(domain.TopicInventoryAlert))
}

func TestInventory_ListPaging(t *testing.T) {
	svc, _, _ := newTestInventory(t)
	ctx := context.Background()

	page := svc.List(ctx, 0, 0)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 5)

	page = svc.List(ctx, 2, 2)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "product-003", page.Items[0].ID)

	page = svc.List(ctx, 9, 2)
	assert.Empty(t, page.Items)
	assert.Equal(t, 5, page.Total)
}

func TestInventory_ListIncludesIndexedProducts(t *testing.T) {
	store := storage.NewMemoryAdapter()
	first := NewInventoryService(store, &mockPublisher{}, zap.NewNop(), 0)
	created, err := first.Create(context.Background(), domain.ProductInput{
		Name: "Tent", Description: "2 person", Price: decimal.NewFromInt(90), Quantity: 3, Category: domain.CategorySports,
	})
	require.NoError(t, err)

	// a second process sharing the store sees the product through the index
	second := NewInventoryService(store, &mockPublisher{}, zap.NewNop(), 0)
	page := second.List(context.Background(), 1, 10)
	assert.Equal(t, 6, page.Total)
	assert.Equal(t, created.ID, page.Items[5].ID)
}

func TestInventory_Search(t *testing.T) {
	svc, _, _ := newTestInventory(t)
	ctx := context.Background()

	assert.Len(t, svc.Search(ctx, "MOUSE"), 1)
	assert.Len(t, svc.Search(ctx, "electronics"), 3)
	assert.Len(t, svc.Search(ctx, "cherry"), 1)
	assert.Empty(t, svc.Search(ctx, "submarine"))
}

func TestInventory_LowStock(t *testing.T) {
	svc, _, _ := newTestInventory(t)
	ctx := context.Background()

	low := svc.LowStock(ctx, -1)
	require.Len(t, low, 1)
	assert.Equal(t, "product-004", low[0].ID)

	assert.Len(t, svc.LowStock(ctx, 25), 3)
	assert.Empty(t, svc.LowStock(ctx, 0))
}

func TestInventory_ReserveAndRelease(t *testing.T) {
	svc, _, pub := newTestInventory(t)
	ctx := context.Background()

	before, err := svc.Reserve(ctx, "product-004", 5)
	require.NoError(t, err)
	assert.Equal(t, 8, before.Quantity)

	_, err = svc.Reserve(ctx, "product-004", 4)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	p, _ := svc.GetByID(ctx, "product-004")
	assert.Equal(t, 3, p.Quantity)

	require.NoError(t, svc.Release(ctx, "product-004", 5))
	p, _ = svc.GetByID(ctx, "product-004")
	assert.Equal(t, 8, p.Quantity)

	// product-004 started inside the low-stock band
	assert.Equal(t, 0, pub.count(domain.TopicInventoryAlert))

	_, err = svc.Reserve(ctx, "ghost", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInventory_ConcurrentReserveNeverOversells(t *testing.T) {
	svc, _, _ := newTestInventory(t)
	ctx := context.Background()

	var ok, failed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Reserve(ctx, "product-002", 1); err == nil {
				ok.Add(1)
			} else {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	p, err := svc.GetByID(ctx, "product-002")
	require.NoError(t, err)
	assert.Equal(t, int32(50), ok.Load()+int32(p.Quantity))
	assert.GreaterOrEqual(t, p.Quantity, 0)
	assert.Equal(t, int32(60), ok.Load()+failed.Load())
}

func TestInventory_FallsBackToMemoryWhenStoreFails(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	svc := NewInventoryService(brokenStore{}, &mockPublisher{}, zap.New(core), 0)
	ctx := context.Background()

	page := svc.List(ctx, 1, 10)
	assert.Equal(t, 5, page.Total)

	p, err := svc.UpdateQuantity(ctx, "product-003", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Quantity)

	got, err := svc.GetByID(ctx, "product-003")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Quantity)

	assert.Positive(t, logs.FilterMessage("state store read failed, using in-memory copy").Len())
}

func TestInventory_SeedKeepsExistingKeys(t *testing.T) {
	svc, store, _ := newTestInventory(t)
	ctx := context.Background()

	_, err := svc.UpdateQuantity(ctx, "product-005", 2)
	require.NoError(t, err)
	require.NoError(t, svc.Seed(ctx))

	item, err := store.Get(ctx, "product-005")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 2, decodeStored[domain.Product](item.Value).Quantity)

	item, err = store.Get(ctx, "product-001")
	require.NoError(t, err)
	assert.NotNil(t, item)
}
