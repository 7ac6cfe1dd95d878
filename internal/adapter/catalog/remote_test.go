package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	daprclient "github.com/dapr/go-sdk/client"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/dapr-shop/internal/core/domain"
)

// fakeInventory answers invocations the way the backend's inventory API
// does behind a sidecar.
type fakeInventory struct {
	mu       sync.Mutex
	products map[string]domain.Product
	err      error
	putErr   error
	calls    []string
}

func (f *fakeInventory) InvokeMethod(ctx context.Context, appID, methodName, verb string) ([]byte, error) {
	return f.InvokeMethodWithContent(ctx, appID, methodName, verb, nil)
}

func (f *fakeInventory) InvokeMethodWithContent(_ context.Context, appID, methodName, verb string, content *daprclient.DataContent) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, verb+" "+appID+"/"+methodName)
	if f.err != nil {
		return nil, f.err
	}

	rest := strings.TrimPrefix(methodName, "api/inventory/")
	id, isQuantity := strings.CutSuffix(rest, "/quantity")
	if isQuantity && f.putErr != nil {
		return nil, f.putErr
	}
	p, ok := f.products[id]
	if !ok {
		return nil, status.Error(codes.NotFound, "Product not found")
	}
	if isQuantity && verb == "put" {
		var body struct {
			Quantity int `json:"quantity"`
		}
		if err := json.Unmarshal(content.Data, &body); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		p.Quantity = body.Quantity
		f.products[id] = p
	}
	return json.Marshal(map[string]any{"success": true, "data": p})
}

func (f *fakeInventory) quantity(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Quantity
}

func (f *fakeInventory) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func demoInventory() *fakeInventory {
	products := map[string]domain.Product{}
	for _, p := range domain.DemoProducts(time.Now()) {
		products[p.ID] = p
	}
	return &fakeInventory{products: products}
}

func TestRemoteCatalog_Reserve(t *testing.T) {
	inv := demoInventory()
	c := NewRemoteCatalog(inv, "inventory-service", zap.NewNop())
	ctx := context.Background()

	p, err := c.Reserve(ctx, "product-002", 5)
	require.NoError(t, err)
	assert.Equal(t, "Wireless Mouse", p.Name)
	assert.Equal(t, 50, p.Quantity)
	assert.Equal(t, 45, inv.quantity("product-002"))

	require.NoError(t, c.Release(ctx, "product-002", 5))
	assert.Equal(t, 50, inv.quantity("product-002"))
	assert.Equal(t, "put inventory-service/api/inventory/product-002/quantity", inv.calls[1])
}

func TestRemoteCatalog_Errors(t *testing.T) {
	inv := demoInventory()
	c := NewRemoteCatalog(inv, "inventory-service", zap.NewNop())
	ctx := context.Background()

	_, err := c.Reserve(ctx, "product-004", 9)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 8, inv.quantity("product-004"))

	_, err = c.Reserve(ctx, "ghost", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.EqualError(t, err, "Product ghost not found")

	inv.fail(status.Error(codes.InvalidArgument, "bad quantity"))
	_, err = c.Reserve(ctx, "product-001", 1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	inv.fail(status.Error(codes.Aborted, "busy"))
	_, err = c.Reserve(ctx, "product-001", 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRemoteCatalog_NotFoundOnQuantityUpdateKeepsMessage(t *testing.T) {
	inv := demoInventory()
	inv.putErr = status.Error(codes.NotFound, "")
	c := NewRemoteCatalog(inv, "inventory-service", zap.NewNop())
	ctx := context.Background()

	_, err := c.Reserve(ctx, "product-002", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.EqualError(t, err, "Product product-002 not found")

	err = c.Release(ctx, "product-002", 1)
	assert.EqualError(t, err, "Product product-002 not found")
}

func TestRemoteCatalog_UnavailableUsesPlaceholder(t *testing.T) {
	inv := demoInventory()
	inv.fail(status.Error(codes.Unavailable, "no healthy upstream"))
	c := NewRemoteCatalog(inv, "inventory-service", zap.NewNop())

	p, err := c.Reserve(context.Background(), "product-001", 3)
	require.NoError(t, err)
	assert.Equal(t, "Product product-001", p.Name)
	assert.True(t, decimal.RequireFromString("10").Equal(p.Price))

	inv.fail(errors.New("dial tcp 127.0.0.1:50001: connect: connection refused"))
	p, err = c.Reserve(context.Background(), "product-001", 1)
	require.NoError(t, err)
	assert.Equal(t, "Product product-001", p.Name)
}
