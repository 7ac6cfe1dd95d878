// Package catalog reaches the inventory of another app through Dapr service
// invocation.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	daprclient "github.com/dapr/go-sdk/client"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/dapr-shop/internal/core/domain"
)

// PlaceholderPrice is charged for items whose product could not be looked up
// because the inventory app was unreachable.
var PlaceholderPrice = decimal.RequireFromString("10.00")

// invokeTimeout bounds each call through the sidecar.
const invokeTimeout = 10 * time.Second

var errUnavailable = errors.New("inventory service unavailable")

// Invoker is the subset of the Dapr client used by RemoteCatalog.
type Invoker interface {
	InvokeMethod(ctx context.Context, appID, methodName, verb string) ([]byte, error)
	InvokeMethodWithContent(ctx context.Context, appID, methodName, verb string, content *daprclient.DataContent) ([]byte, error)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// RemoteCatalog reserves stock by reading a product and writing its new
// quantity back. The two calls are not atomic.
type RemoteCatalog struct {
	client Invoker
	appID  string
	logger *zap.Logger
}

func NewRemoteCatalog(client Invoker, appID string, logger *zap.Logger) *RemoteCatalog {
	return &RemoteCatalog{client: client, appID: appID, logger: logger}
}

func (c *RemoteCatalog) Reserve(ctx context.Context, productID string, quantity int) (domain.Product, error) {
	p, err := c.fetch(ctx, productID)
	if errors.Is(err, errUnavailable) {
		c.logger.Warn("could not fetch product details, using defaults", zap.String("productId", productID), zap.Error(err))
		return domain.Product{
			ID:       productID,
			Name:     "Product " + productID,
			Price:    PlaceholderPrice,
			Quantity: quantity,
		}, nil
	}
	if err != nil {
		return domain.Product{}, err
	}
	if p.Quantity < quantity {
		return domain.Product{}, domain.InsufficientStockf("Insufficient inventory for product %s", productID)
	}
	if err := c.setQuantity(ctx, productID, p.Quantity-quantity); err != nil {
		if errors.Is(err, errUnavailable) {
			c.logger.Warn("could not update remote inventory", zap.String("productId", productID), zap.Error(err))
			return p, nil
		}
		return domain.Product{}, err
	}
	return p, nil
}

func (c *RemoteCatalog) Release(ctx context.Context, productID string, quantity int) error {
	p, err := c.fetch(ctx, productID)
	if err != nil {
		return err
	}
	return c.setQuantity(ctx, productID, p.Quantity+quantity)
}

func productPath(productID string) string {
	return "api/inventory/" + url.PathEscape(productID)
}

func (c *RemoteCatalog) fetch(ctx context.Context, productID string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()
	var p domain.Product
	out, err := c.client.InvokeMethod(ctx, c.appID, productPath(productID), "get")
	if err == nil {
		err = decode(out, &p)
	}
	return p, c.mapErr(productID, err)
}

func (c *RemoteCatalog) setQuantity(ctx context.Context, productID string, quantity int) error {
	raw, err := json.Marshal(map[string]int{"quantity": quantity})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()
	out, err := c.client.InvokeMethodWithContent(ctx, c.appID, productPath(productID)+"/quantity", "put",
		&daprclient.DataContent{ContentType: "application/json", Data: raw})
	if err == nil {
		err = decode(out, nil)
	}
	return c.mapErr(productID, err)
}

func decode(out []byte, dst any) error {
	var env envelope
	if len(out) == 0 {
		return nil
	}
	if err := json.Unmarshal(out, &env); err != nil {
		return domain.Internal("decode inventory response", err)
	}
	if dst != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return domain.Internal("decode product", err)
		}
	}
	return nil
}

// mapErr turns invocation failures into domain errors. The sidecar relays
// the app's HTTP status as a gRPC code.
func (c *RemoteCatalog) mapErr(productID string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", errUnavailable, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return domain.NotFoundf("Product %s not found", productID)
	case codes.InvalidArgument:
		return domain.Validationf("inventory rejected request: %s", st.Message())
	case codes.Aborted, codes.AlreadyExists, codes.FailedPrecondition:
		return domain.Conflictf("inventory conflict: %s", st.Message())
	default:
		return fmt.Errorf("%w: %s", errUnavailable, st.Code())
	}
}

var _ Invoker = (daprclient.Client)(nil)
