package port

import (
	"context"

	"github.com/rl1809/dapr-shop/internal/core/domain"
)

// Catalog is the inventory as seen by the order component.
type Catalog interface {
	// Reserve checks availability and decrements stock, returning the
	// product as it was before the decrement
	Reserve(ctx context.Context, productID string, quantity int) (domain.Product, error)

	// Release gives reserved stock back
	Release(ctx context.Context, productID string, quantity int) error
}
