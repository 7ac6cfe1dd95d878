package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLowStockThreshold is the quantity at or below which a product is
// considered low on stock.
const DefaultLowStockThreshold = 10

func init() {
	// Prices and totals go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryBooks       Category = "books"
	CategoryHomeGarden  Category = "home_garden"
	CategorySports      Category = "sports"
	CategoryOther       Category = "other"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Category    Category        `json:"category"`
	SKU         string          `json:"sku,omitempty"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProductInput carries the caller-supplied fields of a new product.
type ProductInput struct {
	Name        string          `json:"name" validate:"required,min=1,max=200"`
	Description string          `json:"description" validate:"required,max=1000"`
	Price       decimal.Decimal `json:"price" validate:"gt=0"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	Category    Category        `json:"category" validate:"required,oneof=electronics clothing books home_garden sports other"`
	SKU         string          `json:"sku,omitempty" validate:"omitempty,max=50"`
	ImageURL    string          `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// ProductPatch carries a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=1000"`
	Price       *decimal.Decimal `json:"price,omitempty" validate:"omitempty,gt=0"`
	Quantity    *int             `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	Category    *Category        `json:"category,omitempty" validate:"omitempty,oneof=electronics clothing books home_garden sports other"`
	SKU         *string          `json:"sku,omitempty" validate:"omitempty,max=50"`
	ImageURL    *string          `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// Apply merges the non-nil fields of the patch over p.
func (patch ProductPatch) Apply(p *Product) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.SKU != nil {
		p.SKU = *patch.SKU
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
}

// StockLevel reports how an alerting quantity should be described.
func StockLevel(quantity int) string {
	if quantity <= 0 {
		return "out_of_stock"
	}
	return "low_stock"
}

// CrossedLowStock reports whether a quantity change moved a product into the
// low-stock band. Staying inside the band does not count.
func CrossedLowStock(before, after, threshold int) bool {
	return after <= threshold && before > threshold
}

// DemoProducts returns the fixed sample catalog, stamped with now.
func DemoProducts(now time.Time) []Product {
	p := func(id, name, desc, price string, qty int, cat Category, sku, img string) Product {
		return Product{
			ID:          id,
			Name:        name,
			Description: desc,
			Price:       decimal.RequireFromString(price),
			Quantity:    qty,
			Category:    cat,
			SKU:         sku,
			ImageURL:    img,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	return []Product{
		p("product-001", "Gaming Laptop", "High-performance gaming laptop with RTX 4080", "1899.99", 15,
			CategoryElectronics, "LAPTOP-GAMING-001", "https://example.com/images/gaming-laptop.jpg"),
		p("product-002", "Wireless Mouse", "Ergonomic wireless mouse with RGB lighting", "29.99", 50,
			CategoryElectronics, "MOUSE-WIRELESS-001", "https://example.com/images/wireless-mouse.jpg"),
		p("product-003", "Mechanical Keyboard", "Cherry MX Blue mechanical keyboard", "79.99", 25,
			CategoryElectronics, "KEYBOARD-MECH-001", ""),
		p("product-004", "Running Shoes", "Lightweight running shoes for athletes", "129.99", 8,
			CategorySports, "SHOES-RUNNING-001", ""),
		p("product-005", "JavaScript Guide", "Complete guide to modern JavaScript development", "39.99", 30,
			CategoryBooks, "BOOK-JS-001", ""),
	}
}
