package domain

import (
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is what a caller submits to place a sale
type Cart struct {
	Items []CartItem
	Notes *string
}

// CartItem is a single requested line
type CartItem struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Subtotal returns quantity x unit price
func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Validate checks the cart shape. Lines are 1-based in errors.
func (c Cart) Validate() error {
	if len(c.Items) == 0 {
		return &EmptyCartError{}
	}
	for i, item := range c.Items {
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			return &InvalidQuantityError{Line: i + 1, Quantity: item.Quantity}
		}
		if item.UnitPrice.IsNegative() {
			return &InvalidPriceError{Line: i + 1, Price: item.UnitPrice}
		}
	}
	return nil
}

// Total is the server-side sum of line subtotals
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// RequestedByProduct sums the requested quantity per product, keeping the
// first-seen order of products. Sums saturate at math.MaxInt.
func (c Cart) RequestedByProduct() ([]uuid.UUID, map[uuid.UUID]int) {
	order := make([]uuid.UUID, 0, len(c.Items))
	requested := make(map[uuid.UUID]int, len(c.Items))
	for _, item := range c.Items {
		if _, seen := requested[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		requested[item.ProductID] = addQuantity(requested[item.ProductID], item.Quantity)
	}
	return order, requested
}

func addQuantity(sum, quantity int) int {
	if quantity > 0 && sum > math.MaxInt-quantity {
		return math.MaxInt
	}
	return sum + quantity
}
