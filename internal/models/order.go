package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one pending purchase in a customer's cart.
// Name and Price are snapshots taken when the line was last touched.
type CartLine struct {
	ProductID string          `json:"product"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
}

// ApplyCartDelta adds delta to the line for item.ProductID and refreshes its
// name and price from item. A line whose quantity drops to zero or below is
// removed; a missing line is appended only for a positive delta. The input
// slice is not modified. changed reports whether anything changed.
func ApplyCartDelta(lines []CartLine, item CartLine, delta int) (out []CartLine, changed bool) {
	if delta == 0 {
		return lines, false
	}
	for i, l := range lines {
		if l.ProductID != item.ProductID {
			continue
		}
		out = make([]CartLine, 0, len(lines))
		out = append(out, lines[:i]...)
		if qty := l.Quantity + delta; qty > 0 {
			item.Quantity = qty
			out = append(out, item)
		}
		return append(out, lines[i+1:]...), true
	}
	if delta < 0 {
		return lines, false
	}
	out = make([]CartLine, len(lines), len(lines)+1)
	copy(out, lines)
	item.Quantity = delta
	return append(out, item), true
}

// HydratedCartLine is a cart line enriched with live product fields for display
type HydratedCartLine struct {
	CartLine
	Unit              string `json:"unit"`
	Image             string `json:"image"`
	AvailableQuantity int    `json:"availableQuantity"`
}

// CheckoutLine is one client-submitted {product, quantity} pair
type CheckoutLine struct {
	ProductID string `json:"product"`
	Quantity  int    `json:"quantity"`
}

// CartDeltaRequest represents POST /customers/cart/add
type CartDeltaRequest struct {
	Customer string `json:"customer"`
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

// CartRemoveRequest represents POST /customers/cart/remove
type CartRemoveRequest struct {
	Customer string `json:"customer"`
	Product  string `json:"product"`
}

// CheckoutRequest represents POST /checkout
type CheckoutRequest struct {
	Customer string         `json:"customer"`
	Cart     []CheckoutLine `json:"cart"`
}

// OrderStatus tags an order
type OrderStatus string

const (
	OrderSuccess   OrderStatus = "success"
	OrderFail      OrderStatus = "fail"
	OrderCompleted OrderStatus = "completed"
	OrderDelivered OrderStatus = "delivered"
)

// CompletedStatuses are the statuses counted as revenue
var CompletedStatuses = []OrderStatus{OrderSuccess, OrderCompleted, OrderDelivered}

// IsCompleted reports whether the order counts towards revenue
func (s OrderStatus) IsCompleted() bool {
	for _, c := range CompletedStatuses {
		if strings.EqualFold(string(s), string(c)) {
			return true
		}
	}
	return false
}

// OrderLine is a purchase-time snapshot of one product
type OrderLine struct {
	ProductID     string          `json:"product" db:"product_id"`
	ProductLineID string          `json:"productLine,omitempty" db:"product_line_id"`
	FarmerID      string          `json:"farmer,omitempty" db:"farmer_id"`
	Name          string          `json:"name" db:"name"`
	Unit          string          `json:"unit" db:"unit"`
	Quantity      int             `json:"quantity" db:"quantity"`
	Price         decimal.Decimal `json:"price" db:"price"`
}

// Total returns price × quantity
func (l OrderLine) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is an immutable record of a completed checkout
type Order struct {
	ID         string          `json:"id" db:"id"`
	CustomerID string          `json:"customer" db:"customer_id"`
	FarmerID   string          `json:"farmer,omitempty" db:"farmer_id"`
	Lines      []OrderLine     `json:"products"`
	TotalPrice decimal.Decimal `json:"totalPrice" db:"total_price"`
	Status     OrderStatus     `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

// NewOrder builds a successful order from snapshot lines. TotalPrice is
// fixed here and never recomputed. FarmerID is set only when every line
// comes from the same farmer.
func NewOrder(id, customerID string, lines []OrderLine, createdAt time.Time) *Order {
	total := decimal.Zero
	farmer := ""
	for i, l := range lines {
		total = total.Add(l.Total())
		switch {
		case i == 0:
			farmer = l.FarmerID
		case farmer != l.FarmerID:
			farmer = ""
		}
	}
	return &Order{
		ID:         id,
		CustomerID: customerID,
		FarmerID:   farmer,
		Lines:      lines,
		TotalPrice: total,
		Status:     OrderSuccess,
		CreatedAt:  createdAt,
	}
}

// SnapshotLine copies the product attributes an order keeps
func SnapshotLine(p *Product, quantity int) OrderLine {
	return OrderLine{
		ProductID:     p.ID,
		ProductLineID: p.ProductLineID,
		FarmerID:      p.FarmerID,
		Name:          p.Name,
		Unit:          p.Unit,
		Quantity:      quantity,
		Price:         p.Price,
	}
}

// ProductLineSales is the purchased quantity tallied for one product line
type ProductLineSales struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TotalSold int    `json:"totalSold"`
}

// Overview is the revenue / best-seller aggregation
type Overview struct {
	Revenue        decimal.Decimal   `json:"revenue"`
	TopProductLine *ProductLineSales `json:"topProductLine"`
	QuarterStart   time.Time         `json:"quarterStart"`
}

// FarmerOverview extends Overview with the farmer's own catalog
type FarmerOverview struct {
	Overview
	ProductLines []ProductLine `json:"productLines"`
	Products     []Product     `json:"products"`
	MostStock    *Product      `json:"mostStock"`
}
