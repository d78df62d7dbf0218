// Package store declares the persistence contract shared by the MySQL, MongoDB
// and in-memory backends.
//
// Implementations return errors wrapping the kinds in package apperr: a missing
// row is apperr.ErrNotFound, a duplicate key is apperr.ErrConflict and any
// driver failure is apperr.ErrStorage.
package store

import (
	"context"
	"time"

	"github.com/agrichain/marketplace/internal/models"
	"github.com/shopspring/decimal"
)

// Store is the full persistence surface used by the services
type Store interface {
	Accounts
	Carts
	Catalog
	Orders

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Accounts persists registered users
type Accounts interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string, role models.Role) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// Carts persists customer carts. A customer without a stored cart has an
// empty one.
//
// Carts are changed one line at a time, each change atomic in the store, so
// a concurrent checkout clearing the cart is never overwritten by a stale copy.
type Carts interface {
	GetCart(ctx context.Context, customerID string) ([]models.CartLine, error)
	// AdjustCartLine applies models.ApplyCartDelta for item to the stored cart
	AdjustCartLine(ctx context.Context, customerID string, item models.CartLine, delta int) error
	// RemoveCartLine drops the line for productID; a missing line is not an error
	RemoveCartLine(ctx context.Context, customerID, productID string) error
	CountActiveCarts(ctx context.Context) (int, error)
}

// Catalog persists product lines and products
type Catalog interface {
	CreateProductLine(ctx context.Context, l *models.ProductLine) error
	GetProductLine(ctx context.Context, id string) (*models.ProductLine, error)
	GetProductLineByBatch(ctx context.Context, batchID string) (*models.ProductLine, error)
	ListProductLines(ctx context.Context, farmerID string) ([]models.ProductLine, error)
	SetProductLineStatus(ctx context.Context, id string, status models.ProductLineStatus) (*models.ProductLine, error)

	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, error)
	UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// ProductUpdate carries the editable product fields. Nil fields are left alone.
type ProductUpdate struct {
	Price    *decimal.Decimal
	Quantity *int
}

// Orders persists checkouts
type Orders interface {
	// PlaceOrder converts checkout lines into an order atomically: either every
	// product is decremented, the order inserted and the cart cleared, or
	// nothing changes. A missing product fails with apperr.ErrNotFound and a
	// short one with *apperr.StockError.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error)
	ListOrdersByStatus(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error)
}

// PlaceOrderRequest is a validated checkout ready for the store
type PlaceOrderRequest struct {
	OrderID    string
	CustomerID string
	Lines      []models.CheckoutLine
	CreatedAt  time.Time
}
