package mysqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var productCols = []string{"id", "product_line_id", "farmer_id", "name", "price", "quantity", "unit", "image", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, metrics.NewNoop()), mock
}

func productRow(id, name string, qty int, price string) *sqlmock.Rows {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(productCols).AddRow(id, "line-1", "farmer-1", name, price, qty, "kg", "", now, now)
}

func TestPlaceOrderCommitsEverything(t *testing.T) {
	s, mock := newMockStore(t)
	createdAt := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM products WHERE id = \? FOR UPDATE`).WithArgs("p1").
		WillReturnRows(productRow("p1", "Rice", 10, "2.50"))
	mock.ExpectQuery(`FROM products WHERE id = \? FOR UPDATE`).WithArgs("p2").
		WillReturnRows(productRow("p2", "Beans", 3, "4.00"))
	mock.ExpectExec(`UPDATE products SET quantity = quantity - \?`).
		WithArgs(2, sqlmock.AnyArg(), "p1", 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE products SET quantity = quantity - \?`).
		WithArgs(3, sqlmock.AnyArg(), "p2", 3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs("o1", "c1", "farmer-1", sqlmock.AnyArg(), "success", createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_items`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_items`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM cart_items WHERE customer_id = \?`).WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	order, err := s.PlaceOrder(context.Background(), store.PlaceOrderRequest{
		OrderID:    "o1",
		CustomerID: "c1",
		Lines:      []models.CheckoutLine{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 3}},
		CreatedAt:  createdAt,
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("17").Equal(order.TotalPrice))
	require.Len(t, order.Lines, 2)
	assert.Equal(t, "Rice", order.Lines[0].Name)
	assert.Equal(t, "line-1", order.Lines[1].ProductLineID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderRollsBackOnShortStock(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM products WHERE id = \? FOR UPDATE`).WithArgs("p1").
		WillReturnRows(productRow("p1", "Rice", 10, "2.50"))
	mock.ExpectQuery(`FROM products WHERE id = \? FOR UPDATE`).WithArgs("p2").
		WillReturnRows(productRow("p2", "Beans", 1, "4.00"))
	mock.ExpectRollback()

	_, err := s.PlaceOrder(context.Background(), store.PlaceOrderRequest{
		OrderID:    "o1",
		CustomerID: "c1",
		Lines:      []models.CheckoutLine{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 3}},
		CreatedAt:  time.Now(),
	})

	var stockErr *apperr.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Beans", stockErr.ProductName)
	assert.Equal(t, 1, stockErr.Available)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderMissingProduct(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM products WHERE id = \? FOR UPDATE`).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows(productCols))
	mock.ExpectRollback()

	_, err := s.PlaceOrder(context.Background(), store.PlaceOrderRequest{
		OrderID:    "o1",
		CustomerID: "c1",
		Lines:      []models.CheckoutLine{{ProductID: "gone", Quantity: 1}},
		CreatedAt:  time.Now(),
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccountDuplicateIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := s.CreateAccount(context.Background(), &models.Account{ID: "a1", Email: "x@y.z", Role: models.RoleCustomer})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM products WHERE id = \?`).WithArgs("nope").WillReturnRows(sqlmock.NewRows(productCols))

	_, err := s.GetProduct(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteProductNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM products WHERE id = \?`).WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.DeleteProduct(context.Background(), "nope"), apperr.ErrNotFound)
}

func TestListProductsBuildsFilters(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM products WHERE farmer_id = \? AND LOWER\(name\) LIKE \? ORDER BY created_at DESC`).
		WithArgs("farmer-1", `%100\%%`).
		WillReturnRows(productRow("p1", "Rice 100%", 4, "1.00"))

	products, err := s.ListProducts(context.Background(), models.ProductFilter{FarmerID: "farmer-1", Keyword: " 100% "})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsApprovedOnly(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM products WHERE product_line_id IN \(SELECT id FROM product_lines WHERE status = \?\) ORDER BY`).
		WithArgs("approved").
		WillReturnRows(productRow("p1", "Rice", 4, "1.00"))

	products, err := s.ListProducts(context.Background(), models.ProductFilter{ApprovedOnly: true})
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustCartLineUpdatesLockedRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT quantity FROM cart_items WHERE customer_id = \? AND product_id = \? FOR UPDATE`).
		WithArgs("c1", "p1").WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(2))
	mock.ExpectExec(`UPDATE cart_items SET quantity = \?, name = \?, price = \?`).
		WithArgs(5, "Rice", sqlmock.AnyArg(), "c1", "p1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.AdjustCartLine(context.Background(), "c1",
		models.CartLine{ProductID: "p1", Name: "Rice", Price: decimal.NewFromFloat(2.5)}, 3)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustCartLineInsertsAtEnd(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM cart_items WHERE customer_id = \? AND product_id = \? FOR UPDATE`).
		WithArgs("c1", "p1").WillReturnRows(sqlmock.NewRows([]string{"quantity"}))
	mock.ExpectExec(`INSERT INTO cart_items .* SELECT .* COALESCE\(MAX\(position\) \+ 1, 0\)`).
		WithArgs("c1", "p1", 2, "Rice", sqlmock.AnyArg(), "c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.AdjustCartLine(context.Background(), "c1", models.CartLine{ProductID: "p1", Name: "Rice"}, 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustCartLineDeletesAtZero(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM cart_items WHERE customer_id = \? AND product_id = \? FOR UPDATE`).
		WithArgs("c1", "p1").WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(2))
	mock.ExpectExec(`DELETE FROM cart_items WHERE customer_id = \? AND product_id = \?`).
		WithArgs("c1", "p1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.AdjustCartLine(context.Background(), "c1", models.CartLine{ProductID: "p1"}, -2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustCartLineNegativeWithoutRowIsNoop(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM cart_items WHERE customer_id = \? AND product_id = \? FOR UPDATE`).
		WithArgs("c1", "p1").WillReturnRows(sqlmock.NewRows([]string{"quantity"}))
	mock.ExpectRollback()

	require.NoError(t, s.AdjustCartLine(context.Background(), "c1", models.CartLine{ProductID: "p1"}, -1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustCartLineRetriesDuplicateInsert(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("c1", "p1").WillReturnRows(sqlmock.NewRows([]string{"quantity"}))
	mock.ExpectExec(`INSERT INTO cart_items`).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("c1", "p1").WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(1))
	mock.ExpectExec(`UPDATE cart_items`).WithArgs(2, "Rice", sqlmock.AnyArg(), "c1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.AdjustCartLine(context.Background(), "c1", models.CartLine{ProductID: "p1", Name: "Rice"}, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveCartLine(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM cart_items WHERE customer_id = \? AND product_id = \?`).
		WithArgs("c1", "p1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.RemoveCartLine(context.Background(), "c1", "p1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersByCustomerAttachesLines(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM orders WHERE customer_id = \?`).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "farmer_id", "total_price", "status", "created_at"}).
			AddRow("o2", "c1", "", "9.00", "success", now).
			AddRow("o1", "c1", "f1", "5.00", "success", now.Add(-time.Hour)))
	mock.ExpectQuery(`FROM order_items WHERE order_id IN \(\?,\?\)`).WithArgs("o2", "o1").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "product_id", "product_line_id", "farmer_id", "name", "unit", "quantity", "price"}).
			AddRow("o1", "p1", "l1", "f1", "Rice", "kg", 2, "2.50").
			AddRow("o2", "p1", "l1", "f1", "Rice", "kg", 2, "2.50").
			AddRow("o2", "p2", "l2", "f2", "Beans", "kg", 1, "4.00"))

	orders, err := s.ListOrdersByCustomer(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o2", orders[0].ID)
	assert.Len(t, orders[0].Lines, 2)
	assert.Len(t, orders[1].Lines, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersByStatusWithNoStatuses(t *testing.T) {
	s, mock := newMockStore(t)
	orders, err := s.ListOrdersByStatus(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}
