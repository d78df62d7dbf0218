package mysqlstore

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
)

const orderColumns = "id, customer_id, farmer_id, total_price, status, created_at"

// PlaceOrder checks stock, decrements it, writes the order and clears the
// cart inside one transaction. Product rows are locked in id order so two
// concurrent checkouts over the same products cannot deadlock each other.
func (s *Store) PlaceOrder(ctx context.Context, req store.PlaceOrderRequest) (*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Storage("begin transaction", err)
	}
	defer tx.Rollback()

	// ============================================
	// LOCK PRODUCT ROWS
	// ============================================
	ids := make([]string, 0, len(req.Lines))
	seen := make(map[string]bool, len(req.Lines))
	for _, l := range req.Lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	sort.Strings(ids)

	locked := make(map[string]*models.Product, len(ids))
	for _, id := range ids {
		p, err := s.getProduct(ctx, tx, id, " FOR UPDATE")
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		locked[id] = p
	}

	// ============================================
	// VALIDATE IN REQUEST ORDER
	// ============================================
	snapshots := make([]models.OrderLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		p, ok := locked[l.ProductID]
		if !ok {
			return nil, apperr.NotFound("product", l.ProductID)
		}
		if p.Quantity < l.Quantity {
			return nil, &apperr.StockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   l.Quantity,
				Available:   p.Quantity,
			}
		}
		p.Quantity -= l.Quantity
		snapshots = append(snapshots, models.SnapshotLine(p, l.Quantity))
	}

	// ============================================
	// DECREMENT STOCK
	// ============================================
	decrement := `UPDATE products SET quantity = quantity - ?, updated_at = ? WHERE id = ? AND quantity >= ?`
	for _, l := range req.Lines {
		res, err := s.exec(ctx, tx, "UPDATE", "products", decrement, l.Quantity, req.CreatedAt, l.ProductID, l.Quantity)
		if err != nil {
			return nil, apperr.Storage("decrement stock", err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return nil, &apperr.StockError{ProductID: l.ProductID, ProductName: locked[l.ProductID].Name, Requested: l.Quantity}
		}
	}

	// ============================================
	// CREATE ORDER
	// ============================================
	order := models.NewOrder(req.OrderID, req.CustomerID, snapshots, req.CreatedAt)

	insertOrder := `INSERT INTO orders (` + orderColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.exec(ctx, tx, "INSERT", "orders", insertOrder,
		order.ID, order.CustomerID, order.FarmerID, order.TotalPrice, order.Status, order.CreatedAt); err != nil {
		return nil, apperr.Storage("insert order", err)
	}

	insertItem := `INSERT INTO order_items (order_id, position, product_id, product_line_id, farmer_id, name, unit, quantity, price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i, l := range order.Lines {
		if _, err := s.exec(ctx, tx, "INSERT", "order_items", insertItem,
			order.ID, i, l.ProductID, l.ProductLineID, l.FarmerID, l.Name, l.Unit, l.Quantity, l.Price); err != nil {
			return nil, apperr.Storage("insert order item", err)
		}
	}

	if _, err := s.exec(ctx, tx, "DELETE", "cart_items",
		`DELETE FROM cart_items WHERE customer_id = ?`, req.CustomerID); err != nil {
		return nil, apperr.Storage("clear cart", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("commit order", err)
	}

	log.Printf("[ORDER] Order %s committed: customer=%s items=%d total=%s",
		order.ID, order.CustomerID, len(order.Lines), order.TotalPrice.StringFixed(2))
	return order, nil
}

// GetOrder fetches an order with its lines
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	orders, err := s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, apperr.NotFound("order", id)
	}
	return &orders[0], nil
}

// ListOrdersByCustomer returns the customer's orders newest first
func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	return s.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = ? ORDER BY created_at DESC, id`, customerID)
}

// ListOrdersByStatus returns orders whose status is one of statuses, oldest first
func (s *Store) ListOrdersByStatus(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	if len(statuses) == 0 {
		return []models.Order{}, nil
	}
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}
	return s.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status IN (`+placeholders(len(statuses))+`) ORDER BY created_at, id`, args...)
}

func (s *Store) listOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := s.query(ctx, s.db, "orders", query, args...)
	if err != nil {
		return nil, apperr.Storage("list orders", err)
	}

	orders := []models.Order{}
	index := make(map[string]int)
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.FarmerID, &o.TotalPrice, &o.Status, &o.CreatedAt); err != nil {
			rows.Close()
			return nil, apperr.Storage("scan order", err)
		}
		o.Lines = []models.OrderLine{}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list orders", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]any, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	itemQuery := `SELECT order_id, product_id, product_line_id, farmer_id, name, unit, quantity, price
		FROM order_items WHERE order_id IN (` + placeholders(len(ids)) + `) ORDER BY order_id, position`
	itemRows, err := s.query(ctx, s.db, "order_items", itemQuery, ids...)
	if err != nil {
		return nil, apperr.Storage("list order items", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID string
			l       models.OrderLine
		)
		if err := itemRows.Scan(&orderID, &l.ProductID, &l.ProductLineID, &l.FarmerID,
			&l.Name, &l.Unit, &l.Quantity, &l.Price); err != nil {
			return nil, apperr.Storage("scan order item", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Lines = append(orders[i].Lines, l)
		}
	}
	return orders, apperr.Storage("list order items", itemRows.Err())
}
