package mongostore

import (
	"context"
	"log"
	"regexp"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PlaceOrder decrements stock line by line with a guarded $inc, then inserts
// the order and clears the cart. Any failure before the order is written
// puts the stock taken so far back.
func (s *Store) PlaceOrder(ctx context.Context, req store.PlaceOrderRequest) (*models.Order, error) {
	taken := make([]models.CheckoutLine, 0, len(req.Lines))
	fail := func(err error) (*models.Order, error) {
		s.restock(context.WithoutCancel(ctx), taken)
		return nil, err
	}

	snapshots := make([]models.OrderLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		p, err := s.GetProduct(ctx, l.ProductID)
		if err != nil {
			return fail(err)
		}

		filter := bson.M{"_id": l.ProductID, "quantity": bson.M{"$gte": l.Quantity}}
		update := bson.M{
			"$inc": bson.M{"quantity": -l.Quantity},
			"$set": bson.M{"updated_at": req.CreatedAt},
		}
		res, err := s.updateOne(ctx, colProducts, filter, update)
		if err != nil {
			return fail(apperr.Storage("decrement stock", err))
		}
		if res.MatchedCount == 0 {
			available := p.Quantity
			if cur, err := s.GetProduct(ctx, l.ProductID); err == nil {
				available = cur.Quantity
			}
			return fail(&apperr.StockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   l.Quantity,
				Available:   available,
			})
		}
		taken = append(taken, l)
		snapshots = append(snapshots, models.SnapshotLine(p, l.Quantity))
	}

	order := models.NewOrder(req.OrderID, req.CustomerID, snapshots, req.CreatedAt)
	doc, err := newOrderDoc(order)
	if err != nil {
		return fail(apperr.Storage("encode order", err))
	}
	if err := s.insertOne(ctx, colOrders, doc); err != nil {
		return fail(apperr.Storage("insert order", err))
	}

	// The order is committed from here on; a stale cart is only cosmetic.
	empty := bson.M{"$set": bson.M{"lines": []cartLineDoc{}, "updated_at": req.CreatedAt}}
	if _, err := s.updateOne(ctx, colCarts, bson.M{"_id": req.CustomerID}, empty); err != nil {
		log.Printf("[MONGO] Warning: order %s placed but cart for %s not cleared: %v", order.ID, req.CustomerID, err)
	}

	log.Printf("[ORDER] Order %s committed: customer=%s items=%d total=%s",
		order.ID, order.CustomerID, len(order.Lines), order.TotalPrice.StringFixed(2))
	return order, nil
}

// restock reverses decrements applied by a checkout that did not complete
func (s *Store) restock(ctx context.Context, lines []models.CheckoutLine) {
	for _, l := range lines {
		update := bson.M{
			"$inc": bson.M{"quantity": l.Quantity},
			"$set": bson.M{"updated_at": s.now().UTC()},
		}
		if _, err := s.updateOne(ctx, colProducts, bson.M{"_id": l.ProductID}, update); err != nil {
			log.Printf("[MONGO] ERROR: failed to restock %d of product %s: %v", l.Quantity, l.ProductID, err)
		}
	}
}

// GetOrder fetches an order by id
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var doc orderDoc
	if err := s.findOne(ctx, colOrders, bson.M{"_id": id}, &doc); err != nil {
		return nil, notFoundOr(err, "order", id, "get order")
	}
	o, err := doc.model()
	if err != nil {
		return nil, apperr.Storage("decode order", err)
	}
	return &o, nil
}

// ListOrdersByCustomer returns the customer's orders newest first
func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	return s.listOrders(ctx, bson.M{"customer": customerID}, newestFirst())
}

// ListOrdersByStatus returns orders whose status is one of statuses, oldest first
func (s *Store) ListOrdersByStatus(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	if len(statuses) == 0 {
		return []models.Order{}, nil
	}
	// Older records carry capitalised statuses such as "Delivered"
	in := make(bson.A, len(statuses))
	for i, st := range statuses {
		in[i] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(string(st)) + "$", Options: "i"}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.listOrders(ctx, bson.M{"status": bson.M{"$in": in}}, opts)
}

func (s *Store) listOrders(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Order, error) {
	var docs []orderDoc
	if err := s.find(ctx, colOrders, filter, opts, &docs); err != nil {
		return nil, apperr.Storage("list orders", err)
	}
	orders := make([]models.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.model()
		if err != nil {
			return nil, apperr.Storage("decode order", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}
