// Package mongostore implements store.Store on MongoDB.
//
// Checkout does not rely on multi-document transactions, which need a
// replica set. Each stock decrement is a conditional $inc that only matches
// while enough stock remains; if a later step fails the decrements already
// applied are reversed.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const system = "mongodb"

// Collection names
const (
	colAccounts     = "accounts"
	colCarts        = "carts"
	colProductLines = "product_lines"
	colProducts     = "products"
	colOrders       = "orders"
)

var _ store.Store = (*Store)(nil)

// Store is the MongoDB-backed store
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	metrics *metrics.AppMetrics
	now     func() time.Time
}

// Connect dials uri, verifies the connection and makes sure indexes exist
func Connect(ctx context.Context, uri, database string, m *metrics.AppMetrics) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := New(client, client.Database(database), m)
	if err := s.EnsureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	log.Printf("[MONGO] Connected to database %q", database)
	return s, nil
}

// New wraps an existing client and database
func New(client *mongo.Client, db *mongo.Database, m *metrics.AppMetrics) *Store {
	return &Store{client: client, db: db, metrics: m, now: time.Now}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "email_key", Value: 1}, {Key: "role", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colProductLines: {
			{Keys: bson.D{{Key: "batch_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "farmer_id", Value: 1}}},
		},
		colProducts: {
			{Keys: bson.D{{Key: "farmer_id", Value: 1}}},
			{Keys: bson.D{{Key: "product_line_id", Value: 1}}},
		},
		colOrders: {
			{Keys: bson.D{{Key: "customer", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
	}
	for col, idx := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", col, err)
		}
	}
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) record(ctx context.Context, op, collection string, start time.Time, err error) {
	ok := err == nil || errors.Is(err, mongo.ErrNoDocuments)
	s.metrics.RecordDBQuery(ctx, system, op, collection, collection+"."+op, start, ok)
}

func (s *Store) findOne(ctx context.Context, collection string, filter any, dest any) error {
	start := time.Now()
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(dest)
	s.record(ctx, "findOne", collection, start, err)
	return err
}

func (s *Store) find(ctx context.Context, collection string, filter any, opts *options.FindOptions, dest any) error {
	start := time.Now()
	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err == nil {
		err = cur.All(ctx, dest)
	}
	s.record(ctx, "find", collection, start, err)
	return err
}

func (s *Store) insertOne(ctx context.Context, collection string, doc any) error {
	start := time.Now()
	_, err := s.db.Collection(collection).InsertOne(ctx, doc)
	s.record(ctx, "insertOne", collection, start, err)
	return err
}

func (s *Store) updateOne(ctx context.Context, collection string, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	start := time.Now()
	res, err := s.db.Collection(collection).UpdateOne(ctx, filter, update, opts...)
	s.record(ctx, "updateOne", collection, start, err)
	return res, err
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
}

func notFoundOr(err error, entity, id, op string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound(entity, id)
	}
	return apperr.Storage(op, err)
}

// ============================================
// ACCOUNTS
// ============================================

// CreateAccount inserts an account. Email is unique per role, ignoring case.
func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	err := s.insertOne(ctx, colAccounts, newAccountDoc(a))
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("%s with email %s", a.Role, a.Email)
	}
	return apperr.Storage("create account", err)
}

// GetAccount fetches an account by id
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var doc accountDoc
	if err := s.findOne(ctx, colAccounts, bson.M{"_id": id}, &doc); err != nil {
		return nil, notFoundOr(err, "account", id, "get account")
	}
	a := doc.model()
	return &a, nil
}

// GetAccountByEmail fetches the account registered with email for role
func (s *Store) GetAccountByEmail(ctx context.Context, email string, role models.Role) (*models.Account, error) {
	var doc accountDoc
	filter := bson.M{"email_key": emailKey(email), "role": string(role)}
	if err := s.findOne(ctx, colAccounts, filter, &doc); err != nil {
		return nil, notFoundOr(err, string(role), email, "get account")
	}
	a := doc.model()
	return &a, nil
}

// ListAccounts returns every account in registration order
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var docs []accountDoc
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if err := s.find(ctx, colAccounts, bson.M{}, opts, &docs); err != nil {
		return nil, apperr.Storage("list accounts", err)
	}
	accounts := make([]models.Account, len(docs))
	for i, d := range docs {
		accounts[i] = d.model()
	}
	return accounts, nil
}

// ============================================
// CARTS
// ============================================

// GetCart returns the customer's cart lines in insertion order
func (s *Store) GetCart(ctx context.Context, customerID string) ([]models.CartLine, error) {
	var doc cartDoc
	err := s.findOne(ctx, colCarts, bson.M{"_id": customerID}, &doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []models.CartLine{}, nil
	}
	if err != nil {
		return nil, apperr.Storage("get cart", err)
	}

	lines := make([]models.CartLine, len(doc.Lines))
	for i, l := range doc.Lines {
		price, err := fromDecimal128(l.Price)
		if err != nil {
			return nil, apperr.Storage("decode cart price", err)
		}
		lines[i] = models.CartLine{ProductID: l.ProductID, Quantity: l.Quantity, Name: l.Name, Price: price}
	}
	return lines, nil
}

// AdjustCartLine changes one line with a single pipeline update on the cart
// document, so concurrent writers and checkout never overwrite each other.
func (s *Store) AdjustCartLine(ctx context.Context, customerID string, item models.CartLine, delta int) error {
	if delta == 0 {
		return nil
	}
	price, err := toDecimal128(item.Price)
	if err != nil {
		return apperr.Validation("invalid price %s", item.Price)
	}
	_, err = s.updateOne(ctx, colCarts, bson.M{"_id": customerID}, cartDeltaPipeline(item, price, delta, s.now().UTC()),
		options.Update().SetUpsert(true))
	return apperr.Storage("adjust cart line", err)
}

// cartDeltaPipeline mirrors models.ApplyCartDelta as an update pipeline.
// Client strings are wrapped in $literal so they are never read as field paths.
func cartDeltaPipeline(item models.CartLine, price primitive.Decimal128, delta int, now time.Time) mongo.Pipeline {
	product := bson.M{"$literal": item.ProductID}
	name := bson.M{"$literal": item.Name}

	bumped := bson.M{"$map": bson.M{
		"input": "$lines",
		"as":    "l",
		"in": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$$l.product", product}},
			bson.M{"$mergeObjects": bson.A{"$$l", bson.M{
				"quantity": bson.M{"$add": bson.A{"$$l.quantity", delta}},
				"name":     name,
				"price":    price,
			}}},
			"$$l",
		}},
	}}
	existing := bson.M{"$filter": bson.M{
		"input": bumped,
		"as":    "l",
		"cond":  bson.M{"$gt": bson.A{"$$l.quantity", 0}},
	}}

	var missing any = "$lines"
	if delta > 0 {
		missing = bson.M{"$concatArrays": bson.A{"$lines", bson.A{bson.M{
			"product":  product,
			"quantity": delta,
			"name":     name,
			"price":    price,
		}}}}
	}

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"lines": bson.M{"$ifNull": bson.A{"$lines", bson.A{}}}}}},
		{{Key: "$set", Value: bson.M{
			"lines": bson.M{"$cond": bson.M{
				"if":   bson.M{"$in": bson.A{product, "$lines.product"}},
				"then": existing,
				"else": missing,
			}},
			"updated_at": now,
		}}},
	}
}

// RemoveCartLine pulls the line for productID
func (s *Store) RemoveCartLine(ctx context.Context, customerID, productID string) error {
	update := bson.M{
		"$pull": bson.M{"lines": bson.M{"product": productID}},
		"$set":  bson.M{"updated_at": s.now().UTC()},
	}
	_, err := s.updateOne(ctx, colCarts, bson.M{"_id": customerID}, update)
	return apperr.Storage("remove cart line", err)
}

// CountActiveCarts counts customers with at least one cart line
func (s *Store) CountActiveCarts(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.db.Collection(colCarts).CountDocuments(ctx, bson.M{"lines.0": bson.M{"$exists": true}})
	s.record(ctx, "countDocuments", colCarts, start, err)
	if err != nil {
		return 0, apperr.Storage("count carts", err)
	}
	return int(n), nil
}

// ============================================
// PRODUCT LINES
// ============================================

// CreateProductLine inserts a product line. BatchID is unique.
func (s *Store) CreateProductLine(ctx context.Context, l *models.ProductLine) error {
	err := s.insertOne(ctx, colProductLines, newProductLineDoc(l))
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("product line with batch id %s", l.BatchID)
	}
	return apperr.Storage("create product line", err)
}

// GetProductLine fetches a product line by id
func (s *Store) GetProductLine(ctx context.Context, id string) (*models.ProductLine, error) {
	return s.getProductLine(ctx, bson.M{"_id": id}, id)
}

// GetProductLineByBatch fetches a product line by its batch id
func (s *Store) GetProductLineByBatch(ctx context.Context, batchID string) (*models.ProductLine, error) {
	return s.getProductLine(ctx, bson.M{"batch_id": batchID}, batchID)
}

func (s *Store) getProductLine(ctx context.Context, filter bson.M, key string) (*models.ProductLine, error) {
	var doc productLineDoc
	if err := s.findOne(ctx, colProductLines, filter, &doc); err != nil {
		return nil, notFoundOr(err, "product line", key, "get product line")
	}
	l := doc.model()
	return &l, nil
}

// ListProductLines returns product lines newest first, optionally for one farmer
func (s *Store) ListProductLines(ctx context.Context, farmerID string) ([]models.ProductLine, error) {
	filter := bson.M{}
	if farmerID != "" {
		filter["farmer_id"] = farmerID
	}
	var docs []productLineDoc
	if err := s.find(ctx, colProductLines, filter, newestFirst(), &docs); err != nil {
		return nil, apperr.Storage("list product lines", err)
	}
	lines := make([]models.ProductLine, len(docs))
	for i, d := range docs {
		lines[i] = d.model()
	}
	return lines, nil
}

// SetProductLineStatus records an admin review decision
func (s *Store) SetProductLineStatus(ctx context.Context, id string, status models.ProductLineStatus) (*models.ProductLine, error) {
	update := bson.M{"$set": bson.M{"status": string(status), "updated_at": s.now().UTC()}}
	res, err := s.updateOne(ctx, colProductLines, bson.M{"_id": id}, update)
	if err != nil {
		return nil, apperr.Storage("set product line status", err)
	}
	if res.MatchedCount == 0 {
		return nil, apperr.NotFound("product line", id)
	}
	return s.GetProductLine(ctx, id)
}

// ============================================
// PRODUCTS
// ============================================

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	doc, err := newProductDoc(p)
	if err != nil {
		return apperr.Validation("invalid price %s", p.Price)
	}
	err = s.insertOne(ctx, colProducts, doc)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("product %s", p.ID)
	}
	return apperr.Storage("create product", err)
}

// GetProduct fetches a product by id
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var doc productDoc
	if err := s.findOne(ctx, colProducts, bson.M{"_id": id}, &doc); err != nil {
		return nil, notFoundOr(err, "product", id, "get product")
	}
	p, err := doc.model()
	if err != nil {
		return nil, apperr.Storage("decode product", err)
	}
	return &p, nil
}

// ListProducts returns products newest first
func (s *Store) ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, error) {
	filter := productFilter(f)
	if f.ApprovedOnly {
		ids, err := s.approvedLineIDs(ctx)
		if err != nil {
			return nil, err
		}
		cond := bson.M{"$in": ids}
		if f.ProductLineID != "" {
			cond["$eq"] = f.ProductLineID
		}
		filter["product_line_id"] = cond
	}

	var docs []productDoc
	if err := s.find(ctx, colProducts, filter, newestFirst(), &docs); err != nil {
		return nil, apperr.Storage("list products", err)
	}
	products := make([]models.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.model()
		if err != nil {
			return nil, apperr.Storage("decode product", err)
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *Store) approvedLineIDs(ctx context.Context) ([]string, error) {
	var docs []struct {
		ID string `bson:"_id"`
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	if err := s.find(ctx, colProductLines, bson.M{"status": string(models.LineApproved)}, opts, &docs); err != nil {
		return nil, apperr.Storage("list approved product lines", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// productFilter translates a ProductFilter into a query document. The
// keyword is matched literally and case-insensitively.
func productFilter(f models.ProductFilter) bson.M {
	filter := bson.M{}
	if f.FarmerID != "" {
		filter["farmer_id"] = f.FarmerID
	}
	if f.ProductLineID != "" {
		filter["product_line_id"] = f.ProductLineID
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		filter["name"] = bson.M{"$regex": regexp.QuoteMeta(kw), "$options": "i"}
	}
	return filter
}

// UpdateProduct applies the non-nil fields of upd
func (s *Store) UpdateProduct(ctx context.Context, id string, upd store.ProductUpdate) (*models.Product, error) {
	set := bson.M{"updated_at": s.now().UTC()}
	if upd.Price != nil {
		price, err := toDecimal128(*upd.Price)
		if err != nil {
			return nil, apperr.Validation("invalid price %s", upd.Price)
		}
		set["price"] = price
	}
	if upd.Quantity != nil {
		set["quantity"] = *upd.Quantity
	}

	res, err := s.updateOne(ctx, colProducts, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return nil, apperr.Storage("update product", err)
	}
	if res.MatchedCount == 0 {
		return nil, apperr.NotFound("product", id)
	}
	return s.GetProduct(ctx, id)
}

// DeleteProduct removes a product. Order snapshots are unaffected.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	start := time.Now()
	res, err := s.db.Collection(colProducts).DeleteOne(ctx, bson.M{"_id": id})
	s.record(ctx, "deleteOne", colProducts, start, err)
	if err != nil {
		return apperr.Storage("delete product", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("product", id)
	}
	return nil
}
