package mysqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
)

const productLineColumns = `id, name, farmer_id, location, cultivation_process, packaging_unit, certifications,
	harvest_date, batch_id, transportation_route, description, image, qr_code, status, created_at, updated_at`

const productColumns = "id, product_line_id, farmer_id, name, price, quantity, unit, image, created_at, updated_at"

func scanProductLine(row rowScanner) (*models.ProductLine, error) {
	var (
		l       models.ProductLine
		harvest sql.NullTime
	)
	if err := row.Scan(&l.ID, &l.Name, &l.FarmerID, &l.Location, &l.CultivationProcess, &l.PackagingUnit,
		&l.Certifications, &harvest, &l.BatchID, &l.TransportationRoute, &l.Description, &l.Image,
		&l.QRCode, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if harvest.Valid {
		t := harvest.Time
		l.HarvestDate = &t
	}
	return &l, nil
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.ProductLineID, &p.FarmerID, &p.Name, &p.Price, &p.Quantity,
		&p.Unit, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ============================================
// PRODUCT LINES
// ============================================

// CreateProductLine inserts a product line. BatchID is unique.
func (s *Store) CreateProductLine(ctx context.Context, l *models.ProductLine) error {
	var harvest sql.NullTime
	if l.HarvestDate != nil {
		harvest = sql.NullTime{Time: *l.HarvestDate, Valid: true}
	}
	query := `INSERT INTO product_lines (` + productLineColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, s.db, "INSERT", "product_lines", query,
		l.ID, l.Name, l.FarmerID, l.Location, l.CultivationProcess, l.PackagingUnit, l.Certifications,
		harvest, l.BatchID, l.TransportationRoute, l.Description, l.Image, l.QRCode, l.Status,
		l.CreatedAt, l.UpdatedAt)
	if isDuplicate(err) {
		return apperr.Conflict("product line with batch id %s", l.BatchID)
	}
	return apperr.Storage("create product line", err)
}

// GetProductLine fetches a product line by id
func (s *Store) GetProductLine(ctx context.Context, id string) (*models.ProductLine, error) {
	return s.getProductLine(ctx, s.db, id, `SELECT `+productLineColumns+` FROM product_lines WHERE id = ?`)
}

// GetProductLineByBatch fetches a product line by its batch id
func (s *Store) GetProductLineByBatch(ctx context.Context, batchID string) (*models.ProductLine, error) {
	return s.getProductLine(ctx, s.db, batchID, `SELECT `+productLineColumns+` FROM product_lines WHERE batch_id = ?`)
}

func (s *Store) getProductLine(ctx context.Context, q queryer, key, query string) (*models.ProductLine, error) {
	var l *models.ProductLine
	err := s.queryRow(ctx, q, "product_lines", query, func(row rowScanner) error {
		var err error
		l, err = scanProductLine(row)
		return err
	}, key)
	if err != nil {
		return nil, notFoundOr(err, "product line", key, "get product line")
	}
	return l, nil
}

// ListProductLines returns product lines newest first, optionally for one farmer
func (s *Store) ListProductLines(ctx context.Context, farmerID string) ([]models.ProductLine, error) {
	query := `SELECT ` + productLineColumns + ` FROM product_lines`
	var args []any
	if farmerID != "" {
		query += ` WHERE farmer_id = ?`
		args = append(args, farmerID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.query(ctx, s.db, "product_lines", query, args...)
	if err != nil {
		return nil, apperr.Storage("list product lines", err)
	}
	defer rows.Close()

	lines := []models.ProductLine{}
	for rows.Next() {
		l, err := scanProductLine(rows)
		if err != nil {
			return nil, apperr.Storage("scan product line", err)
		}
		lines = append(lines, *l)
	}
	return lines, apperr.Storage("list product lines", rows.Err())
}

// SetProductLineStatus records an admin review decision
func (s *Store) SetProductLineStatus(ctx context.Context, id string, status models.ProductLineStatus) (*models.ProductLine, error) {
	query := `UPDATE product_lines SET status = ?, updated_at = ? WHERE id = ?`
	if _, err := s.exec(ctx, s.db, "UPDATE", "product_lines", query, status, s.now().UTC(), id); err != nil {
		return nil, apperr.Storage("set product line status", err)
	}
	return s.GetProductLine(ctx, id)
}

// ============================================
// PRODUCTS
// ============================================

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `INSERT INTO products (` + productColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, s.db, "INSERT", "products", query,
		p.ID, p.ProductLineID, p.FarmerID, p.Name, p.Price, p.Quantity, p.Unit, p.Image, p.CreatedAt, p.UpdatedAt)
	if isDuplicate(err) {
		return apperr.Conflict("product %s", p.ID)
	}
	return apperr.Storage("create product", err)
}

// GetProduct fetches a product by id
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.getProduct(ctx, s.db, id, "")
}

// getProduct reads one product; suffix lets checkout append FOR UPDATE
func (s *Store) getProduct(ctx context.Context, q queryer, id, suffix string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?` + suffix
	var p *models.Product
	err := s.queryRow(ctx, q, "products", query, func(row rowScanner) error {
		var err error
		p, err = scanProduct(row)
		return err
	}, id)
	if err != nil {
		return nil, notFoundOr(err, "product", id, "get product")
	}
	return p, nil
}

// ListProducts returns products newest first. Keyword matches the name
// case-insensitively.
func (s *Store) ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.FarmerID != "" {
		where = append(where, "farmer_id = ?")
		args = append(args, f.FarmerID)
	}
	if f.ProductLineID != "" {
		where = append(where, "product_line_id = ?")
		args = append(args, f.ProductLineID)
	}
	if f.ApprovedOnly {
		where = append(where, "product_line_id IN (SELECT id FROM product_lines WHERE status = ?)")
		args = append(args, string(models.LineApproved))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(kw))+"%")
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.query(ctx, s.db, "products", query, args...)
	if err != nil {
		return nil, apperr.Storage("list products", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperr.Storage("scan product", err)
		}
		products = append(products, *p)
	}
	return products, apperr.Storage("list products", rows.Err())
}

// UpdateProduct applies the non-nil fields of upd
func (s *Store) UpdateProduct(ctx context.Context, id string, upd store.ProductUpdate) (*models.Product, error) {
	sets := []string{"updated_at = ?"}
	args := []any{s.now().UTC()}
	if upd.Price != nil {
		sets = append(sets, "price = ?")
		args = append(args, *upd.Price)
	}
	if upd.Quantity != nil {
		sets = append(sets, "quantity = ?")
		args = append(args, *upd.Quantity)
	}
	args = append(args, id)

	query := `UPDATE products SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if _, err := s.exec(ctx, s.db, "UPDATE", "products", query, args...); err != nil {
		return nil, apperr.Storage("update product", err)
	}
	return s.GetProduct(ctx, id)
}

// DeleteProduct removes a product. Order snapshots are unaffected.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.exec(ctx, s.db, "DELETE", "products", `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return apperr.Storage("delete product", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("product", id)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
