// Package mysqlstore implements store.Store on MySQL through database/sql.
//
// Every statement is timed and reported through metrics.AppMetrics the same
// way the HTTP layer reports requests. Checkout runs in a single transaction
// with row locks on the purchased products.
package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
	"github.com/go-sql-driver/mysql"
)

const system = "mysql"

// mysqlDuplicateEntry is ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

var _ store.Store = (*Store)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store is the MySQL-backed store
type Store struct {
	db      *sql.DB
	metrics *metrics.AppMetrics
	now     func() time.Time
}

// New wraps an open connection pool. The schema is expected to be in place
// (see db.DB.Migrate).
func New(db *sql.DB, m *metrics.AppMetrics) *Store {
	return &Store{db: db, metrics: m, now: time.Now}
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, q queryer, op, table, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := q.ExecContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, system, op, table, query, start, err == nil)
	return res, err
}

func (s *Store) query(ctx context.Context, q queryer, table, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, system, "SELECT", table, query, start, err == nil)
	return rows, err
}

// queryRow runs a single-row SELECT and hands the row to scan. A missing
// row is not counted as a failed query.
func (s *Store) queryRow(ctx context.Context, q queryer, table, query string, scan func(rowScanner) error, args ...any) error {
	start := time.Now()
	err := scan(q.QueryRowContext(ctx, query, args...))
	s.metrics.RecordDBQuery(ctx, system, "SELECT", table, query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	return err
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ============================================
// ACCOUNTS
// ============================================

const accountColumns = "id, name, email, password_hash, role, phone_number, address, created_at, updated_at"

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role,
		&a.PhoneNumber, &a.Address, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts an account. Email is unique per role.
func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, s.db, "INSERT", "accounts", query,
		a.ID, a.Name, a.Email, a.PasswordHash, a.Role, a.PhoneNumber, a.Address, a.CreatedAt, a.UpdatedAt)
	if isDuplicate(err) {
		return apperr.Conflict("%s with email %s", a.Role, a.Email)
	}
	return apperr.Storage("create account", err)
}

// GetAccount fetches an account by id
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return s.getAccount(ctx, "account", id, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

// GetAccountByEmail fetches the account registered with email for role
func (s *Store) GetAccountByEmail(ctx context.Context, email string, role models.Role) (*models.Account, error) {
	return s.getAccount(ctx, string(role), email,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ? AND role = ?`, email, role)
}

func (s *Store) getAccount(ctx context.Context, entity, key, query string, args ...any) (*models.Account, error) {
	var a *models.Account
	err := s.queryRow(ctx, s.db, "accounts", query, func(row rowScanner) error {
		var err error
		a, err = scanAccount(row)
		return err
	}, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(entity, key)
	}
	if err != nil {
		return nil, apperr.Storage("get account", err)
	}
	return a, nil
}

// ListAccounts returns every account in registration order
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, id`
	rows, err := s.query(ctx, s.db, "accounts", query)
	if err != nil {
		return nil, apperr.Storage("list accounts", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, apperr.Storage("scan account", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, apperr.Storage("list accounts", rows.Err())
}

// ============================================
// CARTS
// ============================================

// GetCart returns the customer's cart lines in insertion order
func (s *Store) GetCart(ctx context.Context, customerID string) ([]models.CartLine, error) {
	query := `SELECT product_id, quantity, name, price FROM cart_items WHERE customer_id = ? ORDER BY position`
	rows, err := s.query(ctx, s.db, "cart_items", query, customerID)
	if err != nil {
		return nil, apperr.Storage("get cart", err)
	}
	defer rows.Close()

	lines := []models.CartLine{}
	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.Name, &l.Price); err != nil {
			return nil, apperr.Storage("scan cart item", err)
		}
		lines = append(lines, l)
	}
	return lines, apperr.Storage("get cart", rows.Err())
}

// AdjustCartLine changes one cart row inside a transaction that locks it.
// Two first adds racing on the same product collide on the primary key; the
// loser retries once and then sees the winner's row.
func (s *Store) AdjustCartLine(ctx context.Context, customerID string, item models.CartLine, delta int) error {
	if delta == 0 {
		return nil
	}
	err := s.adjustCartLine(ctx, customerID, item, delta)
	if isDuplicate(err) {
		err = s.adjustCartLine(ctx, customerID, item, delta)
	}
	return apperr.Storage("adjust cart line", err)
}

func (s *Store) adjustCartLine(ctx context.Context, customerID string, item models.CartLine, delta int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current int
	err = s.queryRow(ctx, tx, "cart_items",
		`SELECT quantity FROM cart_items WHERE customer_id = ? AND product_id = ? FOR UPDATE`,
		func(row rowScanner) error { return row.Scan(&current) }, customerID, item.ProductID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if delta < 0 {
			return nil
		}
		// New lines go to the end of the cart
		_, err = s.exec(ctx, tx, "INSERT", "cart_items",
			`INSERT INTO cart_items (customer_id, product_id, position, quantity, name, price)
			 SELECT ?, ?, COALESCE(MAX(position) + 1, 0), ?, ?, ? FROM cart_items WHERE customer_id = ?`,
			customerID, item.ProductID, delta, item.Name, item.Price, customerID)
	case err != nil:
		return err
	case current+delta <= 0:
		_, err = s.exec(ctx, tx, "DELETE", "cart_items",
			`DELETE FROM cart_items WHERE customer_id = ? AND product_id = ?`, customerID, item.ProductID)
	default:
		_, err = s.exec(ctx, tx, "UPDATE", "cart_items",
			`UPDATE cart_items SET quantity = ?, name = ?, price = ? WHERE customer_id = ? AND product_id = ?`,
			current+delta, item.Name, item.Price, customerID, item.ProductID)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveCartLine deletes one cart row
func (s *Store) RemoveCartLine(ctx context.Context, customerID, productID string) error {
	_, err := s.exec(ctx, s.db, "DELETE", "cart_items",
		`DELETE FROM cart_items WHERE customer_id = ? AND product_id = ?`, customerID, productID)
	return apperr.Storage("remove cart line", err)
}

// CountActiveCarts counts customers with at least one cart line
func (s *Store) CountActiveCarts(ctx context.Context) (int, error) {
	var count int
	err := s.queryRow(ctx, s.db, "cart_items", `SELECT COUNT(DISTINCT customer_id) FROM cart_items`,
		func(row rowScanner) error { return row.Scan(&count) })
	if err != nil {
		return 0, apperr.Storage("count carts", err)
	}
	return count, nil
}

func notFoundOr(err error, entity, id, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return apperr.Storage(op, fmt.Errorf("%s %s: %w", entity, id, err))
}
