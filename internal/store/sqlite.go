// Package store is the SQLite-backed persistence collaborator: invoices,
// the customer book, the product catalog and downstream orders. Stage
// transitions use a conditional update so concurrent confirmations cannot
// both win.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/adiwendra/fakturo/internal/identity"
	"github.com/adiwendra/fakturo/internal/invoice"
	"github.com/adiwendra/fakturo/internal/merchant"
	"github.com/adiwendra/fakturo/internal/textmatch"
)

type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id                  TEXT PRIMARY KEY,
	number              TEXT NOT NULL,
	payment_stage       TEXT NOT NULL,
	payment_status      TEXT NOT NULL,
	customer_token      TEXT NOT NULL DEFAULT '',
	final_payment_token TEXT NOT NULL DEFAULT '',
	doc                 TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS customers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	name_norm  TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	phone_norm TEXT NOT NULL DEFAULT '',
	address    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	name_norm   TEXT NOT NULL,
	sku         TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	unit_price  REAL NOT NULL DEFAULT 0,
	tags        TEXT NOT NULL DEFAULT '[]',
	active      INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS orders (
	id         TEXT PRIMARY KEY,
	invoice_id TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'created',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_email ON customers(email);
CREATE INDEX IF NOT EXISTS idx_orders_invoice ON orders(invoice_id);
`

func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- invoices ---

func (s *Store) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	var doc string
	err := s.db.GetContext(ctx, &doc, "SELECT doc FROM invoices WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoice.NewNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	var inv invoice.Invoice
	if err := json.Unmarshal([]byte(doc), &inv); err != nil {
		return nil, fmt.Errorf("decode invoice %s: %w", id, err)
	}
	return &inv, nil
}

func (s *Store) GetInvoiceByToken(ctx context.Context, token string) (*invoice.Invoice, error) {
	var doc string
	err := s.db.GetContext(ctx, &doc,
		"SELECT doc FROM invoices WHERE customer_token = ? OR final_payment_token = ?", token, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoice.NewNotFoundError("token")
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice by token: %w", err)
	}
	var inv invoice.Invoice
	if err := json.Unmarshal([]byte(doc), &inv); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	return &inv, nil
}

func (s *Store) SaveInvoice(ctx context.Context, inv *invoice.Invoice) error {
	doc, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invoice: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, number, payment_stage, payment_status, customer_token, final_payment_token, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Number, inv.PaymentStage, inv.PaymentStatus,
		inv.CustomerToken, inv.FinalPaymentToken, string(doc),
		inv.CreatedAt.Format(time.RFC3339Nano), inv.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save invoice: %w", err)
	}
	return nil
}

// UpdateStage performs the check-stage-then-write transition as one atomic
// operation: the row is read and rewritten inside a single transaction and
// the UPDATE is additionally guarded on the expected stage, so a concurrent
// transition makes exactly one of the two callers lose with a stage conflict.
func (s *Store) UpdateStage(ctx context.Context, id string, expect invoice.PaymentStage, mutate func(*invoice.Invoice) error) (*invoice.Invoice, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin stage update: %w", err)
	}
	defer tx.Rollback()

	var doc string
	err = tx.GetContext(ctx, &doc, "SELECT doc FROM invoices WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoice.NewNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("read invoice for stage update: %w", err)
	}
	var inv invoice.Invoice
	if err := json.Unmarshal([]byte(doc), &inv); err != nil {
		return nil, fmt.Errorf("decode invoice %s: %w", id, err)
	}
	if inv.PaymentStage != expect {
		return nil, invoice.NewStageConflictError(inv.PaymentStage, expect)
	}
	if err := mutate(&inv); err != nil {
		return nil, err
	}
	inv.UpdatedAt = time.Now()

	updated, err := json.Marshal(&inv)
	if err != nil {
		return nil, fmt.Errorf("encode invoice: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE invoices
		SET doc = ?, payment_stage = ?, payment_status = ?, final_payment_token = ?, updated_at = ?
		WHERE id = ? AND payment_stage = ?`,
		string(updated), inv.PaymentStage, inv.PaymentStatus, inv.FinalPaymentToken,
		inv.UpdatedAt.Format(time.RFC3339Nano), id, expect)
	if err != nil {
		return nil, fmt.Errorf("write stage update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("stage update result: %w", err)
	}
	if affected == 0 {
		return nil, invoice.NewStageConflictError(inv.PaymentStage, expect)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stage update: %w", err)
	}
	return &inv, nil
}

// --- customers ---

func (s *Store) SaveCustomer(ctx context.Context, c merchant.Customer) (merchant.Customer, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, name_norm, email, phone_norm, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, name_norm = excluded.name_norm,
			email = excluded.email, phone_norm = excluded.phone_norm,
			address = excluded.address`,
		c.ID, c.Name, textmatch.NormalizeName(c.Name),
		strings.ToLower(strings.TrimSpace(c.Email)), textmatch.NormalizePhone(c.Phone),
		c.Address, c.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return merchant.Customer{}, fmt.Errorf("save customer: %w", err)
	}
	return c, nil
}

func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*merchant.Customer, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT id, name, email, phone_norm, address, created_at FROM customers WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email)))
	return scanCustomer(row)
}

// FindFuzzyNameMatch returns the best customer whose normalized name clears
// the identity fuzzy threshold, or nil.
func (s *Store) FindFuzzyNameMatch(ctx context.Context, name string) (*merchant.Customer, error) {
	customers, err := s.ListCustomers(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	norm := textmatch.NormalizeName(name)
	best := -1
	bestScore := 0.0
	for i := range customers {
		score := textmatch.Similarity(norm, textmatch.NormalizeName(customers[i].Name))
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 || bestScore < identity.FuzzyThreshold {
		return nil, nil
	}
	return &customers[best], nil
}

// ListCustomers returns customers in creation order. A non-positive limit
// means no limit: identity matching runs against the whole customer book.
func (s *Store) ListCustomers(ctx context.Context, limit, offset int) ([]merchant.Customer, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT is unbounded
	}
	rows, err := s.db.QueryxContext(ctx,
		"SELECT id, name, email, phone_norm, address, created_at FROM customers ORDER BY created_at LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()
	var out []merchant.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*merchant.Customer, error) {
	var c merchant.Customer
	var createdAt string
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

// --- products ---

func (s *Store) CreateProduct(ctx context.Context, p merchant.Product) (merchant.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	tags, _ := json.Marshal(p.Tags)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, name_norm, sku, category, description, unit_price, tags, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, textmatch.NormalizeName(p.Name), p.SKU, p.Category, p.Description,
		p.UnitPrice, string(tags), boolToInt(p.Active))
	if err != nil {
		return merchant.Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, limit, offset int, category string, activeOnly bool) ([]merchant.Product, error) {
	if limit <= 0 {
		limit = 500
	}
	q := "SELECT id, name, sku, category, description, unit_price, tags, active FROM products"
	var conds []string
	var args []any
	if category != "" {
		conds = append(conds, "category = ?")
		args = append(args, category)
	}
	if activeOnly {
		conds = append(conds, "active = 1")
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY name LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	var out []merchant.Product
	for rows.Next() {
		var p merchant.Product
		var tagsJSON string
		var active int
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &p.Description, &p.UnitPrice, &tagsJSON, &active); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		_ = json.Unmarshal([]byte(tagsJSON), &p.Tags)
		p.Active = active != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// ActiveProducts satisfies merchant.CatalogSource for the snapshot cache.
func (s *Store) ActiveProducts(ctx context.Context) ([]merchant.Product, error) {
	return s.ListProducts(ctx, 0, 0, "", true)
}

// --- orders ---

// CreateOrderFromInvoice is the order-management collaborator: it books a
// downstream order for a completed invoice.
func (s *Store) CreateOrderFromInvoice(ctx context.Context, invoiceID string) (string, error) {
	if _, err := s.GetInvoice(ctx, invoiceID); err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO orders (id, invoice_id, status, created_at) VALUES (?, ?, 'created', ?)",
		id, invoiceID, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
