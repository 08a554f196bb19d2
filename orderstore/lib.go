package orderstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"everydaymoney/model"
)

// Store is the MySQL-backed order collaborator: it owns order rows, their
// notes and their metadata. The reconciliation engine never touches these
// tables directly; it goes through this store.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{DB: db} }

func InitDB(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS orders (
  id                 BIGINT NOT NULL AUTO_INCREMENT,
  order_number       VARCHAR(64) NOT NULL,
  order_key          VARCHAR(64) NOT NULL,
  currency           CHAR(3) NOT NULL,
  total              DECIMAL(19,4) NOT NULL,
  shipping_total     DECIMAL(19,4) NOT NULL DEFAULT 0,
  shipping_method    VARCHAR(255) NOT NULL DEFAULT '',
  tax_total          DECIMAL(19,4) NOT NULL DEFAULT 0,
  prices_include_tax TINYINT(1) NOT NULL DEFAULT 0,
  customer_id        BIGINT NOT NULL DEFAULT 0,
  email              VARCHAR(255) NOT NULL,
  phone              VARCHAR(64) NOT NULL DEFAULT '',
  first_name         VARCHAR(255) NOT NULL DEFAULT '',
  last_name          VARCHAR(255) NOT NULL DEFAULT '',
  lines_json         LONGTEXT,
  fees_json          LONGTEXT,
  status             VARCHAR(20) NOT NULL DEFAULT 'pending',
  paid               TINYINT(1) NOT NULL DEFAULT 0,
  transaction_id     VARCHAR(255) NOT NULL DEFAULT '',
  created_at         DATETIME NOT NULL,
  updated_at         DATETIME NOT NULL,
  PRIMARY KEY (id),
  INDEX (status)
)`); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS order_notes (
  id         BIGINT NOT NULL AUTO_INCREMENT,
  order_id   BIGINT NOT NULL,
  note       TEXT NOT NULL,
  created_at DATETIME NOT NULL,
  PRIMARY KEY (id),
  INDEX (order_id)
)`); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS order_meta (
  order_id   BIGINT NOT NULL,
  meta_key   VARCHAR(191) NOT NULL,
  meta_value VARCHAR(1024) NOT NULL,
  PRIMARY KEY (order_id, meta_key),
  INDEX (meta_key, meta_value(191))
)`)
	return err
}

// Create inserts a new order and returns its id. A fresh order key is
// generated when the caller does not supply one.
func (s *Store) Create(ctx context.Context, o model.Order) (int64, error) {
	if o.Key == "" {
		o.Key = "wc_order_" + uuid.NewString()
	}
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return 0, err
	}
	feesJSON, err := json.Marshal(o.Fees)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO orders
  (order_number, order_key, currency, total, shipping_total, shipping_method, tax_total, prices_include_tax,
   customer_id, email, phone, first_name, last_name, lines_json, fees_json, status, paid, transaction_id,
   created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)`,
		o.Number, o.Key, o.Currency, o.Total, o.ShippingTotal, o.ShippingMethod, o.TaxTotal, o.PricesIncludeTax,
		o.CustomerID, o.Email, o.Phone, o.FirstName, o.LastName, linesJSON, feesJSON, o.Status,
		now, now,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if o.Number == "" {
		// Default the order number to the row id, the platform convention.
		if _, err := s.DB.ExecContext(ctx, `UPDATE orders SET order_number = ? WHERE id = ?`, id, id); err != nil {
			return 0, err
		}
	}
	for key, value := range o.Metadata {
		if err := s.SetMeta(ctx, id, key, value); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (model.Order, bool, error) {
	var (
		o                   model.Order
		linesJSON, feesJSON sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, order_number, order_key, currency, total, shipping_total, shipping_method, tax_total,
       prices_include_tax, customer_id, email, phone, first_name, last_name, lines_json, fees_json,
       status, paid, transaction_id, created_at, updated_at
FROM orders WHERE id = ?`, id).Scan(
		&o.ID, &o.Number, &o.Key, &o.Currency, &o.Total, &o.ShippingTotal, &o.ShippingMethod, &o.TaxTotal,
		&o.PricesIncludeTax, &o.CustomerID, &o.Email, &o.Phone, &o.FirstName, &o.LastName, &linesJSON, &feesJSON,
		&o.Status, &o.Paid, &o.TransactionID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, err
	}

	if linesJSON.Valid && linesJSON.String != "" {
		if err := json.Unmarshal([]byte(linesJSON.String), &o.Lines); err != nil {
			return model.Order{}, false, err
		}
	}
	if feesJSON.Valid && feesJSON.String != "" {
		if err := json.Unmarshal([]byte(feesJSON.String), &o.Fees); err != nil {
			return model.Order{}, false, err
		}
	}

	o.Metadata = make(map[string]string)
	rows, err := s.DB.QueryContext(ctx, `SELECT meta_key, meta_value FROM order_meta WHERE order_id = ?`, id)
	if err != nil {
		return model.Order{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return model.Order{}, false, err
		}
		o.Metadata[key] = value
	}
	if err := rows.Err(); err != nil {
		return model.Order{}, false, err
	}
	return o, true, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, status, note string) error {
	if _, err := s.DB.ExecContext(ctx, `
UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id); err != nil {
		return err
	}
	if note == "" {
		return nil
	}
	return s.AddNote(ctx, id, note)
}

func (s *Store) AddNote(ctx context.Context, id int64, note string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO order_notes (order_id, note, created_at) VALUES (?, ?, ?)`, id, note, time.Now().UTC())
	return err
}

// MarkPaid records the gateway transaction id and moves the order into the
// given success status in one step.
func (s *Store) MarkPaid(ctx context.Context, id int64, transactionID, status string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE orders SET paid = 1, transaction_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		transactionID, status, time.Now().UTC(), id)
	return err
}

func (s *Store) SetMeta(ctx context.Context, id int64, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO order_meta (order_id, meta_key, meta_value)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)`, id, key, value)
	return err
}

// FindIDByMeta resolves an order id from a metadata pair, e.g. the
// API-assigned order id recorded at checkout.
func (s *Store) FindIDByMeta(ctx context.Context, key, value string) (int64, bool, error) {
	if value == "" {
		return 0, false, nil
	}
	var id int64
	err := s.DB.QueryRowContext(ctx, `
SELECT order_id FROM order_meta WHERE meta_key = ? AND meta_value = ? LIMIT 1`, key, value).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
