package ledger

import (
	"context"
	"database/sql"
	"time"
)

// StatusPendingGateway is the initial ledger status set right after a charge
// is created, before any webhook arrives.
const StatusPendingGateway = "pending_gateway"

// Row is the local durable record of a charge's lifecycle, independent of
// the order's own status field. At most one row exists per order id.
type Row struct {
	ID             int64
	OrderID        int64
	TransactionID  string
	TransactionRef string
	Status         string
	Amount         float64
	Currency       string
	Payload        []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func InitDB(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS everydaymoney_transactions (
  id              BIGINT NOT NULL AUTO_INCREMENT,
  order_id        BIGINT UNSIGNED NOT NULL,
  transaction_id  VARCHAR(255) NOT NULL DEFAULT '',
  transaction_ref VARCHAR(255) NOT NULL DEFAULT '',
  status          VARCHAR(50) NOT NULL DEFAULT 'pending',
  amount          DECIMAL(19,4) NOT NULL,
  currency        VARCHAR(10) NOT NULL,
  webhook_data    LONGTEXT,
  created_at      DATETIME NOT NULL,
  updated_at      DATETIME NOT NULL,
  PRIMARY KEY (id),
  UNIQUE KEY uniq_order_id (order_id),
  INDEX idx_transaction_id (transaction_id(191))
)`)
	return err
}

type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{DB: db} }

// Insert records the single ledger row for an order. Called exactly once,
// immediately after a successful charge creation; the unique order_id key
// rejects a second insert.
func (s *Store) Insert(ctx context.Context, row Row) error {
	now := time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO everydaymoney_transactions
  (order_id, transaction_id, transaction_ref, status, amount, currency, webhook_data, created_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.OrderID,
		row.TransactionID,
		row.TransactionRef,
		row.Status,
		row.Amount,
		row.Currency,
		row.Payload,
		now,
		now,
	)
	return err
}

// UpdateStatus mirrors the verified upstream status onto the ledger row and
// replaces the stored raw payload for audit. A previously recorded
// transaction id is never overwritten with an empty value.
func (s *Store) UpdateStatus(ctx context.Context, orderID int64, status, transactionID string, payload []byte) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE everydaymoney_transactions
SET status = ?,
    transaction_id = CASE WHEN ? = '' THEN transaction_id ELSE ? END,
    webhook_data = ?,
    updated_at = ?
WHERE order_id = ?`,
		status,
		transactionID, transactionID,
		payload,
		time.Now().UTC(),
		orderID,
	)
	return err
}

func (s *Store) GetByOrderID(ctx context.Context, orderID int64) (Row, bool, error) {
	var row Row
	err := s.DB.QueryRowContext(ctx, `
SELECT id, order_id, transaction_id, transaction_ref, status, amount, currency, COALESCE(webhook_data, ''), created_at, updated_at
FROM everydaymoney_transactions
WHERE order_id = ?`, orderID).Scan(
		&row.ID,
		&row.OrderID,
		&row.TransactionID,
		&row.TransactionRef,
		&row.Status,
		&row.Amount,
		&row.Currency,
		&row.Payload,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// FindOrderIDByTransactionID supports the last-resort webhook resolution
// path: a gateway transaction id looked up against the ledger.
func (s *Store) FindOrderIDByTransactionID(ctx context.Context, transactionID string) (int64, bool, error) {
	if transactionID == "" {
		return 0, false, nil
	}
	var orderID int64
	err := s.DB.QueryRowContext(ctx, `
SELECT order_id FROM everydaymoney_transactions WHERE transaction_id = ? LIMIT 1`, transactionID).Scan(&orderID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return orderID, true, nil
}
