package payment

import (
	"context"
	"fmt"
	"time"

	"everydaymoney/ledger"
	"everydaymoney/model"
)

type fakeOrders struct {
	orders   map[int64]*model.Order
	notes    map[int64][]string
	getCalls int
}

func newFakeOrders(orders ...model.Order) *fakeOrders {
	f := &fakeOrders{
		orders: make(map[int64]*model.Order),
		notes:  make(map[int64][]string),
	}
	for _, o := range orders {
		copied := o
		if copied.Metadata == nil {
			copied.Metadata = make(map[string]string)
		}
		f.orders[o.ID] = &copied
	}
	return f
}

func (f *fakeOrders) Get(ctx context.Context, id int64) (model.Order, bool, error) {
	f.getCalls++
	o, ok := f.orders[id]
	if !ok {
		return model.Order{}, false, nil
	}
	return *o, true, nil
}

func (f *fakeOrders) UpdateStatus(ctx context.Context, id int64, status, note string) error {
	o, ok := f.orders[id]
	if !ok {
		return fmt.Errorf("order %d not found", id)
	}
	o.Status = status
	if note != "" {
		f.notes[id] = append(f.notes[id], note)
	}
	return nil
}

func (f *fakeOrders) AddNote(ctx context.Context, id int64, note string) error {
	f.notes[id] = append(f.notes[id], note)
	return nil
}

func (f *fakeOrders) MarkPaid(ctx context.Context, id int64, transactionID, status string) error {
	o, ok := f.orders[id]
	if !ok {
		return fmt.Errorf("order %d not found", id)
	}
	o.Paid = true
	o.TransactionID = transactionID
	o.Status = status
	return nil
}

func (f *fakeOrders) SetMeta(ctx context.Context, id int64, key, value string) error {
	o, ok := f.orders[id]
	if !ok {
		return fmt.Errorf("order %d not found", id)
	}
	o.Metadata[key] = value
	return nil
}

func (f *fakeOrders) FindIDByMeta(ctx context.Context, key, value string) (int64, bool, error) {
	if value == "" {
		return 0, false, nil
	}
	for id, o := range f.orders {
		if o.Metadata[key] == value {
			return id, true, nil
		}
	}
	return 0, false, nil
}

type fakeLedger struct {
	rows    map[int64]*ledger.Row
	inserts int
	updates int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[int64]*ledger.Row)}
}

func (f *fakeLedger) Insert(ctx context.Context, row ledger.Row) error {
	if _, exists := f.rows[row.OrderID]; exists {
		return fmt.Errorf("duplicate ledger row for order %d", row.OrderID)
	}
	f.inserts++
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	f.rows[row.OrderID] = &row
	return nil
}

func (f *fakeLedger) UpdateStatus(ctx context.Context, orderID int64, status, transactionID string, payload []byte) error {
	row, ok := f.rows[orderID]
	if !ok {
		return fmt.Errorf("no ledger row for order %d", orderID)
	}
	f.updates++
	row.Status = status
	if transactionID != "" {
		row.TransactionID = transactionID
	}
	row.Payload = payload
	row.UpdatedAt = time.Now()
	return nil
}

func (f *fakeLedger) GetByOrderID(ctx context.Context, orderID int64) (ledger.Row, bool, error) {
	row, ok := f.rows[orderID]
	if !ok {
		return ledger.Row{}, false, nil
	}
	return *row, true, nil
}

func (f *fakeLedger) FindOrderIDByTransactionID(ctx context.Context, transactionID string) (int64, bool, error) {
	for id, row := range f.rows {
		if transactionID != "" && row.TransactionID == transactionID {
			return id, true, nil
		}
	}
	return 0, false, nil
}

type fakeGateway struct {
	chargeResult *model.ChargeResult
	chargeErr    error
	chargeCalls  int

	snapshot    *model.OrderSnapshot
	verifyErr   error
	verifyCalls int
}

func (f *fakeGateway) CreateCharge(ctx context.Context, req model.ChargeRequest) (*model.ChargeResult, error) {
	f.chargeCalls++
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return f.chargeResult, nil
}

func (f *fakeGateway) VerifyOrder(ctx context.Context, apiOrderID string) (*model.OrderSnapshot, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.snapshot, nil
}

func (f *fakeGateway) TestConnection(ctx context.Context) error { return nil }
