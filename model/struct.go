package model

import "time"

// Platform order statuses.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderCompleted  = "completed"
	OrderOnHold     = "on-hold"
	OrderFailed     = "failed"
	OrderCancelled  = "cancelled"
)

// Metadata keys written onto an order by the checkout flow and read back
// during webhook reconciliation.
const (
	MetaAPIOrderID     = "_everydaymoney_api_order_id"
	MetaTransactionRef = "_everydaymoney_transaction_ref"
	MetaTransactionID  = "_everydaymoney_transaction_id"
)

type OrderLine struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Subtotal float64 `json:"subtotal"` // line subtotal before tax, all units
}

type OrderFee struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

// Order is the commerce platform's view of an order. Status is mutated only
// through the order store; metadata carries the gateway bookkeeping keys.
type Order struct {
	ID               int64
	Number           string
	Key              string // platform order key, sent as referenceKey
	Currency         string
	Total            float64
	ShippingTotal    float64
	ShippingMethod   string
	TaxTotal         float64
	PricesIncludeTax bool
	CustomerID       int64
	Email            string
	Phone            string
	FirstName        string
	LastName         string
	Lines            []OrderLine
	Fees             []OrderFee
	Status           string
	Paid             bool
	TransactionID    string
	Metadata         map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (o Order) CustomerName() string {
	if o.FirstName == "" {
		return o.LastName
	}
	if o.LastName == "" {
		return o.FirstName
	}
	return o.FirstName + " " + o.LastName
}

func (o Order) Meta(key string) string {
	if o.Metadata == nil {
		return ""
	}
	return o.Metadata[key]
}

type ChargeLine struct {
	ItemName string  `json:"itemName"`
	Quantity int     `json:"quantity"`
	Amount   float64 `json:"amount"` // price per unit
}

type ChargeRequest struct {
	Currency       string            `json:"currency"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone,omitempty"`
	CustomerName   string            `json:"customerName"`
	CustomerKey    string            `json:"customerKey"`
	Narration      string            `json:"narration"`
	TransactionRef string            `json:"transactionRef"`
	ReferenceKey   string            `json:"referenceKey"`
	RedirectURL    string            `json:"redirectUrl"`
	WebhookURL     string            `json:"webhookUrl"`
	OrderLines     []ChargeLine      `json:"orderLines"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Capture        bool              `json:"capture"`
}

// Charge is a single payment attempt as reported by the upstream API.
type Charge struct {
	ID             string `json:"id"`
	TransactionRef string `json:"transactionRef"`
	Status         string `json:"status"`
	StatusReason   string `json:"statusReason,omitempty"`
}

type APIOrder struct {
	ID      string   `json:"id"`
	Charges []Charge `json:"charges"`
}

type ChargeResult struct {
	CheckoutURL string   `json:"checkoutURL"`
	Order       APIOrder `json:"order"`
}

// OrderSnapshot is the authoritative verification response for an upstream
// order: the recorded amount plus every charge attempt against it.
type OrderSnapshot struct {
	ID       string   `json:"id"`
	Amount   float64  `json:"amount"`
	Currency string   `json:"currency,omitempty"`
	Charges  []Charge `json:"charges"`
}

// WebhookEvent is the inbound notification body. Its status field is never
// trusted directly; the engine re-verifies against the API.
type WebhookEvent struct {
	Event          string            `json:"event"`
	Status         string            `json:"status"`
	OrderID        string            `json:"orderId"`
	TransactionID  string            `json:"transactionId"`
	TransactionRef string            `json:"transactionRef"`
	Amount         float64           `json:"amount"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
}

func (e WebhookEvent) Meta(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}
