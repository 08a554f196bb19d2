package payment

import (
	"context"
	"strings"
	"time"

	"everydaymoney/ledger"
	"everydaymoney/model"
)

// Config carries the gateway settings normally read from the settings store.
type Config struct {
	APIBaseURL    string
	PublicKey     string
	APISecret     string
	WebhookSecret string

	// Order status applied when a payment verifies as successful.
	SuccessStatus string
	// Verified charge statuses treated as successful, compared
	// case-insensitively.
	SuccessStatuses []string

	// Absolute tolerance, in currency units, for the verified-amount check.
	AmountTolerance float64
	// Allowed clock skew for the webhook signature timestamp.
	SignatureTolerance time.Duration

	StoreName   string
	RedirectURL string
	WebhookURL  string
	TestMode    bool
	Debug       bool
}

const (
	defaultAmountTolerance    = 0.01
	defaultSignatureTolerance = 300 * time.Second
)

func (c Config) withDefaults() Config {
	if c.SuccessStatus == "" {
		c.SuccessStatus = model.OrderProcessing
	}
	if len(c.SuccessStatuses) == 0 {
		c.SuccessStatuses = []string{"completed", "paid", "successful", "succeeded"}
	}
	if c.AmountTolerance <= 0 {
		c.AmountTolerance = defaultAmountTolerance
	}
	if c.SignatureTolerance <= 0 {
		c.SignatureTolerance = defaultSignatureTolerance
	}
	return c
}

func (c Config) isSuccessStatus(status string) bool {
	for _, s := range c.SuccessStatuses {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

// OrderStore is the commerce platform collaborator: it owns order rows and
// is the only path through which order status is mutated.
type OrderStore interface {
	Get(ctx context.Context, id int64) (model.Order, bool, error)
	UpdateStatus(ctx context.Context, id int64, status, note string) error
	AddNote(ctx context.Context, id int64, note string) error
	MarkPaid(ctx context.Context, id int64, transactionID, status string) error
	SetMeta(ctx context.Context, id int64, key, value string) error
	FindIDByMeta(ctx context.Context, key, value string) (int64, bool, error)
}

// Ledger is the local transaction record keyed by order id.
type Ledger interface {
	Insert(ctx context.Context, row ledger.Row) error
	UpdateStatus(ctx context.Context, orderID int64, status, transactionID string, payload []byte) error
	GetByOrderID(ctx context.Context, orderID int64) (ledger.Row, bool, error)
	FindOrderIDByTransactionID(ctx context.Context, transactionID string) (int64, bool, error)
}

// GatewayClient is the authenticated upstream API surface.
type GatewayClient interface {
	CreateCharge(ctx context.Context, req model.ChargeRequest) (*model.ChargeResult, error)
	VerifyOrder(ctx context.Context, apiOrderID string) (*model.OrderSnapshot, error)
	TestConnection(ctx context.Context) error
}
