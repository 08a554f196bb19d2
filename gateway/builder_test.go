package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"everydaymoney/model"
)

func sampleOrder() model.Order {
	return model.Order{
		ID:        7,
		Number:    "7",
		Key:       "wc_order_abc",
		Currency:  "USD",
		Total:     49.99,
		Email:     "buyer@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Lines: []model.OrderLine{
			{Name: "Widget", Quantity: 3, Subtotal: 29.99},
			{Name: "Gadget", Quantity: 1, Subtotal: 20.00},
		},
	}
}

func TestBuildChargeRequestLines(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	req := BuildChargeRequest(sampleOrder(), BuildParams{
		RedirectURL: "https://shop.example.com/thanks",
		WebhookURL:  "https://shop.example.com/webhook",
		StoreName:   "Example Shop",
		Now:         func() time.Time { return fixed },
	})

	require.Len(t, req.OrderLines, 2)
	// 29.99 / 3 rounded to two decimals.
	assert.Equal(t, model.ChargeLine{ItemName: "Widget", Quantity: 3, Amount: 10.00}, req.OrderLines[0])
	assert.Equal(t, model.ChargeLine{ItemName: "Gadget", Quantity: 1, Amount: 20.00}, req.OrderLines[1])

	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, "Ada Lovelace", req.CustomerName)
	assert.Equal(t, "Order #7 from Example Shop", req.Narration)
	assert.Equal(t, "WC-7-1700000000", req.TransactionRef)
	assert.Equal(t, "wc_order_abc", req.ReferenceKey)
	assert.Equal(t, "7", req.Metadata["order_number"])
}

func TestBuildChargeRequestSyntheticLines(t *testing.T) {
	o := sampleOrder()
	o.ShippingTotal = 5.5
	o.ShippingMethod = "Flat rate"
	o.Fees = []model.OrderFee{{Name: "Handling", Total: 1.25}}
	o.TaxTotal = 3.75

	req := BuildChargeRequest(o, BuildParams{StoreName: "Shop"})
	require.Len(t, req.OrderLines, 5)
	assert.Equal(t, model.ChargeLine{ItemName: "Shipping: Flat rate", Quantity: 1, Amount: 5.5}, req.OrderLines[2])
	assert.Equal(t, model.ChargeLine{ItemName: "Handling", Quantity: 1, Amount: 1.25}, req.OrderLines[3])
	assert.Equal(t, model.ChargeLine{ItemName: "Tax", Quantity: 1, Amount: 3.75}, req.OrderLines[4])
}

func TestBuildChargeRequestInclusiveTaxSkipsTaxLine(t *testing.T) {
	o := sampleOrder()
	o.TaxTotal = 3.75
	o.PricesIncludeTax = true

	req := BuildChargeRequest(o, BuildParams{})
	require.Len(t, req.OrderLines, 2)
}

func TestBuildChargeRequestZeroDecimalCurrency(t *testing.T) {
	o := sampleOrder()
	o.Currency = "JPY"
	o.Lines = []model.OrderLine{{Name: "Widget", Quantity: 3, Subtotal: 1000}}

	req := BuildChargeRequest(o, BuildParams{})
	require.Len(t, req.OrderLines, 1)
	assert.Equal(t, 333.0, req.OrderLines[0].Amount)
}

func TestCustomerKeyStable(t *testing.T) {
	assert.Equal(t, "wc_user_42", CustomerKey(42, "ignored@example.com"))

	guest1 := CustomerKey(0, "Guest@Example.com")
	guest2 := CustomerKey(0, "guest@example.com ")
	assert.Equal(t, guest1, guest2, "guest keys must be stable across case and whitespace")
	assert.Contains(t, guest1, "guest_")
	assert.NotEqual(t, guest1, CustomerKey(0, "other@example.com"))
}

func TestParseTransactionRef(t *testing.T) {
	tests := []struct {
		ref    string
		number string
		ok     bool
	}{
		{"WC-7-1700000000", "7", true},
		{"WC-1052-1700000000", "1052", true},
		{"WC-7", "", false},
		{"XX-7-1700000000", "", false},
		{"WC-7-notatime", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		number, ok := ParseTransactionRef(tt.ref)
		assert.Equal(t, tt.ok, ok, tt.ref)
		assert.Equal(t, tt.number, number, tt.ref)
	}
}
