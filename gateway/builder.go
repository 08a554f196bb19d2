package gateway

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"everydaymoney/model"
)

// BuildParams carries the per-store inputs the charge payload needs beyond
// the order itself.
type BuildParams struct {
	RedirectURL string
	WebhookURL  string
	StoreName   string
	Capture     bool
	Now         func() time.Time
}

// BuildChargeRequest transforms an order snapshot into the upstream charge
// payload: one line per item, plus synthetic shipping, fee and tax lines.
// Pure apart from the clock used for the transaction reference.
func BuildChargeRequest(o model.Order, p BuildParams) model.ChargeRequest {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	lines := make([]model.ChargeLine, 0, len(o.Lines)+len(o.Fees)+2)
	for _, item := range o.Lines {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		unit := decimal.NewFromFloat(item.Subtotal).
			Div(decimal.NewFromInt(int64(qty))).
			Round(minorUnits(o.Currency))
		lines = append(lines, model.ChargeLine{
			ItemName: item.Name,
			Quantity: qty,
			Amount:   unit.InexactFloat64(),
		})
	}

	if o.ShippingTotal > 0 {
		lines = append(lines, model.ChargeLine{
			ItemName: "Shipping: " + o.ShippingMethod,
			Quantity: 1,
			Amount:   roundAmount(o.ShippingTotal, o.Currency),
		})
	}

	for _, fee := range o.Fees {
		lines = append(lines, model.ChargeLine{
			ItemName: fee.Name,
			Quantity: 1,
			Amount:   roundAmount(fee.Total, o.Currency),
		})
	}

	if o.TaxTotal > 0 && !o.PricesIncludeTax {
		lines = append(lines, model.ChargeLine{
			ItemName: "Tax",
			Quantity: 1,
			Amount:   roundAmount(o.TaxTotal, o.Currency),
		})
	}

	return model.ChargeRequest{
		Currency:       o.Currency,
		Email:          o.Email,
		Phone:          o.Phone,
		CustomerName:   o.CustomerName(),
		CustomerKey:    CustomerKey(o.CustomerID, o.Email),
		Narration:      fmt.Sprintf("Order #%s from %s", o.Number, p.StoreName),
		TransactionRef: TransactionRef(o.Number, now()),
		ReferenceKey:   o.Key,
		RedirectURL:    p.RedirectURL,
		WebhookURL:     p.WebhookURL,
		OrderLines:     lines,
		Metadata: map[string]string{
			"order_id":     strconv.FormatInt(o.ID, 10),
			"order_number": o.Number,
			"store":        p.StoreName,
		},
		Capture: p.Capture,
	}
}

// CustomerKey is stable across retries of the same order so the upstream can
// deduplicate customers: wc_user_{id} for known customers, a hashed email
// for guests.
func CustomerKey(customerID int64, email string) string {
	if customerID > 0 {
		return fmt.Sprintf("wc_user_%d", customerID)
	}
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "guest_" + hex.EncodeToString(sum[:])
}

// TransactionRef is time-based and therefore not stable across retries of
// the same order; webhook resolution prefers the API-assigned order id.
func TransactionRef(orderNumber string, now time.Time) string {
	return fmt.Sprintf("WC-%s-%d", orderNumber, now.Unix())
}

// ParseTransactionRef recovers the order number from a WC-{number}-{unix}
// reference.
func ParseTransactionRef(ref string) (string, bool) {
	rest, found := strings.CutPrefix(ref, "WC-")
	if !found {
		return "", false
	}
	i := strings.LastIndex(rest, "-")
	if i <= 0 {
		return "", false
	}
	number, ts := rest[:i], rest[i+1:]
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		return "", false
	}
	return number, true
}

func roundAmount(v float64, currency string) float64 {
	return decimal.NewFromFloat(v).Round(minorUnits(currency)).InexactFloat64()
}

// minorUnits returns the currency's minor-unit precision.
func minorUnits(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "JPY", "KRW", "VND", "XAF", "XOF":
		return 0
	case "BHD", "IQD", "JOD", "KWD", "OMR", "TND":
		return 3
	default:
		return 2
	}
}
