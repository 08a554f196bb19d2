package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"everydaymoney/gateway"
	"everydaymoney/model"
)

// Engine is the reconciliation state machine. It receives webhook
// notifications, re-verifies them against the upstream API and drives order
// status transitions exactly once per terminal outcome.
type Engine struct {
	svc *Service
	now func() time.Time
}

func NewEngine(svc *Service) *Engine {
	return &Engine{svc: svc, now: time.Now}
}

// HandleWebhook runs the full verification protocol against a raw webhook
// delivery and returns the HTTP status the upstream should see. A nil error
// with status 200 covers both applied transitions and deliberate no-ops so
// the upstream stops retrying.
func (e *Engine) HandleWebhook(ctx context.Context, body []byte, signatureHeader string) (int, error) {
	cfg := e.svc.Config
	log := e.svc.Log

	if len(bytes.TrimSpace(body)) == 0 {
		return http.StatusBadRequest, gateway.NewError(gateway.KindValidation, "empty webhook body")
	}

	if err := verifySignature(cfg.WebhookSecret, signatureHeader, body, cfg.SignatureTolerance, e.now()); err != nil {
		log.Errorf("webhook signature rejected: %v", err)
		status := http.StatusUnauthorized
		if errors.Is(err, ErrMalformedSignature) {
			status = http.StatusBadRequest
		}
		return status, gateway.WrapError(gateway.KindSignature, "webhook rejected", err)
	}

	var ev model.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return http.StatusBadRequest, gateway.WrapError(gateway.KindValidation, "invalid webhook JSON", err)
	}

	orderID, err := e.resolveOrder(ctx, ev)
	if err != nil {
		if gateway.IsKind(err, gateway.KindNotFound) {
			log.Errorf("webhook order resolution failed: %v", err)
			return http.StatusNotFound, err
		}
		return http.StatusInternalServerError, err
	}

	o, ok, err := e.svc.Orders.Get(ctx, orderID)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	if !ok {
		return http.StatusNotFound, gateway.Errorf(gateway.KindNotFound, "order %d not found", orderID)
	}

	if e.isTerminal(o) {
		log.Infof("webhook for order %d ignored, already %s", o.ID, o.Status)
		return http.StatusOK, nil
	}

	// The webhook's own status claim is never trusted; the API is the sole
	// source of truth for status and amount.
	apiOrderID := o.Meta(model.MetaAPIOrderID)
	if apiOrderID == "" {
		apiOrderID = ev.OrderID
	}
	if apiOrderID == "" {
		return http.StatusInternalServerError, gateway.Errorf(gateway.KindAPI, "no API order id recorded for order %d", o.ID)
	}

	snap, err := e.svc.Gateway.VerifyOrder(ctx, apiOrderID)
	if err != nil {
		log.Errorf("verification call failed for order %d: %v", o.ID, err)
		return http.StatusInternalServerError, err
	}

	if err := e.checkAmount(ctx, o, snap.Amount); err != nil {
		return http.StatusBadRequest, err
	}

	charge := pickCharge(snap.Charges, o.Meta(model.MetaTransactionID))
	if charge == nil {
		log.Infof("order %d verified but no charges reported yet", o.ID)
		return http.StatusOK, nil
	}

	return e.applyVerified(ctx, o, *charge, body)
}

// resolveOrder maps webhook data to a platform order, in priority order: the
// API-assigned order id, then the transaction reference, then a gateway
// transaction id looked up against the ledger.
func (e *Engine) resolveOrder(ctx context.Context, ev model.WebhookEvent) (int64, error) {
	for _, apiOrderID := range []string{ev.Meta("orderId"), ev.Meta("order_id"), ev.OrderID} {
		if apiOrderID == "" {
			continue
		}
		id, ok, err := e.svc.Orders.FindIDByMeta(ctx, model.MetaAPIOrderID, apiOrderID)
		if err != nil {
			return 0, err
		}
		if ok {
			return id, nil
		}
	}

	ref := ev.TransactionRef
	if ref == "" {
		ref = ev.Meta("transactionRef")
	}
	if number, ok := gateway.ParseTransactionRef(ref); ok {
		if id, err := strconv.ParseInt(number, 10, 64); err == nil {
			return id, nil
		}
	}

	if ev.TransactionID != "" {
		id, ok, err := e.svc.Ledger.FindOrderIDByTransactionID(ctx, ev.TransactionID)
		if err != nil {
			return 0, err
		}
		if ok {
			return id, nil
		}
	}

	return 0, gateway.NewError(gateway.KindNotFound, "could not resolve order from webhook data")
}

// isTerminal reports whether the order already reached a state from which no
// further automated transition is permitted.
func (e *Engine) isTerminal(o model.Order) bool {
	if o.Paid {
		return true
	}
	switch o.Status {
	case model.OrderCompleted, model.OrderFailed, model.OrderCancelled, e.svc.Config.SuccessStatus:
		return true
	}
	return false
}

// checkAmount compares the order total against the verified amount with an
// absolute tolerance. A mismatch blocks any status transition: this guards
// against tampered or substituted payloads.
func (e *Engine) checkAmount(ctx context.Context, o model.Order, verified float64) error {
	diff := decimal.NewFromFloat(o.Total).Sub(decimal.NewFromFloat(verified)).Abs()
	if !diff.GreaterThan(decimal.NewFromFloat(e.svc.Config.AmountTolerance)) {
		return nil
	}

	note := fmt.Sprintf("Payment verification failed: verified amount %.2f does not match order total %.2f %s.", verified, o.Total, o.Currency)
	if err := e.svc.Orders.AddNote(ctx, o.ID, note); err != nil {
		e.svc.Log.Errorf("could not attach mismatch note to order %d: %v", o.ID, err)
	}
	e.svc.Log.Errorf("amount mismatch for order %d: verified %.2f, expected %.2f", o.ID, verified, o.Total)
	return gateway.Errorf(gateway.KindValidation, "verified amount %.2f does not match order total %.2f", verified, o.Total)
}

// applyVerified classifies the verified charge status and applies at most
// one transition. Unknown or still-pending statuses leave the order awaiting
// a later webhook.
func (e *Engine) applyVerified(ctx context.Context, o model.Order, charge model.Charge, payload []byte) (int, error) {
	cfg := e.svc.Config
	log := e.svc.Log
	status := strings.ToLower(charge.Status)

	switch {
	case cfg.isSuccessStatus(status):
		if err := e.svc.Orders.MarkPaid(ctx, o.ID, charge.ID, cfg.SuccessStatus); err != nil {
			return http.StatusInternalServerError, err
		}
		note := "Everydaymoney payment completed. Transaction ID: " + charge.ID
		if err := e.svc.Orders.AddNote(ctx, o.ID, note); err != nil {
			log.Errorf("could not attach success note to order %d: %v", o.ID, err)
		}
		if err := e.svc.Ledger.UpdateStatus(ctx, o.ID, charge.Status, charge.ID, payload); err != nil {
			return http.StatusInternalServerError, err
		}
		e.svc.publish(EventPaymentCompleted, o, charge.ID, charge.Status)
		log.Infof("order %d marked paid, transaction %s", o.ID, charge.ID)
		return http.StatusOK, nil

	case status == "failed":
		note := "Everydaymoney payment failed."
		if charge.StatusReason != "" {
			note += " Reason: " + charge.StatusReason
		}
		if err := e.svc.Orders.UpdateStatus(ctx, o.ID, model.OrderFailed, note); err != nil {
			return http.StatusInternalServerError, err
		}
		if err := e.svc.Ledger.UpdateStatus(ctx, o.ID, charge.Status, charge.ID, payload); err != nil {
			return http.StatusInternalServerError, err
		}
		e.svc.publish(EventPaymentFailed, o, charge.ID, charge.Status)
		log.Infof("order %d marked failed", o.ID)
		return http.StatusOK, nil

	case status == "cancelled", status == "canceled":
		if err := e.svc.Orders.UpdateStatus(ctx, o.ID, model.OrderCancelled, "Everydaymoney payment cancelled."); err != nil {
			return http.StatusInternalServerError, err
		}
		if err := e.svc.Ledger.UpdateStatus(ctx, o.ID, charge.Status, charge.ID, payload); err != nil {
			return http.StatusInternalServerError, err
		}
		e.svc.publish(EventPaymentCancelled, o, charge.ID, charge.Status)
		log.Infof("order %d marked cancelled", o.ID)
		return http.StatusOK, nil

	default:
		log.Infof("order %d verified status %q, awaiting a later webhook", o.ID, charge.Status)
		return http.StatusOK, nil
	}
}

// pickCharge prefers the charge matching the recorded gateway transaction
// id, falling back to the most recent attempt.
func pickCharge(charges []model.Charge, transactionID string) *model.Charge {
	if len(charges) == 0 {
		return nil
	}
	if transactionID != "" {
		for i := range charges {
			if charges[i].ID == transactionID {
				return &charges[i]
			}
		}
	}
	return &charges[len(charges)-1]
}
