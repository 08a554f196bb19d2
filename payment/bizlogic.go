package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"everydaymoney/gateway"
	"everydaymoney/ledger"
	"everydaymoney/model"
)

// Kafka event types published on payment lifecycle transitions.
const (
	EventPaymentInitiated = "payment.initiated"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
)

// Service drives the checkout side of the gateway: it builds the charge,
// calls the upstream API and records the ledger row before the customer is
// redirected to the hosted checkout page.
type Service struct {
	Orders   OrderStore
	Ledger   Ledger
	Gateway  GatewayClient
	Producer sarama.SyncProducer
	Topic    string
	Config   Config
	Log      gateway.Logger

	now func() time.Time
}

func NewService(orders OrderStore, led Ledger, gw GatewayClient, producer sarama.SyncProducer, topic string, cfg Config, log gateway.Logger) *Service {
	if log == nil {
		log = gateway.NopLogger{}
	}
	return &Service{
		Orders:   orders,
		Ledger:   led,
		Gateway:  gw,
		Producer: producer,
		Topic:    topic,
		Config:   cfg.withDefaults(),
		Log:      log,
		now:      time.Now,
	}
}

// Checkout creates an upstream charge for the order and returns the hosted
// checkout URL. On any failure the order is left untouched and no ledger row
// exists; the typed error tells the caller what went wrong.
func (s *Service) Checkout(ctx context.Context, orderID int64) (string, error) {
	o, ok, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", gateway.Errorf(gateway.KindNotFound, "order %d not found", orderID)
	}
	if o.Paid || o.Status == model.OrderCompleted || o.Status == model.OrderCancelled {
		return "", gateway.Errorf(gateway.KindValidation, "order %d is not awaiting payment", orderID)
	}

	req := gateway.BuildChargeRequest(o, gateway.BuildParams{
		RedirectURL: s.Config.RedirectURL,
		WebhookURL:  s.Config.WebhookURL,
		StoreName:   s.Config.StoreName,
		Now:         s.now,
	})

	result, err := s.Gateway.CreateCharge(ctx, req)
	if err != nil {
		s.Log.Errorf("charge creation failed for order %d: %v", orderID, err)
		return "", err
	}

	chargeID := ""
	if len(result.Order.Charges) > 0 {
		chargeID = result.Order.Charges[0].ID
	}

	if err := s.Orders.SetMeta(ctx, orderID, model.MetaAPIOrderID, result.Order.ID); err != nil {
		return "", err
	}
	if err := s.Orders.SetMeta(ctx, orderID, model.MetaTransactionRef, req.TransactionRef); err != nil {
		return "", err
	}
	if chargeID != "" {
		if err := s.Orders.SetMeta(ctx, orderID, model.MetaTransactionID, chargeID); err != nil {
			return "", err
		}
	}

	// One ledger row per order. A payment retry for a still-pending order
	// refreshes the existing row instead of inserting a second one.
	if _, exists, err := s.Ledger.GetByOrderID(ctx, orderID); err != nil {
		return "", err
	} else if exists {
		if err := s.Ledger.UpdateStatus(ctx, orderID, ledger.StatusPendingGateway, chargeID, nil); err != nil {
			s.Log.Errorf("ledger refresh failed for order %d: %v", orderID, err)
			return "", err
		}
	} else if err := s.Ledger.Insert(ctx, ledger.Row{
		OrderID:        orderID,
		TransactionID:  chargeID,
		TransactionRef: req.TransactionRef,
		Status:         ledger.StatusPendingGateway,
		Amount:         o.Total,
		Currency:       o.Currency,
	}); err != nil {
		s.Log.Errorf("ledger insert failed for order %d: %v", orderID, err)
		return "", err
	}

	if err := s.Orders.UpdateStatus(ctx, orderID, model.OrderPending, "Awaiting payment via Everydaymoney."); err != nil {
		return "", err
	}

	s.publish(EventPaymentInitiated, o, chargeID, ledger.StatusPendingGateway)
	s.Log.Infof("charge created for order %d, api order %s", orderID, result.Order.ID)
	return result.CheckoutURL, nil
}

// TestConnection forces a fresh login against the upstream API.
func (s *Service) TestConnection(ctx context.Context) error {
	return s.Gateway.TestConnection(ctx)
}

func (s *Service) publish(eventType string, o model.Order, transactionID, status string) {
	if s.Producer == nil {
		return
	}
	ev := struct {
		Type          string  `json:"type"`
		OrderID       int64   `json:"order_id"`
		OrderNumber   string  `json:"order_number"`
		TransactionID string  `json:"transaction_id,omitempty"`
		Amount        float64 `json:"amount"`
		Currency      string  `json:"currency"`
		Status        string  `json:"status"`
		OccurredAt    string  `json:"occurred_at"`
	}{
		Type:          eventType,
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		TransactionID: transactionID,
		Amount:        o.Total,
		Currency:      o.Currency,
		Status:        status,
		OccurredAt:    s.now().UTC().Format(time.RFC3339),
	}
	b, _ := json.Marshal(ev)

	msg := &sarama.ProducerMessage{
		Topic: s.Topic,
		Key:   sarama.StringEncoder(o.Number),
		Value: sarama.ByteEncoder(b),
	}
	if _, _, err := s.Producer.SendMessage(msg); err != nil {
		s.Log.Errorf("publish %s for order %d failed: %v", eventType, o.ID, err)
	}
}
