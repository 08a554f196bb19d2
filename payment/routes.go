package payment

import "net/http"

func RegisterRoutes(mux *http.ServeMux, svc *Service, engine *Engine) {
	h := NewHandler(svc, engine)

	mux.HandleFunc("/v1/payments/checkout", h.Checkout())
	mux.HandleFunc("/v1/payments/webhook", h.Webhook())
	mux.HandleFunc("/v1/payments/test-connection", h.TestConnection())
}
