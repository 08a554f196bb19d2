package payment

import (
	"encoding/json"
	"io"
	"net/http"

	"everydaymoney/gateway"
)

// SignatureHeaderName carries the webhook signature: "t=<unix>,v1=<hex>".
const SignatureHeaderName = "X-Everydaymoney-Signature"

type Handler struct {
	Svc    *Service
	Engine *Engine
}

func NewHandler(svc *Service, engine *Engine) *Handler {
	return &Handler{Svc: svc, Engine: engine}
}

type checkoutRequest struct {
	OrderID int64 `json:"order_id"`
}

type checkoutResponse struct {
	RedirectURL string `json:"redirect_url"`
}

func (h *Handler) Checkout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		redirect, err := h.Svc.Checkout(r.Context(), req.OrderID)
		if err != nil {
			h.Svc.Log.Errorf("checkout failed for order %d: %v", req.OrderID, err)
			writeJSON(w, checkoutErrorStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, checkoutResponse{RedirectURL: redirect})
	}
}

func (h *Handler) Webhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "could not read body", http.StatusBadRequest)
			return
		}
		status, err := h.Engine.HandleWebhook(r.Context(), body, r.Header.Get(SignatureHeaderName))
		if err != nil {
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, status, map[string]bool{"received": true})
	}
}

func (h *Handler) TestConnection() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := h.Svc.TestConnection(r.Context()); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func checkoutErrorStatus(err error) int {
	switch gateway.KindOf(err) {
	case gateway.KindNotFound:
		return http.StatusNotFound
	case gateway.KindValidation:
		return http.StatusUnprocessableEntity
	case gateway.KindAuth, gateway.KindAPI, gateway.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
