package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"everydaymoney/model"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			w.Write([]byte(`{"isError":false,"result":"tok_test"}`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, Credentials{PublicKey: "pk", Secret: "sk"}, nil)
	return srv, client
}

func chargeRequest() model.ChargeRequest {
	return model.ChargeRequest{
		Currency: "USD",
		Email:    "buyer@example.com",
		OrderLines: []model.ChargeLine{
			{ItemName: "Widget", Quantity: 1, Amount: 10},
		},
	}
}

func TestCreateChargeSuccess(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, chargePath, r.URL.Path)
		require.Equal(t, "Bearer tok_test", r.Header.Get("Authorization"))

		var req model.ChargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "USD", req.Currency)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"isError": false,
			"result": {
				"checkoutURL": "https://pay.example.com/c/abc",
				"order": {"id": "api_1", "charges": [{"id": "ch_1", "transactionRef": "WC-7-1", "status": "pending"}]}
			}
		}`))
	})

	result, err := client.CreateCharge(context.Background(), chargeRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/c/abc", result.CheckoutURL)
	assert.Equal(t, "api_1", result.Order.ID)
	require.Len(t, result.Order.Charges, 1)
	assert.Equal(t, "ch_1", result.Order.Charges[0].ID)
}

func TestCreateChargeRequiredFields(t *testing.T) {
	client := NewClient("http://unused.invalid", Credentials{PublicKey: "pk", Secret: "sk"}, nil)

	tests := []struct {
		name   string
		mutate func(*model.ChargeRequest)
	}{
		{"missing currency", func(r *model.ChargeRequest) { r.Currency = "" }},
		{"missing email", func(r *model.ChargeRequest) { r.Email = "" }},
		{"missing order lines", func(r *model.ChargeRequest) { r.OrderLines = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := chargeRequest()
			tt.mutate(&req)
			_, err := client.CreateCharge(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestCreateChargeAPIError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"isError":true,"result":{"message":["currency unsupported","amount too low"]}}`))
	})

	_, err := client.CreateCharge(context.Background(), chargeRequest())
	require.Error(t, err)
	assert.Equal(t, KindAPI, KindOf(err))
	assert.Contains(t, err.Error(), "currency unsupported, amount too low")
}

func TestCreateChargeMissingCheckoutURL(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"isError":false,"result":{"order":{"id":"api_1"}}}`))
	})

	_, err := client.CreateCharge(context.Background(), chargeRequest())
	require.Error(t, err)
	assert.Equal(t, KindAPI, KindOf(err))
}

func TestVerifyOrder(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, verifyOrderPath+"api_9", r.URL.Path)
		w.Write([]byte(`{
			"isError": false,
			"result": {"id": "api_9", "amount": 49.99, "charges": [{"id": "ch_9", "status": "succeeded"}]}
		}`))
	})

	snap, err := client.VerifyOrder(context.Background(), "api_9")
	require.NoError(t, err)
	assert.Equal(t, 49.99, snap.Amount)
	require.Len(t, snap.Charges, 1)
	assert.Equal(t, "succeeded", snap.Charges[0].Status)
}

func TestNetworkErrorKind(t *testing.T) {
	srv, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	// Prime the token cache, then make the transport unreachable.
	require.NoError(t, client.TestConnection(context.Background()))
	srv.Close()

	_, err := client.VerifyOrder(context.Background(), "api_1")
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestAuthFailureFailsFast(t *testing.T) {
	var chargeCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"isError":true,"message":"bad credentials"}`))
			return
		}
		chargeCalls++
	}))
	defer srv.Close()

	client := NewClient(srv.URL, Credentials{PublicKey: "pk", Secret: "sk"}, nil)
	_, err := client.CreateCharge(context.Background(), chargeRequest())
	require.Error(t, err)
	assert.Equal(t, KindAuth, KindOf(err))
	assert.Zero(t, chargeCalls, "no API call may be made without a token")
}

func TestExtractMessagePriority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"result.message wins", `{"result":{"message":"nested"},"message":"top","error":"err"}`, "nested"},
		{"message next", `{"message":"top","error":"err"}`, "top"},
		{"error next", `{"error":"err","result":"ignored-when-error-present"}`, "err"},
		{"bare string result", `{"result":"plain failure"}`, "plain failure"},
		{"array joined", `{"message":["one","two"]}`, "one, two"},
		{"fallback", `{"unrelated":true}`, "an unknown API error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var parsed map[string]any
			require.NoError(t, json.Unmarshal([]byte(tt.body), &parsed))
			assert.Equal(t, tt.want, extractMessage(parsed))
		})
	}
}
