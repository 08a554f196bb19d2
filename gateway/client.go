package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"everydaymoney/model"
)

const (
	chargePath      = "/payment/checkout/api-charge-order"
	verifyOrderPath = "/business/order/"

	// Fixed per-call budget. Retries are a caller-level policy; none here.
	requestTimeout = 45 * time.Second
)

// Client issues authenticated requests against the upstream payment API and
// normalizes its success/error envelopes into typed results.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  *TokenCache
	log     Logger
}

func NewClient(baseURL string, creds Credentials, log Logger) *Client {
	if log == nil {
		log = NopLogger{}
	}
	httpc := &http.Client{Timeout: requestTimeout}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		tokens:  NewTokenCache(strings.TrimRight(baseURL, "/"), creds, httpc, log),
		log:     log,
	}
}

// Tokens exposes the underlying cache for flows that need to force a fresh
// login, such as TestConnection.
func (c *Client) Tokens() *TokenCache { return c.tokens }

// CreateCharge creates a hosted-checkout charge for the given request and
// returns the checkout URL plus the API's view of the new order.
func (c *Client) CreateCharge(ctx context.Context, req model.ChargeRequest) (*model.ChargeResult, error) {
	if req.Currency == "" {
		return nil, NewError(KindValidation, "missing required field: currency")
	}
	if req.Email == "" {
		return nil, NewError(KindValidation, "missing required field: email")
	}
	if len(req.OrderLines) == 0 {
		return nil, NewError(KindValidation, "missing required field: orderLines")
	}

	result, err := c.request(ctx, http.MethodPost, chargePath, req, nil)
	if err != nil {
		return nil, err
	}

	var out model.ChargeResult
	if err := decodeResult(result, &out); err != nil {
		return nil, WrapError(KindAPI, "malformed charge result", err)
	}
	if out.CheckoutURL == "" {
		return nil, NewError(KindAPI, "checkout URL missing from charge result")
	}
	return &out, nil
}

// VerifyOrder fetches the authoritative status and amount for an upstream
// order. This is the sole source of truth during webhook reconciliation.
func (c *Client) VerifyOrder(ctx context.Context, apiOrderID string) (*model.OrderSnapshot, error) {
	if apiOrderID == "" {
		return nil, NewError(KindValidation, "missing API order id")
	}

	result, err := c.request(ctx, http.MethodGet, verifyOrderPath+url.PathEscape(apiOrderID), nil, nil)
	if err != nil {
		return nil, err
	}

	var out model.OrderSnapshot
	if err := decodeResult(result, &out); err != nil {
		return nil, WrapError(KindAPI, "malformed order snapshot", err)
	}
	return &out, nil
}

// TestConnection drops any cached token and forces a fresh login.
func (c *Client) TestConnection(ctx context.Context) error {
	c.tokens.Invalidate()
	_, err := c.tokens.Token(ctx)
	return err
}

// request performs one authenticated call and unwraps the response envelope.
// Mutating calls carry JSON bodies; reads are query-encoded.
func (c *Client) request(ctx context.Context, method, path string, body any, query url.Values) (any, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.Errorf("API request aborted, no token: %v", err)
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil && (method == http.MethodPost || method == http.MethodPut) {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, WrapError(KindValidation, "encode request body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, WrapError(KindNetwork, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.log.Infof("API request (%s): %s", method, endpoint)
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Errorf("API network error (%s): %v", path, err)
		return nil, WrapError(KindNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(KindNetwork, "read response", err)
	}
	c.log.Debugf("API response (%s): code %d body %s", path, resp.StatusCode, raw)

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &Error{Kind: KindAPI, Message: "malformed API response", HTTPStatus: resp.StatusCode, Err: err}
	}

	isErr, hasFlag := parsed["isError"].(bool)
	result, hasResult := parsed["result"]
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && hasFlag && !isErr && hasResult {
		return result, nil
	}

	msg := extractMessage(parsed)
	c.log.Errorf("API error (%s): code %d message %q", path, resp.StatusCode, msg)
	return nil, &Error{Kind: KindAPI, Message: msg, HTTPStatus: resp.StatusCode}
}

func decodeResult(result any, dst any) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, dst)
}

// messageRules is the ordered list of extraction rules applied to a failure
// envelope: result.message, then message, then error, then a bare string
// result. Array values are joined with ", ".
var messageRules = []func(map[string]any) (string, bool){
	func(b map[string]any) (string, bool) {
		nested, ok := b["result"].(map[string]any)
		if !ok {
			return "", false
		}
		return messageText(nested["message"])
	},
	func(b map[string]any) (string, bool) { return messageText(b["message"]) },
	func(b map[string]any) (string, bool) { return messageText(b["error"]) },
	func(b map[string]any) (string, bool) {
		s, ok := b["result"].(string)
		return s, ok && s != ""
	},
}

func extractMessage(body map[string]any) string {
	for _, rule := range messageRules {
		if msg, ok := rule(body); ok {
			return msg
		}
	}
	return "an unknown API error occurred"
}

func messageText(v any) (string, bool) {
	switch m := v.(type) {
	case string:
		return m, m != ""
	case []any:
		parts := make([]string, 0, len(m))
		for _, item := range m {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), len(parts) > 0
	default:
		return "", false
	}
}
