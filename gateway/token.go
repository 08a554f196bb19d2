package gateway

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	loginPath = "/auth/business/token"

	// Assumed token lifetime when the server does not report one.
	defaultTokenLifetime = 3500 * time.Second
	// Safety margin subtracted from the server-reported expiry.
	tokenExpiryBuffer = 100 * time.Second
	minTokenTTL       = 60 * time.Second
)

type Credentials struct {
	PublicKey string
	Secret    string
}

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// TokenCache obtains and caches bearer tokens for the upstream API, keyed by
// a hash of the public key. Concurrent logins for the same credentials are
// tolerated; the last writer wins and the loser's token simply goes unused.
type TokenCache struct {
	baseURL string
	creds   Credentials
	httpc   *http.Client
	log     Logger

	mu      sync.RWMutex
	entries map[string]tokenEntry

	now func() time.Time
}

func NewTokenCache(baseURL string, creds Credentials, httpc *http.Client, log Logger) *TokenCache {
	if httpc == nil {
		httpc = &http.Client{Timeout: requestTimeout}
	}
	if log == nil {
		log = NopLogger{}
	}
	return &TokenCache{
		baseURL: baseURL,
		creds:   creds,
		httpc:   httpc,
		log:     log,
		entries: make(map[string]tokenEntry),
		now:     time.Now,
	}
}

func (c *TokenCache) cacheKey() string {
	sum := md5.Sum([]byte(c.creds.PublicKey))
	return hex.EncodeToString(sum[:])
}

// Token returns a cached bearer token, logging in when the cache is empty or
// expired. Failures are reported as auth-kind errors, never panics.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	key := c.cacheKey()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		c.log.Debugf("token cache hit for key %s", key)
		return entry.token, nil
	}

	if c.creds.PublicKey == "" || c.creds.Secret == "" {
		return "", NewError(KindAuth, "missing API credentials")
	}

	token, ttl, err := c.login(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = tokenEntry{token: token, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	c.log.Infof("obtained and cached bearer token, ttl %s", ttl)
	return token, nil
}

// Invalidate drops the cached token so the next call performs a fresh login.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	delete(c.entries, c.cacheKey())
	c.mu.Unlock()
}

func (c *TokenCache) login(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, nil)
	if err != nil {
		return "", 0, WrapError(KindAuth, "build login request", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.creds.PublicKey + ":" + c.creds.Secret))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.creds.PublicKey)
	req.Header.Set("Authorization", "Basic "+basic)

	c.log.Debugf("requesting bearer token from %s", c.baseURL+loginPath)
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Errorf("login request failed: %v", err)
		return "", 0, WrapError(KindAuth, "login request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, WrapError(KindAuth, "read login response", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, WrapError(KindAuth, "malformed login response", err)
	}

	httpOK := resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated
	isErr, hasFlag := parsed["isError"].(bool)
	if !httpOK || !hasFlag || isErr {
		msg := extractMessage(parsed)
		c.log.Errorf("login failed, code %d: %s", resp.StatusCode, msg)
		return "", 0, &Error{Kind: KindAuth, Message: msg, HTTPStatus: resp.StatusCode}
	}

	token, lifetime := parseTokenResult(parsed["result"])
	if token == "" {
		c.log.Errorf("login succeeded (code %d) but no token in response", resp.StatusCode)
		return "", 0, &Error{Kind: KindAuth, Message: "token missing from login response", HTTPStatus: resp.StatusCode}
	}

	ttl := lifetime - tokenExpiryBuffer
	if ttl < minTokenTTL {
		ttl = minTokenTTL
	}
	return token, ttl, nil
}

// parseTokenResult accepts both envelope shapes the API has produced: a bare
// token string, or an object carrying token plus optional expiresIn seconds.
func parseTokenResult(result any) (string, time.Duration) {
	switch v := result.(type) {
	case string:
		return v, defaultTokenLifetime
	case map[string]any:
		token, _ := v["token"].(string)
		lifetime := defaultTokenLifetime
		if secs, ok := v["expiresIn"].(float64); ok && secs > 0 {
			lifetime = time.Duration(secs) * time.Second
		}
		return token, lifetime
	default:
		return "", defaultTokenLifetime
	}
}
