// Package pacifica is the HTTP client for the Pacifica exchange API. Signed
// actions are posted as prebuilt envelopes; read-only views are plain GETs
// keyed by account address.
package pacifica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/envelope"
	"github.com/ashureev/pacifica-bot/internal/metrics"
)

const maxErrorBody = 4 << 10

// actionPaths maps each signed action to its endpoint.
var actionPaths = map[domain.ActionType]string{
	domain.ActionCreateLimitOrder:  "orders/create_limit",
	domain.ActionCreateMarketOrder: "orders/create_market",
	domain.ActionCancelOrder:       "orders/cancel",
	domain.ActionCancelAllOrders:   "orders/cancel_all",
	domain.ActionSetPositionTPSL:   "positions/tpsl",
	domain.ActionUpdateLeverage:    "account/leverage",
}

// Client talks to the Pacifica REST API.
type Client struct {
	base   string
	hc     *http.Client
	logger *slog.Logger
}

// NewClient creates a client rooted at baseURL (e.g. https://api.pacifica.fi/api/v1).
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		hc:     &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// response is the common reply wrapper.
type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// Submit posts a signed envelope to the endpoint for its action.
func (c *Client) Submit(ctx context.Context, env *envelope.Envelope) (*SubmitResult, error) {
	path, ok := actionPaths[env.Action]
	if !ok {
		return nil, fmt.Errorf("no endpoint for action %q", env.Action)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	var out SubmitResult
	if err := c.do(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	c.logger.Info("Pacifica action accepted",
		"action", env.Action,
		"account", env.Body["account"],
		"order_id", out.OrderID,
	)
	return &out, nil
}

// Account returns the account summary.
func (c *Client) Account(ctx context.Context, account string) (*Account, error) {
	var out Account
	if err := c.get(ctx, "account", accountQuery(account), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Positions returns open positions.
func (c *Client) Positions(ctx context.Context, account string) ([]Position, error) {
	var out []Position
	if err := c.get(ctx, "positions", accountQuery(account), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Orders returns open orders, optionally for one symbol.
func (c *Client) Orders(ctx context.Context, account, symbol string) ([]Order, error) {
	q := accountQuery(account)
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var out []Order
	if err := c.get(ctx, "orders", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Settings returns per-market margin settings. Markets left at their
// defaults are not listed.
func (c *Client) Settings(ctx context.Context, account string) ([]AccountSetting, error) {
	var out []AccountSetting
	if err := c.get(ctx, "account/settings", accountQuery(account), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Subaccounts lists the account's subaccounts.
func (c *Client) Subaccounts(ctx context.Context, account string) ([]Subaccount, error) {
	var out []Subaccount
	if err := c.get(ctx, "subaccounts", accountQuery(account), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Prices returns the current price board for every market.
func (c *Client) Prices(ctx context.Context) ([]Price, error) {
	var out []Price
	if err := c.get(ctx, "info/prices", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Markets returns market specifications.
func (c *Client) Markets(ctx context.Context) ([]Market, error) {
	var out []Market
	if err := c.get(ctx, "markets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func accountQuery(account string) url.Values {
	return url.Values{"account": []string{account}}
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, q, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, out any) error {
	u := c.base + "/" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("new request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.hc.Do(req)
	metrics.APILatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		return &APIError{Endpoint: path, Err: err}
	}
	defer res.Body.Close()

	c.logger.Debug("Pacifica response", "method", method, "endpoint", path, "status", res.StatusCode, "duration", time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return &APIError{Endpoint: path, Status: res.StatusCode, Err: err}
	}

	var wrapped response
	decodeErr := json.Unmarshal(raw, &wrapped)

	if res.StatusCode >= 300 || (decodeErr == nil && !wrapped.Success && (errorText(wrapped.Error) != "" || wrapped.Message != "")) {
		apiErr := &APIError{Endpoint: path, Status: res.StatusCode}
		if decodeErr == nil {
			apiErr.Code = rawText(wrapped.Code)
			apiErr.Message = firstNonEmpty(errorText(wrapped.Error), wrapped.Message)
		}
		if apiErr.Message == "" {
			apiErr.Message = truncate(string(raw), maxErrorBody)
		}
		c.logger.Warn("Pacifica request failed", "endpoint", path, "status", res.StatusCode, "code", apiErr.Code, "error", apiErr.Message)
		return apiErr
	}
	if decodeErr != nil {
		return &APIError{Endpoint: path, Status: res.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}

	if out == nil || len(wrapped.Data) == 0 || string(wrapped.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(wrapped.Data, out); err != nil {
		return &APIError{Endpoint: path, Status: res.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

// errorText extracts a message from an error field that may be a string or
// an object with an "error" or "message" key.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if m := firstNonEmpty(obj.Error, obj.Message); m != "" {
			return m
		}
	}
	return string(raw)
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
