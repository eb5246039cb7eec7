package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/version"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for idempotent calls
	DefaultMaxRetries = 2

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 10 * time.Second

	// Breaker trips after this many consecutive transport failures
	breakerThreshold = 5
)

// Routes used by the barcode application.
const (
	RouteAuthenticate    = "/web/session/authenticate"
	RouteVersionInfo     = "/web/webclient/version_info"
	RouteBarcodeData     = "/stock_barcode/get_barcode_data"
	RouteSpecificBarcode = "/stock_barcode/get_specific_barcode_data"
	RouteSaveBarcodeData = "/stock_barcode/save_barcode_data"
	RouteRunAction       = "/stock_barcode/run_action"
	routeCallKW          = "/web/dataset/call_kw/"
)

// Client is a JSON-RPC client for the stock backend. It keeps the backend
// session cookie, retries idempotent calls and stops calling a backend that
// keeps failing.
type Client struct {
	// BaseURL is the backend root (e.g. "https://erp.example.com")
	BaseURL string

	Database string
	Login    string
	Password string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for idempotent calls
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay for exponential backoff
	MaxRetryDelay time.Duration

	// UseExponentialBackoff enables exponential backoff for retries
	UseExponentialBackoff bool

	UserAgent string

	breaker *gobreaker.CircuitBreaker
	nextID  atomic.Int64

	mu      sync.RWMutex
	session *SessionInfo
}

// SessionInfo is the authenticated user context.
type SessionInfo struct {
	UID       int64          `json:"uid"`
	Name      string         `json:"name"`
	Database  string         `json:"db"`
	Context   map[string]any `json:"user_context"`
	ServerVer string         `json:"server_version"`
}

// NewClient creates a backend client for baseURL.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		BaseURL:               strings.TrimRight(baseURL, "/"),
		HTTPClient:            &http.Client{Timeout: DefaultTimeout, Jar: jar},
		MaxRetries:            DefaultMaxRetries,
		RetryDelay:            DefaultRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		UseExponentialBackoff: true,
		UserAgent:             version.UserAgent("stockbarcode"),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        c.BaseURL,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("Backend circuit breaker state changed",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetAuth sets the database and credentials used by Authenticate
func (c *Client) SetAuth(database, login, password string) {
	c.Database = database
	c.Login = login
	c.Password = password
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// Session returns the authenticated session, or nil.
func (c *Client) Session() *SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Authenticate logs in and stores the session cookie.
func (c *Client) Authenticate(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	params := map[string]any{"db": c.Database, "login": c.Login, "password": c.Password}
	if err := c.call(ctx, RouteAuthenticate, params, &info, false); err != nil {
		return nil, err
	}
	if info.UID == 0 {
		return nil, &Error{Type: ErrTypeAuth, Message: "invalid login or password", Route: RouteAuthenticate}
	}

	c.mu.Lock()
	c.session = &info
	c.mu.Unlock()

	logging.Info("Authenticated with backend",
		zap.String("backend", c.BaseURL),
		zap.String("database", info.Database),
		zap.Int64("uid", info.UID),
	)
	return &info, nil
}

// Ping checks that the backend answers.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var info struct {
		ServerVersion string `json:"server_version"`
	}
	if err := c.call(ctx, RouteVersionInfo, map[string]any{}, &info, true); err != nil {
		return "", err
	}
	return info.ServerVersion, nil
}

// Call posts a JSON-RPC request to route and decodes the result into out.
// Reads are retried on transient failures; writes are sent once.
func (c *Client) Call(ctx context.Context, route string, params any, out any) error {
	return c.call(ctx, route, params, out, isIdempotent(route, params))
}

// CallKW invokes a model method through the generic dataset route.
func (c *Client) CallKW(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	params := map[string]any{
		"model":  model,
		"method": method,
		"args":   args,
		"kwargs": kwargs,
	}
	return c.Call(ctx, routeCallKW+model+"/"+method, params, out)
}

// SearchRead reads records matching domain.
func (c *Client) SearchRead(ctx context.Context, model string, domain []any, fields []string, limit int, out any) error {
	kwargs := map[string]any{"fields": fields}
	if limit > 0 {
		kwargs["limit"] = limit
	}
	if domain == nil {
		domain = []any{}
	}
	return c.CallKW(ctx, model, "search_read", []any{domain}, kwargs, out)
}

var readMethods = map[string]bool{
	"search_read":  true,
	"read":         true,
	"search":       true,
	"name_search":  true,
	"search_count": true,
}

func isIdempotent(route string, params any) bool {
	switch route {
	case RouteBarcodeData, RouteVersionInfo, RouteSpecificBarcode:
		return true
	}
	if strings.HasPrefix(route, routeCallKW) {
		if m, ok := params.(map[string]any); ok {
			method, _ := m["method"].(string)
			return readMethods[method]
		}
	}
	return false
}

func (c *Client) call(ctx context.Context, route string, params any, out any, retry bool) error {
	var lastErr error
	currentDelay := c.RetryDelay

	attempts := 1
	if retry {
		attempts += c.MaxRetries
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			logging.Debug("Retrying backend call",
				zap.String("route", route),
				zap.Int("attempt", attempt),
				zap.Duration("delay", currentDelay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(currentDelay):
			}

			if c.UseExponentialBackoff {
				currentDelay *= 2
				if currentDelay > c.MaxRetryDelay {
					currentDelay = c.MaxRetryDelay
				}
			}
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.callAttempt(ctx, route, params, out)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &Error{Type: ErrTypeUnavailable, Message: "backend temporarily unavailable", Route: route, Err: err}
		}
		if err == nil {
			return nil
		}

		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			return err
		}
	}

	return lastErr
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      int64  `json:"id"`
	Params  any    `json:"params"`
}

type response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int              `json:"code"`
		Message string           `json:"message"`
		Data    *ServerErrorData `json:"data"`
	} `json:"error"`
}

// callAttempt performs a single request
func (c *Client) callAttempt(ctx context.Context, route string, params any, out any) error {
	id := c.nextID.Add(1)
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: "call", ID: id, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", route, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+route, bytes.NewReader(body))
	if err != nil {
		return ClassifyNetworkError(err, route)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ClassifyNetworkError(err, route)
	}
	defer func() { _ = resp.Body.Close() }()

	logging.Debug("Backend call",
		zap.String("route", route),
		zap.Int64("id", id),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewHTTPError(route, resp.StatusCode, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return NewParseError(route, "failed to decode response", err)
	}
	if r.Error != nil {
		return NewServerError(route, r.Error.Code, r.Error.Message, r.Error.Data)
	}
	if out == nil || len(r.Result) == 0 || string(r.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return NewParseError(route, "failed to decode result", err)
	}
	return nil
}
