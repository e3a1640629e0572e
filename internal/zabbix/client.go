// Package zabbix is a minimal JSON-RPC client for the Zabbix frontend API.
package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	endpointPath   = "/api_jsonrpc.php"
	defaultTimeout = 30 * time.Second
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("zabbix: no match")

// APIError is an error object returned by the server.
type APIError struct {
	Method  string
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zabbix %s: %s (%d): %s", e.Method, e.Message, e.Code, e.Data)
}

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     zerolog.Logger
}

type Client struct {
	endpoint string
	http     *http.Client
	log      zerolog.Logger

	nextID   atomic.Int64
	mu       sync.RWMutex
	token    string
	user     string
	password string
}

// New returns a client for server, which is the frontend base URL
// (for example https://zabbix.example.net/zabbix).
func New(server string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint: strings.TrimRight(server, "/") + endpointPath,
		http:     hc,
		log:      opts.Logger,
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
	Auth    string `json:"auth,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
	ID     int64           `json:"id"`
}

// Call invokes method with params and decodes the result into out, which may
// be nil. The session token is attached when one is held. A call rejected
// because the session expired is retried once after logging in again.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	err := c.call(ctx, method, params, out)
	if err == nil || !isSessionExpired(err) || method == "user.login" || method == "user.logout" {
		return err
	}
	c.mu.RLock()
	user, password := c.user, c.password
	c.mu.RUnlock()
	if user == "" {
		return err
	}
	c.log.Info().Str("method", method).Msg("zabbix session expired, logging in again")
	if lerr := c.Login(ctx, user, password); lerr != nil {
		return errors.Join(err, lerr)
	}
	return c.call(ctx, method, params, out)
}

func isSessionExpired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	text := strings.ToLower(apiErr.Message + " " + apiErr.Data)
	return strings.Contains(text, "session terminated") || strings.Contains(text, "re-login")
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}
	if method != "user.login" && method != "apiinfo.version" {
		req.Auth = c.Token()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json-rpc")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", method, err)
	}
	c.log.Debug().
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("zabbix call")

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var rpc response
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	if rpc.Error != nil {
		rpc.Error.Method = method
		return rpc.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpc.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login opens a session and keeps its token for later calls.
func (c *Client) Login(ctx context.Context, user, password string) error {
	var token string
	err := c.Call(ctx, "user.login", map[string]string{
		"username": user,
		"password": password,
	}, &token)
	if err != nil {
		return fmt.Errorf("login as %s: %w", user, err)
	}
	c.mu.Lock()
	c.token = token
	c.user = user
	c.password = password
	c.mu.Unlock()
	return nil
}

// Logout closes the session. It is a no-op without one.
func (c *Client) Logout(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	if err := c.Call(ctx, "user.logout", []string{}, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.mu.Lock()
	c.token = ""
	c.user = ""
	c.password = ""
	c.mu.Unlock()
	return nil
}
