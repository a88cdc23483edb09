package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"trustbridge/pkg/types"
)

const (
	DefaultBaseURL = "https://api-trustbridge.izcy.tech"
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 2000
)

// TokenStore holds the bearer tokens. *session.Store satisfies it.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetAccessToken(token string) error
	Clear() error
}

// Client talks to the remittance backend REST API
type Client struct {
	baseURL string
	http    *http.Client
	session TokenStore
	logger  *zap.Logger

	refreshMu sync.Mutex
}

// New creates a backend client. session may be nil for unauthenticated use.
func New(baseURL string, timeout time.Duration, session TokenStore, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		session: session,
		logger:  logger,
	}
}

// BaseURL returns the backend root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges a phone number for tokens and the user record
func (c *Client) Login(ctx context.Context, req types.LoginRequest) (*types.LoginResponse, error) {
	return call[types.LoginResponse](ctx, c, http.MethodPost, "/api/auth/login", req, false)
}

// Logout invalidates the session server-side
func (c *Client) Logout(ctx context.Context) error {
	_, err := call[json.RawMessage](ctx, c, http.MethodPost, "/api/auth/logout", nil, true)
	return err
}

// Tokens returns the token registry
func (c *Client) Tokens(ctx context.Context) ([]types.Token, error) {
	tokens, err := call[[]types.Token](ctx, c, http.MethodGet, "/api/blockchain/tokens", nil, false)
	if err != nil {
		return nil, err
	}
	return *tokens, nil
}

// BlockchainInfo returns the network the backend settles on
func (c *Client) BlockchainInfo(ctx context.Context) (*types.BlockchainInfo, error) {
	return call[types.BlockchainInfo](ctx, c, http.MethodGet, "/api/blockchain/info", nil, false)
}

// Quote requests an off-chain transfer quote
func (c *Client) Quote(ctx context.Context, req types.QuoteRequest) (*types.TransferQuote, error) {
	return call[types.TransferQuote](ctx, c, http.MethodPost, "/api/exchange/quote", req, false)
}

// InitiateTransfer starts a card-rail transfer
func (c *Client) InitiateTransfer(ctx context.Context, req types.TransferRequest) (*types.TransferInitiation, error) {
	return call[types.TransferInitiation](ctx, c, http.MethodPost, "/api/transfer/initiate", req, true)
}

// WalletSubmit registers a signed swap transaction against a new transfer record
func (c *Client) WalletSubmit(ctx context.Context, req types.WalletSubmitRequest) (*types.TransferInitiation, error) {
	return call[types.TransferInitiation](ctx, c, http.MethodPost, "/api/transfer/wallet-submit", req, true)
}

// TransferStatus returns the current status of a transfer
func (c *Client) TransferStatus(ctx context.Context, id string) (*types.TransferRecord, error) {
	return call[types.TransferRecord](ctx, c, http.MethodGet, "/api/transfer/status/"+url.PathEscape(id), nil, true)
}

// TransferDetails returns the full transfer record
func (c *Client) TransferDetails(ctx context.Context, id string) (*types.TransferRecord, error) {
	return call[types.TransferRecord](ctx, c, http.MethodGet, "/api/transfer/details/"+url.PathEscape(id), nil, true)
}

// History returns one page of the user's transfers. Zero limit/offset are omitted.
func (c *Client) History(ctx context.Context, limit, offset int) (*types.TransferHistory, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	path := "/api/transfer/history"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return call[types.TransferHistory](ctx, c, http.MethodGet, path, nil, true)
}

// Invoice downloads the PDF invoice of a transfer
func (c *Client) Invoice(ctx context.Context, id string) ([]byte, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "/api/transfer/invoice/"+url.PathEscape(id), nil, true, "application/pdf")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, apiError(status, raw)
	}
	return raw, nil
}

func call[T any](ctx context.Context, c *Client, method, path string, reqBody any, auth bool) (*T, error) {
	status, raw, err := c.do(ctx, method, path, reqBody, auth, "application/json")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, apiError(status, raw)
	}
	return decode[T](status, raw)
}

// do sends the request, refreshing the access token once on 401
func (c *Client) do(ctx context.Context, method, path string, reqBody any, auth bool, accept string) (int, []byte, error) {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}

	if auth && (c.session == nil || (c.session.AccessToken() == "" && c.session.RefreshToken() == "")) {
		return 0, nil, ErrNotAuthenticated
	}

	token := ""
	if auth {
		token = c.session.AccessToken()
	}

	status, raw, err := c.send(ctx, method, path, payload, token, accept)
	if err != nil {
		return 0, nil, err
	}

	if status == http.StatusUnauthorized && auth {
		c.logger.Debug("access token rejected, refreshing", zap.String("path", path))
		token, err = c.refresh(ctx, token)
		if err != nil {
			return 0, nil, err
		}
		status, raw, err = c.send(ctx, method, path, payload, token, accept)
		if err != nil {
			return 0, nil, err
		}
	}

	return status, raw, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token, accept string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("new %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrBackendUnavailable, method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response body: %w", ErrBackendUnavailable, err)
	}

	c.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", res.StatusCode),
		zap.Duration("took", time.Since(start)))

	return res.StatusCode, raw, nil
}

// refresh exchanges the refresh token for a new access token.
// stale is the token that was rejected; if another caller already refreshed, its token is reused.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.session.AccessToken(); current != "" && current != stale {
		return current, nil
	}

	refreshToken := c.session.RefreshToken()
	if refreshToken == "" {
		c.clearSession()
		return "", ErrSessionExpired
	}

	status, raw, err := c.send(ctx, http.MethodPost, "/api/auth/refresh", mustJSON(map[string]string{"refreshToken": refreshToken}), "", "application/json")
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		c.logger.Info("refresh token rejected, clearing session", zap.Int("status", status))
		c.clearSession()
		return "", ErrSessionExpired
	}

	tokens, err := decode[types.AuthTokens](status, raw)
	if err != nil || tokens.AccessToken == "" {
		c.clearSession()
		return "", ErrSessionExpired
	}

	if err := c.session.SetAccessToken(tokens.AccessToken); err != nil {
		c.logger.Warn("failed to persist refreshed token", zap.Error(err))
	}
	return tokens.AccessToken, nil
}

func (c *Client) clearSession() {
	if err := c.session.Clear(); err != nil {
		c.logger.Warn("failed to clear session", zap.Error(err))
	}
}

// envelope is the {success, data, error} wrapper some endpoints use
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decode[T any](status int, raw []byte) (*T, error) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}

	if env, ok := asEnvelope(raw); ok {
		if !env.Success {
			msg := env.Error
			if msg == "" {
				msg = env.Message
			}
			return nil, &APIError{Status: status, Message: msg}
		}
		raw = env.Data
		if len(raw) == 0 || string(raw) == "null" {
			return &out, nil
		}
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		snip := strings.TrimSpace(string(raw))
		if len(snip) > 300 {
			snip = snip[:300] + "...(truncated)"
		}
		return nil, fmt.Errorf("unmarshal JSON: %w (body: %q)", err, snip)
	}
	return &out, nil
}

func asEnvelope(raw []byte) (*envelope, bool) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, false
	}
	if _, ok := keys["success"]; !ok {
		return nil, false
	}
	_, hasData := keys["data"]
	_, hasError := keys["error"]
	if !hasData && !hasError {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	return &env, true
}

func apiError(status int, raw []byte) error {
	msg := ""
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		msg = body.Error
		if msg == "" {
			msg = body.Message
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "...(truncated)"
		}
	}
	return &APIError{Status: status, Message: msg}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
