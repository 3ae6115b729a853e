package venue

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"phase-trade-bot-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// API is the wire-level surface of the venue bridge. RestClient talks to a
// live bridge; PaperAPI simulates the account side for dry runs.
type API interface {
	Login(ctx context.Context, creds Credentials) error
	SelectSymbol(ctx context.Context, symbol string) (*SymbolInfo, error)
	Rates(ctx context.Context, symbol, timeframe string, count int) ([]Rate, error)
	Tick(ctx context.Context, symbol string) (*TickResponse, error)
	Positions(ctx context.Context, symbol string) ([]PositionInfo, error)
	Account(ctx context.Context) (*AccountInfo, error)
	SendOrder(ctx context.Context, req TradeRequest) (*TradeResult, error)
	Shutdown(ctx context.Context) error
}

// RestClient is a client for the venue bridge's REST API.
type RestClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RestClient implements the interface
var _ API = (*RestClient)(nil)

// NewRestClient creates a new venue bridge client.
func NewRestClient(cfg *config.Venue, logger *zap.Logger) *RestClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json")

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &RestClient{
		client:  client,
		logger:  logger.Named("venue-rest"),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// doRequest executes a single rate-limited request. Retrying is the
// gateway's job, so a failure here is returned as-is.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
	resp, err := req.SetContext(ctx).Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return resp, nil
}

// Login authenticates the bridge session.
func (c *RestClient) Login(ctx context.Context, creds Credentials) error {
	req := c.client.R().
		SetBody(creds).
		SetResult(&LoginResponse{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/login", req)
	if err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	result := resp.Result().(*LoginResponse)
	if !result.OK {
		return fmt.Errorf("login rejected: %s", result.Error)
	}
	return nil
}

// SelectSymbol enables symbol in the terminal and returns its trading rules.
func (c *RestClient) SelectSymbol(ctx context.Context, symbol string) (*SymbolInfo, error) {
	req := c.client.R().
		SetPathParam("symbol", symbol).
		SetResult(&SymbolInfo{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/symbols/{symbol}/select", req)
	if err != nil {
		return nil, fmt.Errorf("failed to select symbol %s: %w", symbol, err)
	}
	return resp.Result().(*SymbolInfo), nil
}

// Rates fetches the latest count bars of symbol, oldest first.
func (c *RestClient) Rates(ctx context.Context, symbol, timeframe string, count int) ([]Rate, error) {
	var rates []Rate

	req := c.client.R().
		SetQueryParams(map[string]string{
			"symbol":    symbol,
			"timeframe": timeframe,
			"count":     strconv.Itoa(count),
		}).
		SetResult(&rates)

	resp, err := c.doRequest(ctx, http.MethodGet, "/rates", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get rates: %w", err)
	}
	return *resp.Result().(*[]Rate), nil
}

// Tick fetches the current quote of symbol.
func (c *RestClient) Tick(ctx context.Context, symbol string) (*TickResponse, error) {
	req := c.client.R().
		SetPathParam("symbol", symbol).
		SetResult(&TickResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/ticks/{symbol}", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get tick: %w", err)
	}
	return resp.Result().(*TickResponse), nil
}

// Positions lists the open positions on symbol.
func (c *RestClient) Positions(ctx context.Context, symbol string) ([]PositionInfo, error) {
	var positions []PositionInfo

	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetResult(&positions)

	resp, err := c.doRequest(ctx, http.MethodGet, "/positions", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	return *resp.Result().(*[]PositionInfo), nil
}

// Account fetches balance and equity.
func (c *RestClient) Account(ctx context.Context) (*AccountInfo, error) {
	req := c.client.R().SetResult(&AccountInfo{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/account", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return resp.Result().(*AccountInfo), nil
}

// SendOrder submits a trade request. A returned result may still carry a
// non-success retcode; interpreting it is up to the caller.
func (c *RestClient) SendOrder(ctx context.Context, tr TradeRequest) (*TradeResult, error) {
	req := c.client.R().
		SetBody(tr).
		SetResult(&TradeResult{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/orders", req)
	if err != nil {
		c.logger.Error("Failed to send order",
			zap.Error(err),
			zap.String("symbol", tr.Symbol),
		)
		return nil, fmt.Errorf("failed to send order: %w", err)
	}

	result := resp.Result().(*TradeResult)
	c.logger.Debug("Order response", zap.Any("result", result))
	return result, nil
}

// Shutdown closes the bridge's terminal session.
func (c *RestClient) Shutdown(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodPost, "/shutdown", c.client.R()); err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}
	return nil
}
