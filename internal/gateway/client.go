package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oddsmith/kalshi-mm/pkg/cache"
	"github.com/oddsmith/kalshi-mm/pkg/types"
)

// Market is the exchange's market metadata.
type Market struct {
	Ticker         string    `json:"ticker"`
	EventTicker    string    `json:"event_ticker"`
	Title          string    `json:"title"`
	Category       string    `json:"category"`
	Status         string    `json:"status"`
	YesBid         int       `json:"yes_bid"`
	YesAsk         int       `json:"yes_ask"`
	ExpirationTime time.Time `json:"expiration_time"`
	CloseTime      time.Time `json:"close_time"`
}

// Order is the exchange's view of one of our orders.
type Order struct {
	OrderID        string     `json:"order_id"`
	ClientOrderID  string     `json:"client_order_id"`
	Ticker         string     `json:"ticker"`
	Side           types.Side `json:"side"`
	Action         string     `json:"action"`
	YesPrice       int        `json:"yes_price"`
	NoPrice        int        `json:"no_price"`
	Status         string     `json:"status"`
	InitialCount   int        `json:"initial_count"`
	RemainingCount int        `json:"remaining_count"`
}

// Price returns the order's limit price on its own side.
func (o *Order) Price() int {
	if o.Side == types.SideNo {
		return o.NoPrice
	}
	return o.YesPrice
}

// OrderRequest is a limit order to place. Price is in cents on the order's
// own side; ExpirationTs (unix seconds) makes the exchange expire the order
// at event time.
type OrderRequest struct {
	Ticker       string
	Side         types.Side
	Action       string // "buy" or "sell"
	Count        int
	Price        int
	ExpirationTs int64
}

// Client is the exchange REST API client. It wraps a resty HTTP client with
// a shared token bucket, request signing, and a metadata cache.
type Client struct {
	http    *resty.Client
	signer  *Signer
	limiter *rate.Limiter
	markets cache.Cache
	logger  *zap.Logger
}

// Config holds gateway client configuration.
type Config struct {
	BaseURL      string
	Signer       *Signer
	RateLimit    float64 // requests per second
	RateBurst    int
	HTTPTimeout  time.Duration
	MarketsCache cache.Cache
	Logger       *zap.Logger
}

// New creates an exchange REST client.
func New(cfg *Config) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL+apiPrefix).
		SetTimeout(cfg.HTTPTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		signer:  cfg.Signer,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		markets: cfg.MarketsCache,
		logger:  cfg.Logger,
	}
}

// Signer exposes the request signer so the stream can build its
// connection headers.
func (c *Client) Signer() *Signer {
	return c.signer
}

// request runs one signed, rate-limited call and decodes the 2xx body
// into result. Non-2xx responses come back as *types.APIError.
func (c *Client) request(ctx context.Context, endpoint, method, path string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	headers, err := c.signer.Headers(method, path)
	if err != nil {
		return err
	}

	timer := prometheus.NewTimer(RequestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		RequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		RequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode())).Inc()
		return apiError(resp)
	}

	RequestsTotal.WithLabelValues(endpoint, "ok").Inc()

	if result != nil {
		if err := json.Unmarshal(resp.Body(), result); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// apiError maps a non-2xx response to *types.APIError, decoding the
// exchange's error envelope when present.
func apiError(resp *resty.Response) error {
	apiErr := &types.APIError{
		StatusCode: resp.StatusCode(),
		Message:    resp.String(),
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}

	return apiErr
}

// GetMarkets pages through open markets, optionally filtered by event.
func (c *Client) GetMarkets(ctx context.Context, eventTicker string) ([]Market, error) {
	var markets []Market
	cursor := ""

	for {
		path := "/markets?limit=200&status=open"
		if eventTicker != "" {
			path += "&event_ticker=" + eventTicker
		}
		if cursor != "" {
			path += "&cursor=" + cursor
		}

		var result struct {
			Markets []Market `json:"markets"`
			Cursor  string   `json:"cursor"`
		}
		if err := c.request(ctx, "get_markets", http.MethodGet, path, nil, &result); err != nil {
			return nil, fmt.Errorf("get markets: %w", err)
		}

		markets = append(markets, result.Markets...)
		if result.Cursor == "" {
			break
		}
		cursor = result.Cursor
	}

	return markets, nil
}

// GetMarket returns one market's metadata, served from cache when fresh.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*Market, error) {
	if c.markets != nil {
		if cached, found := c.markets.Get("market:" + ticker); found {
			if m, ok := cached.(*Market); ok {
				return m, nil
			}
		}
	}

	var result struct {
		Market Market `json:"market"`
	}
	err := c.request(ctx, "get_market", http.MethodGet, "/markets/"+ticker, nil, &result)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", ticker, err)
	}

	if c.markets != nil {
		c.markets.Set("market:"+ticker, &result.Market, 5*time.Minute)
	}
	return &result.Market, nil
}

// GetOrderbook fetches a full book snapshot, used to seed or resync the
// book cache when the stream cannot.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*types.OrderbookSnapshot, error) {
	var result struct {
		Orderbook struct {
			Yes [][2]int `json:"yes"`
			No  [][2]int `json:"no"`
		} `json:"orderbook"`
	}
	err := c.request(ctx, "get_orderbook", http.MethodGet, "/markets/"+ticker+"/orderbook", nil, &result)
	if err != nil {
		return nil, fmt.Errorf("get orderbook %s: %w", ticker, err)
	}

	return &types.OrderbookSnapshot{
		Ticker: ticker,
		Yes:    result.Orderbook.Yes,
		No:     result.Orderbook.No,
	}, nil
}

// PlaceOrder submits a limit order. A 2xx response without an order id is a
// logical reject and maps to types.ErrOrderRejected.
func (c *Client) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	payload := map[string]any{
		"client_order_id": uuid.New().String(),
		"ticker":          req.Ticker,
		"side":            string(req.Side),
		"action":          req.Action,
		"type":            "limit",
		"count":           req.Count,
	}
	if req.Side == types.SideNo {
		payload["no_price"] = req.Price
	} else {
		payload["yes_price"] = req.Price
	}
	if req.ExpirationTs > 0 {
		payload["expiration_ts"] = req.ExpirationTs
	}

	var result struct {
		Order Order `json:"order"`
	}
	err := c.request(ctx, "place_order", http.MethodPost, "/portfolio/orders", payload, &result)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	if result.Order.OrderID == "" {
		return nil, types.ErrOrderRejected
	}

	c.logger.Debug("order-placed",
		zap.String("order-id", result.Order.OrderID),
		zap.String("ticker", req.Ticker),
		zap.String("side", string(req.Side)),
		zap.Int("price", req.Price),
		zap.Int("count", req.Count))

	return &result.Order, nil
}

// CancelOrder cancels one order. An unknown order id maps to
// types.ErrOrderNotFound so callers can treat the race as success.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	err := c.request(ctx, "cancel_order", http.MethodDelete, "/portfolio/orders/"+orderID, nil, nil)
	if err != nil {
		var apiErr *types.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return types.ErrOrderNotFound
		}
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	c.logger.Debug("order-cancelled", zap.String("order-id", orderID))
	return nil
}

// GetOrders pages through our orders with the given status ("resting" for
// open orders).
func (c *Client) GetOrders(ctx context.Context, status string) ([]Order, error) {
	var orders []Order
	cursor := ""

	for {
		path := "/portfolio/orders?limit=200"
		if status != "" {
			path += "&status=" + status
		}
		if cursor != "" {
			path += "&cursor=" + cursor
		}

		var result struct {
			Orders []Order `json:"orders"`
			Cursor string  `json:"cursor"`
		}
		if err := c.request(ctx, "get_orders", http.MethodGet, path, nil, &result); err != nil {
			return nil, fmt.Errorf("get orders: %w", err)
		}

		orders = append(orders, result.Orders...)
		if result.Cursor == "" {
			break
		}
		cursor = result.Cursor
	}

	return orders, nil
}

// GetPositions returns the signed net position per ticker. Positive counts
// are YES contracts, negative NO.
func (c *Client) GetPositions(ctx context.Context) (map[string]int, error) {
	positions := make(map[string]int)
	cursor := ""

	for {
		path := "/portfolio/positions?limit=200"
		if cursor != "" {
			path += "&cursor=" + cursor
		}

		var result struct {
			MarketPositions []struct {
				Ticker   string `json:"ticker"`
				Position int    `json:"position"`
			} `json:"market_positions"`
			Cursor string `json:"cursor"`
		}
		if err := c.request(ctx, "get_positions", http.MethodGet, path, nil, &result); err != nil {
			return nil, fmt.Errorf("get positions: %w", err)
		}

		for _, p := range result.MarketPositions {
			positions[p.Ticker] = p.Position
		}
		if result.Cursor == "" {
			break
		}
		cursor = result.Cursor
	}

	return positions, nil
}

// GetBalance returns the account balance in cents. The app calls this once
// at startup to prove the credentials before quoting.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	var result struct {
		Balance int64 `json:"balance"`
	}
	err := c.request(ctx, "get_balance", http.MethodGet, "/portfolio/balance", nil, &result)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return result.Balance, nil
}

// GetFills pages through historical fills, oldest first within each page,
// starting from the given cursor (empty for the most recent page).
func (c *Client) GetFills(ctx context.Context, cursor string) ([]types.Fill, string, error) {
	path := "/portfolio/fills?limit=100"
	if cursor != "" {
		path += "&cursor=" + cursor
	}

	var result struct {
		Fills  []types.Fill `json:"fills"`
		Cursor string       `json:"cursor"`
	}
	if err := c.request(ctx, "get_fills", http.MethodGet, path, nil, &result); err != nil {
		return nil, "", fmt.Errorf("get fills: %w", err)
	}

	return result.Fills, result.Cursor, nil
}
