package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	Venue = "bybit"

	demoURL    = "https://api-demo.bybit.com"
	recvWindow = "5000"
)

// Client is a minimal Bybit v5 spot client: public tickers and signed market
// orders. It defaults to the demo trading host.
type Client struct {
	cfg        config.ExchangeConfig
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

type baseResponse struct {
	RetCode int                 `json:"retCode"`
	RetMsg  string              `json:"retMsg"`
	Result  jsoniter.RawMessage `json:"result"`
}

type tickersResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"list"`
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

func NewClient(cfg config.ExchangeConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = demoURL
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

var _ exchange.Exchange = (*Client)(nil)

func (c *Client) ID() string { return Venue }

func (c *Client) FetchTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	query := url.Values{}
	query.Set("category", "spot")
	query.Set("symbol", exchange.CompactSymbol(symbol))

	result, err := c.doRequest(ctx, http.MethodGet, "/v5/market/tickers?"+query.Encode(), nil, false)
	if err != nil {
		return nil, err
	}

	var tickers tickersResult
	if err := json.Unmarshal(result, &tickers); err != nil {
		return nil, fmt.Errorf("failed to decode tickers: %w", err)
	}
	if len(tickers.List) == 0 {
		return nil, fmt.Errorf("ticker not found for %s", symbol)
	}

	last, err := exchange.ParseDecimal(tickers.List[0].LastPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lastPrice %q: %w", tickers.List[0].LastPrice, err)
	}
	return &exchange.Ticker{Symbol: symbol, Last: last, Timestamp: c.now()}, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResponse, error) {
	if c.cfg.APIKey == "" || c.cfg.SecretKey == "" {
		return nil, fmt.Errorf("bybit trading requires api_key and secret_key")
	}

	orderType := "Market"
	if req.Type == exchange.OrderTypeLimit {
		orderType = "Limit"
	}
	side := "Buy"
	if req.Side == exchange.SideSell {
		side = "Sell"
	}

	body := map[string]string{
		"category":    "spot",
		"symbol":      exchange.CompactSymbol(req.Symbol),
		"side":        side,
		"orderType":   orderType,
		"qty":         exchange.FormatDecimal(req.Size),
		"timeInForce": "IOC",
	}
	if orderType == "Limit" {
		body["price"] = exchange.FormatDecimal(req.Price)
		body["timeInForce"] = "GTC"
	} else {
		// spot market buys default to quote-coin qty
		body["marketUnit"] = "baseCoin"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	result, err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", payload, true)
	if err != nil {
		return nil, err
	}

	var order orderResult
	if err := json.Unmarshal(result, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order result: %w", err)
	}
	return &exchange.OrderResponse{OrderID: order.OrderID, Status: "submitted"}, nil
}

// sign implements the v5 scheme: HMAC-SHA256 of timestamp+apiKey+recvWindow+payload,
// where payload is the query string for GET and the JSON body for POST.
func (c *Client) sign(timestamp, payload string) string {
	h := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	h.Write([]byte(timestamp + c.cfg.APIKey + recvWindow + payload))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest executes the call and returns the raw "result" object, turning a
// non-zero retCode into an *exchange.ExchangeError.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload []byte, signed bool) (jsoniter.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
		signPayload := string(payload)
		if method == http.MethodGet {
			signPayload = req.URL.RawQuery
		}
		req.Header.Set("X-BAPI-API-KEY", c.cfg.APIKey)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
		req.Header.Set("X-BAPI-SIGN", c.sign(timestamp, signPayload))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bybit request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var base baseResponse
	if err := json.Unmarshal(body, &base); err != nil {
		return nil, fmt.Errorf("failed to decode bybit response: %w", err)
	}
	if base.RetCode != 0 {
		return nil, &exchange.ExchangeError{
			Exchange: Venue,
			Code:     strconv.Itoa(base.RetCode),
			Message:  base.RetMsg,
		}
	}
	return base.Result, nil
}
