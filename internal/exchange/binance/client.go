package binance

import (
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
	Venue = "binance"

	mainnetURL = "https://api.binance.com"
	testnetURL = "https://testnet.binance.vision"
	recvWindow = "5000"
)

// Client talks to the Binance spot REST API.
type Client struct {
	cfg        config.ExchangeConfig
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type orderResponse struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func NewClient(cfg config.ExchangeConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = mainnetURL
		if cfg.Sandbox {
			baseURL = testnetURL
		}
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
	pair := exchange.CompactSymbol(symbol)
	reqURL := c.baseURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(pair)

	body, err := c.do(ctx, http.MethodGet, reqURL, false)
	if err != nil {
		return nil, err
	}

	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode ticker: %w", err)
	}
	last, err := exchange.ParseDecimal(resp.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price %q: %w", resp.Price, err)
	}

	return &exchange.Ticker{Symbol: symbol, Last: last, Timestamp: c.now()}, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResponse, error) {
	if c.cfg.APIKey == "" || c.cfg.SecretKey == "" {
		return nil, fmt.Errorf("binance trading requires api_key and secret_key")
	}

	params := url.Values{}
	params.Set("symbol", exchange.CompactSymbol(req.Symbol))
	params.Set("side", strings.ToUpper(req.Side))
	params.Set("quantity", exchange.FormatDecimal(req.Size))
	if req.Type == exchange.OrderTypeLimit {
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", exchange.FormatDecimal(req.Price))
	} else {
		params.Set("type", "MARKET")
	}
	params.Set("recvWindow", recvWindow)
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))

	query := params.Encode()
	reqURL := c.baseURL + "/api/v3/order?" + query + "&signature=" + c.sign(query)

	body, err := c.do(ctx, http.MethodPost, reqURL, true)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}

	return &exchange.OrderResponse{
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:  strings.ToLower(resp.Status),
	}, nil
}

// sign returns the hex HMAC-SHA256 of the query string.
func (c *Client) sign(query string) string {
	h := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, reqURL string, signed bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
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
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, &exchange.ExchangeError{
				Exchange: Venue,
				Code:     strconv.Itoa(apiErr.Code),
				Message:  apiErr.Msg,
			}
		}
		return nil, fmt.Errorf("binance request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
