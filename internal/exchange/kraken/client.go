package kraken

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	Venue = "kraken"

	defaultBaseURL = "https://api.kraken.com"
)

// Client reads Kraken spot last prices from the public Ticker endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

type tickerResponse struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		C []string `json:"c"` // last trade: [price, lot volume]
	} `json:"result"`
}

func NewClient(cfg config.ExchangeConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
}

var _ exchange.Exchange = (*Client)(nil)

func (c *Client) ID() string { return Venue }

// Pair converts "BTC/USDT" to Kraken's "XBTUSDT".
func Pair(symbol string) string {
	base, quote, _ := strings.Cut(strings.ToUpper(symbol), "/")
	if base == "BTC" {
		base = "XBT"
	}
	return base + quote
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	reqURL := c.baseURL + "/0/public/Ticker?pair=" + url.QueryEscape(Pair(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
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
		return nil, fmt.Errorf("kraken request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var data tickerResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode ticker: %w", err)
	}
	if len(data.Error) > 0 {
		return nil, &exchange.ExchangeError{Exchange: Venue, Message: strings.Join(data.Error, "; ")}
	}

	for _, v := range data.Result {
		if len(v.C) == 0 {
			continue
		}
		last, err := exchange.ParseDecimal(v.C[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse last price %q: %w", v.C[0], err)
		}
		return &exchange.Ticker{Symbol: symbol, Last: last, Timestamp: c.now()}, nil
	}
	return nil, fmt.Errorf("no ticker data for %s", symbol)
}

// PlaceOrder is not wired; Kraken is monitored for prices only.
func (c *Client) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResponse, error) {
	return nil, fmt.Errorf("kraken %s order: %w", req.Side, exchange.ErrNotSupported)
}
