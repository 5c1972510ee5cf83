package pricefeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"spread-arb-bot/internal/exchange"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	binancePublicURL = "https://api.binance.com"
	bybitPublicURL   = "https://api-testnet.bybit.com"
)

// BinanceStrategy reads /api/v3/ticker/price directly, bypassing the client.
type BinanceStrategy struct {
	BaseURL string
	Client  *http.Client
}

func NewBinanceStrategy(baseURL string) *BinanceStrategy {
	if baseURL == "" {
		baseURL = binancePublicURL
	}
	return &BinanceStrategy{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: DefaultTimeout},
	}
}

func (s *BinanceStrategy) FetchPrice(ctx context.Context, _ exchange.Exchange, symbol string) (float64, error) {
	endpoint := s.BaseURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(exchange.CompactSymbol(symbol))

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := getJSON(ctx, s.Client, endpoint, &resp); err != nil {
		return 0, err
	}
	if resp.Price == "" {
		return 0, fmt.Errorf("binance ticker: missing price")
	}
	return exchange.ParseDecimal(resp.Price)
}

// BybitStrategy reads the spot /v5/market/tickers endpoint directly.
type BybitStrategy struct {
	BaseURL string
	Client  *http.Client
}

func NewBybitStrategy(baseURL string) *BybitStrategy {
	if baseURL == "" {
		baseURL = bybitPublicURL
	}
	return &BybitStrategy{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: DefaultTimeout},
	}
}

func (s *BybitStrategy) FetchPrice(ctx context.Context, _ exchange.Exchange, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", exchange.CompactSymbol(symbol))
	endpoint := s.BaseURL + "/v5/market/tickers?" + q.Encode()

	var resp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				Symbol    string `json:"symbol"`
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := getJSON(ctx, s.Client, endpoint, &resp); err != nil {
		return 0, err
	}
	if resp.RetCode != 0 {
		return 0, &exchange.ExchangeError{Exchange: "bybit", Code: fmt.Sprint(resp.RetCode), Message: resp.RetMsg}
	}
	if len(resp.Result.List) == 0 {
		return 0, fmt.Errorf("bybit ticker: empty result list")
	}
	return exchange.ParseDecimal(resp.Result.List[0].LastPrice)
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
