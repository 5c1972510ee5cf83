package edgex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
	"spread-arb-bot/pkg/ws"
)

const (
	Venue = "edgex"

	defaultBaseURL = "https://pro.edgex.exchange"

	// streamMaxAge bounds how stale a streamed last price may be before the
	// REST index price is used instead.
	streamMaxAge = 5 * time.Second
)

// Client prices EdgeX perpetuals. With ws_url configured it keeps the last
// traded price per contract from the quote stream; otherwise, or when the
// stream is stale, it falls back to the REST index price.
type Client struct {
	cfg        config.ExchangeConfig
	httpClient *http.Client
	logger     *zap.Logger

	metaMu   sync.RWMutex
	metadata *MetadataResponse

	quoteMu sync.RWMutex
	stream  *ws.EdgeXWSClient
	quotes  map[string]streamQuote // contractId -> last price
	now     func() time.Time
}

type streamQuote struct {
	price float64
	at    time.Time
}

// EdgeX API Response structures
type EdgeXResponse struct {
	Code         string          `json:"code"`
	Data         json.RawMessage `json:"data"`
	Msg          *string         `json:"msg"`
	ErrorParam   *string         `json:"errorParam"`
	RequestTime  string          `json:"requestTime"`
	ResponseTime string          `json:"responseTime"`
	TraceId      string          `json:"traceId"`
}

type FundingRateData struct {
	ContractId       string `json:"contractId"`
	FundingRate      string `json:"fundingRate"`
	IndexPrice       string `json:"indexPrice"`
	FundingTimestamp string `json:"fundingTimestamp"`
}

type MetadataResponse struct {
	Global       GlobalConfig `json:"global"`
	ContractList []Contract   `json:"contractList"`
}

type GlobalConfig struct {
	AppName string `json:"appName"`
}

type Contract struct {
	ContractId   string `json:"contractId"`
	ContractName string `json:"contractName"`
	TickSize     string `json:"tickSize"`
	StepSize     string `json:"stepSize"`
}

func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With(zap.String("exchange", Venue)),
		quotes: make(map[string]streamQuote),
		now:    time.Now,
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := client.LoadMarkets(ctx); err != nil {
			client.logger.Warn("failed to fetch metadata", zap.Int("attempt", i+1), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		break
	}

	return client
}

var (
	_ exchange.Exchange     = (*Client)(nil)
	_ exchange.MarketLoader = (*Client)(nil)
)

func (c *Client) ID() string { return Venue }

// LoadMarkets fetches the contract list used to map symbols to contract ids.
func (c *Client) LoadMarkets(ctx context.Context) error {
	var metadata MetadataResponse
	if err := c.get(ctx, "/api/v1/public/meta/getMetaData", &metadata); err != nil {
		return err
	}

	c.metaMu.Lock()
	c.metadata = &metadata
	c.metaMu.Unlock()
	return nil
}

func (c *Client) getContractId(symbol string) (string, error) {
	c.metaMu.RLock()
	metadata := c.metadata
	c.metaMu.RUnlock()

	if metadata == nil {
		return "", fmt.Errorf("metadata not loaded")
	}

	// BTC/USDT -> BTCUSD, ETH-USD -> ETHUSD: EdgeX quotes in USD, not USDT
	normalizedSymbol := strings.NewReplacer("/", "", "-", "").Replace(strings.ToUpper(symbol))
	normalizedSymbol = strings.TrimSuffix(normalizedSymbol, "T")

	for _, contract := range metadata.ContractList {
		if contract.ContractName == normalizedSymbol {
			return contract.ContractId, nil
		}
	}

	return "", fmt.Errorf("contract not found for symbol: %s (normalized: %s)", symbol, normalizedSymbol)
}

// StartStream connects the quote WebSocket and subscribes to the ticker of
// symbol. It is a no-op when ws_url is not configured.
func (c *Client) StartStream(ctx context.Context, symbol string) error {
	if c.cfg.WSURL == "" {
		return nil
	}
	contractID, err := c.getContractId(symbol)
	if err != nil {
		return err
	}

	stream := ws.NewEdgeXWSClient(c.cfg.WSURL, c.logger)
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	if err := stream.Subscribe(ws.TickerChannel(contractID), c.handleTicker); err != nil {
		_ = stream.Close()
		return fmt.Errorf("failed to subscribe ticker: %w", err)
	}

	c.quoteMu.Lock()
	prev := c.stream
	c.stream = stream
	c.quoteMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

func (c *Client) handleTicker(raw json.RawMessage) {
	var content ws.EdgeXTickerContent
	if err := json.Unmarshal(raw, &content); err != nil {
		c.logger.Debug("bad ticker payload", zap.Error(err))
		return
	}
	for _, t := range content.Data {
		price, err := exchange.ParseDecimal(t.LastPrice)
		if err != nil || price <= 0 {
			continue
		}
		c.quoteMu.Lock()
		c.quotes[t.ContractId] = streamQuote{price: price, at: c.now()}
		c.quoteMu.Unlock()
	}
}

func (c *Client) Close() error {
	c.quoteMu.Lock()
	stream := c.stream
	c.stream = nil
	c.quoteMu.Unlock()

	if stream != nil {
		return stream.Close()
	}
	return nil
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	contractId, err := c.getContractId(symbol)
	if err != nil {
		return nil, err
	}

	c.quoteMu.RLock()
	q, ok := c.quotes[contractId]
	c.quoteMu.RUnlock()
	if ok && c.now().Sub(q.at) <= streamMaxAge {
		return &exchange.Ticker{Symbol: symbol, Last: q.price, Timestamp: q.at}, nil
	}

	var fundingData []FundingRateData
	path := "/api/v1/public/funding/getLatestFundingRate?contractId=" + contractId
	if err := c.get(ctx, path, &fundingData); err != nil {
		return nil, err
	}
	if len(fundingData) == 0 {
		return nil, fmt.Errorf("no funding data returned")
	}

	price, err := exchange.ParseDecimal(fundingData[0].IndexPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index price: %w", err)
	}
	return &exchange.Ticker{Symbol: symbol, Last: price, Timestamp: c.now()}, nil
}

// PlaceOrder needs the EdgeX SDK (stark signatures), which this build does not
// link.
func (c *Client) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResponse, error) {
	return nil, fmt.Errorf("edgex %s order: %w", req.Side, exchange.ErrNotSupported)
}

// get performs a public GET and decodes the "data" envelope into out.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var apiResp EdgeXResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return err
	}

	if apiResp.Code != "SUCCESS" {
		msg := apiResp.Code
		if apiResp.Msg != nil {
			msg = *apiResp.Msg
		}
		return &exchange.ExchangeError{Exchange: Venue, Code: apiResp.Code, Message: msg}
	}

	return json.Unmarshal(apiResp.Data, out)
}
