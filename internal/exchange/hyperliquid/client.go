package hyperliquid

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sonirico/go-hyperliquid"
	"go.uber.org/zap"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
)

const (
	Venue = "hyperliquid"

	mainnetURL = "https://api.hyperliquid.xyz"
	testnetURL = "https://api.hyperliquid-testnet.xyz"

	// marketSlippage prices "market" orders as aggressive limits around mid.
	marketSlippage = 0.01
)

// Client reads mid prices from the perp universe and trades through the SDK.
// It has no dedicated fetch strategy, so the monitor reaches it through
// FetchTicker.
type Client struct {
	cfg    config.ExchangeConfig
	logger *zap.Logger
	info   *hyperliquid.Info

	mu       sync.RWMutex
	exchange *hyperliquid.Exchange
	meta     *hyperliquid.Meta
}

func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = mainnetURL
		if cfg.Sandbox {
			cfg.BaseURL = testnetURL
		}
	}
	c := &Client{
		cfg:    cfg,
		logger: logger.With(zap.String("exchange", Venue)),
		info:   hyperliquid.NewInfo(context.Background(), cfg.BaseURL, true, nil, nil),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.LoadMarkets(ctx); err != nil {
		c.logger.Warn("failed to fetch meta", zap.Error(err))
	}
	return c
}

var (
	_ exchange.Exchange     = (*Client)(nil)
	_ exchange.MarketLoader = (*Client)(nil)
)

func (c *Client) ID() string { return Venue }

// LoadMarkets refreshes the universe metadata and, when a private key is
// configured, rebuilds the trading client around it.
func (c *Client) LoadMarkets(ctx context.Context) error {
	meta, err := c.info.Meta(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch meta: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = meta

	if c.cfg.PrivateKey == "" {
		return nil
	}
	pk, err := crypto.HexToECDSA(c.cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	walletAddr := c.cfg.WalletAddress
	if walletAddr == "" {
		walletAddr = crypto.PubkeyToAddress(pk.PublicKey).Hex()
	}
	c.exchange = hyperliquid.NewExchange(ctx, pk, c.cfg.BaseURL, meta, "", walletAddr, nil)
	return nil
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	mid, err := c.midPrice(ctx, exchange.BaseAsset(symbol))
	if err != nil {
		return nil, err
	}
	return &exchange.Ticker{Symbol: symbol, Last: mid, Timestamp: time.Now()}, nil
}

func (c *Client) midPrice(ctx context.Context, coin string) (float64, error) {
	state, err := c.info.MetaAndAssetCtxs(ctx)
	if err != nil {
		return 0, err
	}

	for i, asset := range state.Universe {
		if asset.Name != coin {
			continue
		}
		if i >= len(state.Ctxs) {
			return 0, fmt.Errorf("asset context not found for index %d", i)
		}
		return exchange.ParseDecimal(state.Ctxs[i].MidPx)
	}
	return 0, fmt.Errorf("symbol %s not found in universe", coin)
}

func (c *Client) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResponse, error) {
	c.mu.RLock()
	exc, meta := c.exchange, c.meta
	c.mu.RUnlock()

	if exc == nil || meta == nil {
		return nil, fmt.Errorf("exchange client not initialized (check private key)")
	}

	coin := exchange.BaseAsset(req.Symbol)
	found := false
	for _, asset := range meta.Universe {
		if asset.Name == coin {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("symbol %s not found", coin)
	}

	var mid float64
	if isMarket(req) {
		var err error
		if mid, err = c.midPrice(ctx, coin); err != nil {
			return nil, fmt.Errorf("failed to price market order: %w", err)
		}
	}
	orderReq := buildOrder(req, coin, mid)

	res, err := exc.Order(ctx, orderReq, nil)
	if err != nil {
		return nil, err
	}
	if res.Error != nil {
		return nil, &exchange.ExchangeError{Exchange: Venue, Message: *res.Error}
	}

	status := "unknown"
	var orderID string
	if res.Resting != nil {
		status = "open"
		orderID = strconv.FormatInt(res.Resting.Oid, 10)
	} else if res.Filled != nil {
		status = "filled"
		orderID = strconv.Itoa(res.Filled.Oid)
	}

	return &exchange.OrderResponse{Status: status, OrderID: orderID}, nil
}

func isMarket(req *exchange.OrderRequest) bool {
	return req.Type == exchange.OrderTypeMarket || req.Price <= 0
}

// buildOrder maps a request onto the SDK order. Market orders become
// immediate-or-cancel limits at the marketable price around mid.
func buildOrder(req *exchange.OrderRequest, coin string, mid float64) hyperliquid.CreateOrderRequest {
	isBuy := req.Side == exchange.SideBuy
	price, tif := req.Price, hyperliquid.TifGtc
	if isMarket(req) {
		price, tif = MarketablePrice(mid, isBuy), hyperliquid.TifIoc
	}

	return hyperliquid.CreateOrderRequest{
		Coin:  coin,
		IsBuy: isBuy,
		Size:  req.Size,
		Price: price,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: tif},
		},
		ReduceOnly: req.ReduceOnly,
	}
}

// MarketablePrice shifts mid by the slippage allowance in the crossing
// direction and rounds to the five significant figures the venue accepts.
func MarketablePrice(mid float64, isBuy bool) float64 {
	p := mid * (1 - marketSlippage)
	if isBuy {
		p = mid * (1 + marketSlippage)
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(p, 'g', 5, 64), 64)
	if err != nil {
		return p
	}
	return rounded
}
