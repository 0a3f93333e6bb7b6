package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stockswap-labs/stockswap/params"
)

// CollateralSymbol names the collateral coin quote in the cache.
const CollateralSymbol = "SOL-USD"

// ErrNoPriceData is returned when the upstream snapshot carries no usable
// price field.
var ErrNoPriceData = errors.New("no price data available")

// lamportsPerSol is the request size for collateral quotes: one whole coin.
const lamportsPerSol = "1000000000"

// usdTokenScale converts the aggregator's 6-decimal quote-token base units
// into whole USD.
var usdTokenScale = decimal.New(1, 6)

// Client is the price-quoting gateway: stock prices from a brokerage snapshot
// API, collateral coin prices from a signed DEX aggregator quote. Responses
// are cached for a short TTL and upstream calls are rate limited.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	cache   *quoteCache
	log     *zap.SugaredLogger

	stockBase   string
	stockKey    string
	stockSecret string

	quoteBase string
	signer    *Signer

	// Aggregator quote parameters for the collateral coin.
	chainID       string
	collateralTok string
	usdTok        string
}

// NewClient builds a gateway client from feed configuration.
func NewClient(cfg params.Feed, log *zap.SugaredLogger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Client{
		http:          &http.Client{Timeout: 10 * time.Second},
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		cache:         newQuoteCache(ttl),
		log:           log,
		stockBase:     cfg.StockBaseURL,
		stockKey:      cfg.StockAPIKey,
		stockSecret:   cfg.StockAPISecret,
		quoteBase:     cfg.QuoteBaseURL,
		signer:        NewSigner(cfg.QuoteAPIKey, cfg.QuoteAPISecret, cfg.QuotePassphrase, cfg.QuoteProjectID),
		chainID:       "501",
		collateralTok: "11111111111111111111111111111111",
		usdTok:        "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	}
}

// stockSnapshot mirrors the brokerage snapshot response. Pointer fields
// distinguish absent sections from zero prices.
type stockSnapshot struct {
	LatestQuote *struct {
		AskPrice *decimal.Decimal `json:"ap"`
		BidPrice *decimal.Decimal `json:"bp"`
	} `json:"latestQuote"`
	DailyBar *struct {
		Close *decimal.Decimal `json:"c"`
	} `json:"dailyBar"`
	LatestTrade *struct {
		Price *decimal.Decimal `json:"p"`
	} `json:"latestTrade"`
}

// price picks the best available field: ask, then bid, then daily close, then
// last trade.
func (s *stockSnapshot) price() (decimal.Decimal, bool) {
	if s.LatestQuote != nil {
		if s.LatestQuote.AskPrice != nil && s.LatestQuote.AskPrice.IsPositive() {
			return *s.LatestQuote.AskPrice, true
		}
		if s.LatestQuote.BidPrice != nil && s.LatestQuote.BidPrice.IsPositive() {
			return *s.LatestQuote.BidPrice, true
		}
	}
	if s.DailyBar != nil && s.DailyBar.Close != nil && s.DailyBar.Close.IsPositive() {
		return *s.DailyBar.Close, true
	}
	if s.LatestTrade != nil && s.LatestTrade.Price != nil && s.LatestTrade.Price.IsPositive() {
		return *s.LatestTrade.Price, true
	}
	return decimal.Zero, false
}

// StockPrice returns the USD price for a stock symbol.
func (c *Client) StockPrice(ctx context.Context, symbol string) (Quote, error) {
	now := time.Now()
	if q, ok := c.cache.get(symbol, now); ok {
		return q, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}

	u := fmt.Sprintf("%s/v2/stocks/%s/snapshot", c.stockBase, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.stockKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.stockSecret)

	var snap stockSnapshot
	if err := c.doJSON(req, &snap); err != nil {
		return Quote{}, fmt.Errorf("stock snapshot %s: %w", symbol, err)
	}

	price, ok := snap.price()
	if !ok {
		return Quote{}, fmt.Errorf("%w for %s", ErrNoPriceData, symbol)
	}

	q := Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}
	c.cache.put(q)
	return q, nil
}

// aggregatorQuote mirrors the signed DEX aggregator response.
type aggregatorQuote struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		ToTokenAmount decimal.Decimal `json:"toTokenAmount"`
	} `json:"data"`
}

// CollateralPrice returns the USD price of one whole collateral coin, obtained
// by quoting a one-coin swap into the USD-pegged token.
func (c *Client) CollateralPrice(ctx context.Context) (Quote, error) {
	now := time.Now()
	if q, ok := c.cache.get(CollateralSymbol, now); ok {
		return q, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}

	query := url.Values{}
	query.Set("chainId", c.chainID)
	query.Set("fromTokenAddress", c.collateralTok)
	query.Set("toTokenAddress", c.usdTok)
	query.Set("amount", lamportsPerSol)
	fullPath := "/api/v5/dex/aggregator/quote?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteBase+fullPath, nil)
	if err != nil {
		return Quote{}, err
	}
	for k, v := range c.signer.Headers(http.MethodGet, fullPath, "", time.Now()) {
		req.Header.Set(k, v)
	}

	var out aggregatorQuote
	if err := c.doJSON(req, &out); err != nil {
		return Quote{}, fmt.Errorf("collateral quote: %w", err)
	}
	if out.Code != "0" || len(out.Data) == 0 {
		return Quote{}, fmt.Errorf("%w: aggregator code=%s msg=%q", ErrNoPriceData, out.Code, out.Msg)
	}

	// toTokenAmount is in USD-token base units for exactly one coin in.
	price := out.Data[0].ToTokenAmount.Div(usdTokenScale)
	if !price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: non-positive collateral price", ErrNoPriceData)
	}

	q := Quote{Symbol: CollateralSymbol, Price: price, Timestamp: time.Now()}
	c.cache.put(q)
	return q, nil
}

func (c *Client) doJSON(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}
