package agent

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stockswap-labs/stockswap/pkg/ledger"
	"github.com/stockswap-labs/stockswap/pkg/pricefeed"
)

// Agent is the settlement worker. It watches for placed orders, prices them
// against live market data, and submits fulfillments as the backend
// authority. A failed settlement leaves the order pending; the periodic sweep
// retries it on the next tick.
type Agent struct {
	ledger  *ledger.Ledger
	feed    *pricefeed.Client
	backend common.Address

	pollInterval time.Duration
	priceMaxAge  time.Duration

	log *zap.SugaredLogger
}

// New creates a settlement agent acting as the given backend authority.
func New(l *ledger.Ledger, feed *pricefeed.Client, backend common.Address, pollInterval, priceMaxAge time.Duration, log *zap.SugaredLogger) *Agent {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if priceMaxAge <= 0 {
		priceMaxAge = 30 * time.Second
	}
	return &Agent{
		ledger:       l,
		feed:         feed,
		backend:      backend,
		pollInterval: pollInterval,
		priceMaxAge:  priceMaxAge,
		log:          log,
	}
}

// Run blocks until ctx is cancelled. New placements arrive over the event
// subscription; the sweep ticker picks up anything missed (dropped events,
// orders left pending by earlier failures, pre-existing backlog).
func (a *Agent) Run(ctx context.Context) error {
	events := a.ledger.Subscribe(256)
	defer a.ledger.Unsubscribe(events)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	a.log.Infow("settlement agent started",
		"backend", a.backend.Hex(),
		"poll_interval", a.pollInterval,
	)
	a.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			a.log.Infow("settlement agent stopped")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case ledger.EvBuyOrderPlaced:
				a.settleBuy(ctx, ev.User, ev.OrderID, ev.Symbol, ev.SolAmount, ev.MaxPricePerShare)
			case ledger.EvSellOrderPlaced:
				a.settleSell(ctx, ev.User, ev.OrderID, ev.Symbol, ev.SharesToSell, ev.MinPricePerShare)
			}
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

// sweep settles every pending order found in the store.
func (a *Agent) sweep(ctx context.Context) {
	buys, err := a.ledger.PendingBuyOrders()
	if err != nil {
		a.log.Errorw("pending buy scan failed", "err", err)
	}
	for _, o := range buys {
		if ctx.Err() != nil {
			return
		}
		a.settleBuy(ctx, o.User, o.OrderID, o.Symbol, o.SolAmount, o.MaxPricePerShare)
	}

	sells, err := a.ledger.PendingSellOrders()
	if err != nil {
		a.log.Errorw("pending sell scan failed", "err", err)
	}
	for _, o := range sells {
		if ctx.Err() != nil {
			return
		}
		a.settleSell(ctx, o.User, o.OrderID, o.Symbol, o.SharesToSell, o.MinPricePerShare)
	}
}

func (a *Agent) settleBuy(ctx context.Context, user common.Address, orderID uint64, symbol string, solAmount, maxPrice uint64) {
	stockUSD, collateralUSD, ok := a.prices(ctx, symbol, "buy", orderID)
	if !ok {
		return
	}

	fill, err := computeBuyFill(solAmount, maxPrice, stockUSD, collateralUSD)
	if err != nil {
		a.log.Errorw("buy fill computation failed",
			"user", user.Hex(), "order_id", orderID, "symbol", symbol, "err", err)
		return
	}

	if _, err := a.ledger.FulfillBuyOrder(a.backend, user, orderID,
		fill.SharesPurchased, fill.PricePerShare, fill.TotalCost, fill.RefundAmount); err != nil {
		a.log.Errorw("buy settlement rejected",
			"user", user.Hex(), "order_id", orderID, "symbol", symbol, "err", err)
		return
	}
	a.log.Infow("buy order settled",
		"user", user.Hex(),
		"order_id", orderID,
		"symbol", symbol,
		"shares", fill.SharesPurchased,
		"price_per_share", fill.PricePerShare,
		"refund", fill.RefundAmount,
	)
}

func (a *Agent) settleSell(ctx context.Context, user common.Address, orderID uint64, symbol string, sharesToSell, minPrice uint64) {
	stockUSD, collateralUSD, ok := a.prices(ctx, symbol, "sell", orderID)
	if !ok {
		return
	}

	fill, err := computeSellFill(sharesToSell, minPrice, stockUSD, collateralUSD)
	if err != nil {
		a.log.Errorw("sell fill computation failed",
			"user", user.Hex(), "order_id", orderID, "symbol", symbol, "err", err)
		return
	}

	if _, err := a.ledger.FulfillSellOrder(a.backend, user, orderID,
		fill.SharesSold, fill.PricePerShare, fill.TotalProceeds, fill.SharesReturned); err != nil {
		a.log.Errorw("sell settlement rejected",
			"user", user.Hex(), "order_id", orderID, "symbol", symbol, "err", err)
		return
	}
	a.log.Infow("sell order settled",
		"user", user.Hex(),
		"order_id", orderID,
		"symbol", symbol,
		"shares_sold", fill.SharesSold,
		"shares_returned", fill.SharesReturned,
		"price_per_share", fill.PricePerShare,
		"proceeds", fill.TotalProceeds,
	)
}

// prices fetches both legs of the quote and rejects stale data. A false
// return means the order stays pending until the next sweep.
func (a *Agent) prices(ctx context.Context, symbol, side string, orderID uint64) (stockUSD, collateralUSD decimal.Decimal, ok bool) {
	stock, err := a.feed.StockPrice(ctx, symbol)
	if err != nil {
		a.log.Warnw("stock quote unavailable, deferring order",
			"side", side, "order_id", orderID, "symbol", symbol, "err", err)
		return decimal.Zero, decimal.Zero, false
	}
	collateral, err := a.feed.CollateralPrice(ctx)
	if err != nil {
		a.log.Warnw("collateral quote unavailable, deferring order",
			"side", side, "order_id", orderID, "symbol", symbol, "err", err)
		return decimal.Zero, decimal.Zero, false
	}

	now := time.Now()
	if now.Sub(stock.Timestamp) > a.priceMaxAge || now.Sub(collateral.Timestamp) > a.priceMaxAge {
		a.log.Warnw("quote too old, deferring order",
			"side", side, "order_id", orderID, "symbol", symbol,
			"stock_age", now.Sub(stock.Timestamp), "collateral_age", now.Sub(collateral.Timestamp))
		return decimal.Zero, decimal.Zero, false
	}
	return stock.Price, collateral.Price, true
}
