package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/stockswap-labs/stockswap/params"
	"github.com/stockswap-labs/stockswap/pkg/ledger"
	"github.com/stockswap-labs/stockswap/pkg/pricefeed"
	"github.com/stockswap-labs/stockswap/pkg/util"
)

var (
	vaultAuth   = common.HexToAddress("0x1100000000000000000000000000000000000000")
	backendAuth = common.HexToAddress("0x2200000000000000000000000000000000000000")
	alice       = common.HexToAddress("0xAA00000000000000000000000000000000000000")
)

// stubMarket serves a fixed $20 stock price and $200 collateral price.
func stubMarket(t *testing.T) (stockURL, quoteURL string) {
	t.Helper()
	stock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"latestTrade":{"p":20}}`))
	}))
	t.Cleanup(stock.Close)
	quote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","data":[{"toTokenAmount":"200000000"}]}`))
	}))
	t.Cleanup(quote.Close)
	return stock.URL, quote.URL
}

func newTestAgent(t *testing.T) (*Agent, *ledger.Ledger) {
	t.Helper()

	l, err := ledger.Open(t.TempDir(), util.RealClock{}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	if _, err := l.Initialize(vaultAuth, backendAuth); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := l.CreateSymbol(vaultAuth, "AAPL", 0); err != nil {
		t.Fatalf("create symbol: %v", err)
	}
	if err := l.DepositCollateral(alice, 1_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	stockURL, quoteURL := stubMarket(t)
	feed := pricefeed.NewClient(params.Feed{
		StockBaseURL:      stockURL,
		QuoteBaseURL:      quoteURL,
		CacheTTL:          time.Minute,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}, zap.NewNop().Sugar())

	return New(l, feed, backendAuth, 20*time.Millisecond, time.Minute, zap.NewNop().Sugar()), l
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestAgentSettlesBuyOrder(t *testing.T) {
	worker, l := newTestAgent(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	// 0.5 SOL at $200/SOL buys 5 shares of the $20 stub stock.
	order, err := l.PlaceBuyOrder(alice, "AAPL", 500_000_000, 100_000_000)
	if err != nil {
		t.Fatalf("place buy order: %v", err)
	}

	waitFor(t, func() bool {
		o, err := l.BuyOrder(alice, order.OrderID)
		return err == nil && o.Status == ledger.Fulfilled
	})

	settled, err := l.BuyOrder(alice, order.OrderID)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if settled.SharesReceived != 5 {
		t.Errorf("shares = %d, want 5", settled.SharesReceived)
	}
	if settled.ActualPricePerShare != 100_000_000 {
		t.Errorf("price = %d, want 100000000", settled.ActualPricePerShare)
	}
	acc, err := l.Account(alice)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.ShareBalance("AAPL") != 5 {
		t.Errorf("account shares = %d, want 5", acc.ShareBalance("AAPL"))
	}
}

func TestAgentSettlesSellOrder(t *testing.T) {
	worker, l := newTestAgent(t)

	// Give alice shares before the agent starts.
	buy, err := l.PlaceBuyOrder(alice, "AAPL", 500_000_000, 100_000_000)
	if err != nil {
		t.Fatalf("place buy order: %v", err)
	}
	if _, err := l.FulfillBuyOrder(backendAuth, alice, buy.OrderID, 5, 100_000_000, 500_000_000, 0); err != nil {
		t.Fatalf("fulfill buy order: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	order, err := l.PlaceSellOrder(alice, "AAPL", 5, 90_000_000)
	if err != nil {
		t.Fatalf("place sell order: %v", err)
	}

	waitFor(t, func() bool {
		o, err := l.SellOrder(alice, order.OrderID)
		return err == nil && o.Status == ledger.Fulfilled
	})

	settled, err := l.SellOrder(alice, order.OrderID)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if settled.SolReceived != 500_000_000 {
		t.Errorf("proceeds = %d, want 500000000", settled.SolReceived)
	}
	if got := l.Symbol("AAPL").TotalSupply; got != 0 {
		t.Errorf("supply after full sell = %d, want 0", got)
	}
}

// A backlog placed before the agent starts settles on the first sweep, even
// with no live event to react to.
func TestAgentSweepsBacklog(t *testing.T) {
	worker, l := newTestAgent(t)

	order, err := l.PlaceBuyOrder(alice, "AAPL", 500_000_000, 100_000_000)
	if err != nil {
		t.Fatalf("place buy order: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	waitFor(t, func() bool {
		o, err := l.BuyOrder(alice, order.OrderID)
		return err == nil && o.Status == ledger.Fulfilled
	})
}

// When the market is above the buyer's limit, the agent settles with zero
// shares and a full refund rather than leaving the order stuck.
func TestAgentRefundsWhenPriceOverLimit(t *testing.T) {
	worker, l := newTestAgent(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	// Stub market price is 100M lamports per share; the limit is below it.
	order, err := l.PlaceBuyOrder(alice, "AAPL", 500_000_000, 50_000_000)
	if err != nil {
		t.Fatalf("place buy order: %v", err)
	}

	waitFor(t, func() bool {
		o, err := l.BuyOrder(alice, order.OrderID)
		return err == nil && o.Status == ledger.Fulfilled
	})

	settled, err := l.BuyOrder(alice, order.OrderID)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if settled.SharesReceived != 0 {
		t.Errorf("shares = %d, want 0", settled.SharesReceived)
	}
	acc, err := l.Account(alice)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Collateral != 1_000_000_000 {
		t.Errorf("collateral not fully refunded: %d", acc.Collateral)
	}
}
