package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/stockswap-labs/stockswap/pkg/ledger"
	"github.com/stockswap-labs/stockswap/pkg/util"
)

var (
	vaultAuth   = common.HexToAddress("0x1100000000000000000000000000000000000000")
	backendAuth = common.HexToAddress("0x2200000000000000000000000000000000000000")
	alice       = common.HexToAddress("0xAA00000000000000000000000000000000000000")
)

func newTestServer(t *testing.T) (*Server, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.Open(t.TempDir(), util.NewManualClock(time.Unix(1_700_000_000, 0)), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	if _, err := l.Initialize(vaultAuth, backendAuth); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := l.CreateSymbol(vaultAuth, "ACME", 0); err != nil {
		t.Fatalf("create symbol: %v", err)
	}
	if err := l.DepositCollateral(alice, 1_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return NewServer(l, nil, zap.NewNop().Sugar()), l
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetPool(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, "GET", "/api/v1/pool", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	pool := decode[PoolInfo](t, rec)
	if pool.VaultAuthority != vaultAuth.Hex() || pool.BackendAuthority != backendAuth.Hex() {
		t.Errorf("wrong authorities: %+v", pool)
	}
}

func TestCreateSymbol(t *testing.T) {
	s, l := newTestServer(t)

	rec := doRequest(t, s, "POST", "/api/v1/symbols",
		`{"caller":"`+vaultAuth.Hex()+`","symbol":"TSLA","decimals":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if l.Symbol("TSLA") == nil {
		t.Error("symbol not created")
	}

	// Non-authority caller is rejected.
	rec = doRequest(t, s, "POST", "/api/v1/symbols",
		`{"caller":"`+alice.Hex()+`","symbol":"MSFT"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}

	// Duplicate registration conflicts.
	rec = doRequest(t, s, "POST", "/api/v1/symbols",
		`{"caller":"`+vaultAuth.Hex()+`","symbol":"ACME"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestPlaceBuyOrder(t *testing.T) {
	s, l := newTestServer(t)

	rec := doRequest(t, s, "POST", "/api/v1/orders/buy",
		`{"user":"`+alice.Hex()+`","symbol":"ACME","solAmount":500000000,"maxPricePerShare":100000000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	order := decode[BuyOrderInfo](t, rec)
	if order.OrderID != 0 || order.Status != "pending" {
		t.Errorf("wrong order: %+v", order)
	}
	if got := l.VaultBalance(); got != 500_000_000 {
		t.Errorf("vault = %d", got)
	}

	// Over-spending is rejected with the escrow untouched.
	rec = doRequest(t, s, "POST", "/api/v1/orders/buy",
		`{"user":"`+alice.Hex()+`","symbol":"ACME","solAmount":1000000000,"maxPricePerShare":1}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, s, "POST", "/api/v1/orders/buy", `{"user":"not-an-address"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetOrder(t *testing.T) {
	s, l := newTestServer(t)

	placed, err := l.PlaceBuyOrder(alice, "ACME", 100, 10)
	if err != nil {
		t.Fatalf("place buy order: %v", err)
	}

	rec := doRequest(t, s, "GET", "/api/v1/orders/buy/"+alice.Hex()+"/0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	order := decode[BuyOrderInfo](t, rec)
	if order.OrderID != placed.OrderID || order.SolAmount != 100 {
		t.Errorf("wrong order: %+v", order)
	}

	rec = doRequest(t, s, "GET", "/api/v1/orders/buy/"+alice.Hex()+"/42", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetAccount(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, "GET", "/api/v1/accounts/"+alice.Hex(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	acc := decode[AccountInfo](t, rec)
	if acc.Collateral != 1_000_000_000 {
		t.Errorf("collateral = %d", acc.Collateral)
	}

	rec = doRequest(t, s, "GET", "/api/v1/accounts/zzz", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPendingOrders(t *testing.T) {
	s, l := newTestServer(t)

	if _, err := l.PlaceBuyOrder(alice, "ACME", 100, 10); err != nil {
		t.Fatalf("place buy order: %v", err)
	}

	rec := doRequest(t, s, "GET", "/api/v1/orders/pending", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	pending := decode[PendingOrders](t, rec)
	if len(pending.Buys) != 1 || len(pending.Sells) != 0 {
		t.Errorf("wrong backlog: %+v", pending)
	}
}

func TestVaultEndpoints(t *testing.T) {
	s, l := newTestServer(t)

	if err := l.DepositCollateral(vaultAuth, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	rec := doRequest(t, s, "POST", "/api/v1/vault/deposit",
		`{"caller":"`+vaultAuth.Hex()+`","amount":600}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, s, "GET", "/api/v1/vault", "")
	vault := decode[VaultInfo](t, rec)
	if vault.Balance != 600 {
		t.Errorf("vault balance = %d", vault.Balance)
	}

	rec = doRequest(t, s, "POST", "/api/v1/vault/withdraw",
		`{"caller":"`+alice.Hex()+`","amount":1}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestVaultEscrowAccounts(t *testing.T) {
	s, l := newTestServer(t)

	buy, err := l.PlaceBuyOrder(alice, "ACME", 1000, 100)
	if err != nil {
		t.Fatalf("place buy order: %v", err)
	}
	if _, err := l.FulfillBuyOrder(backendAuth, alice, buy.OrderID, 10, 100, 1000, 0); err != nil {
		t.Fatalf("fulfill buy order: %v", err)
	}
	if _, err := l.PlaceSellOrder(alice, "ACME", 4, 1); err != nil {
		t.Fatalf("place sell order: %v", err)
	}

	rec := doRequest(t, s, "GET", "/api/v1/vault", "")
	vault := decode[VaultInfo](t, rec)
	esc, ok := vault.Escrow["ACME"]
	if !ok {
		t.Fatalf("missing ACME escrow: %+v", vault.Escrow)
	}
	if esc.Shares != 4 {
		t.Errorf("escrowed shares = %d, want 4", esc.Shares)
	}
	if esc.Address != ledger.EscrowAddress("ACME").Hex() {
		t.Errorf("escrow address = %s", esc.Address)
	}
}

func TestEventsEndpoint(t *testing.T) {
	s, l := newTestServer(t)

	if _, err := l.PlaceBuyOrder(alice, "ACME", 100, 10); err != nil {
		t.Fatalf("place buy order: %v", err)
	}

	rec := doRequest(t, s, "GET", "/api/v1/events?from=1&limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	events := decode[[]ledger.Event](t, rec)
	if len(events) == 0 {
		t.Fatal("no events returned")
	}
	if events[len(events)-1].Type != ledger.EvBuyOrderPlaced {
		t.Errorf("last event = %s", events[len(events)-1].Type)
	}

	rec = doRequest(t, s, "GET", "/api/v1/events?limit=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPriceEndpointsWithoutFeed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, "GET", "/api/v1/prices/stocks/AAPL", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
