package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/stockswap-labs/stockswap/pkg/ledger"
	"github.com/stockswap-labs/stockswap/pkg/pricefeed"
)

// Server handles REST API and WebSocket connections
type Server struct {
	ledger *ledger.Ledger
	feed   *pricefeed.Client
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

// NewServer creates a new API server. feed may be nil when no market data
// credentials are configured; the price endpoints then return 503.
func NewServer(l *ledger.Ledger, feed *pricefeed.Client, log *zap.SugaredLogger) *Server {
	s := &Server{
		ledger: l,
		feed:   feed,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Registry endpoints
	api.HandleFunc("/pool", s.handleGetPool).Methods("GET")
	api.HandleFunc("/pool/authorities", s.handleUpdateAuthorities).Methods("POST")
	api.HandleFunc("/symbols", s.handleGetSymbols).Methods("GET")
	api.HandleFunc("/symbols", s.handleCreateSymbol).Methods("POST")
	api.HandleFunc("/symbols/{symbol}", s.handleGetSymbol).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders/buy", s.handleGetUserBuyOrders).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders/sell", s.handleGetUserSellOrders).Methods("GET")

	// Order endpoints
	api.HandleFunc("/orders/buy", s.handlePlaceBuyOrder).Methods("POST")
	api.HandleFunc("/orders/sell", s.handlePlaceSellOrder).Methods("POST")
	api.HandleFunc("/orders/buy/{address}/{id}", s.handleGetBuyOrder).Methods("GET")
	api.HandleFunc("/orders/sell/{address}/{id}", s.handleGetSellOrder).Methods("GET")
	api.HandleFunc("/orders/pending", s.handleGetPendingOrders).Methods("GET")

	// Vault and bridge endpoints
	api.HandleFunc("/vault", s.handleGetVault).Methods("GET")
	api.HandleFunc("/vault/deposit", s.handleVaultDeposit).Methods("POST")
	api.HandleFunc("/vault/withdraw", s.handleVaultWithdraw).Methods("POST")
	api.HandleFunc("/collateral/deposit", s.handleCollateralDeposit).Methods("POST")
	api.HandleFunc("/collateral/withdraw", s.handleCollateralWithdraw).Methods("POST")

	// Audit log
	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")

	// Market data proxy
	api.HandleFunc("/prices/stocks/{symbol}", s.handleGetStockPrice).Methods("GET")
	api.HandleFunc("/prices/collateral", s.handleGetCollateralPrice).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub, the event broadcast pump, and the HTTP listener. It
// blocks until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	go s.pumpEvents()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(s.router)

	s.log.Infow("api server starting", "addr", addr)
	return http.ListenAndServe(addr, handler)
}

// pumpEvents relays committed audit events to WebSocket subscribers. Each
// event fans out on "events", "events:<symbol>" and "account:<user>".
func (s *Server) pumpEvents() {
	events := s.ledger.Subscribe(256)
	defer s.ledger.Unsubscribe(events)

	for ev := range events {
		channels := []string{"events"}
		if ev.Symbol != "" {
			channels = append(channels, strings.ToLower("events:"+ev.Symbol))
		}
		if ev.User != (common.Address{}) {
			channels = append(channels, strings.ToLower("account:"+ev.User.Hex()))
		}
		s.hub.BroadcastToChannels(channels, WSEvent{Type: "event", Data: ev})
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool := s.ledger.Pool()
	if pool == nil {
		respondError(w, http.StatusNotFound, "pool not initialized", "")
		return
	}
	respondJSON(w, poolInfo(pool))
}

func (s *Server) handleUpdateAuthorities(w http.ResponseWriter, r *http.Request) {
	var req UpdateAuthoritiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}

	var newVault, newBackend *common.Address
	if req.VaultAuthority != "" {
		a, ok := parseAddress(w, req.VaultAuthority, "vaultAuthority")
		if !ok {
			return
		}
		newVault = &a
	}
	if req.BackendAuthority != "" {
		a, ok := parseAddress(w, req.BackendAuthority, "backendAuthority")
		if !ok {
			return
		}
		newBackend = &a
	}

	if err := s.ledger.UpdateAuthorities(caller, newVault, newBackend); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, poolInfo(s.ledger.Pool()))
}

func (s *Server) handleGetSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := s.ledger.Symbols()
	response := make([]SymbolInfo, len(symbols))
	for i, sym := range symbols {
		response[i] = symbolInfo(sym)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetSymbol(w http.ResponseWriter, r *http.Request) {
	sym := s.ledger.Symbol(mux.Vars(r)["symbol"])
	if sym == nil {
		respondError(w, http.StatusNotFound, "symbol not found", "")
		return
	}
	respondJSON(w, symbolInfo(sym))
}

func (s *Server) handleCreateSymbol(w http.ResponseWriter, r *http.Request) {
	var req CreateSymbolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}

	sym, err := s.ledger.CreateSymbol(caller, req.Symbol, req.Decimals)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, symbolInfo(sym))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"], "address")
	if !ok {
		return
	}
	account, err := s.ledger.Account(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "account lookup failed", err.Error())
		return
	}
	respondJSON(w, AccountInfo{
		Address:    account.Address.Hex(),
		Collateral: account.Collateral,
		Shares:     account.Shares,
	})
}

func (s *Server) handleGetUserBuyOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"], "address")
	if !ok {
		return
	}
	orders, err := s.ledger.UserBuyOrders(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "order scan failed", err.Error())
		return
	}
	response := make([]BuyOrderInfo, len(orders))
	for i, o := range orders {
		response[i] = buyOrderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetUserSellOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"], "address")
	if !ok {
		return
	}
	orders, err := s.ledger.UserSellOrders(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "order scan failed", err.Error())
		return
	}
	response := make([]SellOrderInfo, len(orders))
	for i, o := range orders {
		response[i] = sellOrderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handlePlaceBuyOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceBuyOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	user, ok := parseAddress(w, req.User, "user")
	if !ok {
		return
	}

	order, err := s.ledger.PlaceBuyOrder(user, req.Symbol, req.SolAmount, req.MaxPricePerShare)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, buyOrderInfo(order))
}

func (s *Server) handlePlaceSellOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceSellOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	user, ok := parseAddress(w, req.User, "user")
	if !ok {
		return
	}

	order, err := s.ledger.PlaceSellOrder(user, req.Symbol, req.SharesToSell, req.MinPricePerShare)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, sellOrderInfo(order))
}

func (s *Server) handleGetBuyOrder(w http.ResponseWriter, r *http.Request) {
	addr, id, ok := parseOrderVars(w, r)
	if !ok {
		return
	}
	order, err := s.ledger.BuyOrder(addr, id)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, buyOrderInfo(order))
}

func (s *Server) handleGetSellOrder(w http.ResponseWriter, r *http.Request) {
	addr, id, ok := parseOrderVars(w, r)
	if !ok {
		return
	}
	order, err := s.ledger.SellOrder(addr, id)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, sellOrderInfo(order))
}

func (s *Server) handleGetPendingOrders(w http.ResponseWriter, r *http.Request) {
	buys, err := s.ledger.PendingBuyOrders()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "order scan failed", err.Error())
		return
	}
	sells, err := s.ledger.PendingSellOrders()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "order scan failed", err.Error())
		return
	}

	response := PendingOrders{
		Buys:  make([]BuyOrderInfo, len(buys)),
		Sells: make([]SellOrderInfo, len(sells)),
	}
	for i, o := range buys {
		response.Buys[i] = buyOrderInfo(o)
	}
	for i, o := range sells {
		response.Sells[i] = sellOrderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	escrow := make(map[string]EscrowInfo)
	for sym, shares := range s.ledger.Escrows() {
		escrow[sym] = EscrowInfo{
			Address: ledger.EscrowAddress(sym).Hex(),
			Shares:  shares,
		}
	}
	respondJSON(w, VaultInfo{
		Address: ledger.VaultAddress().Hex(),
		Balance: s.ledger.VaultBalance(),
		Escrow:  escrow,
	})
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, r *http.Request) {
	var req VaultFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	if err := s.ledger.DepositVaultFunds(caller, req.Amount); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]any{"status": "ok", "balance": s.ledger.VaultBalance()})
}

func (s *Server) handleVaultWithdraw(w http.ResponseWriter, r *http.Request) {
	var req VaultFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	if err := s.ledger.WithdrawVaultFunds(caller, req.Amount); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]any{"status": "ok", "balance": s.ledger.VaultBalance()})
}

func (s *Server) handleCollateralDeposit(w http.ResponseWriter, r *http.Request) {
	var req CollateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	user, ok := parseAddress(w, req.User, "user")
	if !ok {
		return
	}
	if err := s.ledger.DepositCollateral(user, req.Amount); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleCollateralWithdraw(w http.ResponseWriter, r *http.Request) {
	var req CollateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	user, ok := parseAddress(w, req.User, "user")
	if !ok {
		return
	}
	if err := s.ledger.WithdrawCollateral(user, req.Amount); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	fromSeq := uint64(1)
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from parameter", err.Error())
			return
		}
		fromSeq = n
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, http.StatusBadRequest, "invalid limit parameter", "")
			return
		}
		limit = n
	}

	events, err := s.ledger.Events(fromSeq, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "event scan failed", err.Error())
		return
	}
	respondJSON(w, events)
}

func (s *Server) handleGetStockPrice(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		respondError(w, http.StatusServiceUnavailable, "price feed not configured", "")
		return
	}
	quote, err := s.feed.StockPrice(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		respondError(w, http.StatusBadGateway, "quote unavailable", err.Error())
		return
	}
	respondJSON(w, PriceInfo{
		Symbol:    quote.Symbol,
		Price:     quote.Price.String(),
		Timestamp: quote.Timestamp.UnixMilli(),
	})
}

func (s *Server) handleGetCollateralPrice(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		respondError(w, http.StatusServiceUnavailable, "price feed not configured", "")
		return
	}
	quote, err := s.feed.CollateralPrice(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "quote unavailable", err.Error())
		return
	}
	respondJSON(w, PriceInfo{
		Symbol:    quote.Symbol,
		Price:     quote.Price.String(),
		Timestamp: quote.Timestamp.UnixMilli(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status": "ok",
		"time":   time.Now().UnixMilli(),
	})
}

// ==============================
// Helpers
// ==============================

func poolInfo(p *ledger.Pool) PoolInfo {
	return PoolInfo{
		Address:          p.Address.Hex(),
		VaultAuthority:   p.VaultAuthority.Hex(),
		BackendAuthority: p.BackendAuthority.Hex(),
		TotalOrders:      p.TotalOrders,
		CreatedAt:        p.CreatedAt,
	}
}

func symbolInfo(s *ledger.Symbol) SymbolInfo {
	return SymbolInfo{
		Address:     s.Address.Hex(),
		Symbol:      s.Symbol,
		Decimals:    s.Decimals,
		TotalSupply: s.TotalSupply,
		CreatedAt:   s.CreatedAt,
	}
}

func buyOrderInfo(o *ledger.BuyOrder) BuyOrderInfo {
	return BuyOrderInfo{
		Address:             o.Address.Hex(),
		User:                o.User.Hex(),
		Symbol:              o.Symbol,
		OrderID:             o.OrderID,
		SolAmount:           o.SolAmount,
		MaxPricePerShare:    o.MaxPricePerShare,
		Status:              o.Status.String(),
		Timestamp:           o.Timestamp,
		SharesReceived:      o.SharesReceived,
		ActualPricePerShare: o.ActualPricePerShare,
	}
}

func sellOrderInfo(o *ledger.SellOrder) SellOrderInfo {
	return SellOrderInfo{
		Address:             o.Address.Hex(),
		User:                o.User.Hex(),
		Symbol:              o.Symbol,
		OrderID:             o.OrderID,
		SharesToSell:        o.SharesToSell,
		MinPricePerShare:    o.MinPricePerShare,
		Status:              o.Status.String(),
		Timestamp:           o.Timestamp,
		SolReceived:         o.SolReceived,
		ActualPricePerShare: o.ActualPricePerShare,
	}
}

func parseAddress(w http.ResponseWriter, raw, field string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid "+field, raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseOrderVars(w http.ResponseWriter, r *http.Request) (common.Address, uint64, bool) {
	vars := mux.Vars(r)
	addr, ok := parseAddress(w, vars["address"], "address")
	if !ok {
		return common.Address{}, 0, false
	}
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", vars["id"])
		return common.Address{}, 0, false
	}
	return addr, id, true
}

// respondLedgerError maps sentinel ledger errors onto HTTP status codes.
func respondLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound),
		errors.Is(err, ledger.ErrUnknownSymbol),
		errors.Is(err, ledger.ErrNotInitialized):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrUnauthorizedBackend),
		errors.Is(err, ledger.ErrUnauthorizedVaultAccess):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrInvalidOrderStatus),
		errors.Is(err, ledger.ErrSymbolExists),
		errors.Is(err, ledger.ErrAlreadyInitialized):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientTokens):
		status = http.StatusUnprocessableEntity
	}
	respondError(w, status, err.Error(), "")
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Detail: detail})
}
