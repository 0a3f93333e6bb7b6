package ledger

import "errors"

// Every operation fails atomically: when any of these errors is returned, no
// state mutation has been committed and none is visible to other callers.
var (
	// Deployment lifecycle
	ErrAlreadyInitialized = errors.New("pool already initialized")
	ErrNotInitialized     = errors.New("pool not initialized")

	// Input validation
	ErrStockSymbolTooLong = errors.New("stock symbol too long")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrSymbolExists       = errors.New("symbol already registered")
	ErrUnknownSymbol      = errors.New("symbol not registered")

	// Order state machine
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidOrderStatus = errors.New("invalid order status")

	// Settlement limits
	ErrPriceExceedsLimit  = errors.New("price exceeds maximum limit")
	ErrPriceBelowMinimum  = errors.New("price below minimum limit")
	ErrInvalidCalculation = errors.New("invalid calculation")

	// Authorization
	ErrUnauthorizedBackend     = errors.New("unauthorized backend access")
	ErrUnauthorizedVaultAccess = errors.New("unauthorized vault access")

	// Balances
	ErrInsufficientFunds  = errors.New("insufficient collateral balance")
	ErrInsufficientTokens = errors.New("insufficient share balance")

	// Checked arithmetic
	ErrOverflow  = errors.New("arithmetic overflow")
	ErrUnderflow = errors.New("arithmetic underflow")
)
