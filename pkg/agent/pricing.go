package agent

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrBadPrice is returned when a quote is missing or non-positive.
	ErrBadPrice = errors.New("invalid market price")

	// ErrAmountRange is returned when a computed lamport or share amount
	// does not fit in uint64.
	ErrAmountRange = errors.New("computed amount out of range")
)

var lamportsPerSol = decimal.New(1, 9)

// BuyFill is the settlement the agent submits for one pending buy order.
type BuyFill struct {
	SharesPurchased uint64
	PricePerShare   uint64 // lamports per share
	TotalCost       uint64 // lamports
	RefundAmount    uint64 // lamports
}

// SellFill is the settlement the agent submits for one pending sell order.
type SellFill struct {
	SharesSold     uint64
	PricePerShare  uint64 // lamports per share
	TotalProceeds  uint64 // lamports
	SharesReturned uint64
}

// computeBuyFill prices a buy order at the current market. solAmount is the
// escrowed collateral in lamports; stockUSD and collateralUSD are the USD
// prices of one share and one whole collateral coin.
//
// When the per-share price exceeds the order's limit, the order settles with
// zero shares and the full escrow refunded. The reported price is zero in
// that case so the fill stays inside the order's limit. Otherwise the share
// count is the floor of escrowed value over share price, the cost is the floor
// of the share value back in lamports, and the remainder is refunded.
func computeBuyFill(solAmount, maxPricePerShare uint64, stockUSD, collateralUSD decimal.Decimal) (BuyFill, error) {
	priceLamports, err := pricePerShareLamports(stockUSD, collateralUSD)
	if err != nil {
		return BuyFill{}, err
	}
	if priceLamports > maxPricePerShare {
		return BuyFill{RefundAmount: solAmount}, nil
	}

	solValueUSD := decimal.NewFromUint64(solAmount).Mul(collateralUSD).Div(lamportsPerSol)
	shares, err := toUint64(solValueUSD.Div(stockUSD).Floor())
	if err != nil {
		return BuyFill{}, err
	}
	if shares == 0 {
		// Escrow too small for a single share at this price.
		return BuyFill{PricePerShare: priceLamports, RefundAmount: solAmount}, nil
	}

	costUSD := decimal.NewFromUint64(shares).Mul(stockUSD)
	totalCost, err := toUint64(costUSD.Div(collateralUSD).Mul(lamportsPerSol).Floor())
	if err != nil {
		return BuyFill{}, err
	}
	if totalCost > solAmount {
		return BuyFill{}, fmt.Errorf("%w: cost %d exceeds escrow %d", ErrAmountRange, totalCost, solAmount)
	}

	return BuyFill{
		SharesPurchased: shares,
		PricePerShare:   priceLamports,
		TotalCost:       totalCost,
		RefundAmount:    solAmount - totalCost,
	}, nil
}

// computeSellFill prices a sell order at the current market. When the
// per-share price is below the order's floor, every share is returned and
// the reported price is clamped to the floor so the fill stays inside the
// order's limit. Otherwise the full lot sells and the proceeds are the floor
// of the lot's value in lamports.
func computeSellFill(sharesToSell, minPricePerShare uint64, stockUSD, collateralUSD decimal.Decimal) (SellFill, error) {
	priceLamports, err := pricePerShareLamports(stockUSD, collateralUSD)
	if err != nil {
		return SellFill{}, err
	}
	if priceLamports < minPricePerShare {
		return SellFill{
			PricePerShare:  minPricePerShare,
			SharesReturned: sharesToSell,
		}, nil
	}

	valueUSD := decimal.NewFromUint64(sharesToSell).Mul(stockUSD)
	proceeds, err := toUint64(valueUSD.Div(collateralUSD).Mul(lamportsPerSol).Floor())
	if err != nil {
		return SellFill{}, err
	}

	return SellFill{
		SharesSold:    sharesToSell,
		PricePerShare: priceLamports,
		TotalProceeds: proceeds,
	}, nil
}

// pricePerShareLamports converts a USD share price into lamports of
// collateral, rounded down.
func pricePerShareLamports(stockUSD, collateralUSD decimal.Decimal) (uint64, error) {
	if !stockUSD.IsPositive() || !collateralUSD.IsPositive() {
		return 0, fmt.Errorf("%w: stock=%s collateral=%s", ErrBadPrice, stockUSD, collateralUSD)
	}
	return toUint64(stockUSD.Div(collateralUSD).Mul(lamportsPerSol).Floor())
}

func toUint64(d decimal.Decimal) (uint64, error) {
	bi := d.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrAmountRange, d)
	}
	return bi.Uint64(), nil
}
