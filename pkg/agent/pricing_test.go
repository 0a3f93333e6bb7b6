package agent

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeBuyFill(t *testing.T) {
	tests := []struct {
		name          string
		solAmount     uint64
		maxPrice      uint64
		stockUSD      string
		collateralUSD string
		want          BuyFill
	}{
		{
			// 0.5 SOL at $200/SOL buys exactly 5 shares of a $20 stock.
			name:          "exact fill",
			solAmount:     500_000_000,
			maxPrice:      100_000_000,
			stockUSD:      "20",
			collateralUSD: "200",
			want: BuyFill{
				SharesPurchased: 5,
				PricePerShare:   100_000_000,
				TotalCost:       500_000_000,
				RefundAmount:    0,
			},
		},
		{
			// 0.55 SOL is worth $110: 5 shares cost $100, the rest refunds.
			name:          "remainder refunded",
			solAmount:     550_000_000,
			maxPrice:      100_000_000,
			stockUSD:      "20",
			collateralUSD: "200",
			want: BuyFill{
				SharesPurchased: 5,
				PricePerShare:   100_000_000,
				TotalCost:       500_000_000,
				RefundAmount:    50_000_000,
			},
		},
		{
			// Market at $30/share is 150M lamports, above the 100M limit:
			// nothing bought, everything refunded.
			name:          "price over limit",
			solAmount:     500_000_000,
			maxPrice:      100_000_000,
			stockUSD:      "30",
			collateralUSD: "200",
			want: BuyFill{
				RefundAmount: 500_000_000,
			},
		},
		{
			// 0.01 SOL is worth $2, below one $20 share.
			name:          "escrow below one share",
			solAmount:     10_000_000,
			maxPrice:      100_000_000,
			stockUSD:      "20",
			collateralUSD: "200",
			want: BuyFill{
				PricePerShare: 100_000_000,
				RefundAmount:  10_000_000,
			},
		},
		{
			// Fractional USD prices floor, never round up.
			name:          "fractional price floors",
			solAmount:     1_000_000_000,
			maxPrice:      200_000_000,
			stockUSD:      "33.34",
			collateralUSD: "200",
			want: BuyFill{
				SharesPurchased: 5,
				PricePerShare:   166_700_000,
				TotalCost:       833_500_000,
				RefundAmount:    166_500_000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := computeBuyFill(tt.solAmount, tt.maxPrice,
				decimal.RequireFromString(tt.stockUSD), decimal.RequireFromString(tt.collateralUSD))
			if err != nil {
				t.Fatalf("computeBuyFill: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.TotalCost+got.RefundAmount > tt.solAmount {
				t.Errorf("fill spends more than escrowed: %+v", got)
			}
		})
	}
}

func TestComputeBuyFillRejectsBadPrices(t *testing.T) {
	if _, err := computeBuyFill(100, 10, decimal.Zero, decimal.NewFromInt(200)); !errors.Is(err, ErrBadPrice) {
		t.Errorf("expected ErrBadPrice for zero stock price, got %v", err)
	}
	if _, err := computeBuyFill(100, 10, decimal.NewFromInt(20), decimal.Zero); !errors.Is(err, ErrBadPrice) {
		t.Errorf("expected ErrBadPrice for zero collateral price, got %v", err)
	}
}

func TestComputeSellFill(t *testing.T) {
	tests := []struct {
		name          string
		shares        uint64
		minPrice      uint64
		stockUSD      string
		collateralUSD string
		want          SellFill
	}{
		{
			// $20 stock at $200/SOL is 100M lamports per share, above the
			// 90M floor: the whole lot sells.
			name:          "full lot sold",
			shares:        5,
			minPrice:      90_000_000,
			stockUSD:      "20",
			collateralUSD: "200",
			want: SellFill{
				SharesSold:    5,
				PricePerShare: 100_000_000,
				TotalProceeds: 500_000_000,
			},
		},
		{
			// $17/share is 85M lamports, below the floor: every share comes
			// back and the reported price clamps to the floor.
			name:          "price below floor returns lot",
			shares:        5,
			minPrice:      90_000_000,
			stockUSD:      "17",
			collateralUSD: "200",
			want: SellFill{
				PricePerShare:  90_000_000,
				SharesReturned: 5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := computeSellFill(tt.shares, tt.minPrice,
				decimal.RequireFromString(tt.stockUSD), decimal.RequireFromString(tt.collateralUSD))
			if err != nil {
				t.Fatalf("computeSellFill: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.SharesSold+got.SharesReturned != tt.shares {
				t.Errorf("fill loses shares: %+v", got)
			}
		})
	}
}

func TestComputeSellFillRejectsBadPrices(t *testing.T) {
	if _, err := computeSellFill(5, 1, decimal.Zero, decimal.NewFromInt(200)); !errors.Is(err, ErrBadPrice) {
		t.Errorf("expected ErrBadPrice, got %v", err)
	}
}
