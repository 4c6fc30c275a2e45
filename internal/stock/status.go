package stock

import (
	"github.com/shopspring/decimal"
)

// Thresholds are the user-configured limits status derivation checks against.
// A zero value disables the corresponding check (except ProfitFloor, where
// zero still rejects listings below the purchase price).
type Thresholds struct {
	ProfitFloor  int64   `json:"profit_floor" yaml:"profit_floor"`
	SMAThreshold float64 `json:"sma_threshold" yaml:"sma_threshold"`
	SMAWindow    int     `json:"sma_window" yaml:"sma_window"`
	OrderCap     int     `json:"order_cap" yaml:"order_cap"`
	PriceBand    float64 `json:"price_band" yaml:"price_band"`
}

// Input is everything DeriveStatus looks at for one entry.
type Input struct {
	Bought       int64
	MinimumPrice *int64
	PriceHistory []PricePoint
	Disabled     bool
	Probe        Probe

	// ListedSiblings counts entries for the same underlying item that appear
	// earlier in the collection and already hold a listing.
	ListedSiblings int
}

// DeriveStatus computes the status of an entry and, for statuses that hold a
// listing, the effective listing price. It is pure: equal inputs always give
// equal outputs.
//
// Checks run in precedence order; the first that applies wins:
//
//	inactive, pending, sma_limit, order_limit, to_low_profit,
//	no_sellers / no_buyers, underpriced / overpriced, live
func DeriveStatus(in Input, th Thresholds) (Status, *int64) {
	if in.Disabled {
		return StatusInactive, nil
	}
	if len(in.PriceHistory) == 0 {
		return StatusPending, nil
	}

	latest := in.PriceHistory[len(in.PriceHistory)-1].Price
	listed := latest
	if in.MinimumPrice != nil && *in.MinimumPrice > listed {
		listed = *in.MinimumPrice
	}

	sma := movingAverage(in.PriceHistory, th.SMAWindow)
	one := decimal.NewFromInt(1)

	if th.SMAThreshold > 0 {
		limit := sma.Mul(one.Add(decimal.NewFromFloat(th.SMAThreshold)))
		if decimal.NewFromInt(latest).GreaterThan(limit) {
			return StatusSMALimit, nil
		}
	}

	if th.OrderCap > 0 && in.ListedSiblings >= th.OrderCap {
		return StatusOrderLimit, nil
	}

	if listed-in.Bought < th.ProfitFloor {
		return StatusToLowProfit, nil
	}

	switch in.Probe {
	case ProbeNoSellers:
		return StatusNoSellers, nil
	case ProbeNoBuyers:
		return StatusNoBuyers, nil
	}

	if th.PriceBand > 0 {
		band := decimal.NewFromFloat(th.PriceBand)
		price := decimal.NewFromInt(listed)
		if price.LessThan(sma.Mul(one.Sub(band))) {
			return StatusUnderpriced, &listed
		}
		if price.GreaterThan(sma.Mul(one.Add(band))) {
			return StatusOverpriced, &listed
		}
	}

	return StatusLive, &listed
}

// movingAverage averages the last window prices. A window <= 0 averages the
// whole history. history must not be empty.
func movingAverage(history []PricePoint, window int) decimal.Decimal {
	if window > 0 && window < len(history) {
		history = history[len(history)-window:]
	}
	sum := decimal.Zero
	for _, p := range history {
		sum = sum.Add(decimal.NewFromInt(p.Price))
	}
	return sum.Div(decimal.NewFromInt(int64(len(history))))
}
