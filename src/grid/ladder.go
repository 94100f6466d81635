package grid

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidConfig signals ladder parameters the caller must fix before
// retrying. It is the only fatal error in the taxonomy.
var ErrInvalidConfig = errors.New("grid: invalid ladder configuration")

// Ladder computes the grid price levels around basePrice: downLevels prices
// below it and upLevels prices above it, spaced gridWidth apart. The base
// price itself is a reference point, never a quote, so it is excluded. The
// result is sorted descending.
func Ladder(basePrice, gridWidth decimal.Decimal, downLevels, upLevels int) ([]decimal.Decimal, error) {
	if gridWidth.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidConfig
	}
	if basePrice.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidConfig
	}
	if downLevels < 0 || upLevels < 0 {
		return nil, ErrInvalidConfig
	}

	levels := make([]decimal.Decimal, 0, downLevels+upLevels)
	for i := upLevels; i >= 1; i-- {
		levels = append(levels, basePrice.Add(gridWidth.Mul(decimal.NewFromInt(int64(i)))))
	}
	for i := 1; i <= downLevels; i++ {
		levels = append(levels, basePrice.Sub(gridWidth.Mul(decimal.NewFromInt(int64(i)))))
	}

	return levels, nil
}

// RoundToTick rounds price to the nearest multiple of the exchange's price
// increment. A zero tick returns the price unchanged.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.LessThanOrEqual(decimal.Zero) {
		return price
	}
	return price.Div(tick).Round(0).Mul(tick)
}
