package grid

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLadderStrictlyDecreasing(t *testing.T) {
	base := decimal.NewFromInt(100)
	width := decimal.NewFromInt(2)

	levels, err := Ladder(base, width, 3, 3)
	require.NoError(t, err)
	require.Len(t, levels, 6)

	for i := 1; i < len(levels); i++ {
		assert.True(t, levels[i].LessThan(levels[i-1]),
			"expected %s < %s at index %d", levels[i], levels[i-1], i)
	}

	for _, l := range levels {
		assert.False(t, l.Equal(base), "base price must not appear in the ladder")
	}

	assert.True(t, levels[0].Equal(decimal.NewFromInt(106)))
	assert.True(t, levels[5].Equal(decimal.NewFromInt(94)))
}

func TestLadderAsymmetric(t *testing.T) {
	levels, err := Ladder(decimal.NewFromInt(50), decimal.NewFromFloat(0.5), 4, 1)
	require.NoError(t, err)
	require.Len(t, levels, 5)
	assert.True(t, levels[0].Equal(decimal.NewFromFloat(50.5)))
	assert.True(t, levels[4].Equal(decimal.NewFromInt(48)))
}

func TestLadderInvalidConfig(t *testing.T) {
	cases := []struct {
		name  string
		base  decimal.Decimal
		width decimal.Decimal
		down  int
		up    int
	}{
		{"zero width", decimal.NewFromInt(100), decimal.Zero, 2, 2},
		{"negative width", decimal.NewFromInt(100), decimal.NewFromInt(-1), 2, 2},
		{"zero base", decimal.Zero, decimal.NewFromInt(1), 2, 2},
		{"negative levels", decimal.NewFromInt(100), decimal.NewFromInt(1), -1, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Ladder(tc.base, tc.width, tc.down, tc.up)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestRoundToTick(t *testing.T) {
	tick := decimal.NewFromFloat(0.5)

	assert.True(t, RoundToTick(decimal.NewFromFloat(100.3), tick).Equal(decimal.NewFromFloat(100.5)))
	assert.True(t, RoundToTick(decimal.NewFromFloat(100.2), tick).Equal(decimal.NewFromFloat(100.0)))
	assert.True(t, RoundToTick(decimal.NewFromFloat(98.5), tick).Equal(decimal.NewFromFloat(98.5)))

	// zero tick leaves the price alone
	p := decimal.NewFromFloat(123.456)
	assert.True(t, RoundToTick(p, decimal.Zero).Equal(p))
}
