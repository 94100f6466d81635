package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gridexecutor/src/model"
)

func TestClientOrderIDDeterministic(t *testing.T) {
	a := ClientOrderID("grid-1", 0, model.OrderSideBuy, 59800, 0.01)
	b := ClientOrderID("grid-1", 0, model.OrderSideBuy, 59800, 0.01)
	assert.Equal(t, a, b, "same logical order must map to the same ID")

	assert.NotEqual(t, a, ClientOrderID("grid-2", 0, model.OrderSideBuy, 59800, 0.01))
	assert.NotEqual(t, a, ClientOrderID("grid-1", 1, model.OrderSideBuy, 59800, 0.01))
	assert.NotEqual(t, a, ClientOrderID("grid-1", 0, model.OrderSideSell, 59800, 0.01))
	assert.NotEqual(t, a, ClientOrderID("grid-1", 0, model.OrderSideBuy, 59800.5, 0.01))
	assert.NotEqual(t, a, ClientOrderID("grid-1", 0, model.OrderSideBuy, 59800, 0.02))
}

func TestNormalizeToUSDT(t *testing.T) {
	cases := map[string]string{
		"BTCUSD":  "BTCUSDT",
		"ETHUSD":  "ETHUSDT",
		"BTCUSDT": "BTCUSDT",
		"ethusd":  "ETHUSDT",
		"SOLEUR":  "SOLEUR",
		"":        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeToUSDT(in), "input %q", in)
	}
}
