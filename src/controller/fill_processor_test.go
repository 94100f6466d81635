package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridexecutor/src/connectors"
	"gridexecutor/src/model"
)

func newTestProcessor(t *testing.T) (*FillProcessor, *MarketState) {
	t.Helper()
	state := NewMarketState()
	return NewFillProcessor(newTestStore(t), state, "grid-1", "BTCUSDT"), state
}

func buyFill(tradeID, orderID string, price, size float64) connectors.Fill {
	return connectors.Fill{
		TradeID: tradeID, OrderID: orderID, Symbol: "BTCUSDT",
		Side: model.OrderSideBuy, Price: price, Size: size, Fee: 0.1,
		Timestamp: time.Now(),
	}
}

func sellFill(tradeID, orderID string, price, size float64) connectors.Fill {
	return connectors.Fill{
		TradeID: tradeID, OrderID: orderID, Symbol: "BTCUSDT",
		Side: model.OrderSideSell, Price: price, Size: size, Fee: 0.1,
		Timestamp: time.Now(),
	}
}

// A buy fill grows the position, joins the FIFO queue and recenters the
// grid at the fill price.
func TestProcessBuyFill(t *testing.T) {
	p, state := newTestProcessor(t)

	outcome := p.Process(buyFill("t1", "b1", 59800, 0.01))

	require.True(t, outcome.Processed)
	assert.True(t, outcome.Recenter)
	assert.Equal(t, 59800.0, outcome.Center)
	assert.False(t, outcome.Flat)

	snap := state.Snapshot()
	assert.Equal(t, 0.01, snap.Position)
	assert.Equal(t, 59800.0, snap.LastFillPrice)
	assert.Equal(t, model.OrderSideBuy, snap.LastFillSide)
	assert.Equal(t, 1, p.OpenBuyCount())
}

// Replayed executions are dropped; position and queue stay untouched.
func TestProcessDuplicateDropped(t *testing.T) {
	p, state := newTestProcessor(t)

	first := p.Process(buyFill("t1", "b1", 59800, 0.01))
	require.True(t, first.Processed)

	dup := p.Process(buyFill("t1", "b1", 59800, 0.01))
	assert.False(t, dup.Processed)

	assert.Equal(t, 0.01, state.Snapshot().Position)
	assert.Equal(t, 1, p.OpenBuyCount())
}

// A sell closes the oldest buy into a profit pair, fees deducted.
func TestProcessSellClosesOldestBuy(t *testing.T) {
	p, state := newTestProcessor(t)
	state.Lock()
	state.SetPositionLocked(0.03)
	state.Unlock()

	p.Process(buyFill("t1", "b1", 59600, 0.01))
	p.Process(buyFill("t2", "b2", 59800, 0.01))

	outcome := p.Process(sellFill("t3", "s1", 60000, 0.01))

	require.True(t, outcome.Processed)
	assert.True(t, outcome.Recenter)
	assert.Equal(t, 60000.0, outcome.Center)

	// (60000-59600)*0.01 minus both 0.1 fees
	assert.InDelta(t, 4.0-0.2, p.TotalProfit(), 1e-9)
	assert.Equal(t, 1, p.OpenBuyCount(), "only the oldest buy is consumed")

	snap := state.Snapshot()
	assert.Equal(t, 1, snap.ClosedPairCount)
}

// Position reaching zero signals a rebuild, not a recenter.
func TestProcessSellToFlat(t *testing.T) {
	p, state := newTestProcessor(t)

	p.Process(buyFill("t1", "b1", 59800, 0.01))
	outcome := p.Process(sellFill("t2", "s1", 60000, 0.01))

	require.True(t, outcome.Processed)
	assert.True(t, outcome.Flat)
	assert.False(t, outcome.Recenter)
	assert.Zero(t, state.Snapshot().Position)
	assert.Zero(t, p.OpenBuyCount())
}

// Fills for other instruments or without IDs are ignored.
func TestProcessRejectsForeignFills(t *testing.T) {
	p, _ := newTestProcessor(t)

	other := buyFill("t1", "b1", 59800, 0.01)
	other.Symbol = "ETHUSDT"
	assert.False(t, p.Process(other).Processed)

	anon := buyFill("", "b1", 59800, 0.01)
	assert.False(t, p.Process(anon).Processed)
}

// Restore seeds dedupe state and the FIFO queue from persistence, so a
// restart neither replays fills nor forgets open buys.
func TestRestoreFromRecoveredState(t *testing.T) {
	st := newTestStore(t)
	state := NewMarketState()
	p := NewFillProcessor(st, state, "grid-1", "BTCUSDT")

	st.AppendTrade(&model.TradeRecord{StrategyID: "grid-1", TradeID: "t1", OrderID: "b1", Side: model.OrderSideBuy, Price: 59600, Size: 0.01})
	st.AppendTrade(&model.TradeRecord{StrategyID: "grid-1", TradeID: "t2", OrderID: "b2", Side: model.OrderSideBuy, Price: 59800, Size: 0.01})
	st.AppendTrade(&model.TradeRecord{StrategyID: "grid-1", TradeID: "t3", OrderID: "s1", Side: model.OrderSideSell, Price: 60000, Size: 0.01})
	st.AppendTradePair(&model.TradePair{
		StrategyID: "grid-1", PairID: "t1|t3", BuyOrderID: "b1", SellOrderID: "s1",
		BuyPrice: 59600, SellPrice: 60000, Size: 0.01, Profit: 3.8,
		Status: model.TradePairStatusClosed,
	})
	st.Close()

	ctx := context.Background()
	recovered, err := st.Load(ctx, "grid-1")
	require.NoError(t, err)

	trades, err := st.ListTrades(ctx, "grid-1")
	require.NoError(t, err)
	pairs, err := st.ListPairs(ctx, "grid-1")
	require.NoError(t, err)

	p.Restore(recovered, trades, len(pairs))

	assert.Equal(t, 1, p.OpenBuyCount())
	assert.InDelta(t, 3.8, p.TotalProfit(), 1e-9)

	// Replaying a persisted fill after restart is still a duplicate.
	assert.False(t, p.Process(buyFill("t2", "b2", 59800, 0.01)).Processed)
}
