package controller

import (
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"gridexecutor/src/connectors"
	"gridexecutor/src/model"
	"gridexecutor/src/store"
)

// FillOutcome tells the engine what a processed fill requires next. The
// processor itself never places orders; it only updates state, so the
// engine can apply the shared reconciliation throttle across a burst of
// fills.
type FillOutcome struct {
	Processed bool
	Recenter  bool
	Center    float64
	Flat      bool
}

// FillProcessor turns executions into durable trade records, maintains the
// FIFO buy queue for profit pairing, and moves the grid center to the fill
// price. Exactly-once: every fill is deduplicated by trade ID, so the
// websocket feed and REST polling can both deliver the same execution.
type FillProcessor struct {
	store *store.Store
	state *MarketState

	strategyID string
	symbol     string

	seen        map[string]struct{}
	openBuys    []model.TradeRecord
	totalProfit float64
	closedPairs int
}

func NewFillProcessor(st *store.Store, state *MarketState, strategyID, symbol string) *FillProcessor {
	return &FillProcessor{
		store:      st,
		state:      state,
		strategyID: strategyID,
		symbol:     symbol,
		seen:       make(map[string]struct{}),
	}
}

// Restore seeds the processor from recovered persistence: already-processed
// trade IDs, the unmatched buy queue and the recomputed profit total.
func (p *FillProcessor) Restore(recovered *store.RecoveredState, trades []model.TradeRecord, pairCount int) {
	p.state.Lock()
	defer p.state.Unlock()

	for _, t := range trades {
		p.seen[t.TradeID] = struct{}{}
	}
	p.openBuys = append(p.openBuys[:0], recovered.OpenBuys...)
	p.totalProfit = recovered.TotalProfit
	p.closedPairs = pairCount
	p.state.SetProfitLocked(p.totalProfit, p.closedPairs)
}

// OpenBuyCount returns the number of unmatched buy fills.
func (p *FillProcessor) OpenBuyCount() int {
	p.state.Lock()
	defer p.state.Unlock()
	return len(p.openBuys)
}

// TotalProfit returns realized profit from closed pairs.
func (p *FillProcessor) TotalProfit() float64 {
	p.state.Lock()
	defer p.state.Unlock()
	return p.totalProfit
}

// Process handles one execution. Duplicates are dropped. A buy fill joins
// the FIFO queue; a sell fill closes the oldest open buys into profit
// pairs. The fill price becomes the new grid center unless the position
// just went flat, in which case rebuilding, not reconciliation, is next.
func (p *FillProcessor) Process(fill connectors.Fill) FillOutcome {
	p.state.Lock()
	defer p.state.Unlock()

	if fill.TradeID == "" || fill.Symbol != p.symbol {
		return FillOutcome{}
	}
	if _, dup := p.seen[fill.TradeID]; dup {
		logger.WithField("trade_id", fill.TradeID).
			Debug("Duplicate fill dropped")
		return FillOutcome{}
	}
	p.seen[fill.TradeID] = struct{}{}

	record := model.TradeRecord{
		StrategyID: p.strategyID,
		TradeID:    fill.TradeID,
		OrderID:    fill.OrderID,
		Symbol:     fill.Symbol,
		Side:       fill.Side,
		Price:      fill.Price,
		Size:       fill.Size,
		Fee:        fill.Fee,
		Timestamp:  fill.Timestamp,
	}
	p.store.AppendTrade(&record)

	p.store.AppendOperationLog(&model.OperationLogEntry{
		StrategyID:  p.strategyID,
		Action:      model.OperationFill,
		Symbol:      fill.Symbol,
		Side:        fill.Side,
		Price:       fill.Price,
		Size:        fill.Size,
		OrderID:     fill.OrderID,
		MarketPrice: p.state.snap.MarketPrice,
		CreatedAt:   time.Now(),
	})

	position := p.state.snap.Position
	if fill.Side == model.OrderSideBuy {
		position += fill.Size
	} else {
		position -= fill.Size
		if position < 0 {
			position = 0
		}
	}
	p.state.SetPositionLocked(position)
	p.state.SetLastFillLocked(fill.Price, fill.Side)

	logger.WithFields(map[string]interface{}{
		"strategy_id": p.strategyID,
		"trade_id":    fill.TradeID,
		"side":        fill.Side,
		"price":       fill.Price,
		"size":        fill.Size,
		"position":    position,
	}).Info("Fill processed")

	if fill.Side == model.OrderSideBuy {
		p.openBuys = append(p.openBuys, record)
		return FillOutcome{Processed: true, Recenter: true, Center: fill.Price}
	}

	p.matchSell(record)

	if position == 0 {
		logger.WithField("strategy_id", p.strategyID).
			Info("Position flat after sell fill")
		return FillOutcome{Processed: true, Flat: true}
	}
	return FillOutcome{Processed: true, Recenter: true, Center: fill.Price}
}

// matchSell closes the oldest open buys against a sell fill, one pair per
// consumed buy, with fees allocated pro rata.
func (p *FillProcessor) matchSell(sell model.TradeRecord) {
	remaining := sell.Size

	for remaining > 0 && len(p.openBuys) > 0 {
		buy := p.openBuys[0]

		matched := buy.Size
		if matched > remaining {
			matched = remaining
		}

		buyFee := 0.0
		if buy.Size > 0 {
			buyFee = buy.Fee * matched / buy.Size
		}
		sellFee := 0.0
		if sell.Size > 0 {
			sellFee = sell.Fee * matched / sell.Size
		}

		profit := (sell.Price-buy.Price)*matched - buyFee - sellFee

		pair := model.TradePair{
			StrategyID:  p.strategyID,
			PairID:      fmt.Sprintf("%s|%s", buy.TradeID, sell.TradeID),
			BuyOrderID:  buy.OrderID,
			SellOrderID: sell.OrderID,
			BuyPrice:    buy.Price,
			SellPrice:   sell.Price,
			Size:        matched,
			Profit:      profit,
			Status:      model.TradePairStatusClosed,
		}
		p.store.AppendTradePair(&pair)

		p.totalProfit += profit
		p.closedPairs++

		logger.WithFields(map[string]interface{}{
			"strategy_id": p.strategyID,
			"pair_id":     pair.PairID,
			"profit":      profit,
		}).Info("Trade pair closed")

		remaining -= matched
		if matched >= buy.Size {
			p.openBuys = p.openBuys[1:]
		} else {
			p.openBuys[0].Size -= matched
			p.openBuys[0].Fee -= buyFee
		}
	}

	if remaining > 0 {
		// Sell without a matching buy (e.g. history wiped mid-flight).
		// Position math already accounted for it; only pairing is skipped.
		logger.WithFields(map[string]interface{}{
			"strategy_id": p.strategyID,
			"trade_id":    sell.TradeID,
			"unmatched":   remaining,
		}).Warn("Sell fill without matching open buy")
	}

	p.state.SetProfitLocked(p.totalProfit, p.closedPairs)
}
