package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"gridexecutor/src/connectors"
	"gridexecutor/src/grid"
	"gridexecutor/src/model"
	"gridexecutor/src/store"
)

// Reconciler keeps exactly one resting buy and one resting sell around the
// grid center while a position is open. It never trusts in-memory
// bookkeeping: every pass starts from the exchange's own open-order list
// and converges toward the target pair.
type Reconciler struct {
	client connectors.ExchangeClient
	store  *store.Store
	state  *MarketState
	cfg    Config

	strategyID string
	symbol     string
	gridWidth  decimal.Decimal
	tickSize   decimal.Decimal
	tradeSize  float64

	lastRun time.Time
	orders  map[string]model.GridOrder
}

func NewReconciler(
	client connectors.ExchangeClient,
	st *store.Store,
	state *MarketState,
	cfg Config,
	strategyID, symbol string,
	gridWidth decimal.Decimal,
	tradeSize float64,
) *Reconciler {
	return &Reconciler{
		client:     client,
		store:      st,
		state:      state,
		cfg:        cfg,
		strategyID: strategyID,
		symbol:     symbol,
		gridWidth:  gridWidth,
		tradeSize:  tradeSize,
		orders:     make(map[string]model.GridOrder),
	}
}

// SetTickSize installs the instrument tick size once it is known.
func (r *Reconciler) SetTickSize(tick decimal.Decimal) {
	r.state.Lock()
	defer r.state.Unlock()
	r.tickSize = tick
}

// ActiveOrders returns the resting orders confirmed on the last pass.
func (r *Reconciler) ActiveOrders() []model.GridOrder {
	r.state.Lock()
	defer r.state.Unlock()

	out := make([]model.GridOrder, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out
}

// EnsureTwoOrders converges the exchange toward {one buy, one sell} around
// center. Throttled: passes closer together than the configured minimum
// interval are skipped, so a burst of fills triggers one reconciliation,
// not one per fill. Safe to call repeatedly; a converged book is a no-op.
func (r *Reconciler) EnsureTwoOrders(ctx context.Context, center float64) error {
	r.state.Lock()
	defer r.state.Unlock()

	if time.Since(r.lastRun) < r.cfg.ReconcileMinInterval {
		logger.WithField("strategy_id", r.strategyID).
			Debug("Reconciliation throttled, skipping pass")
		return nil
	}
	r.lastRun = time.Now()

	targetBuy := r.roundPrice(decimal.NewFromFloat(center).Sub(r.gridWidth))
	targetSell := r.roundPrice(decimal.NewFromFloat(center).Add(r.gridWidth))

	open, err := r.client.GetOpenOrders(ctx, r.symbol)
	if err != nil {
		return fmt.Errorf("read open orders: %w", err)
	}

	if buy, sell, ok := r.converged(open, targetBuy, targetSell); ok {
		r.rememberOrders(buy, sell)
		logger.WithFields(map[string]interface{}{
			"strategy_id": r.strategyID,
			"buy_price":   buy.Price,
			"sell_price":  sell.Price,
		}).Debug("Order book already converged")
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"strategy_id": r.strategyID,
		"open_orders": len(open),
		"center":      center,
		"target_buy":  targetBuy.InexactFloat64(),
		"target_sell": targetSell.InexactFloat64(),
	}).Info("Reconciling order book")

	if err := r.cancelAllLocked(ctx, open); err != nil {
		return err
	}

	buy, err := r.placeConfirmedLocked(ctx, model.OrderSideBuy, targetBuy)
	if err != nil {
		return err
	}
	sell, err := r.placeConfirmedLocked(ctx, model.OrderSideSell, targetSell)
	if err != nil {
		return err
	}

	r.rememberOrders(buy, sell)

	logger.WithFields(map[string]interface{}{
		"strategy_id": r.strategyID,
		"buy_price":   buy.Price,
		"sell_price":  sell.Price,
	}).Info("Order book reconciled")

	return nil
}

// CancelAll cancels every resting order and waits for the book to empty.
func (r *Reconciler) CancelAll(ctx context.Context) error {
	r.state.Lock()
	defer r.state.Unlock()

	open, err := r.client.GetOpenOrders(ctx, r.symbol)
	if err != nil {
		return fmt.Errorf("read open orders: %w", err)
	}
	return r.cancelAllLocked(ctx, open)
}

func (r *Reconciler) converged(open []connectors.Order, targetBuy, targetSell decimal.Decimal) (buy, sell connectors.Order, ok bool) {
	if len(open) != 2 {
		return buy, sell, false
	}

	var haveBuy, haveSell bool
	for _, o := range open {
		price := decimal.NewFromFloat(o.Price)
		switch {
		case o.Side == model.OrderSideBuy && r.priceMatches(price, targetBuy):
			buy = o
			haveBuy = true
		case o.Side == model.OrderSideSell && r.priceMatches(price, targetSell):
			sell = o
			haveSell = true
		}
	}
	return buy, sell, haveBuy && haveSell
}

// priceMatches compares to within half a tick; exchange rounding must not
// count as divergence.
func (r *Reconciler) priceMatches(a, b decimal.Decimal) bool {
	if r.tickSize.IsZero() {
		return a.Equal(b)
	}
	return a.Sub(b).Abs().LessThanOrEqual(r.tickSize.Div(decimal.NewFromInt(2)))
}

func (r *Reconciler) roundPrice(p decimal.Decimal) decimal.Decimal {
	return grid.RoundToTick(p, r.tickSize)
}

func (r *Reconciler) cancelAllLocked(ctx context.Context, open []connectors.Order) error {
	if len(open) == 0 {
		return nil
	}

	market := r.state.snap.MarketPrice

	for _, o := range open {
		if err := r.client.CancelOrder(ctx, r.symbol, o.OrderID); err != nil {
			if errors.Is(err, connectors.ErrExchangeRejected) {
				// Already gone (filled or cancelled elsewhere); the wait
				// loop below confirms either way.
				logger.WithField("order_id", o.OrderID).
					Debug("Cancel rejected, order already off the book")
				continue
			}
			return fmt.Errorf("cancel order %s: %w", o.OrderID, err)
		}

		r.store.AppendOperationLog(&model.OperationLogEntry{
			StrategyID:  r.strategyID,
			Action:      model.OperationCancel,
			Symbol:      r.symbol,
			Side:        o.Side,
			Price:       o.Price,
			Size:        o.Size,
			OrderID:     o.OrderID,
			MarketPrice: market,
			CreatedAt:   time.Now(),
		})
	}

	deadline := time.Now().Add(r.cfg.CancelWait)
	for {
		remaining, err := r.client.GetOpenOrders(ctx, r.symbol)
		if err != nil {
			return fmt.Errorf("poll open orders after cancel: %w", err)
		}
		if len(remaining) == 0 {
			r.orders = make(map[string]model.GridOrder)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%d orders still resting after cancel wait: %w",
				len(remaining), ErrOrderNotConfirmed)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.CancelPollInterval):
		}
	}
}

func (r *Reconciler) placeConfirmedLocked(ctx context.Context, side string, price decimal.Decimal) (connectors.Order, error) {
	p := price.InexactFloat64()
	gridID := 0
	if side == model.OrderSideSell {
		gridID = 1
	}
	clientID := ClientOrderID(r.strategyID, gridID, side, p, r.tradeSize)

	orderID, err := r.client.PlaceOrder(ctx, r.symbol, side, model.OrderTypeLimit, p, r.tradeSize, clientID)
	if err != nil && !connectors.IsDuplicateClientOrderID(err) {
		return connectors.Order{}, fmt.Errorf("place %s order: %w", side, err)
	}
	if connectors.IsDuplicateClientOrderID(err) {
		// A previous attempt went through; confirmation below finds it by
		// client order ID.
		logger.WithFields(map[string]interface{}{
			"strategy_id":     r.strategyID,
			"side":            side,
			"client_order_id": clientID,
		}).Info("Order already placed in an earlier attempt")
	}

	confirmed, err := r.confirmOrder(ctx, orderID, clientID)
	if err != nil {
		return connectors.Order{}, err
	}

	r.store.AppendOperationLog(&model.OperationLogEntry{
		StrategyID:  r.strategyID,
		Action:      model.OperationPlace,
		Symbol:      r.symbol,
		Side:        side,
		Price:       confirmed.Price,
		Size:        confirmed.Size,
		OrderID:     confirmed.OrderID,
		MarketPrice: r.state.snap.MarketPrice,
		CreatedAt:   time.Now(),
	})

	return confirmed, nil
}

// confirmOrder verifies the order actually rests on the exchange. A fast
// fill also counts as confirmation.
func (r *Reconciler) confirmOrder(ctx context.Context, orderID, clientID string) (connectors.Order, error) {
	retries := r.cfg.OrderConfirmRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return connectors.Order{}, ctx.Err()
			case <-time.After(r.cfg.OrderConfirmDelay):
			}
		}

		if orderID != "" {
			order, err := r.client.GetOrder(ctx, r.symbol, orderID)
			if err == nil && order.Status != connectors.ExchangeOrderCancelled {
				return order, nil
			}
			lastErr = err
			continue
		}

		// No order ID (duplicate clOrdID path): find it on the book.
		open, err := r.client.GetOpenOrders(ctx, r.symbol)
		if err != nil {
			lastErr = err
			continue
		}
		for _, o := range open {
			if o.ClientOrderID == clientID {
				return o, nil
			}
		}
		lastErr = nil
	}

	if lastErr != nil {
		return connectors.Order{}, fmt.Errorf("%w: %v", ErrOrderNotConfirmed, lastErr)
	}
	return connectors.Order{}, ErrOrderNotConfirmed
}

func (r *Reconciler) rememberOrders(buy, sell connectors.Order) {
	now := time.Now()
	r.orders = map[string]model.GridOrder{
		model.OrderSideBuy: {
			GridID:          0,
			Side:            model.OrderSideBuy,
			Price:           buy.Price,
			Size:            buy.Size,
			Status:          model.OrderStatusPending,
			ExchangeOrderID: buy.OrderID,
			ClientOrderID:   buy.ClientOrderID,
			CreatedAt:       now,
		},
		model.OrderSideSell: {
			GridID:          1,
			Side:            model.OrderSideSell,
			Price:           sell.Price,
			Size:            sell.Size,
			Status:          model.OrderStatusPending,
			ExchangeOrderID: sell.OrderID,
			ClientOrderID:   sell.ClientOrderID,
			CreatedAt:       now,
		},
	}
}
