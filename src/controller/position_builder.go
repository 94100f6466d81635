package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"gridexecutor/src/connectors"
	"gridexecutor/src/model"
	"gridexecutor/src/store"
)

// Build states. Building survives a crash ambiguously: the market order may
// or may not have executed, so startup resolves it from exchange truth
// before anything else trades.
const (
	BuildStateFlat     = "flat"
	BuildStateBuilding = "building"
	BuildStateBuilt    = "built"
)

// PositionBuilder opens the initial position when the account is flat. A
// single flat reading is never acted on; the account must be observed flat
// on consecutive ticks, and builds are separated by a cooldown so a
// mis-read cannot trigger a buying spree.
type PositionBuilder struct {
	client     connectors.ExchangeClient
	store      *store.Store
	state      *MarketState
	reconciler *Reconciler
	cfg        Config

	strategyID string
	symbol     string
	tradeSize  float64

	buildState       string
	flatObservations int
	lastBuild        time.Time
}

func NewPositionBuilder(
	client connectors.ExchangeClient,
	st *store.Store,
	state *MarketState,
	reconciler *Reconciler,
	cfg Config,
	strategyID, symbol string,
	tradeSize float64,
) *PositionBuilder {
	return &PositionBuilder{
		client:     client,
		store:      st,
		state:      state,
		reconciler: reconciler,
		cfg:        cfg,
		strategyID: strategyID,
		symbol:     symbol,
		tradeSize:  tradeSize,
		buildState: BuildStateFlat,
	}
}

// State returns the current build state.
func (b *PositionBuilder) State() string {
	b.state.Lock()
	defer b.state.Unlock()
	return b.buildState
}

// RestoreState installs the persisted build state at startup.
func (b *PositionBuilder) RestoreState(state string) {
	b.state.Lock()
	defer b.state.Unlock()
	switch state {
	case BuildStateBuilding, BuildStateBuilt:
		b.buildState = state
	default:
		b.buildState = BuildStateFlat
	}
}

// ObservePosition is called each tick with the verified position. A
// non-zero position clears the flat streak.
func (b *PositionBuilder) ObservePosition(position float64) {
	b.state.Lock()
	defer b.state.Unlock()

	if position > 0 {
		b.flatObservations = 0
		if b.buildState != BuildStateBuilding {
			b.buildState = BuildStateBuilt
		}
	}
}

// ObserveFlat is called each tick the verified position reads zero. It
// returns true when the debounce and cooldown both allow a build now.
func (b *PositionBuilder) ObserveFlat() bool {
	b.state.Lock()
	defer b.state.Unlock()

	if b.buildState == BuildStateBuilding {
		return false
	}

	b.buildState = BuildStateFlat
	b.flatObservations++

	if b.flatObservations < b.cfg.FlatConfirmations {
		logger.WithFields(map[string]interface{}{
			"strategy_id":  b.strategyID,
			"observations": b.flatObservations,
			"required":     b.cfg.FlatConfirmations,
		}).Debug("Flat reading, waiting for confirmation")
		return false
	}

	if time.Since(b.lastBuild) < b.cfg.BuildCooldown {
		logger.WithField("strategy_id", b.strategyID).
			Debug("Flat confirmed but build cooldown still active")
		return false
	}

	return true
}

// Build cancels all resting orders and opens the base position with a
// market buy. On success the fill price becomes the new grid center.
// Returns the fill used as center.
func (b *PositionBuilder) Build(ctx context.Context) (connectors.Fill, error) {
	b.state.Lock()
	defer b.state.Unlock()

	b.buildState = BuildStateBuilding
	b.lastBuild = time.Now()
	b.flatObservations = 0

	logger.WithFields(map[string]interface{}{
		"strategy_id": b.strategyID,
		"symbol":      b.symbol,
		"size":        b.tradeSize,
	}).Info("Building initial position")

	open, err := b.client.GetOpenOrders(ctx, b.symbol)
	if err != nil {
		return connectors.Fill{}, fmt.Errorf("read open orders before build: %w", err)
	}
	if err := b.reconciler.cancelAllLocked(ctx, open); err != nil {
		return connectors.Fill{}, err
	}

	clientID := "build-" + uuid.New().String()
	orderID, err := b.client.PlaceOrder(ctx, b.symbol, model.OrderSideBuy, model.OrderTypeMarket, 0, b.tradeSize, clientID)
	if err != nil {
		return connectors.Fill{}, fmt.Errorf("place build order: %w", err)
	}

	fill, err := b.waitForFill(ctx, orderID)
	if err != nil {
		// Still Building: the order exists but its outcome is unknown.
		// ResolvePending settles it from exchange truth on the next tick.
		return connectors.Fill{}, err
	}

	b.buildState = BuildStateBuilt

	b.store.AppendOperationLog(&model.OperationLogEntry{
		StrategyID:  b.strategyID,
		Action:      model.OperationBuild,
		Symbol:      b.symbol,
		Side:        model.OrderSideBuy,
		Price:       fill.Price,
		Size:        fill.Size,
		OrderID:     orderID,
		MarketPrice: b.state.snap.MarketPrice,
		CreatedAt:   time.Now(),
	})

	logger.WithFields(map[string]interface{}{
		"strategy_id": b.strategyID,
		"fill_price":  fill.Price,
		"size":        fill.Size,
	}).Info("Initial position built")

	return fill, nil
}

func (b *PositionBuilder) waitForFill(ctx context.Context, orderID string) (connectors.Fill, error) {
	deadline := time.Now().Add(b.cfg.BuildFillWait)

	for {
		order, err := b.client.GetOrder(ctx, b.symbol, orderID)
		if err == nil && order.Status == connectors.ExchangeOrderFilled {
			return connectors.Fill{
				OrderID:   orderID,
				Symbol:    b.symbol,
				Side:      model.OrderSideBuy,
				Price:     order.AvgFillPrice,
				Size:      order.FilledSize,
				Timestamp: time.Now(),
			}, nil
		}

		if time.Now().After(deadline) {
			return connectors.Fill{}, fmt.Errorf("build order %s: %w", orderID, ErrOrderNotConfirmed)
		}

		select {
		case <-ctx.Done():
			return connectors.Fill{}, ctx.Err()
		case <-time.After(b.cfg.OrderConfirmDelay):
		}
	}
}

// ResolvePending settles an ambiguous Building state after a restart or a
// failed fill wait: exchange position truth decides whether the build
// happened.
func (b *PositionBuilder) ResolvePending(ctx context.Context) error {
	b.state.Lock()
	if b.buildState != BuildStateBuilding {
		b.state.Unlock()
		return nil
	}
	b.state.Unlock()

	positions, err := b.client.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("resolve pending build: %w", err)
	}

	var held float64
	for _, p := range positions {
		if p.Symbol == b.symbol {
			held = p.Size
			break
		}
	}

	b.state.Lock()
	defer b.state.Unlock()

	if held > 0 {
		b.buildState = BuildStateBuilt
		logger.WithFields(map[string]interface{}{
			"strategy_id": b.strategyID,
			"position":    held,
		}).Info("Pending build resolved: position exists")
	} else {
		b.buildState = BuildStateFlat
		logger.WithField("strategy_id", b.strategyID).
			Info("Pending build resolved: no position, back to flat")
	}

	b.store.AppendOperationLog(&model.OperationLogEntry{
		StrategyID:  b.strategyID,
		Action:      model.OperationRecover,
		Symbol:      b.symbol,
		Size:        held,
		MarketPrice: b.state.snap.MarketPrice,
		Detail:      "resolved pending build from exchange position",
		CreatedAt:   time.Now(),
	})

	return nil
}
