package executors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"gridexecutor/src/connectors"
	"gridexecutor/src/controller"
	"gridexecutor/src/grid"
	"gridexecutor/src/model"
	"gridexecutor/src/repository"
	"gridexecutor/src/resilience"
	"gridexecutor/src/store"
	"gridexecutor/src/verify"
)

// Scheduler event names, used as log fields so operators can grep one
// event type across the log stream.
const (
	eventTick        = "tick"
	eventHealthCheck = "health-check"
	eventSummary     = "summary"
)

// Status is the engine snapshot served by the HTTP API.
type Status struct {
	StrategyID          string            `json:"strategy_id"`
	Symbol              string            `json:"symbol"`
	Running             bool              `json:"running"`
	Paused              bool              `json:"paused"`
	BuildState          string            `json:"build_state"`
	Position            float64           `json:"position"`
	MarketPrice         float64           `json:"market_price"`
	LastFillPrice       float64           `json:"last_fill_price"`
	LastFillSide        string            `json:"last_fill_side"`
	DataVerified        bool              `json:"data_verified"`
	TotalProfit         float64           `json:"total_profit"`
	ClosedPairs         int               `json:"closed_pairs"`
	ActiveOrders        []model.GridOrder `json:"active_orders"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	StartedAt           time.Time         `json:"started_at,omitempty"`
}

// Health is the liveness view served by the HTTP API.
type Health struct {
	Status              string  `json:"status"` // ok | paused | stopped
	ConsecutiveFailures int     `json:"consecutive_failures"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
}

// Engine runs the grid strategy: a single control loop that observes
// verified market data, processes fills, keeps the two-order invariant and
// persists a status snapshot every pass. All mutating work happens inside
// the tick, serialized by the shared controller lock.
type Engine struct {
	cfg     Config
	ctrlCfg controller.Config

	client     connectors.ExchangeClient
	store      *store.Store
	state      *controller.MarketState
	reconciler *controller.Reconciler
	builder    *controller.PositionBuilder
	fills      *controller.FillProcessor
	feed       *connectors.FillFeed
	exceptions *repository.ExceptionRepository

	priceReader    *verify.Reader
	positionReader *verify.Reader
	breaker        *resilience.Breaker
	retry          resilience.RetryPolicy

	strategyID string
	symbol     string
	ladderJSON string

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

func NewEngine(
	cfg Config,
	ctrlCfg controller.Config,
	client connectors.ExchangeClient,
	st *store.Store,
	feed *connectors.FillFeed,
	exceptions *repository.ExceptionRepository,
) (*Engine, error) {

	symbol := controller.NormalizeToUSDT(cfg.TargetSymbol)
	state := controller.NewMarketState()

	width := decimal.NewFromFloat(cfg.GridWidth)
	base := decimal.NewFromFloat(cfg.BasePrice)

	ladder, err := grid.Ladder(base, width, cfg.DownLevels, cfg.UpLevels)
	if err != nil {
		return nil, err
	}
	ladderFloats := make([]float64, 0, len(ladder))
	for _, p := range ladder {
		ladderFloats = append(ladderFloats, p.InexactFloat64())
	}
	ladderBytes, _ := json.Marshal(ladderFloats)

	reconciler := controller.NewReconciler(client, st, state, ctrlCfg,
		cfg.StrategyID, symbol, width, cfg.TradeSize)
	builder := controller.NewPositionBuilder(client, st, state, reconciler, ctrlCfg,
		cfg.StrategyID, symbol, cfg.TradeSize)
	fills := controller.NewFillProcessor(st, state, cfg.StrategyID, symbol)

	e := &Engine{
		cfg:        cfg,
		ctrlCfg:    ctrlCfg,
		client:     client,
		store:      st,
		state:      state,
		reconciler: reconciler,
		builder:    builder,
		fills:      fills,
		feed:       feed,
		exceptions: exceptions,
		breaker:    resilience.NewBreaker(cfg.MaxConsecutiveFailures, cfg.PauseBase, cfg.PauseMax),
		retry:      resilience.RetryPolicy{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay},
		strategyID: cfg.StrategyID,
		symbol:     symbol,
		ladderJSON: string(ladderBytes),
	}

	e.priceReader = verify.NewReader("market-price", e.readPrice, verify.Config{
		Samples:      cfg.VerifySamples,
		SampleDelay:  cfg.VerifySampleDelay,
		RelTolerance: decimal.NewFromFloat(cfg.VerifyPriceTolerance),
		CacheTTL:     cfg.VerifyCacheTTL,
		Cooldown:     cfg.VerifyCooldown,
	})
	e.positionReader = verify.NewReader("position", e.readPosition, verify.Config{
		Samples:     cfg.VerifySamples,
		SampleDelay: cfg.VerifySampleDelay,
		UseAbsolute: true,
		CacheTTL:    cfg.VerifyCacheTTL,
		Cooldown:    cfg.VerifyCooldown,
	})

	return e, nil
}

func (e *Engine) readPrice(ctx context.Context) (decimal.Decimal, error) {
	ticker, err := e.client.GetTicker(ctx, e.symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(ticker.Last), nil
}

func (e *Engine) readPosition(ctx context.Context) (decimal.Decimal, error) {
	positions, err := e.client.GetPositions(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range positions {
		if p.Symbol == e.symbol {
			return decimal.NewFromFloat(p.Size), nil
		}
	}
	return decimal.Zero, nil
}

// Start recovers persisted state and launches the control loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errors.New("engine already running")
	}

	if err := e.recover(ctx); err != nil {
		return fmt.Errorf("recover state: %w", err)
	}

	spec, err := e.client.GetInstrumentSpec(ctx, e.symbol)
	if err != nil {
		logger.WithError(err).Warn("Could not fetch instrument spec, prices will not be tick-rounded")
	} else {
		e.reconciler.SetTickSize(decimal.NewFromFloat(spec.TickSize))
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.startedAt = time.Now()

	if e.feed != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.feed.Run(loopCtx)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(loopCtx)
	}()

	logger.WithFields(map[string]interface{}{
		"strategy_id": e.strategyID,
		"symbol":      e.symbol,
		"grid_width":  e.cfg.GridWidth,
		"trade_size":  e.cfg.TradeSize,
	}).Info("Engine started")

	return nil
}

// recover seeds in-memory state from the database.
func (e *Engine) recover(ctx context.Context) error {
	recovered, err := e.store.Load(ctx, e.strategyID)
	if err != nil {
		return err
	}

	trades, err := e.store.ListTrades(ctx, e.strategyID)
	if err != nil {
		return err
	}
	pairs, err := e.store.ListPairs(ctx, e.strategyID)
	if err != nil {
		return err
	}

	e.fills.Restore(recovered, trades, len(pairs))

	if recovered.Status != nil {
		e.state.Lock()
		e.state.SetPositionLocked(recovered.Status.Position)
		e.state.SetLastFillLocked(recovered.Status.LastFillPrice, recovered.Status.LastFillSide)
		e.state.Unlock()

		if recovered.Status.Position > 0 {
			e.builder.RestoreState(controller.BuildStateBuilt)
		}

		e.store.AppendOperationLog(&model.OperationLogEntry{
			StrategyID:  e.strategyID,
			Action:      model.OperationRecover,
			Symbol:      e.symbol,
			Size:        recovered.Status.Position,
			MarketPrice: recovered.Status.LastFillPrice,
			Detail:      "resumed from persisted snapshot",
			CreatedAt:   time.Now(),
		})
	}

	return nil
}

// Stop halts the loop and cancels all resting orders.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.cancel()
	e.running = false
	e.mu.Unlock()

	e.wg.Wait()

	if err := e.reconciler.CancelAll(ctx); err != nil {
		logger.WithError(err).Error("Failed to cancel resting orders on stop")
		return err
	}

	logger.WithField("strategy_id", e.strategyID).Info("Engine stopped")
	return nil
}

// Reset wipes all persisted and in-memory state. The engine must be
// stopped first; a running strategy cannot be reset out from under itself.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errors.New("engine must be stopped before reset")
	}

	if err := e.store.DeleteAll(ctx, e.strategyID); err != nil {
		return err
	}

	e.state = controller.NewMarketState()
	e.reconciler = controller.NewReconciler(e.client, e.store, e.state, e.ctrlCfg,
		e.strategyID, e.symbol, decimal.NewFromFloat(e.cfg.GridWidth), e.cfg.TradeSize)
	e.builder = controller.NewPositionBuilder(e.client, e.store, e.state, e.reconciler,
		e.ctrlCfg, e.strategyID, e.symbol, e.cfg.TradeSize)
	e.fills = controller.NewFillProcessor(e.store, e.state, e.strategyID, e.symbol)
	e.priceReader.Invalidate()
	e.positionReader.Invalidate()

	e.store.AppendOperationLog(&model.OperationLogEntry{
		StrategyID: e.strategyID,
		Action:     model.OperationReset,
		Symbol:     e.symbol,
		Detail:     "operator reset",
		CreatedAt:  time.Now(),
	})

	logger.WithField("strategy_id", e.strategyID).Warn("Engine state reset")
	return nil
}

// Resume clears an active breaker pause.
func (e *Engine) Resume() {
	e.breaker.Resume()
}

// run is the scheduler: one ticker per named event, all dispatched from a
// single goroutine so events never overlap.
func (e *Engine) run(ctx context.Context) {
	tick := time.NewTicker(e.cfg.LoopPeriod)
	defer tick.Stop()
	health := time.NewTicker(e.cfg.HealthCheckPeriod)
	defer health.Stop()
	summary := time.NewTicker(e.cfg.SummaryPeriod)
	defer summary.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.WithField("strategy_id", e.strategyID).Info("Control loop stopped")
			return

		case <-tick.C:
			e.runTick(ctx)

		case <-health.C:
			e.runHealthCheck(ctx)

		case <-summary.C:
			e.runSummary()
		}
	}
}

func (e *Engine) runTick(ctx context.Context) {
	if e.breaker.Paused() {
		logger.WithField("event", eventTick).Debug("Engine paused, skipping tick")
		return
	}

	verified, err := e.tick(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.WithField("event", eventTick).WithError(err).Error("Tick failed")
		controller.Capture(ctx, e.exceptions, "grid_executor", "executors", "tick", "error", err, map[string]interface{}{
			"strategy_id": e.strategyID,
		})
		e.breaker.Failure()
		return
	}

	// A held tick (quorum disagreement) is neither success nor failure:
	// crediting it would let flapping data mask a real failure streak.
	if verified {
		e.breaker.Success()
	}
}

// tick is one full pass: ingest fills, refresh verified data, then either
// rebuild the position or reconcile the order book, and persist a snapshot.
// The boolean reports whether verified data drove the pass; a held pass
// must not reset the breaker.
func (e *Engine) tick(ctx context.Context) (bool, error) {
	outcome := e.ingestFills(ctx)

	price, priceVerified, err := e.priceReader.Value(ctx)
	if err != nil && !errors.Is(err, verify.ErrDataInconsistent) {
		return false, fmt.Errorf("read price: %w", err)
	}
	e.state.SetMarket(price.InexactFloat64(), priceVerified)

	position, posVerified, err := e.positionReader.Value(ctx)
	if err != nil && !errors.Is(err, verify.ErrDataInconsistent) {
		return false, fmt.Errorf("read position: %w", err)
	}

	if !priceVerified || !posVerified {
		// Unverified data never drives trading decisions; persist the
		// snapshot flagged unverified and wait for the next pass.
		logger.WithFields(map[string]interface{}{
			"event":          eventTick,
			"price_verified": priceVerified,
			"pos_verified":   posVerified,
		}).Warn("Market data unverified, holding position and orders")
		return false, e.persistStatus(ctx, false)
	}

	pos := position.InexactFloat64()
	e.state.Lock()
	e.state.SetPositionLocked(pos)
	e.state.Unlock()

	if e.builder.State() == controller.BuildStateBuilding {
		if err := e.builder.ResolvePending(ctx); err != nil {
			return false, err
		}
		return true, e.persistStatus(ctx, true)
	}

	if pos == 0 {
		if e.builder.ObserveFlat() {
			fill, err := e.builder.Build(ctx)
			if err != nil {
				return false, err
			}
			// The build execution shows up in the next fill poll with its
			// real trade ID; here only the new center matters.
			e.positionReader.Invalidate()
			if err := e.reconciler.EnsureTwoOrders(ctx, fill.Price); err != nil &&
				!errors.Is(err, controller.ErrOrderNotConfirmed) {
				return false, err
			}
		}
	} else {
		e.builder.ObservePosition(pos)

		center := e.center(outcome)
		if err := resilience.WithRetry(ctx, "ensure_two_orders", e.retry, func(ctx context.Context) error {
			err := e.reconciler.EnsureTwoOrders(ctx, center)
			if errors.Is(err, controller.ErrOrderNotConfirmed) {
				// Not retryable blindly: exchange truth is consulted on
				// the next pass instead of hammering placements.
				return nil
			}
			return err
		}); err != nil {
			return false, err
		}
	}

	return true, e.persistStatus(ctx, true)
}

// ingestFills drains the websocket buffer and polls REST for anything the
// feed missed, funneling everything through the deduplicating processor.
func (e *Engine) ingestFills(ctx context.Context) controller.FillOutcome {
	var last controller.FillOutcome

	if e.feed != nil {
	drain:
		for {
			select {
			case fill := <-e.feed.Fills():
				if out := e.fills.Process(fill); out.Processed {
					last = out
				}
			default:
				break drain
			}
		}
	}

	polled, err := e.client.GetRecentFills(ctx, e.symbol, e.cfg.FillPollLimit)
	if err != nil {
		logger.WithError(err).Warn("Fill poll failed, relying on feed until next pass")
	}
	// Poll returns newest first; process oldest first.
	for i := len(polled) - 1; i >= 0; i-- {
		if out := e.fills.Process(polled[i]); out.Processed {
			last = out
		}
	}

	return last
}

// center picks the grid center: the latest fill wins, then verified market
// price, then the configured base price.
func (e *Engine) center(outcome controller.FillOutcome) float64 {
	if outcome.Recenter && outcome.Center > 0 {
		return outcome.Center
	}

	snap := e.state.Snapshot()
	if snap.LastFillPrice > 0 {
		return snap.LastFillPrice
	}
	if snap.Verified && snap.MarketPrice > 0 {
		return snap.MarketPrice
	}
	return e.cfg.BasePrice
}

func (e *Engine) persistStatus(ctx context.Context, verified bool) error {
	snap := e.state.Snapshot()

	status := &model.StrategyStatus{
		StrategyID:    e.strategyID,
		Symbol:        e.symbol,
		BasePrice:     e.cfg.BasePrice,
		GridWidth:     e.cfg.GridWidth,
		TradeSize:     e.cfg.TradeSize,
		LadderJSON:    e.ladderJSON,
		Position:      snap.Position,
		TotalProfit:   snap.TotalProfit,
		LastFillPrice: snap.LastFillPrice,
		LastFillSide:  snap.LastFillSide,
		ActiveOrders:  len(e.reconciler.ActiveOrders()),
		DataVerified:  verified,
		Timestamp:     time.Now().UTC(),
	}
	return e.store.SaveStatus(ctx, status)
}

// runHealthCheck probes connectivity. While the breaker is paused a
// successful probe resumes normal processing.
func (e *Engine) runHealthCheck(ctx context.Context) {
	_, err := e.client.GetTicker(ctx, e.symbol)
	if err != nil {
		logger.WithField("event", eventHealthCheck).WithError(err).Warn("Connectivity probe failed")
		if !e.breaker.Paused() {
			e.breaker.Failure()
		}
		return
	}

	if e.breaker.Paused() {
		logger.WithField("event", eventHealthCheck).Info("Connectivity restored, resuming")
		e.breaker.Resume()
	}
}

func (e *Engine) runSummary() {
	snap := e.state.Snapshot()
	logger.WithFields(map[string]interface{}{
		"event":        eventSummary,
		"strategy_id":  e.strategyID,
		"position":     snap.Position,
		"market_price": snap.MarketPrice,
		"total_profit": snap.TotalProfit,
		"closed_pairs": snap.ClosedPairCount,
		"build_state":  e.builder.State(),
	}).Info("Strategy summary")
}

// GetStatus returns the current engine snapshot. The component pointers
// are captured under the engine lock: Reset swaps them, and a status read
// racing a reset must see either the old set or the new one.
func (e *Engine) GetStatus() Status {
	e.mu.Lock()
	running := e.running
	startedAt := e.startedAt
	state, reconciler, builder := e.state, e.reconciler, e.builder
	e.mu.Unlock()

	snap := state.Snapshot()

	return Status{
		StrategyID:          e.strategyID,
		Symbol:              e.symbol,
		Running:             running,
		Paused:              e.breaker.Paused(),
		BuildState:          builder.State(),
		Position:            snap.Position,
		MarketPrice:         snap.MarketPrice,
		LastFillPrice:       snap.LastFillPrice,
		LastFillSide:        snap.LastFillSide,
		DataVerified:        snap.Verified,
		TotalProfit:         snap.TotalProfit,
		ClosedPairs:         snap.ClosedPairCount,
		ActiveOrders:        reconciler.ActiveOrders(),
		ConsecutiveFailures: e.breaker.ConsecutiveFailures(),
		StartedAt:           startedAt,
	}
}

// GetHealth returns the liveness view.
func (e *Engine) GetHealth() Health {
	e.mu.Lock()
	running := e.running
	startedAt := e.startedAt
	e.mu.Unlock()

	status := "stopped"
	uptime := 0.0
	if running {
		status = "ok"
		uptime = time.Since(startedAt).Seconds()
		if e.breaker.Paused() {
			status = "paused"
		}
	}

	return Health{
		Status:              status,
		ConsecutiveFailures: e.breaker.ConsecutiveFailures(),
		UptimeSeconds:       uptime,
	}
}
