package store

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"gridexecutor/src/model"
	"gridexecutor/src/repository"
)

// Store is the persistence facade for the engine. Status snapshots are
// written synchronously; trades, pairs and operation log entries go through
// a bounded single-writer queue so the trading loop never blocks on the
// database while write ordering is still preserved.
type Store struct {
	status *repository.StatusRepository
	trades *repository.TradeRepository
	oplog  *repository.OperationLogRepository

	queue     chan writeJob
	done      chan struct{}
	closeOnce sync.Once
}

type writeJob struct {
	trade *model.TradeRecord
	pair  *model.TradePair
	entry *model.OperationLogEntry
}

// RecoveredState is everything Load reconstructs from the database after a
// restart.
type RecoveredState struct {
	Status *model.StrategyStatus

	// OpenBuys are buy fills not yet matched into a closed pair, oldest
	// first, ready to seed the FIFO matching queue.
	OpenBuys []model.TradeRecord

	// TotalProfit is recomputed from closed pairs, never read back from the
	// snapshot row.
	TotalProfit float64
}

func New(
	status *repository.StatusRepository,
	trades *repository.TradeRepository,
	oplog *repository.OperationLogRepository,
	queueSize int,
) *Store {
	if queueSize < 1 {
		queueSize = 256
	}

	s := &Store{
		status: status,
		trades: trades,
		oplog:  oplog,
		queue:  make(chan writeJob, queueSize),
		done:   make(chan struct{}),
	}
	go s.writer()
	return s
}

func (s *Store) writer() {
	defer close(s.done)

	for job := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

		var err error
		switch {
		case job.trade != nil:
			err = s.trades.AppendTrade(ctx, job.trade)
		case job.pair != nil:
			err = s.trades.AppendTradePair(ctx, job.pair)
		case job.entry != nil:
			err = s.oplog.Append(ctx, job.entry)
		}
		cancel()

		if err != nil {
			logger.WithError(err).Error("Store writer failed to persist record")
		}
	}
}

func (s *Store) enqueue(job writeJob) {
	select {
	case s.queue <- job:
	default:
		// Blocking here would stall the tick loop; losing audit rows is
		// preferable to missing order reconciliation.
		logger.Warn("Store write queue full, dropping record")
	}
}

// AppendTrade queues one immutable fill record.
func (s *Store) AppendTrade(trade *model.TradeRecord) {
	s.enqueue(writeJob{trade: trade})
}

// AppendTradePair queues one matched buy/sell cycle.
func (s *Store) AppendTradePair(pair *model.TradePair) {
	s.enqueue(writeJob{pair: pair})
}

// AppendOperationLog queues one audit entry.
func (s *Store) AppendOperationLog(entry *model.OperationLogEntry) {
	s.enqueue(writeJob{entry: entry})
}

// SaveStatus writes the snapshot synchronously. The caller holds the
// mutation lock, so the snapshot can never interleave with a concurrent
// state change.
func (s *Store) SaveStatus(ctx context.Context, status *model.StrategyStatus) error {
	return s.status.Save(ctx, status)
}

// Load reconstructs engine state for one strategy. Returns a zero-value
// RecoveredState with a nil Status when nothing has been persisted yet.
func (s *Store) Load(ctx context.Context, strategyID string) (*RecoveredState, error) {
	status, err := s.status.Load(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	trades, err := s.trades.ListTrades(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	pairs, err := s.trades.ListPairs(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	profit, err := s.trades.SumClosedPairProfit(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	matched := make(map[string]int)
	for _, pair := range pairs {
		matched[pair.BuyOrderID]++
	}

	var openBuys []model.TradeRecord
	for _, trade := range trades {
		if trade.Side != model.OrderSideBuy {
			continue
		}
		if matched[trade.OrderID] > 0 {
			matched[trade.OrderID]--
			continue
		}
		openBuys = append(openBuys, trade)
	}

	logger.WithFields(map[string]interface{}{
		"strategy_id": strategyID,
		"trades":      len(trades),
		"pairs":       len(pairs),
		"open_buys":   len(openBuys),
		"profit":      profit,
	}).Info("Recovered persisted state")

	return &RecoveredState{
		Status:      status,
		OpenBuys:    openBuys,
		TotalProfit: profit,
	}, nil
}

// ListTrades exposes the trade history for the status API.
func (s *Store) ListTrades(ctx context.Context, strategyID string) ([]model.TradeRecord, error) {
	return s.trades.ListTrades(ctx, strategyID)
}

// ListPairs exposes the matched pairs for the status API.
func (s *Store) ListPairs(ctx context.Context, strategyID string) ([]model.TradePair, error) {
	return s.trades.ListPairs(ctx, strategyID)
}

// RecentOperations exposes the newest audit entries for the status API.
func (s *Store) RecentOperations(ctx context.Context, strategyID string, limit int) ([]model.OperationLogEntry, error) {
	return s.oplog.FindLatest(ctx, strategyID, limit)
}

// DeleteAll removes every persisted row for one strategy. Only the operator
// reset flow calls this.
func (s *Store) DeleteAll(ctx context.Context, strategyID string) error {
	if err := s.trades.DeleteByStrategy(ctx, strategyID); err != nil {
		return err
	}
	if err := s.oplog.DeleteByStrategy(ctx, strategyID); err != nil {
		return err
	}
	return s.status.DeleteByStrategy(ctx, strategyID)
}

// Close drains the write queue and stops the writer goroutine. Safe to
// call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	<-s.done
}
