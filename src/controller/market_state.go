package controller

import "sync"

// Snapshot is a consistent point-in-time view of the shared market state.
type Snapshot struct {
	Position        float64 `json:"position"`
	LastFillPrice   float64 `json:"last_fill_price"`
	LastFillSide    string  `json:"last_fill_side"`
	MarketPrice     float64 `json:"market_price"`
	Verified        bool    `json:"verified"`
	TotalProfit     float64 `json:"total_profit"`
	ClosedPairCount int     `json:"closed_pair_count"`
}

// MarketState holds the state shared between the reconciler, the position
// builder and the fill processor. Its mutex is THE mutation lock: every
// state transition that places or cancels orders runs while holding it, so
// a fill arriving mid-reconciliation cannot interleave.
type MarketState struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewMarketState() *MarketState {
	return &MarketState{}
}

// Lock acquires the shared mutation lock.
func (s *MarketState) Lock() { s.mu.Lock() }

// Unlock releases the shared mutation lock.
func (s *MarketState) Unlock() { s.mu.Unlock() }

// Snapshot returns a copy of the current state.
func (s *MarketState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// The setters below assume the caller already holds the mutation lock.

func (s *MarketState) SetPositionLocked(position float64) {
	s.snap.Position = position
}

func (s *MarketState) SetLastFillLocked(price float64, side string) {
	s.snap.LastFillPrice = price
	s.snap.LastFillSide = side
}

func (s *MarketState) SetProfitLocked(total float64, closedPairs int) {
	s.snap.TotalProfit = total
	s.snap.ClosedPairCount = closedPairs
}

// SetMarket records the latest observed market price and whether it came
// from a verified quorum read. Callable without the mutation lock; price
// observation is not a state transition.
func (s *MarketState) SetMarket(price float64, verified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if price > 0 {
		s.snap.MarketPrice = price
	}
	s.snap.Verified = verified
}
