package resilience

import (
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// Breaker pauses the engine after repeated consecutive failures. While
// paused the tick loop only runs lightweight connectivity probes; normal
// processing resumes when a probe succeeds or an operator forces resume.
// The pause duration backs off exponentially up to a cap.
type Breaker struct {
	maxConsecutive int
	basePause      time.Duration
	maxPause       time.Duration

	mu          sync.Mutex
	failures    int
	pauseCount  int
	pausedUntil time.Time
	now         func() time.Time
}

func NewBreaker(maxConsecutive int, basePause, maxPause time.Duration) *Breaker {
	if maxConsecutive < 1 {
		maxConsecutive = 1
	}
	return &Breaker{
		maxConsecutive: maxConsecutive,
		basePause:      basePause,
		maxPause:       maxPause,
		now:            time.Now,
	}
}

// Failure records one failed remote interaction. Crossing the threshold
// opens the breaker for the current backoff window.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures < b.maxConsecutive {
		return
	}

	pause := b.basePause << b.pauseCount
	if pause > b.maxPause || pause <= 0 {
		pause = b.maxPause
	}
	b.pausedUntil = b.now().Add(pause)
	b.pauseCount++
	// The streak stays: operators reading ConsecutiveFailures while paused
	// must see what tripped the breaker, and only a real success clears it.

	logger.WithFields(map[string]interface{}{
		"pause":       pause.String(),
		"pause_count": b.pauseCount,
	}).Warn("Too many consecutive failures, engine paused")
}

// Success records one healthy interaction and fully closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.pauseCount = 0
	b.pausedUntil = time.Time{}
}

// Paused reports whether the engine is inside a pause window.
func (b *Breaker) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.pausedUntil)
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Resume clears the pause window without resetting the backoff history.
// Used when a connectivity probe succeeds or an operator forces it; if the
// next interactions fail again the pause comes back longer.
func (b *Breaker) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pausedUntil = time.Time{}
	logger.Info("Breaker pause cleared, resuming normal processing")
}
