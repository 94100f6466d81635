package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// ErrDataInconsistent signals that the remote source answered but the
// samples disagree beyond tolerance (or a cooldown blocks a fresh quorum).
// The condition is retryable, not fatal; callers re-evaluate on the next
// tick. A sample read that FAILS is a different thing: the underlying
// error is returned as-is so callers can treat it as a remote failure.
var ErrDataInconsistent = errors.New("verify: samples disagree, quorum failed")

// ReadFunc performs one independent read of the remote value.
type ReadFunc func(ctx context.Context) (decimal.Decimal, error)

// Config holds the quorum parameters for one reader.
type Config struct {
	// Samples is how many independent reads must agree. Values below 2 are
	// raised to 2: a single read can never form a quorum.
	Samples int

	// SampleDelay is the pause between consecutive reads, giving the remote
	// side a chance to surface inconsistency.
	SampleDelay time.Duration

	// RelTolerance is the maximum relative spread (max-min)/min the samples
	// may show, e.g. 0.001 for 0.1%. Zero means exact agreement.
	RelTolerance decimal.Decimal

	// AbsTolerance is the maximum absolute spread, used instead of
	// RelTolerance when set. Position sizes compare absolutely.
	AbsTolerance decimal.Decimal
	UseAbsolute  bool

	// CacheTTL bounds how long a verified value may be reused without
	// re-reading. Zero disables the cache.
	CacheTTL time.Duration

	// Cooldown blocks a fresh quorum attempt for this long after the
	// previous attempt, so a tight caller loop cannot hammer the exchange
	// faster than its rate limits tolerate.
	Cooldown time.Duration
}

// Reader obtains a value from an unreliable remote source with quorum-style
// confidence: N independent reads that must agree within tolerance.
type Reader struct {
	name string
	read ReadFunc
	cfg  Config

	mu           sync.Mutex
	lastValue    decimal.Decimal
	lastVerified time.Time
	lastAttempt  time.Time
	verified     bool
}

func NewReader(name string, read ReadFunc, cfg Config) *Reader {
	if cfg.Samples < 2 {
		cfg.Samples = 2
	}
	return &Reader{name: name, read: read, cfg: cfg}
}

// Value returns the verified value. The boolean reports whether verification
// succeeded on this call or was served from the bounded cache; on false the
// error explains why, and the returned value must not be acted upon.
func (r *Reader) Value(ctx context.Context) (decimal.Decimal, bool, error) {
	r.mu.Lock()
	if r.verified && r.cfg.CacheTTL > 0 && time.Since(r.lastVerified) < r.cfg.CacheTTL {
		v := r.lastValue
		r.mu.Unlock()
		return v, true, nil
	}
	if r.cfg.Cooldown > 0 && !r.lastAttempt.IsZero() && time.Since(r.lastAttempt) < r.cfg.Cooldown {
		r.mu.Unlock()
		return decimal.Zero, false, ErrDataInconsistent
	}
	r.lastAttempt = time.Now()
	r.mu.Unlock()

	samples := make([]decimal.Decimal, 0, r.cfg.Samples)
	for i := 0; i < r.cfg.Samples; i++ {
		if i > 0 && r.cfg.SampleDelay > 0 {
			select {
			case <-ctx.Done():
				return decimal.Zero, false, ctx.Err()
			case <-time.After(r.cfg.SampleDelay):
			}
		}

		v, err := r.read(ctx)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"reader": r.name,
				"sample": i,
			}).WithError(err).Warn("Verification sample read failed")
			return decimal.Zero, false, fmt.Errorf("%s sample %d: %w", r.name, i, err)
		}
		samples = append(samples, v)
	}

	if !r.agree(samples) {
		logger.WithFields(map[string]interface{}{
			"reader":  r.name,
			"samples": samples,
		}).Warn("Verification samples disagree")
		return decimal.Zero, false, ErrDataInconsistent
	}

	value := samples[len(samples)-1]

	r.mu.Lock()
	r.lastValue = value
	r.lastVerified = time.Now()
	r.verified = true
	r.mu.Unlock()

	return value, true, nil
}

// LastVerified exposes the most recent verified value for status snapshots.
// The boolean is false until the first successful quorum.
func (r *Reader) LastVerified() (decimal.Decimal, time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastValue, r.lastVerified, r.verified
}

// Invalidate drops the cached value, forcing the next Value call to take
// fresh samples. Called after any action that moves the underlying state.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	r.verified = false
	r.lastAttempt = time.Time{}
	r.mu.Unlock()
}

func (r *Reader) agree(samples []decimal.Decimal) bool {
	min, max := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s.LessThan(min) {
			min = s
		}
		if s.GreaterThan(max) {
			max = s
		}
	}
	spread := max.Sub(min)

	if r.cfg.UseAbsolute {
		return spread.LessThanOrEqual(r.cfg.AbsTolerance)
	}
	if min.IsZero() {
		return spread.IsZero()
	}
	return spread.Div(min).LessThanOrEqual(r.cfg.RelTolerance)
}
