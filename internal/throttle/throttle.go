package throttle

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options tune the fetch cadence.
type Options struct {
	// BaseMin/BaseMax bound the per-process base delay, drawn once.
	BaseMin time.Duration
	BaseMax time.Duration
	// JitterMax bounds the extra random delay added per call.
	JitterMax time.Duration
	// LongEvery is the number of consecutive calls after which a single
	// long cool-down replaces the regular delay.
	LongEvery int
	// LongMin/LongMax bound the long cool-down.
	LongMin time.Duration
	LongMax time.Duration
}

// Limiter paces a sequence of external fetches so the traffic pattern has no
// fixed period. It only delays callers; it never drops or reorders work.
type Limiter struct {
	opts   Options
	base   time.Duration
	logger zerolog.Logger

	mu          sync.Mutex
	rng         *rand.Rand
	consecutive int
}

// New constructs a Limiter. The base delay is drawn once for the lifetime of
// the limiter so separate processes settle on different cadences.
func New(opts Options, logger zerolog.Logger) *Limiter {
	if opts.BaseMin <= 0 || opts.BaseMax < opts.BaseMin {
		panic("throttle: base delay range must be positive")
	}
	if opts.LongEvery <= 0 {
		panic("throttle: long_every must be positive")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Limiter{
		opts:   opts,
		base:   randRange(rng, opts.BaseMin, opts.BaseMax),
		logger: logger.With().Str("component", "throttle").Logger(),
		rng:    rng,
	}
}

// Wait blocks until the next fetch is allowed to proceed, or until ctx is
// cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	delay, long := l.next()
	if long {
		l.logger.Debug().Dur("delay", delay).Msg("long cool-down before next fetch")
	} else {
		l.logger.Debug().Dur("delay", delay).Msg("waiting before next fetch")
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// next computes the delay for the upcoming fetch and advances the consecutive
// counter. The LongEvery-th consecutive call gets the long cool-down and
// resets the counter.
func (l *Limiter) next() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutive++
	if l.consecutive >= l.opts.LongEvery {
		l.consecutive = 0
		return randRange(l.rng, l.opts.LongMin, l.opts.LongMax), true
	}

	return l.base + randRange(l.rng, 0, l.opts.JitterMax), false
}

func randRange(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}
