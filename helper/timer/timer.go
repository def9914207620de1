package timer

import (
	"context"
	"math/rand"
	"time"

	"github.com/lthibault/jitterbug"

	log "github.com/sirupsen/logrus"
)

type Interval struct {
	Duration time.Duration
	Jitter   time.Duration
}

type tickerJitter struct {
	MaxJitter time.Duration
}

// Jitter spreads ticks by up to MaxJitter either way. A jitter as large as the period
// would allow zero or negative waits, so it is clamped to half the period.
func (j tickerJitter) Jitter(d time.Duration) time.Duration {
	maxJitter := j.MaxJitter
	if maxJitter >= d {
		maxJitter = d / 2
	}
	if maxJitter <= 0 {
		return d
	}
	return d + (time.Duration(rand.Int63n(int64(2*maxJitter))) - maxJitter)
}

// RunWithTicker runs f every interval until ctx is cancelled or f returns an error.
// name only labels the log lines.
func RunWithTicker(ctx context.Context, name string, interval *Interval, f func(ctx context.Context) error) error {
	if interval.Duration <= 0 {
		log.Debugf("RunWithTicker: %s disabled", name)
		<-ctx.Done()
		return ctx.Err()
	}

	j := jitterbug.New(interval.Duration, &tickerJitter{MaxJitter: interval.Jitter})
	defer j.Stop()

	log.Debugf("RunWithTicker: running %s with interval %v (jitter %v)", name, interval.Duration, interval.Jitter)

	for {
		select {
		case <-ctx.Done():
			log.Debugf("RunWithTicker: context cancelled for %s", name)
			return ctx.Err()
		case <-j.C:
			if err := f(ctx); err != nil {
				log.Errorf("RunWithTicker: %s returned error: %v", name, err)
				return err
			}
		}
	}
}
