package timer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJitterBounds(t *testing.T) {
	cases := []tickerJitter{
		{MaxJitter: 0},
		{MaxJitter: 10 * time.Millisecond},
		{MaxJitter: time.Second}, // larger than the period
	}
	const period = 100 * time.Millisecond
	for _, j := range cases {
		for range 1000 {
			d := j.Jitter(period)
			if d <= 0 || d >= 2*period {
				t.Fatalf("jitter %v produced wait %v", j.MaxJitter, d)
			}
		}
	}
	if d := (tickerJitter{}).Jitter(period); d != period {
		t.Fatalf("zero jitter changed the period to %v", d)
	}
}

func TestRunWithTicker(t *testing.T) {
	errStop := errors.New("stop")
	calls := 0
	err := RunWithTicker(t.Context(), "counter", &Interval{Duration: time.Millisecond}, func(context.Context) error {
		calls++
		if calls == 3 {
			return errStop
		}
		return nil
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("expected the function's error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRunWithTickerCancel(t *testing.T) {
	for _, d := range []time.Duration{0, time.Hour} {
		ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
		err := RunWithTicker(ctx, "idle", &Interval{Duration: d}, func(context.Context) error {
			t.Error("function ran before cancellation")
			return nil
		})
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("interval %v: expected DeadlineExceeded, got %v", d, err)
		}
	}
}
