package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testOptions() Options {
	return Options{
		BaseMin:   8 * time.Millisecond,
		BaseMax:   12 * time.Millisecond,
		JitterMax: 4 * time.Millisecond,
		LongEvery: 5,
		LongMin:   60 * time.Millisecond,
		LongMax:   90 * time.Millisecond,
	}
}

func TestBaseDelayDrawnOnce(t *testing.T) {
	l := New(testOptions(), zerolog.Nop())

	if l.base < 8*time.Millisecond || l.base > 12*time.Millisecond {
		t.Fatalf("base delay %v outside configured range", l.base)
	}

	first := l.base
	for i := 0; i < 3; i++ {
		l.next()
		if l.base != first {
			t.Fatalf("base delay changed between calls: %v -> %v", first, l.base)
		}
	}
}

func TestRegularDelayWithinJitterRange(t *testing.T) {
	l := New(testOptions(), zerolog.Nop())

	for i := 0; i < 4; i++ {
		delay, long := l.next()
		if long {
			t.Fatalf("call %d should not be a long cool-down", i+1)
		}
		if delay < l.base || delay > l.base+4*time.Millisecond {
			t.Fatalf("call %d delay %v outside [base, base+jitter]", i+1, delay)
		}
	}
}

func TestFifthCallIsLongCooldownAndResetsCounter(t *testing.T) {
	l := New(testOptions(), zerolog.Nop())

	for i := 0; i < 4; i++ {
		if _, long := l.next(); long {
			t.Fatalf("call %d unexpectedly long", i+1)
		}
	}

	delay, long := l.next()
	if !long {
		t.Fatal("5th consecutive call should be a long cool-down")
	}
	if delay < 60*time.Millisecond || delay > 90*time.Millisecond {
		t.Fatalf("long cool-down %v outside configured range", delay)
	}
	if l.consecutive != 0 {
		t.Fatalf("consecutive counter should reset to 0, got %d", l.consecutive)
	}

	if _, long := l.next(); long {
		t.Fatal("call after cool-down should use the regular delay")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	opts := testOptions()
	opts.BaseMin = time.Minute
	opts.BaseMax = 2 * time.Minute
	l := New(opts, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Wait(ctx); err == nil {
		t.Fatal("Wait should return the context error after cancellation")
	}
}
