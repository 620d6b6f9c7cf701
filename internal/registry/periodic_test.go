package registry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skybot-irc/skybot/internal/event"
	"github.com/skybot-irc/skybot/internal/plugin"
)

func TestPeriodicFiresOnInterval(t *testing.T) {
	r := New()
	ctx := context.Background()

	var fires atomic.Int64
	p := plugin.New("/tick.lua", "tick",
		plugin.NewPeriodic("beat", 10*time.Millisecond,
			func(ctx context.Context, ev *event.Event) (any, error) {
				fires.Add(1)
				return nil, nil
			}))
	mustLoad(t, r, p)

	deadline := time.After(2 * time.Second)
	for fires.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("periodic fired %d times, want at least 3", fires.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := r.Unload(ctx, "/tick.lua"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
}

func TestPeriodicInitialDelay(t *testing.T) {
	r := New()

	fired := make(chan time.Time, 1)
	start := time.Now()
	p := plugin.New("/tick.lua", "tick",
		plugin.NewPeriodic("beat", time.Hour,
			func(ctx context.Context, ev *event.Event) (any, error) {
				select {
				case fired <- time.Now():
				default:
				}
				return nil, nil
			}, plugin.WithInitialDelay(50*time.Millisecond)))
	mustLoad(t, r, p)
	defer r.Unload(context.Background(), "/tick.lua") //nolint:errcheck

	select {
	case at := <-fired:
		if elapsed := at.Sub(start); elapsed < 40*time.Millisecond {
			t.Errorf("first dispatch after %v, want the initial delay honored", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("periodic never fired")
	}
}

func TestPeriodicStopsOnUnload(t *testing.T) {
	r := New()
	ctx := context.Background()

	var fires atomic.Int64
	p := plugin.New("/tick.lua", "tick",
		plugin.NewPeriodic("beat", 5*time.Millisecond,
			func(ctx context.Context, ev *event.Event) (any, error) {
				fires.Add(1)
				return nil, nil
			}))
	mustLoad(t, r, p)

	deadline := time.After(2 * time.Second)
	for fires.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("periodic never fired")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := r.Unload(ctx, "/tick.lua"); err != nil {
		t.Fatalf("Unload: %v", err)
	}

	// The loop observes cancellation at its next timer wait; give it a
	// moment to settle, then confirm the count stays put.
	time.Sleep(20 * time.Millisecond)
	settled := fires.Load()
	time.Sleep(50 * time.Millisecond)
	if got := fires.Load(); got != settled {
		t.Errorf("periodic fired %d more times after unload", got-settled)
	}
}

func TestPeriodicBypassesSieves(t *testing.T) {
	r := New()

	mustLoad(t, r, plugin.New("/s.lua", "s",
		plugin.NewSieve("reject-all",
			func(ctx context.Context, bot plugin.Bot, ev *event.Event, target *plugin.Hook) (*event.Event, error) {
				return nil, nil
			})))

	fired := make(chan struct{}, 1)
	p := plugin.New("/tick.lua", "tick",
		plugin.NewPeriodic("beat", time.Hour,
			func(ctx context.Context, ev *event.Event) (any, error) {
				select {
				case fired <- struct{}{}:
				default:
				}
				return nil, nil
			}))
	mustLoad(t, r, p)
	defer r.Unload(context.Background(), "/tick.lua") //nolint:errcheck

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic dispatch must not pass through sieves")
	}
}
