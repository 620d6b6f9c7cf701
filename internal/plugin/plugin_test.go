package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/skybot-irc/skybot/internal/event"
)

func nopHook(ctx context.Context, ev *event.Event) (any, error) { return nil, nil }

func TestNewBucketsHooksByType(t *testing.T) {
	p := New("/p.lua", "p",
		NewCommand("c1", []string{"c1"}, nopHook),
		NewCommand("c2", []string{"c2"}, nopHook),
		NewOnStart("init", nopHook),
		NewSieve("gate", func(ctx context.Context, bot Bot, ev *event.Event, target *Hook) (*event.Event, error) {
			return ev, nil
		}),
	)

	if got := len(p.Hooks[Command]); got != 2 {
		t.Errorf("command bucket holds %d", got)
	}
	if got := len(p.Hooks[OnStart]); got != 1 {
		t.Errorf("on_start bucket holds %d", got)
	}
	if got := len(p.Hooks[Sieve]); got != 1 {
		t.Errorf("sieve bucket holds %d", got)
	}

	// Declaration order inside a bucket is preserved.
	if p.Hooks[Command][0].Name != "c1" || p.Hooks[Command][1].Name != "c2" {
		t.Error("command bucket out of declaration order")
	}
}

func TestHooksCarryBackReference(t *testing.T) {
	h := NewCommand("c", []string{"c"}, nopHook)
	if h.Plugin() != nil {
		t.Error("unassembled hook has an owner")
	}
	if h.Description() != "c" {
		t.Errorf("unowned description %q", h.Description())
	}

	p := New("/p.lua", "p", h)
	if h.Plugin() != p {
		t.Error("assembly did not set the back-reference")
	}
	if h.Description() != "p:c" {
		t.Errorf("description %q, want plugin:name", h.Description())
	}
}

func TestOptions(t *testing.T) {
	h := NewCommand("c", []string{"c"}, nopHook,
		WithPriority(PriorityHigh), WithThreaded(), WithExclusive())
	if h.Priority != PriorityHigh {
		t.Errorf("priority %d", h.Priority)
	}
	if h.Mode != DedicatedThread {
		t.Error("mode not threaded")
	}
	if !h.Exclusive {
		t.Error("not exclusive")
	}

	d := NewCommand("d", []string{"d"}, nopHook)
	if d.Priority != PriorityNormal || d.Mode != Cooperative || d.Exclusive {
		t.Error("defaults changed")
	}
}

func TestRawCatchAll(t *testing.T) {
	if h := NewRaw("all", nil, nopHook); !h.CatchAll {
		t.Error("empty trigger list must make a catch-all")
	}
	if h := NewRaw("some", []string{"PRIVMSG"}, nopHook); h.CatchAll {
		t.Error("triggered hook must not be catch-all")
	}
}

func TestPeriodicScheduling(t *testing.T) {
	h := NewPeriodic("beat", time.Minute, nopHook, WithInitialDelay(5*time.Second))
	if h.Interval != time.Minute {
		t.Errorf("interval %v", h.Interval)
	}
	if h.InitialDelay != 5*time.Second {
		t.Errorf("initial delay %v", h.InitialDelay)
	}
}

func TestBypassesSieves(t *testing.T) {
	bypass := []Type{OnStart, OnStop, Periodic}
	for _, typ := range bypass {
		if !typ.BypassesSieves() {
			t.Errorf("%s must bypass sieves", typ)
		}
	}
	routed := []Type{Command, RawTrigger, EventKind, RegexMatch, OnConnect, OutboundFilter, PostNotify}
	for _, typ := range routed {
		if typ.BypassesSieves() {
			t.Errorf("%s must pass through sieves", typ)
		}
	}
}

func TestTaskTracking(t *testing.T) {
	p := New("/p.lua", "p")

	_, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	a := p.Track("a", cancelA)
	p.Track("b", cancelB)

	if got := p.TaskCount(); got != 2 {
		t.Fatalf("task count %d", got)
	}

	p.Untrack(a)
	if got := p.TaskCount(); got != 1 {
		t.Fatalf("task count %d after untrack", got)
	}

	if n := p.CancelTasks(); n != 1 {
		t.Errorf("cancelled %d tasks", n)
	}
	if ctxB.Err() == nil {
		t.Error("remaining task not cancelled")
	}

	p.Untrack(nil) // must not panic
	cancelA()
}

func TestStorageHandle(t *testing.T) {
	p := New("/p.lua", "p")
	if p.Storage() != nil {
		t.Error("fresh plugin has storage")
	}
	p.SetStorage(stubStore{})
	if p.Storage() == nil {
		t.Error("storage not set")
	}
	p.SetStorage(nil)
	if p.Storage() != nil {
		t.Error("storage not cleared")
	}
}

type stubStore struct{}

func (stubStore) Get(string) (string, bool) { return "", false }
func (stubStore) Set(string, any) error     { return nil }
func (stubStore) Delete(string) error       { return nil }
