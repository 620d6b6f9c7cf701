package registry

import (
	"context"
	"fmt"

	"github.com/skybot-irc/skybot/internal/event"
	"github.com/skybot-irc/skybot/internal/plugin"
)

// Launch dispatches an event to a hook and reports whether the hook ran
// without error. Unless the hook type bypasses sieves, the sieve chain
// runs first and may transform the event or reject the dispatch. After the
// hook runs, the post-notification chain observes the outcome; nothing the
// chain does changes the return value.
//
// Every failure inside the pipeline is caught and logged here; a
// misbehaving hook never takes down the caller.
func (r *Registry) Launch(ctx context.Context, h *plugin.Hook, ev *event.Event) bool {
	if !h.Type.BypassesSieves() {
		for _, sieve := range r.Sieves() {
			ev = r.runSieve(ctx, sieve, ev, h)
			if ev == nil {
				return false
			}
		}
	}

	result, err := r.runSerialized(ctx, h, ev)
	ok := err == nil
	r.notifyPost(ctx, h, ev, result, err)
	return ok
}

// runSerialized applies the hook's exclusivity before invoking it. The
// admission queue guarantees at most one concurrent execution per (plugin
// identity, hook name) with FIFO fairness; non-exclusive launches never
// touch the queue.
func (r *Registry) runSerialized(ctx context.Context, h *plugin.Hook, ev *event.Event) (any, error) {
	if !h.Exclusive {
		return r.invoke(ctx, h, ev)
	}

	key := serialKey{identity: h.Plugin().Identity(), hook: h.Name}
	r.serial.acquire(key)
	defer r.serial.release(key)
	return r.invoke(ctx, h, ev)
}

// invoke runs the hook function itself: cooperative hooks in the calling
// goroutine, thread-mode hooks on the bounded worker pool (awaited either
// way). The invocation is tracked in the owning plugin's task set. Each
// invocation works on its own copy of the event with the plugin's storage
// document attached, so one event value can be launched at several hooks
// concurrently without the attachments contending.
func (r *Registry) invoke(ctx context.Context, h *plugin.Hook, ev *event.Event) (result any, err error) {
	ictx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := h.Plugin()
	task := p.Track(h.Description(), cancel)
	defer p.Untrack(task)

	ev = ev.Clone()
	if store := p.Storage(); store != nil {
		ev.AttachStore(store)
	}

	if h.Mode == plugin.DedicatedThread {
		r.pool.SubmitAndWait(func() {
			result, err = safeCall(ictx, h.Fn, ev)
		})
	} else {
		result, err = safeCall(ictx, h.Fn, ev)
	}

	if err != nil {
		r.log.Errorw("error in hook", "hook", h.Description(), "error", err)
	}
	return result, err
}

// safeCall invokes a hook function with panic recovery.
func safeCall(ctx context.Context, fn plugin.HookFunc, ev *event.Event) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("hook panicked: %v", rec)
		}
	}()
	if fn == nil {
		return nil, fmt.Errorf("hook has no function")
	}
	return fn(ctx, ev)
}

// runSieve invokes one sieve against (event, target hook) and returns the
// event to continue with, or nil to abort the dispatch. The sieve is
// observable the same way a handler is: its outcome drives the
// post-notification chain with the sieve as the launched unit.
func (r *Registry) runSieve(ctx context.Context, sieve *plugin.Hook, ev *event.Event, target *plugin.Hook) *event.Event {
	p := sieve.Plugin()

	sctx, cancel := context.WithCancel(ctx)
	task := p.Track(sieve.Description(), cancel)

	var out *event.Event
	var err error
	run := func() {
		defer func() {
			if rec := recover(); rec != nil {
				out = nil
				err = fmt.Errorf("sieve panicked: %v", rec)
			}
		}()
		out, err = sieve.SieveFn(sctx, r, ev, target)
	}

	if sieve.Mode == plugin.DedicatedThread {
		r.pool.SubmitAndWait(run)
	} else {
		run()
	}

	cancel()
	p.Untrack(task)

	if err != nil {
		r.log.Errorw("error running sieve",
			"sieve", sieve.Description(), "hook", target.Description(), "error", err)
		out = nil
	}

	var result any
	if err == nil && out != nil {
		result = out
	}
	r.notifyPost(ctx, sieve, ev, result, err)

	return out
}

// notifyPost drives the post-notification chain for a finished launch, in
// priority order. Each post hook goes through its own exclusivity and
// thread mode but never through another post chain. A post hook that
// succeeds and returns boolean false stops the chain; a failing post hook
// is logged and the chain continues. Only an explicit opt-out stops the
// chain, never an error.
func (r *Registry) notifyPost(ctx context.Context, launched *plugin.Hook, ev *event.Event, result any, launchErr error) {
	record := &event.PostRecord{
		HookName: launched.Description(),
		Event:    ev,
		Result:   result,
		Err:      launchErr,
	}

	for _, post := range r.PostHooks() {
		pev := event.New(event.KindOther)
		pev.Post = record

		res, err := r.runSerialized(ctx, post, pev)
		if err != nil {
			r.log.Warnw("post-notification hook errored",
				"post", post.Description(), "launched", launched.Description(), "error", err)
			continue
		}
		if stop, ok := res.(bool); ok && !stop {
			break
		}
	}
}
