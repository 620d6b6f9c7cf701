package registry

import (
	"context"
	"time"

	"github.com/skybot-irc/skybot/internal/event"
	"github.com/skybot-irc/skybot/internal/plugin"
)

// startPeriodic runs a periodic hook's dispatch loop in its own goroutine:
// sleep for the initial delay, then dispatch a fresh event and sleep for
// the interval, forever. The loop is tracked in the owning plugin's task
// set; unload cancels it at its next timer wait. A zero interval re-fires
// as fast as the loop can cycle; guarding against that is the hook
// author's job.
func (r *Registry) startPeriodic(p *plugin.Plugin, h *plugin.Hook) {
	ctx, cancel := context.WithCancel(context.Background())
	task := p.Track("periodic:"+h.Name, cancel)

	go func() {
		defer p.Untrack(task)

		timer := time.NewTimer(h.InitialDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		for {
			r.Launch(ctx, h, event.New(event.KindOther))

			timer.Reset(h.Interval)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
	}()
}
