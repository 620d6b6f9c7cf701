package luaplugin

import (
	"context"
	"fmt"
	"regexp"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/skybot-irc/skybot/internal/event"
	"github.com/skybot-irc/skybot/internal/plugin"
)

// collector gathers the hooks a plugin script declares through the
// injected `hook` module. Declaration errors are raised as Lua errors and
// surface through the script's DoFile.
type collector struct {
	state *State
	hooks []*plugin.Hook
}

// install registers the `hook` module in the plugin's state. Must run
// before the script does.
func (c *collector) install(L *lua.LState) {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"command":       c.declCommand,
		"raw":           c.declRaw,
		"event":         c.declEvent,
		"regex":         c.declRegex,
		"sieve":         c.declSieve,
		"periodic":      c.declPeriodic,
		"on_start":      c.declOnStart,
		"on_stop":       c.declOnStop,
		"on_connect":    c.declOnConnect,
		"out":           c.declOut,
		"post":          c.declPost,
		"perm":          c.declPerm,
		"cap_available": c.declCapAvailable,
		"cap_ack":       c.declCapAck,
	})
	L.SetGlobal("hook", mod)
}

// options shared by every declaration. Lua hooks are exclusive unless the
// script opts out: a Lua state must never run two hooks concurrently.
func declOptions(L *lua.LState, idx int) []plugin.Option {
	opts := []plugin.Option{plugin.WithExclusive()}

	tbl, ok := L.Get(idx).(*lua.LTable)
	if !ok {
		return opts
	}
	if v, ok := tbl.RawGetString("priority").(lua.LNumber); ok {
		opts = append(opts, plugin.WithPriority(int(v)))
	}
	if v, ok := tbl.RawGetString("threaded").(lua.LBool); ok && bool(v) {
		opts = append(opts, plugin.WithThreaded())
	}
	return opts
}

func (c *collector) add(h *plugin.Hook) {
	c.hooks = append(c.hooks, h)
}

// hookFunc wraps a Lua function as a HookFunc. Results map as: nothing or
// nil is success with no value; false fails with the second result as the
// message; anything else is the hook's result value. The whole call,
// argument table included, runs inside the state lock: a script's hooks
// share globals, and two of them can be in flight at once.
func (c *collector) hookFunc(fn *lua.LFunction) plugin.HookFunc {
	return func(ctx context.Context, ev *event.Event) (any, error) {
		var out any
		err := c.state.Do(func(L *lua.LState) error {
			results, err := call(L, fn, eventToLua(L, ev))
			if err != nil {
				return err
			}
			if len(results) == 0 || results[0] == lua.LNil {
				return nil
			}
			if results[0] == lua.LFalse {
				if len(results) > 1 {
					if msg, ok := results[1].(lua.LString); ok {
						return fmt.Errorf("%s", string(msg))
					}
				}
				return fmt.Errorf("hook returned failure")
			}
			out = toGo(results[0])
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// postFunc wraps a Lua post-notification function. Unlike hookFunc, a
// plain false is a successful result carrying the stop signal, so a Lua
// post hook can end the chain the same way a Go one does.
func (c *collector) postFunc(fn *lua.LFunction) plugin.HookFunc {
	return func(ctx context.Context, ev *event.Event) (any, error) {
		var out any
		err := c.state.Do(func(L *lua.LState) error {
			results, err := call(L, fn, eventToLua(L, ev))
			if err != nil {
				return err
			}
			if len(results) == 0 || results[0] == lua.LNil {
				return nil
			}
			out = toGo(results[0])
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// sieveFunc wraps a Lua sieve. Returning nil or false rejects the
// dispatch; returning a table with nick/channel/content fields continues
// with a transformed copy; anything else passes the event unchanged.
func (c *collector) sieveFunc(fn *lua.LFunction) plugin.SieveFunc {
	return func(ctx context.Context, bot plugin.Bot, ev *event.Event, target *plugin.Hook) (*event.Event, error) {
		var out *event.Event
		err := c.state.Do(func(L *lua.LState) error {
			results, err := call(L, fn, eventToLua(L, ev), lua.LString(target.Description()))
			if err != nil {
				return err
			}
			if len(results) == 0 || results[0] == lua.LNil || results[0] == lua.LFalse {
				return nil
			}
			if tbl, ok := results[0].(*lua.LTable); ok {
				next := ev.Clone()
				if v, ok := tbl.RawGetString("nick").(lua.LString); ok {
					next.Nick = string(v)
				}
				if v, ok := tbl.RawGetString("channel").(lua.LString); ok {
					next.Channel = string(v)
				}
				if v, ok := tbl.RawGetString("content").(lua.LString); ok {
					next.Content = string(v)
				}
				out = next
				return nil
			}
			out = ev
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (c *collector) declCommand(L *lua.LState) int {
	name := L.CheckString(1)
	aliases := stringList(L.CheckTable(2))
	fn := L.CheckFunction(3)
	if len(aliases) == 0 {
		L.RaiseError("command %q declares no aliases", name)
	}
	c.add(plugin.NewCommand(name, aliases, c.hookFunc(fn), declOptions(L, 4)...))
	return 0
}

func (c *collector) declRaw(L *lua.LState) int {
	name := L.CheckString(1)
	var triggers []string
	if tbl, ok := L.Get(2).(*lua.LTable); ok {
		triggers = stringList(tbl)
	}
	fn := L.CheckFunction(3)
	c.add(plugin.NewRaw(name, triggers, c.hookFunc(fn), declOptions(L, 4)...))
	return 0
}

func (c *collector) declEvent(L *lua.LState) int {
	name := L.CheckString(1)
	names := stringList(L.CheckTable(2))
	fn := L.CheckFunction(3)

	kinds := make([]event.Kind, 0, len(names))
	for _, kn := range names {
		kind, ok := kindByName(kn)
		if !ok {
			L.RaiseError("hook %q: unknown event kind %q", name, kn)
		}
		kinds = append(kinds, kind)
	}
	c.add(plugin.NewEventHook(name, kinds, c.hookFunc(fn), declOptions(L, 4)...))
	return 0
}

func (c *collector) declRegex(L *lua.LState) int {
	name := L.CheckString(1)
	raw := stringList(L.CheckTable(2))
	fn := L.CheckFunction(3)

	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, expr := range raw {
		re, err := regexp.Compile(expr)
		if err != nil {
			L.RaiseError("hook %q: bad pattern %q: %s", name, expr, err)
		}
		patterns = append(patterns, re)
	}
	c.add(plugin.NewRegex(name, patterns, c.hookFunc(fn), declOptions(L, 4)...))
	return 0
}

func (c *collector) declSieve(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	c.add(plugin.NewSieve(name, c.sieveFunc(fn), declOptions(L, 3)...))
	return 0
}

func (c *collector) declPeriodic(L *lua.LState) int {
	name := L.CheckString(1)
	interval := time.Duration(float64(L.CheckNumber(2)) * float64(time.Second))
	fn := L.CheckFunction(3)

	opts := declOptions(L, 4)
	if tbl, ok := L.Get(4).(*lua.LTable); ok {
		if v, ok := tbl.RawGetString("initial_delay").(lua.LNumber); ok {
			opts = append(opts, plugin.WithInitialDelay(
				time.Duration(float64(v)*float64(time.Second))))
		}
	}
	c.add(plugin.NewPeriodic(name, interval, c.hookFunc(fn), opts...))
	return 0
}

func (c *collector) declOnStart(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	c.add(plugin.NewOnStart(name, c.hookFunc(fn), plugin.WithExclusive()))
	return 0
}

func (c *collector) declOnStop(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	c.add(plugin.NewOnStop(name, c.hookFunc(fn), plugin.WithExclusive()))
	return 0
}

func (c *collector) declOnConnect(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	c.add(plugin.NewOnConnect(name, c.hookFunc(fn), declOptions(L, 3)...))
	return 0
}

func (c *collector) declOut(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	c.add(plugin.NewOutboundFilter(name, c.hookFunc(fn), declOptions(L, 3)...))
	return 0
}

func (c *collector) declPost(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	c.add(plugin.NewPostNotify(name, c.postFunc(fn), declOptions(L, 3)...))
	return 0
}

func (c *collector) declPerm(L *lua.LState) int {
	name := L.CheckString(1)
	perms := stringList(L.CheckTable(2))
	fn := L.CheckFunction(3)
	c.add(plugin.NewPermissionCheck(name, perms, c.hookFunc(fn), declOptions(L, 4)...))
	return 0
}

func (c *collector) declCapAvailable(L *lua.LState) int {
	name := L.CheckString(1)
	caps := stringList(L.CheckTable(2))
	fn := L.CheckFunction(3)
	c.add(plugin.NewCapAvailable(name, caps, c.hookFunc(fn), declOptions(L, 4)...))
	return 0
}

func (c *collector) declCapAck(L *lua.LState) int {
	name := L.CheckString(1)
	caps := stringList(L.CheckTable(2))
	fn := L.CheckFunction(3)
	c.add(plugin.NewCapAck(name, caps, c.hookFunc(fn), declOptions(L, 4)...))
	return 0
}

func kindByName(name string) (event.Kind, bool) {
	switch name {
	case "message":
		return event.KindMessage, true
	case "action":
		return event.KindAction, true
	case "notice":
		return event.KindNotice, true
	case "join":
		return event.KindJoin, true
	case "part":
		return event.KindPart, true
	case "quit":
		return event.KindQuit, true
	case "kick":
		return event.KindKick, true
	case "other":
		return event.KindOther, true
	default:
		return 0, false
	}
}
