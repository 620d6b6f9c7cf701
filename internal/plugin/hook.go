package plugin

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/skybot-irc/skybot/internal/event"
)

// Type identifies what a hook reacts to and which indices it belongs in.
type Type int

// Hook types.
const (
	// OnStart runs once when the owning plugin is loaded.
	OnStart Type = iota

	// OnStop runs once when the owning plugin is unloaded.
	OnStop

	// Periodic is dispatched on a fixed interval until unload.
	Periodic

	// Command reacts to a named bot command with aliases.
	Command

	// RawTrigger reacts to raw protocol verbs, or to every line when
	// marked catch-all.
	RawTrigger

	// EventKind reacts to one or more event kinds.
	EventKind

	// RegexMatch reacts to lines matching one of its compiled patterns.
	RegexMatch

	// Sieve filters every dispatch before the target hook runs.
	Sieve

	// OnConnect runs when a connection is established.
	OnConnect

	// OutboundFilter filters outgoing lines.
	OutboundFilter

	// PostNotify runs after every dispatch with the outcome.
	PostNotify

	// PermissionCheck participates in permission decisions for its perms.
	PermissionCheck

	// CapAvailable reacts to a capability being offered.
	CapAvailable

	// CapAck reacts to a capability being acknowledged.
	CapAck
)

// String returns a string representation of the hook type.
func (t Type) String() string {
	switch t {
	case OnStart:
		return "on_start"
	case OnStop:
		return "on_stop"
	case Periodic:
		return "periodic"
	case Command:
		return "command"
	case RawTrigger:
		return "raw"
	case EventKind:
		return "event"
	case RegexMatch:
		return "regex"
	case Sieve:
		return "sieve"
	case OnConnect:
		return "on_connect"
	case OutboundFilter:
		return "out"
	case PostNotify:
		return "post"
	case PermissionCheck:
		return "perm_check"
	case CapAvailable:
		return "cap_available"
	case CapAck:
		return "cap_ack"
	default:
		return "unknown"
	}
}

// BypassesSieves reports whether launches of this hook type skip the sieve
// chain. Lifecycle and scheduler-driven hooks never pass through sieves.
func (t Type) BypassesSieves() bool {
	return t == OnStart || t == OnStop || t == Periodic
}

// Mode selects where a hook invocation runs.
type Mode int

const (
	// Cooperative runs the hook in the dispatching goroutine.
	Cooperative Mode = iota

	// DedicatedThread offloads the hook to the bounded worker pool.
	DedicatedThread
)

// Priority bands. Lower values run first; ties keep registration order.
const (
	PriorityHigh   = -10
	PriorityNormal = 0
	PriorityLow    = 10
)

// Bot is the narrow view of the running bot handed to sieves.
type Bot interface {
	// FindPlugin returns a loaded plugin by title.
	FindPlugin(title string) (*Plugin, bool)
}

// HookFunc is the invocation contract for every hook type except sieves.
// Post-notification hooks receive an event whose Post field is set.
type HookFunc func(ctx context.Context, ev *event.Event) (any, error)

// SieveFunc is the invocation contract for sieves. It returns the event to
// continue the dispatch with (possibly transformed) or nil to reject it.
type SieveFunc func(ctx context.Context, bot Bot, ev *event.Event, target *Hook) (*event.Event, error)

// Hook describes one registered capability: what it reacts to, how it is
// scheduled, and the function to invoke. A hook belongs to exactly one
// plugin; the registry places it into every index its type implies.
type Hook struct {
	Type     Type
	Name     string // declared function identity, unique within the plugin
	Priority int
	Mode     Mode

	// Exclusive serializes invocations of this exact hook, keyed by
	// (plugin identity, hook name).
	Exclusive bool

	// Trigger data, by type.
	Aliases  []string         // Command
	Triggers []string         // RawTrigger
	CatchAll bool             // RawTrigger with no trigger list
	Kinds    []event.Kind     // EventKind
	Patterns []*regexp.Regexp // RegexMatch
	Caps     []string         // CapAvailable, CapAck
	Perms    []string         // PermissionCheck

	// Periodic scheduling.
	Interval     time.Duration
	InitialDelay time.Duration

	Fn      HookFunc
	SieveFn SieveFunc

	plugin *Plugin // back-reference, set when the plugin is assembled
}

// Plugin returns the hook's owning plugin, or nil before assembly.
func (h *Hook) Plugin() *Plugin { return h.plugin }

// Description identifies the hook for logs and post-notification records.
func (h *Hook) Description() string {
	if h.plugin == nil {
		return h.Name
	}
	return fmt.Sprintf("%s:%s", h.plugin.Title(), h.Name)
}

// Option configures a hook at construction time.
type Option func(*Hook)

// WithPriority sets the hook's priority. Lower runs first.
func WithPriority(p int) Option {
	return func(h *Hook) { h.Priority = p }
}

// WithThreaded offloads the hook to the worker pool instead of running it
// in the dispatching goroutine.
func WithThreaded() Option {
	return func(h *Hook) { h.Mode = DedicatedThread }
}

// WithExclusive serializes invocations of this hook.
func WithExclusive() Option {
	return func(h *Hook) { h.Exclusive = true }
}

// WithInitialDelay sets the delay before a periodic hook's first dispatch.
func WithInitialDelay(d time.Duration) Option {
	return func(h *Hook) { h.InitialDelay = d }
}

func newHook(t Type, name string, fn HookFunc, opts ...Option) *Hook {
	h := &Hook{Type: t, Name: name, Priority: PriorityNormal, Fn: fn}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewCommand creates a command hook answering to the given aliases.
func NewCommand(name string, aliases []string, fn HookFunc, opts ...Option) *Hook {
	h := newHook(Command, name, fn, opts...)
	h.Aliases = aliases
	return h
}

// NewRaw creates a raw-trigger hook. An empty trigger list makes it a
// catch-all that matches every line.
func NewRaw(name string, triggers []string, fn HookFunc, opts ...Option) *Hook {
	h := newHook(RawTrigger, name, fn, opts...)
	h.Triggers = triggers
	h.CatchAll = len(triggers) == 0
	return h
}

// NewEventHook creates a hook reacting to the given event kinds.
func NewEventHook(name string, kinds []event.Kind, fn HookFunc, opts ...Option) *Hook {
	h := newHook(EventKind, name, fn, opts...)
	h.Kinds = kinds
	return h
}

// NewRegex creates a hook reacting to lines matching any of the patterns.
func NewRegex(name string, patterns []*regexp.Regexp, fn HookFunc, opts ...Option) *Hook {
	h := newHook(RegexMatch, name, fn, opts...)
	h.Patterns = patterns
	return h
}

// NewSieve creates a pre-dispatch filter hook.
func NewSieve(name string, fn SieveFunc, opts ...Option) *Hook {
	h := newHook(Sieve, name, nil, opts...)
	h.SieveFn = fn
	return h
}

// NewPeriodic creates a hook dispatched every interval after an optional
// initial delay. A zero interval is permitted and re-fires as fast as the
// scheduler can cycle; guarding against that is the caller's job.
func NewPeriodic(name string, interval time.Duration, fn HookFunc, opts ...Option) *Hook {
	h := newHook(Periodic, name, fn, opts...)
	h.Interval = interval
	return h
}

// NewOnStart creates a load-time lifecycle hook.
func NewOnStart(name string, fn HookFunc, opts ...Option) *Hook {
	return newHook(OnStart, name, fn, opts...)
}

// NewOnStop creates an unload-time lifecycle hook.
func NewOnStop(name string, fn HookFunc, opts ...Option) *Hook {
	return newHook(OnStop, name, fn, opts...)
}

// NewOnConnect creates a connection hook.
func NewOnConnect(name string, fn HookFunc, opts ...Option) *Hook {
	return newHook(OnConnect, name, fn, opts...)
}

// NewOutboundFilter creates an outgoing-line filter hook.
func NewOutboundFilter(name string, fn HookFunc, opts ...Option) *Hook {
	return newHook(OutboundFilter, name, fn, opts...)
}

// NewPostNotify creates a post-notification hook. It is invoked after every
// dispatch with an event whose Post field records the outcome. A post hook
// that succeeds and returns boolean false stops the rest of the chain.
func NewPostNotify(name string, fn HookFunc, opts ...Option) *Hook {
	return newHook(PostNotify, name, fn, opts...)
}

// NewPermissionCheck creates a permission-check hook for the given perms.
func NewPermissionCheck(name string, perms []string, fn HookFunc, opts ...Option) *Hook {
	h := newHook(PermissionCheck, name, fn, opts...)
	h.Perms = perms
	return h
}

// NewCapAvailable creates a capability-offer hook for the given caps.
func NewCapAvailable(name string, caps []string, fn HookFunc, opts ...Option) *Hook {
	h := newHook(CapAvailable, name, fn, opts...)
	h.Caps = caps
	return h
}

// NewCapAck creates a capability-acknowledged hook for the given caps.
func NewCapAck(name string, caps []string, fn HookFunc, opts ...Option) *Hook {
	h := newHook(CapAck, name, fn, opts...)
	h.Caps = caps
	return h
}
