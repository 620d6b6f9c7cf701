package registry

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/alitto/pond"
	"go.uber.org/zap"

	"github.com/skybot-irc/skybot/internal/event"
	"github.com/skybot-irc/skybot/internal/plugin"
)

// StorageProvider is the storage collaborator consumed by the registry.
// CreateStore failures abort a load before any hook runs; ReleaseStore is
// best-effort and must not fail observably.
type StorageProvider interface {
	CreateStore(ctx context.Context, identity string) (event.Store, error)
	ReleaseStore(ctx context.Context, identity string)
}

// RegexHook pairs a compiled pattern with the hook it fires.
type RegexHook struct {
	Pattern *regexp.Regexp
	Hook    *plugin.Hook
}

// Registry owns all loaded plugins and the derived lookup indices, and
// runs the dispatch pipeline. Create one with New and drain it with
// Shutdown; load and unload calls for the same identity must be serialized
// by the caller.
type Registry struct {
	mu sync.RWMutex

	log     *zap.SugaredLogger
	storage StorageProvider
	pool    *pond.WorkerPool
	serial  *serialQueue

	plugins   map[string]*plugin.Plugin
	loadOrder []string
	byTitle   map[string]string // title -> identity; weak, checked against plugins

	commands     map[string]*plugin.Hook
	rawTriggers  map[string][]*plugin.Hook
	catchAll     []*plugin.Hook
	eventHooks   map[event.Kind][]*plugin.Hook
	regexHooks   []RegexHook
	sieves       []*plugin.Hook
	connectHooks []*plugin.Hook
	outFilters   []*plugin.Hook
	postHooks    []*plugin.Hook
	permHooks    map[string][]*plugin.Hook
	capAvailable map[string][]*plugin.Hook
	capAck       map[string][]*plugin.Hook

	closed bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger. The default is a no-op logger;
// running without one never affects correctness.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithStorage sets the storage collaborator invoked at load and unload.
func WithStorage(p StorageProvider) Option {
	return func(r *Registry) { r.storage = p }
}

// WithWorkers sizes the bounded pool that runs thread-mode hooks.
func WithWorkers(workers, capacity int) Option {
	return func(r *Registry) {
		r.pool = pond.New(workers, capacity, pond.Strategy(pond.Balanced()))
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		log:          zap.NewNop().Sugar(),
		serial:       newSerialQueue(),
		plugins:      make(map[string]*plugin.Plugin),
		byTitle:      make(map[string]string),
		commands:     make(map[string]*plugin.Hook),
		rawTriggers:  make(map[string][]*plugin.Hook),
		eventHooks:   make(map[event.Kind][]*plugin.Hook),
		permHooks:    make(map[string][]*plugin.Hook),
		capAvailable: make(map[string][]*plugin.Hook),
		capAck:       make(map[string][]*plugin.Hook),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = pond.New(4, 1024, pond.Strategy(pond.Balanced()))
	}
	return r
}

// FindPlugin returns a loaded plugin by title. The lookup is non-owning:
// it misses for any identity no longer in the registry.
func (r *Registry) FindPlugin(title string) (*plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byTitle[title]
	if !ok {
		return nil, false
	}
	p, ok := r.plugins[identity]
	return p, ok
}

// Load registers a plugin: creates its storage, runs its on_start hooks,
// and on success inserts every other hook into the indices its type
// implies. If the identity is already loaded it is unloaded first, so a
// reload is always unload-then-load, never in-place mutation.
//
// If any on_start hook fails the load aborts cleanly: storage is released,
// nothing is registered, and ErrLoadRejected is returned.
func (r *Registry) Load(ctx context.Context, p *plugin.Plugin) error {
	r.mu.RLock()
	closed := r.closed
	_, loaded := r.plugins[p.Identity()]
	r.mu.RUnlock()

	if closed {
		return fmt.Errorf("load %q: %w", p.Title(), ErrShutdown)
	}
	if loaded {
		if _, err := r.Unload(ctx, p.Identity()); err != nil {
			return fmt.Errorf("reload %q: %w", p.Title(), err)
		}
	}

	if r.storage != nil {
		store, err := r.storage.CreateStore(ctx, p.Identity())
		if err != nil {
			return fmt.Errorf("create storage for %q: %w", p.Title(), err)
		}
		p.SetStorage(store)
	}

	for _, h := range sortedCopy(p.Hooks[plugin.OnStart]) {
		if !r.Launch(ctx, h, event.New(event.KindOther)) {
			r.log.Warnw("not registering hooks: on_start hook errored",
				"plugin", p.Title(), "hook", h.Name)
			if r.storage != nil {
				r.storage.ReleaseStore(ctx, p.Identity())
				p.SetStorage(nil)
			}
			return fmt.Errorf("plugin %q hook %q: %w", p.Title(), h.Name, ErrLoadRejected)
		}
	}

	r.mu.Lock()
	r.plugins[p.Identity()] = p
	r.loadOrder = append(r.loadOrder, p.Identity())
	r.byTitle[p.Title()] = p.Identity()
	r.registerHooksLocked(p)
	r.resortLocked()
	r.mu.Unlock()

	// Periodic loops start only once the plugin is fully registered.
	for _, h := range p.Hooks[plugin.Periodic] {
		r.startPeriodic(p, h)
		r.logHook(h)
	}

	// The on_start bucket never runs again for this load.
	delete(p.Hooks, plugin.OnStart)

	r.log.Infow("loaded plugin", "plugin", p.Title(), "identity", p.Identity())
	return nil
}

// Unload removes every hook of the identified plugin from every index,
// runs its on_stop hooks (failures collected, not propagated), releases
// its storage, and cancels its remaining tasks. It reports whether a
// plugin was present; unloading an unknown identity returns ErrNotLoaded.
func (r *Registry) Unload(ctx context.Context, identity string) (bool, error) {
	r.mu.Lock()
	p, ok := r.plugins[identity]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("unload %q: %w", identity, ErrNotLoaded)
	}
	r.removeHooksLocked(p)
	r.mu.Unlock()

	for _, h := range sortedCopy(p.Hooks[plugin.OnStop]) {
		if !r.Launch(ctx, h, event.New(event.KindOther)) {
			r.log.Warnw("on_stop hook errored", "plugin", p.Title(), "hook", h.Name)
		}
	}

	if r.storage != nil {
		r.storage.ReleaseStore(ctx, identity)
		p.SetStorage(nil)
	}

	if n := p.CancelTasks(); n > 0 {
		r.log.Infow("cancelled tasks", "plugin", p.Title(), "count", n)
	}
	// A task cancelled mid-flight can leave its serialization entry in
	// marker state; clear any such leftovers for this plugin.
	r.serial.purge(identity)

	r.mu.Lock()
	delete(r.plugins, identity)
	if r.byTitle[p.Title()] == identity {
		delete(r.byTitle, p.Title())
	}
	for i, id := range r.loadOrder {
		if id == identity {
			r.loadOrder = append(r.loadOrder[:i], r.loadOrder[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.log.Infow("unloaded plugin", "plugin", p.Title(), "identity", identity)
	return true, nil
}

// Shutdown unloads every plugin in reverse load order and stops the worker
// pool. The registry accepts no loads afterwards.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	identities := make([]string, len(r.loadOrder))
	for i, id := range r.loadOrder {
		identities[len(r.loadOrder)-1-i] = id
	}
	r.mu.Unlock()

	for _, id := range identities {
		if _, err := r.Unload(ctx, id); err != nil {
			r.log.Warnw("unload during shutdown failed", "identity", id, "error", err)
		}
	}
	r.pool.StopAndWait()
}

// registerHooksLocked inserts every hook of p except on_start and periodic
// into the indices its type and trigger data imply. Caller holds mu.
func (r *Registry) registerHooksLocked(p *plugin.Plugin) {
	for _, h := range p.Hooks[plugin.Command] {
		for _, alias := range h.Aliases {
			if prior, exists := r.commands[alias]; exists {
				r.log.Warnw("command alias already registered, ignoring new assignment",
					"plugin", p.Title(), "alias", alias, "registrant", prior.Plugin().Title())
				continue
			}
			r.commands[alias] = h
		}
		r.logHook(h)
	}

	for _, h := range p.Hooks[plugin.RawTrigger] {
		if h.CatchAll {
			r.catchAll = append(r.catchAll, h)
		} else {
			for _, trigger := range h.Triggers {
				r.rawTriggers[trigger] = append(r.rawTriggers[trigger], h)
			}
		}
		r.logHook(h)
	}

	for _, h := range p.Hooks[plugin.EventKind] {
		for _, kind := range h.Kinds {
			r.eventHooks[kind] = append(r.eventHooks[kind], h)
		}
		r.logHook(h)
	}

	for _, h := range p.Hooks[plugin.RegexMatch] {
		for _, pattern := range h.Patterns {
			r.regexHooks = append(r.regexHooks, RegexHook{Pattern: pattern, Hook: h})
		}
		r.logHook(h)
	}

	for _, h := range p.Hooks[plugin.Sieve] {
		r.sieves = append(r.sieves, h)
		r.logHook(h)
	}

	for _, h := range p.Hooks[plugin.OnConnect] {
		r.connectHooks = append(r.connectHooks, h)
		r.logHook(h)
	}

	for _, h := range p.Hooks[plugin.OutboundFilter] {
		r.outFilters = append(r.outFilters, h)
		r.logHook(h)
	}

	for _, h := range p.Hooks[plugin.PostNotify] {
		r.postHooks = append(r.postHooks, h)
		r.logHook(h)
	}

	for _, h := range p.Hooks[plugin.PermissionCheck] {
		for _, perm := range h.Perms {
			r.permHooks[perm] = append(r.permHooks[perm], h)
		}
		r.logHook(h)
	}

	for _, h := range p.Hooks[plugin.CapAvailable] {
		for _, cap := range h.Caps {
			key := strings.ToLower(cap)
			r.capAvailable[key] = append(r.capAvailable[key], h)
		}
		r.logHook(h)
	}

	for _, h := range p.Hooks[plugin.CapAck] {
		for _, cap := range h.Caps {
			key := strings.ToLower(cap)
			r.capAck[key] = append(r.capAck[key], h)
		}
		r.logHook(h)
	}
}

// removeHooksLocked removes every hook of p from every index it was placed
// into, deleting entries that would be left empty. Caller holds mu.
func (r *Registry) removeHooksLocked(p *plugin.Plugin) {
	for _, h := range p.Hooks[plugin.Command] {
		for _, alias := range h.Aliases {
			// Only remove aliases this hook actually won.
			if r.commands[alias] == h {
				delete(r.commands, alias)
			}
		}
	}

	for _, h := range p.Hooks[plugin.RawTrigger] {
		if h.CatchAll {
			r.catchAll = removeHook(r.catchAll, h)
		} else {
			for _, trigger := range h.Triggers {
				r.rawTriggers[trigger] = removeHook(r.rawTriggers[trigger], h)
				if len(r.rawTriggers[trigger]) == 0 {
					delete(r.rawTriggers, trigger)
				}
			}
		}
	}

	for _, h := range p.Hooks[plugin.EventKind] {
		for _, kind := range h.Kinds {
			r.eventHooks[kind] = removeHook(r.eventHooks[kind], h)
			if len(r.eventHooks[kind]) == 0 {
				delete(r.eventHooks, kind)
			}
		}
	}

	for _, h := range p.Hooks[plugin.RegexMatch] {
		kept := r.regexHooks[:0]
		for _, rh := range r.regexHooks {
			if rh.Hook != h {
				kept = append(kept, rh)
			}
		}
		r.regexHooks = kept
	}

	for _, h := range p.Hooks[plugin.Sieve] {
		r.sieves = removeHook(r.sieves, h)
	}
	for _, h := range p.Hooks[plugin.OnConnect] {
		r.connectHooks = removeHook(r.connectHooks, h)
	}
	for _, h := range p.Hooks[plugin.OutboundFilter] {
		r.outFilters = removeHook(r.outFilters, h)
	}
	for _, h := range p.Hooks[plugin.PostNotify] {
		r.postHooks = removeHook(r.postHooks, h)
	}

	for _, h := range p.Hooks[plugin.PermissionCheck] {
		for _, perm := range h.Perms {
			r.permHooks[perm] = removeHook(r.permHooks[perm], h)
			if len(r.permHooks[perm]) == 0 {
				delete(r.permHooks, perm)
			}
		}
	}

	for _, h := range p.Hooks[plugin.CapAvailable] {
		for _, cap := range h.Caps {
			key := strings.ToLower(cap)
			r.capAvailable[key] = removeHook(r.capAvailable[key], h)
			if len(r.capAvailable[key]) == 0 {
				delete(r.capAvailable, key)
			}
		}
	}

	for _, h := range p.Hooks[plugin.CapAck] {
		for _, cap := range h.Caps {
			key := strings.ToLower(cap)
			r.capAck[key] = removeHook(r.capAck[key], h)
			if len(r.capAck[key]) == 0 {
				delete(r.capAck, key)
			}
		}
	}
}

// resortLocked restores ascending priority order on every ordered index.
// Sorts are stable so ties keep registration order. Caller holds mu.
func (r *Registry) resortLocked() {
	sortHooks(r.catchAll)
	sortHooks(r.sieves)
	sortHooks(r.connectHooks)
	sortHooks(r.outFilters)
	sortHooks(r.postHooks)
	sort.SliceStable(r.regexHooks, func(i, j int) bool {
		return r.regexHooks[i].Hook.Priority < r.regexHooks[j].Hook.Priority
	})
	for _, hooks := range r.rawTriggers {
		sortHooks(hooks)
	}
	for _, hooks := range r.eventHooks {
		sortHooks(hooks)
	}
	for _, hooks := range r.permHooks {
		sortHooks(hooks)
	}
	for _, hooks := range r.capAvailable {
		sortHooks(hooks)
	}
	for _, hooks := range r.capAck {
		sortHooks(hooks)
	}
}

func (r *Registry) logHook(h *plugin.Hook) {
	r.log.Infow("registered hook",
		"plugin", h.Plugin().Title(),
		"hook", h.Name,
		"type", h.Type.String(),
		"priority", h.Priority)
}

func sortHooks(hooks []*plugin.Hook) {
	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Priority < hooks[j].Priority
	})
}

func sortedCopy(hooks []*plugin.Hook) []*plugin.Hook {
	out := make([]*plugin.Hook, len(hooks))
	copy(out, hooks)
	sortHooks(out)
	return out
}

func removeHook(hooks []*plugin.Hook, h *plugin.Hook) []*plugin.Hook {
	for i, cur := range hooks {
		if cur == h {
			return append(hooks[:i], hooks[i+1:]...)
		}
	}
	return hooks
}
