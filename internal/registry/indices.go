package registry

import (
	"strings"

	"github.com/skybot-irc/skybot/internal/event"
	"github.com/skybot-irc/skybot/internal/plugin"
)

// Read access to the derived indices. The protocol layer resolves which
// hooks match an input against these; the core does not parse protocol
// text. All accessors return copies, safe to iterate while the registry
// mutates.

// Command returns the hook owning the given alias.
func (r *Registry) Command(alias string) (*plugin.Hook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.commands[alias]
	return h, ok
}

// Commands returns the full alias map.
func (r *Registry) Commands() map[string]*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*plugin.Hook, len(r.commands))
	for alias, h := range r.commands {
		out[alias] = h
	}
	return out
}

// RawHooks returns the hooks keyed to the given raw trigger, in priority
// order. Catch-all hooks are not included; see CatchAll.
func (r *Registry) RawHooks(trigger string) []*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyHooks(r.rawTriggers[trigger])
}

// CatchAll returns the hooks that match every raw line, in priority order.
func (r *Registry) CatchAll() []*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyHooks(r.catchAll)
}

// EventHooks returns the hooks for an event kind, in priority order.
func (r *Registry) EventHooks(kind event.Kind) []*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyHooks(r.eventHooks[kind])
}

// RegexHooks returns every (pattern, hook) pair, in priority order.
func (r *Registry) RegexHooks() []RegexHook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegexHook, len(r.regexHooks))
	copy(out, r.regexHooks)
	return out
}

// Sieves returns the sieve chain, in priority order.
func (r *Registry) Sieves() []*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyHooks(r.sieves)
}

// ConnectHooks returns the connection hooks, in priority order.
func (r *Registry) ConnectHooks() []*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyHooks(r.connectHooks)
}

// OutboundFilters returns the outgoing-line filters, in priority order.
func (r *Registry) OutboundFilters() []*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyHooks(r.outFilters)
}

// PostHooks returns the post-notification chain, in priority order.
func (r *Registry) PostHooks() []*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyHooks(r.postHooks)
}

// PermissionHooks returns the permission-check hooks for a permission
// name, in priority order. Invoking them is the caller's business.
func (r *Registry) PermissionHooks(perm string) []*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyHooks(r.permHooks[perm])
}

// CapAvailableHooks returns the capability-offer hooks for a capability.
func (r *Registry) CapAvailableHooks(cap string) []*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyHooks(r.capAvailable[strings.ToLower(cap)])
}

// CapAckHooks returns the capability-acknowledged hooks for a capability.
func (r *Registry) CapAckHooks(cap string) []*plugin.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyHooks(r.capAck[strings.ToLower(cap)])
}

// Plugins returns the loaded plugins in load order.
func (r *Registry) Plugins() []*plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*plugin.Plugin, 0, len(r.loadOrder))
	for _, id := range r.loadOrder {
		if p, ok := r.plugins[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func copyHooks(hooks []*plugin.Hook) []*plugin.Hook {
	if len(hooks) == 0 {
		return nil
	}
	out := make([]*plugin.Hook, len(hooks))
	copy(out, hooks)
	return out
}
