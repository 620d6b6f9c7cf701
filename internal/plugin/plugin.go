package plugin

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/skybot-irc/skybot/internal/event"
)

// Plugin is the lifecycle unit of the bot: an owned bundle of hooks plus
// the state the registry needs to unload it cleanly, namely the set of
// in-flight tasks spawned for or by it and its storage handle.
type Plugin struct {
	identity string // canonical path, stable unique key
	title    string // logical name used for lookup and conflict messages

	// Hooks maps hook type to declaration order. The registry consumes
	// this at load time and drops the OnStart bucket afterwards.
	Hooks map[Type][]*Hook

	mu      sync.Mutex
	tasks   map[uuid.UUID]*Task
	storage event.Store
}

// Task is one in-flight asynchronous invocation tracked for cancellation
// at unload: a periodic loop, a worker-pool execution, or handler-spawned
// background work that registered itself.
type Task struct {
	ID     uuid.UUID
	Name   string
	cancel context.CancelFunc
}

// Cancel requests cancellation of the task's context.
func (t *Task) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// New assembles a plugin from its declared hooks, bucketing them by type in
// declaration order and setting the owning back-reference on each.
func New(identity, title string, hooks ...*Hook) *Plugin {
	p := &Plugin{
		identity: identity,
		title:    title,
		Hooks:    make(map[Type][]*Hook),
		tasks:    make(map[uuid.UUID]*Task),
	}
	for _, h := range hooks {
		h.plugin = p
		p.Hooks[h.Type] = append(p.Hooks[h.Type], h)
	}
	return p
}

// Identity returns the plugin's stable unique key.
func (p *Plugin) Identity() string { return p.identity }

// Title returns the plugin's logical name.
func (p *Plugin) Title() string { return p.title }

// SetStorage records the storage handle created for this plugin at load.
func (p *Plugin) SetStorage(s event.Store) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storage = s
}

// Storage returns the plugin's storage handle, or nil.
func (p *Plugin) Storage() event.Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.storage
}

// Track records an in-flight task so unload can cancel it.
func (p *Plugin) Track(name string, cancel context.CancelFunc) *Task {
	t := &Task{ID: uuid.New(), Name: name, cancel: cancel}
	p.mu.Lock()
	p.tasks[t.ID] = t
	p.mu.Unlock()
	return t
}

// Untrack removes a finished task from the task set.
func (p *Plugin) Untrack(t *Task) {
	if t == nil {
		return
	}
	p.mu.Lock()
	delete(p.tasks, t.ID)
	p.mu.Unlock()
}

// CancelTasks cancels every tracked task and returns how many were
// cancelled. Cancellation is best-effort: a task observes it at its next
// blocking point.
func (p *Plugin) CancelTasks() int {
	p.mu.Lock()
	tasks := make([]*Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		tasks = append(tasks, t)
	}
	p.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
	return len(tasks)
}

// TaskCount returns the number of tracked in-flight tasks.
func (p *Plugin) TaskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}
