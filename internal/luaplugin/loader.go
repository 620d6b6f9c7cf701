package luaplugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/skybot-irc/skybot/internal/event"
	"github.com/skybot-irc/skybot/internal/plugin"
	"github.com/skybot-irc/skybot/internal/registry"
)

// ErrDisabled is returned when the loading gate rejects a plugin title.
var ErrDisabled = errors.New("plugin is disabled")

// Loader discovers and loads Lua plugin scripts from a directory.
type Loader struct {
	dir  string
	log  *zap.SugaredLogger
	gate func(title string) bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(log *zap.SugaredLogger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithGate sets the loading gate consulted per plugin title, typically
// the configuration's whitelist/blacklist check.
func WithGate(gate func(title string) bool) LoaderOption {
	return func(l *Loader) { l.gate = gate }
}

// NewLoader creates a loader over the given plugin directory.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{dir: dir, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Discover returns the plugin scripts under the directory: every *.lua
// file, at any depth, whose base name does not start with an underscore.
func (l *Loader) Discover() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		if strings.HasPrefix(base, "_") || !strings.HasSuffix(base, ".lua") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover plugins in %q: %w", l.dir, err)
	}
	return paths, nil
}

// Load runs one plugin script and returns the plugin it declares. The
// script's hooks close over the script's Lua state; an appended on_stop
// hook closes the state when the plugin unloads.
func (l *Loader) Load(path string) (*plugin.Plugin, error) {
	title := strings.TrimSuffix(filepath.Base(path), ".lua")
	if l.gate != nil && !l.gate(title) {
		return nil, fmt.Errorf("plugin %q: %w", title, ErrDisabled)
	}

	identity, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}

	state := NewState()
	col := &collector{state: state}
	col.install(state.L)

	if err := state.DoFile(identity); err != nil {
		state.Close()
		return nil, fmt.Errorf("plugin %q: %w", title, err)
	}

	hooks := append(col.hooks, plugin.NewOnStop("close-lua-state",
		func(context.Context, *event.Event) (any, error) { return nil, state.Close() },
		plugin.WithPriority(plugin.PriorityLow)))

	l.log.Debugw("loaded plugin script", "plugin", title, "hooks", len(col.hooks))
	return plugin.New(identity, title, hooks...), nil
}

// LoadAll discovers every script, loads it, and registers it with the
// registry. Disabled plugins are skipped with a log line; other failures
// are collected so one bad plugin does not block the rest.
func (l *Loader) LoadAll(ctx context.Context, reg *registry.Registry) error {
	paths, err := l.Discover()
	if err != nil {
		return err
	}

	var loadErrs []error
	for _, path := range paths {
		p, err := l.Load(path)
		if err != nil {
			if errors.Is(err, ErrDisabled) {
				l.log.Infow("not loading plugin", "path", path, "reason", "disabled")
				continue
			}
			l.log.Errorw("error loading plugin", "path", path, "error", err)
			loadErrs = append(loadErrs, err)
			continue
		}
		if err := reg.Load(ctx, p); err != nil {
			l.log.Errorw("error registering plugin", "plugin", p.Title(), "error", err)
			loadErrs = append(loadErrs, err)
		}
	}
	return errors.Join(loadErrs...)
}
