package luaplugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/skybot-irc/skybot/internal/event"
	"github.com/skybot-irc/skybot/internal/plugin"
	"github.com/skybot-irc/skybot/internal/registry"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDiscoverSkipsUnderscoreAndNonLua(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "seen.lua", "")
	writeScript(t, dir, "_disabled.lua", "")
	writeScript(t, dir, "notes.txt", "")
	sub := filepath.Join(dir, "extra")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeScript(t, sub, "nested.lua", "")

	l := NewLoader(dir)
	paths, err := l.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("discovered %v", paths)
	}
}

func TestLoadDeclaresHooks(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "greeter.lua", `
hook.command("greet", {"hi", "hello"}, function(ev)
    return "hello " .. ev.nick
end)
hook.periodic("beat", 300, function(ev) end, {initial_delay = 30})
`)

	l := NewLoader(dir)
	p, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer unloadState(p)

	if p.Title() != "greeter" {
		t.Errorf("title = %q", p.Title())
	}
	if got := len(p.Hooks[plugin.Command]); got != 1 {
		t.Fatalf("command hooks = %d", got)
	}

	cmd := p.Hooks[plugin.Command][0]
	if len(cmd.Aliases) != 2 || cmd.Aliases[0] != "hi" {
		t.Errorf("aliases = %v", cmd.Aliases)
	}
	if !cmd.Exclusive {
		t.Error("lua hooks must default to exclusive")
	}

	per := p.Hooks[plugin.Periodic][0]
	if per.Interval.Seconds() != 300 {
		t.Errorf("interval = %v", per.Interval)
	}
	if per.InitialDelay.Seconds() != 30 {
		t.Errorf("initial delay = %v", per.InitialDelay)
	}

	// The loader appends a state-closing on_stop hook.
	if got := len(p.Hooks[plugin.OnStop]); got != 1 {
		t.Errorf("on_stop hooks = %d", got)
	}
}

func TestLuaHookRunsAndReturns(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "echo.lua", `
hook.command("echo", {"echo"}, function(ev)
    return ev.content
end)
`)

	l := NewLoader(dir)
	p, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer unloadState(p)

	h := p.Hooks[plugin.Command][0]
	ev := event.New(event.KindMessage)
	ev.Content = "repeat me"

	res, err := h.Fn(context.Background(), ev)
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	if res != "repeat me" {
		t.Errorf("result = %v", res)
	}
}

func TestLuaHookFalseIsFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "refuser.lua", `
hook.command("refuse", {"refuse"}, function(ev)
    return false, "not today"
end)
`)

	l := NewLoader(dir)
	p, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer unloadState(p)

	h := p.Hooks[plugin.Command][0]
	if _, err := h.Fn(context.Background(), event.New(event.KindMessage)); err == nil || err.Error() != "not today" {
		t.Errorf("expected the script's failure message, got %v", err)
	}
}

func TestLuaRuntimeErrorSurfaces(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "broken.lua", `
hook.command("bad", {"bad"}, function(ev)
    error("script exploded")
end)
`)

	l := NewLoader(dir)
	p, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer unloadState(p)

	h := p.Hooks[plugin.Command][0]
	if _, err := h.Fn(context.Background(), event.New(event.KindMessage)); err == nil {
		t.Error("expected the lua error to surface")
	}
}

func TestLuaSieveRejectAndTransform(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "gate.lua", `
hook.sieve("gate", function(ev, target)
    if ev.nick == "banned" then
        return nil
    end
    return {content = "filtered: " .. ev.content}
end)
`)

	l := NewLoader(dir)
	p, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer unloadState(p)

	sieve := p.Hooks[plugin.Sieve][0]
	target := plugin.NewCommand("t", []string{"t"}, func(context.Context, *event.Event) (any, error) { return nil, nil })
	plugin.New("/t.lua", "t", target)

	banned := event.New(event.KindMessage)
	banned.Nick = "banned"
	out, err := sieve.SieveFn(context.Background(), nil, banned, target)
	if err != nil {
		t.Fatalf("sieve: %v", err)
	}
	if out != nil {
		t.Error("expected rejection for the banned nick")
	}

	ok := event.New(event.KindMessage)
	ok.Nick = "alice"
	ok.Content = "hi"
	out, err = sieve.SieveFn(context.Background(), nil, ok, target)
	if err != nil {
		t.Fatalf("sieve: %v", err)
	}
	if out == nil || out.Content != "filtered: hi" {
		t.Errorf("transformed event = %+v", out)
	}
	if ok.Content != "hi" {
		t.Error("sieve mutated the original event")
	}
}

func TestLuaStoreAccess(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "counter.lua", `
hook.command("count", {"count"}, function(ev)
    ev.store.set("last", ev.nick)
    return ev.store.get("last")
end)
`)

	l := NewLoader(dir)
	p, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer unloadState(p)

	store := &mapStore{data: map[string]string{}}
	ev := event.New(event.KindMessage)
	ev.Nick = "alice"
	ev.AttachStore(store)

	h := p.Hooks[plugin.Command][0]
	res, err := h.Fn(context.Background(), ev)
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	if res != "alice" {
		t.Errorf("result = %v", res)
	}
	if store.data["last"] != "alice" {
		t.Errorf("store = %v", store.data)
	}
}

func TestDeclarationErrorFailsLoad(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"noalias.lua":  `hook.command("c", {}, function(ev) end)`,
		"badkind.lua":  `hook.event("e", {"nonsense"}, function(ev) end)`,
		"badregex.lua": `hook.regex("r", {"[unclosed"}, function(ev) end)`,
		"syntax.lua":   `this is not lua`,
	}
	l := NewLoader(dir)
	for name, body := range cases {
		path := writeScript(t, dir, name, body)
		if _, err := l.Load(path); err == nil {
			t.Errorf("%s: expected load failure", name)
		}
	}
}

func TestGateBlocksDisabledPlugin(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "spam.lua", "")

	l := NewLoader(dir, WithGate(func(title string) bool { return title != "spam" }))
	if _, err := l.Load(path); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestLoadAllRegistersAndSkipsBroken(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "good.lua", `
hook.command("ping", {"ping"}, function(ev) return "pong" end)
`)
	writeScript(t, dir, "broken.lua", `this is not lua`)

	reg := registry.New()
	defer reg.Shutdown(context.Background())

	l := NewLoader(dir)
	err := l.LoadAll(context.Background(), reg)
	if err == nil {
		t.Error("expected the broken script's error to be reported")
	}

	if _, ok := reg.FindPlugin("good"); !ok {
		t.Fatal("good plugin not registered")
	}
	h, ok := reg.Command("ping")
	if !ok {
		t.Fatal("command not indexed")
	}
	if !reg.Launch(context.Background(), h, event.New(event.KindMessage)) {
		t.Error("dispatch of the lua command failed")
	}
}

// Hooks declared by one script share its globals, and distinct hooks are
// serialized per hook, not per state, so two of them can run at the same
// time. One hook returning a shared table while the other mutates it must
// stay safe: all conversion happens under the state lock.
func TestHooksSharingGlobalsRunConcurrently(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "shared.lua", `
shared = {count = 0}
hook.command("reader", {"reader"}, function(ev)
    return shared
end)
hook.command("writer", {"writer"}, function(ev)
    shared[ev.content] = ev.content
    shared.count = shared.count + 1
    return nil
end)
`)

	reg := registry.New()
	defer reg.Shutdown(context.Background())

	l := NewLoader(dir)
	p, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := reg.Load(context.Background(), p); err != nil {
		t.Fatalf("register: %v", err)
	}

	reader, _ := reg.Command("reader")
	writer, _ := reg.Command("writer")

	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			if !reg.Launch(context.Background(), reader, event.New(event.KindMessage)) {
				t.Error("reader dispatch failed")
			}
		}()
		go func() {
			defer wg.Done()
			ev := event.New(event.KindMessage)
			ev.Content = fmt.Sprintf("m%d", i)
			if !reg.Launch(context.Background(), writer, ev) {
				t.Error("writer dispatch failed")
			}
		}()
	}
	wg.Wait()
}

// unloadState runs the plugin's appended on_stop hooks so the test does not
// leak a Lua state.
func unloadState(p *plugin.Plugin) {
	for _, h := range p.Hooks[plugin.OnStop] {
		h.Fn(context.Background(), event.New(event.KindOther)) //nolint:errcheck
	}
}

type mapStore struct {
	data map[string]string
}

func (m *mapStore) Get(path string) (string, bool) {
	v, ok := m.data[path]
	return v, ok
}

func (m *mapStore) Set(path string, value any) error {
	switch v := value.(type) {
	case string:
		m.data[path] = v
	default:
		m.data[path] = ""
	}
	return nil
}

func (m *mapStore) Delete(path string) error {
	delete(m.data, path)
	return nil
}
