package luaplugin

import (
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// ErrStateClosed is returned when calling into a closed Lua state.
var ErrStateClosed = errors.New("lua state is closed")

// State wraps a sandboxed gopher-lua state. An LState is not
// goroutine-safe; all access from Go goes through Do, which serializes on
// the state mutex.
type State struct {
	L *lua.LState

	mu     sync.Mutex
	closed bool
}

// NewState creates a Lua state with only the safe standard libraries:
// base, table, string, and math. io, os, debug, and package stay closed.
func NewState() *State {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	return &State{L: L}
}

// Do runs fn with exclusive access to the Lua state. Everything that
// touches the state or values still owned by it must happen inside fn,
// argument construction and result conversion included: a Lua value that
// escapes the critical section can be mutated by the next script call.
func (s *State) Do(fn func(L *lua.LState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	return s.withRecovery(func() error { return fn(s.L) })
}

// DoFile executes a Lua file, typically the plugin script itself.
func (s *State) DoFile(path string) error {
	return s.Do(func(L *lua.LState) error { return L.DoFile(path) })
}

// call invokes a Lua function value with the given arguments and returns
// its results, restoring the stack on every path. Must run inside Do.
func call(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	top := L.GetTop()
	L.Push(fn)
	for _, arg := range args {
		L.Push(arg)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		L.SetTop(top)
		return nil, err
	}

	nret := L.GetTop() - top
	results := make([]lua.LValue, 0, nret)
	for i := 0; i < nret; i++ {
		results = append(results, L.Get(top+i+1))
	}
	L.SetTop(top)
	return results, nil
}

// Close releases the Lua state. Safe to call more than once.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}

func (s *State) withRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
