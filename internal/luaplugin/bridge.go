package luaplugin

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/skybot-irc/skybot/internal/event"
)

// toLua converts a Go value to a Lua value.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []string:
		tbl := L.NewTable()
		for _, s := range val {
			tbl.Append(lua.LString(s))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, item := range val {
			tbl.Append(toLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, toLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// toGo converts a Lua value to a Go value. Tables with only positive
// integer keys become slices, everything else a map.
func toGo(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, toGo(val.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			out[lua.LVAsString(k)] = toGo(item)
		})
		return out
	default:
		return nil
	}
}

// stringList reads a Lua table of strings.
func stringList(tbl *lua.LTable) []string {
	if tbl == nil {
		return nil
	}
	out := make([]string, 0, tbl.MaxN())
	tbl.ForEach(func(_, v lua.LValue) {
		if s, ok := v.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	return out
}

// eventToLua builds the table handed to Lua hook functions.
func eventToLua(L *lua.LState, ev *event.Event) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("kind", lua.LString(ev.Kind.String()))
	tbl.RawSetString("trigger", lua.LString(ev.Trigger))
	tbl.RawSetString("nick", lua.LString(ev.Nick))
	tbl.RawSetString("mask", lua.LString(ev.Mask))
	tbl.RawSetString("channel", lua.LString(ev.Channel))
	tbl.RawSetString("content", lua.LString(ev.Content))

	params := L.NewTable()
	for _, p := range ev.Params {
		params.Append(lua.LString(p))
	}
	tbl.RawSetString("params", params)

	if ev.Post != nil {
		post := L.NewTable()
		post.RawSetString("hook", lua.LString(ev.Post.HookName))
		post.RawSetString("success", lua.LBool(ev.Post.Success()))
		if ev.Post.Err != nil {
			post.RawSetString("error", lua.LString(ev.Post.Err.Error()))
		}
		post.RawSetString("result", toLua(L, ev.Post.Result))
		tbl.RawSetString("post", post)
	}

	if store := ev.Store(); store != nil {
		tbl.RawSetString("store", storeToLua(L, store))
	}

	return tbl
}

// storeToLua exposes the plugin's storage document as get/set/del
// functions on the event table.
func storeToLua(L *lua.LState, store event.Store) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("get", L.NewFunction(func(L *lua.LState) int {
		val, ok := store.Get(L.CheckString(1))
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(val))
		return 1
	}))
	tbl.RawSetString("set", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		if err := store.Set(path, toGo(L.CheckAny(2))); err != nil {
			L.RaiseError("store set %s: %s", path, err)
		}
		return 0
	}))
	tbl.RawSetString("del", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		if err := store.Delete(path); err != nil {
			L.RaiseError("store del %s: %s", path, err)
		}
		return 0
	}))
	return tbl
}
