// Package luaplugin loads bot plugins written as Lua scripts.
//
// Each *.lua file in the plugin directory becomes one plugin: the script
// runs once at load time in a sandboxed state and declares its hooks
// through the injected `hook` module:
//
//	hook.command("greet", {"hi", "hello"}, function(ev)
//	    return "hello, " .. ev.nick
//	end)
//
//	hook.periodic("tick", 60, function(ev) ... end, {initial_delay = 5})
//
//	hook.sieve("ignore", function(ev, target)
//	    if ev.nick == "spammer" then return nil end
//	    return true
//	end)
//
// A Lua state is single-threaded, so every hook backed by one is marked
// exclusive by default; the dispatch core serializes its invocations.
// The loader appends an on_stop hook that closes the state, so teardown
// rides the normal unload lifecycle.
package luaplugin
