// Package registry is the dispatch core of the bot: it owns every loaded
// plugin, maintains the derived lookup indices the protocol layer matches
// against, and runs the launch pipeline for each dispatch.
//
// # Registry
//
// The Registry maps plugin identities (canonical paths) to loaded plugins
// and keeps one index per hook trigger kind: a command-alias map with
// first-registrant-wins conflict handling, raw-trigger and catch-all
// structures, event-kind and regex indices, capability and permission maps,
// and the priority-sorted sieve, connect, outbound-filter, and
// post-notification lists. Load inserts a plugin's hooks into every index
// its type implies; Unload removes them with no residue, deleting index
// entries that would be left empty. A plugin is either fully loaded or
// fully absent: if any of its on_start hooks fails, nothing is registered.
//
// # Launch pipeline
//
// Launch runs the sieve chain in priority order (lifecycle and periodic
// hooks bypass it), invokes the hook in the calling goroutine for
// cooperative hooks or on the bounded worker pool for thread-mode hooks,
// and then drives the post-notification chain with the outcome. Failures
// in sieves, hooks, and post hooks are caught at the pipeline boundary and
// logged; they never escape to the caller, which observes only a boolean.
//
// # Serialization
//
// Hooks marked exclusive are serialized per (plugin identity, hook name)
// by a FIFO admission queue: the first launch proceeds immediately and
// leaves a marker, later launches park on a channel token and are woken in
// arrival order as earlier ones release.
//
// # Periodic scheduling
//
// Each periodic hook runs in its own goroutine, tracked in the owning
// plugin's task set: sleep for the initial delay, then dispatch and sleep
// for the interval, forever, until unload cancels the task.
package registry
