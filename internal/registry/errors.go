package registry

import "errors"

// Registry errors.
var (
	// ErrNotLoaded is returned when unloading or finding an identity that
	// is not currently loaded.
	ErrNotLoaded = errors.New("plugin is not loaded")

	// ErrLoadRejected is returned when a plugin's on_start hook fails and
	// the load is aborted with no partial state.
	ErrLoadRejected = errors.New("plugin load rejected by on_start hook")

	// ErrShutdown is returned when loading into a registry that has been
	// shut down.
	ErrShutdown = errors.New("registry is shut down")
)
