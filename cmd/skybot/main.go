// Package main is the entry point for the skybot daemon: it loads the
// configuration, brings up the plugin registry, loads every Lua plugin,
// and runs until a signal drains it. Protocol connections are supplied by
// external transport processes; this binary owns dispatch, not parsing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skybot-irc/skybot/internal/config"
	"github.com/skybot-irc/skybot/internal/logging"
	"github.com/skybot-irc/skybot/internal/luaplugin"
	"github.com/skybot-irc/skybot/internal/registry"
	"github.com/skybot-irc/skybot/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath, pluginDir string
	var showVersion bool
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&pluginDir, "plugins", "", "Override plugin directory")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("skybot %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if pluginDir != "" {
		cfg.PluginDir = pluginDir
	}

	log := logging.New(cfg.Logging)
	defer log.Sync() //nolint:errcheck

	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		log.Errorw("failed to open storage", "error", err)
		return 1
	}

	reg := registry.New(
		registry.WithLogger(log),
		registry.WithStorage(store),
		registry.WithWorkers(cfg.Pool.Workers, cfg.Pool.Capacity),
	)

	loader := luaplugin.NewLoader(cfg.PluginDir,
		luaplugin.WithLogger(log),
		luaplugin.WithGate(cfg.ShouldLoad),
	)

	ctx := context.Background()
	if err := loader.LoadAll(ctx, reg); err != nil {
		// Individual plugin failures are already logged; a bot with some
		// plugins is better than no bot.
		log.Warnw("some plugins failed to load", "error", err)
	}
	log.Infow("skybot running", "plugins", len(reg.Plugins()))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg.Shutdown(shutdownCtx)
	return 0
}
