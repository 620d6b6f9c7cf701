// Package config loads the bot configuration file.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/skybot-irc/skybot/internal/logging"
)

// Config is the top-level bot configuration.
type Config struct {
	PluginDir string `mapstructure:"plugin_dir"` // directory scanned for *.lua plugins
	DataDir   string `mapstructure:"data_dir"`   // plugin storage documents

	PluginLoading LoadingConfig  `mapstructure:"plugin_loading"`
	Pool          PoolConfig     `mapstructure:"pool"`
	Logging       logging.Config `mapstructure:"logging"`
}

// LoadingConfig gates which plugins load, by title.
type LoadingConfig struct {
	UseWhitelist bool     `mapstructure:"use_whitelist"`
	Whitelist    []string `mapstructure:"whitelist"`
	Blacklist    []string `mapstructure:"blacklist"`
}

// PoolConfig sizes the worker pool for thread-mode hooks.
type PoolConfig struct {
	Workers  int `mapstructure:"workers"`
	Capacity int `mapstructure:"capacity"`
}

// Load reads the config file at path, or searches the working directory
// for skybot.yaml when path is empty. A missing file yields defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("plugin_dir", "plugins")
	v.SetDefault("data_dir", "data")
	v.SetDefault("pool.workers", 4)
	v.SetDefault("pool.capacity", 1024)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.to_stdout", true)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("skybot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// ShouldLoad reports whether a plugin title passes the loading gate: with
// a whitelist only listed titles load, otherwise anything not blacklisted.
func (c *Config) ShouldLoad(title string) bool {
	if c.PluginLoading.UseWhitelist {
		for _, t := range c.PluginLoading.Whitelist {
			if t == title {
				return true
			}
		}
		return false
	}
	for _, t := range c.PluginLoading.Blacklist {
		if t == title {
			return false
		}
	}
	return true
}
