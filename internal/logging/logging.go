// Package logging builds the bot's structured zap logger from
// configuration: any combination of stdout, stderr, and a rotating file.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the logging section of the bot configuration.
type Config struct {
	Level      string `mapstructure:"level"`       // "debug", "info", "warn", "error"
	ToStdout   bool   `mapstructure:"to_stdout"`   // enable output to stdout
	ToFile     bool   `mapstructure:"to_file"`     // enable output to file
	FilePath   string `mapstructure:"file"`        // log file path
	MaxSizeMB  int    `mapstructure:"max_size"`    // max size before rotation (MB)
	MaxAge     int    `mapstructure:"max_age"`     // max age of logs (days)
	MaxBackups int    `mapstructure:"max_backups"` // rotated backups to keep
	Compress   bool   `mapstructure:"compress"`    // gzip old log files
}

// DefaultConfig logs info and above to stdout.
func DefaultConfig() Config {
	return Config{Level: "info", ToStdout: true}
}

// New builds a sugared logger from the config. With no sinks enabled it
// falls back to stdout rather than discarding output.
func New(cfg Config) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	level := zapcore.InfoLevel
	_ = level.Set(cfg.Level) // invalid level keeps info

	var cores []zapcore.Core
	if cfg.ToStdout {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}
	if cfg.ToFile && cfg.FilePath != "" {
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(encoder, writer, level))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	return zap.New(zapcore.NewTee(cores...)).Sugar()
}
