// Package app wires the pieces of the pipeline together: scenario loading,
// run-directory management, training, evaluation and replay.
package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/behaviorlab/crowdsim/internal/ctxlog"
)

// Config holds the settings shared by every command of an App instance.
type Config struct {
	// ExpRoot is the directory holding the experiment run directories.
	ExpRoot string

	LogFormat string
	LogLevel  string
}

// App encapsulates the application's dependencies and configuration. Each
// instance carries its own isolated logger so tests can run in parallel.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config Config
}

// New constructs an App with its own logger writing to outW.
func New(outW io.Writer, config Config) *App {
	return &App{
		outW:   outW,
		logger: newLogger(config.LogLevel, config.LogFormat, outW),
		config: config,
	}
}

// Logger returns the app's logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Context embeds the app's logger into ctx for the packages below.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
