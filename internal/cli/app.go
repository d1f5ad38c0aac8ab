// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/ollamachat/internal/config"
	"github.com/jeranaias/ollamachat/internal/ingest"
	"github.com/jeranaias/ollamachat/internal/logging"
	"github.com/jeranaias/ollamachat/internal/ollama"
	"github.com/jeranaias/ollamachat/internal/session"
	"github.com/jeranaias/ollamachat/internal/storage"
)

// modelListTimeout bounds the model refresh done at startup.
const modelListTimeout = 10 * time.Second

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	verbose    bool
	model      string
	dataDir    string
	store      string
}

// apply lets flags override file and environment settings.
func (o *globalOptions) apply(cfg *config.Config) {
	if o.model != "" {
		cfg.Ollama.Model = o.model
	}
	if o.dataDir != "" {
		cfg.Storage.DataDir = o.dataDir
	}
	if o.store != "" {
		cfg.Storage.Backend = o.store
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
}

// =============================================================================
// APP
// =============================================================================

// App wires the configured store, client and controller for one command.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *logging.Logger
	Store      storage.Store
	Client     *ollama.Client
	Ctrl       *session.Controller
}

// openApp loads config and builds the controller with its conversations
// loaded. logToFile sends logs to the configured log file; otherwise they
// go to stderr when --verbose is set and are discarded when not.
func openApp(opts *globalOptions, logToFile bool, stderr io.Writer) (*App, error) {
	path, err := configPath(opts)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var logOut io.Writer = io.Discard
	if opts.verbose {
		logOut = stderr
	}
	logger, err := logging.FromConfig(cfg, logToFile, logOut)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Backend: cfg.Storage.Backend,
		DataDir: cfg.DataDir(),
	})
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("open conversation store: %w", err)
	}

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL: cfg.Ollama.URL,
		Timeout: cfg.Ollama.RequestTimeout.Std(),
		Logger:  logging.Component(logger.Logger, "ollama"),
	})

	ctrl := session.New(session.Options{
		Inference: client,
		Ingest: ingest.New(ingest.Config{
			Logger: logging.Component(logger.Logger, "ingest"),
		}),
		Store:              store,
		Logger:             logger.Logger,
		TurnTimeout:        cfg.Ollama.TurnTimeout.Std(),
		StallTimeout:       cfg.Ollama.StallTimeout.Std(),
		PersistFailedTurns: cfg.Chat.PersistFailedTurns,
		Model:              cfg.Ollama.Model,
	})
	ctrl.Load()

	logger.Debug("app ready", "config", path, "data_dir", cfg.DataDir(), "store", cfg.Storage.Backend)

	return &App{
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
		Store:      store,
		Client:     client,
		Ctrl:       ctrl,
	}, nil
}

// RefreshModels loads the installed model list and reports whether a model
// is selected.
func (a *App) RefreshModels(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, modelListTimeout)
	defer cancel()

	if _, err := a.Ctrl.RefreshModels(ctx); err != nil {
		return "", fmt.Errorf("list models from %s: %w", a.Config.Ollama.URL, err)
	}
	model := a.Ctrl.Snapshot().Model
	if model == "" {
		return "", fmt.Errorf("no models installed; pull one with `ollama pull <model>`")
	}
	return model, nil
}

// Close stops any turn and releases the store and log file.
func (a *App) Close() {
	a.Ctrl.Close()
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("failed to close store", "err", err)
	}
	a.Logger.Close()
}

// componentLogger returns a logger tagged for a CLI command.
func (a *App) componentLogger(name string) *log.Logger {
	return logging.Component(a.Logger.Logger, name)
}
