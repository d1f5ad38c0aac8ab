// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ollamachat/internal/config"
	"github.com/jeranaias/ollamachat/internal/ui/chat"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// NewRootCmd builds the command tree. Without a subcommand the full-screen
// chat UI starts.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "ollamachat",
		Short: "Chat with local Ollama models",
		Long: `ollamachat is a terminal chat client for a local Ollama server.

Conversations are kept in ~/.ollamachat and saved after every completed
reply. Run without arguments for the full-screen interface, or use the
subcommands for line-mode chat and scripting.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.ollamachat/config.toml)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	pf.StringVarP(&opts.model, "model", "m", "", "model to use (overrides config)")
	pf.StringVar(&opts.dataDir, "data-dir", "", "directory for conversations and logs")
	pf.StringVar(&opts.store, "store", "", "conversation store backend (json, sqlite)")

	cmd.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newRenameCmd(opts),
		newDeleteCmd(opts),
		newExportCmd(opts),
		newModelsCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
		return 1
	}
	return 0
}

// runTUI starts the full-screen chat UI and hot-reloads the config file.
func runTUI(cmd *cobra.Command, opts *globalOptions) error {
	app, err := openApp(opts, true, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := chat.New(chat.Options{
		Controller: app.Ctrl,
		Config:     app.Config,
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if path := app.ConfigPath; path != "" {
		err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
			if err == nil {
				opts.apply(cfg)
				app.Logger.Apply(cfg)
			}
			p.Send(chat.ConfigReloadedMsg{Config: cfg, Err: err})
		})
		if err != nil {
			app.Logger.Warn("config hot reload disabled", "path", path, "err", err)
		}
	}

	app.Logger.Info("starting", "version", Version, "url", app.Config.Ollama.URL, "store", app.Config.Storage.Backend)
	_, err = p.Run()
	return err
}
