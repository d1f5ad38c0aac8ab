// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

func newModelsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models installed in Ollama",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(opts, false, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), modelListTimeout)
			defer cancel()

			models, err := app.Client.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("list models from %s: %w", app.Config.Ollama.URL, err)
			}

			out := cmd.OutOrStdout()
			if len(models) == 0 {
				fmt.Fprintln(out, "No models installed. Pull one with `ollama pull <model>`.")
				return nil
			}

			fmt.Fprintln(out, TitleStyle.Render(
				"  "+runewidth.FillRight("NAME", 32)+" "+runewidth.FillRight("SIZE", 10)+" PARAMS"))
			for _, m := range models {
				marker := "  "
				if m.Name == app.Config.Ollama.Model {
					marker = "* "
				}
				fmt.Fprintln(out, marker+
					runewidth.FillRight(runewidth.Truncate(m.Name, 32, "..."), 32)+" "+
					runewidth.FillRight(m.FormatSize(), 10)+" "+
					strings.TrimSpace(m.Details.ParameterSize))
			}
			return nil
		},
	}
}
