// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ollamachat/internal/config"
	"github.com/jeranaias/ollamachat/internal/export"
	"github.com/jeranaias/ollamachat/internal/model"
)

type exportOptions struct {
	format        string
	output        string
	all           bool
	includeFailed bool
	stdout        bool
	open          bool
	theme         string
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	eo := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export <number|id>",
		Short: "Export the last reply or a whole conversation",
		Long: `Export the last assistant reply of a conversation, or the whole
conversation with --all. Formats: markdown, html, json, yaml, csv.`,
		Example: `  ollamachat export 1
  ollamachat export 1 --format html --output ~/Documents
  ollamachat export 3f2a --all --format json --stdout`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(opts, false, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			conv, err := resolveConversation(app.Ctrl.Snapshot().Conversations, args[0])
			if err != nil {
				return err
			}
			format, err := export.ParseFormat(eo.format)
			if err != nil {
				return err
			}

			exportOpts := export.DefaultOptions()
			exportOpts.OutputDir = config.ExpandHome(eo.output)
			exportOpts.OpenAfterExport = eo.open
			if eo.theme != "" {
				exportOpts.Theme = eo.theme
			}

			modelName := app.Config.Ollama.Model
			doc, err := buildDocument(conv, modelName, eo.all, eo.includeFailed)
			if err != nil {
				return err
			}
			exporter, err := export.New(format, exportOpts)
			if err != nil {
				return err
			}

			if eo.stdout {
				data, err := exporter.Export(doc)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			path, err := export.ExportToFile(doc, exporter, exportOpts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Exported:"), path)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&eo.format, "format", "F", "markdown", "output format")
	f.StringVarP(&eo.output, "output", "o", ".", "output directory")
	f.BoolVarP(&eo.all, "all", "a", false, "export the whole conversation")
	f.BoolVar(&eo.includeFailed, "include-failed", false, "keep failed replies when exporting with --all")
	f.BoolVar(&eo.stdout, "stdout", false, "write to stdout instead of a file")
	f.BoolVar(&eo.open, "open", false, "open the exported file")
	f.StringVar(&eo.theme, "theme", "", "HTML theme (dark, light)")
	return cmd
}

func buildDocument(conv *model.Conversation, modelName string, all, includeFailed bool) (*export.Document, error) {
	if all {
		return export.FromConversation(conv, modelName, includeFailed)
	}
	return export.FromMessage(conv, export.LastReply(conv), modelName)
}

// exportReply writes the last reply of conv to a file.
func exportReply(conv *model.Conversation, modelName string, format export.Format, opts *export.Options) (string, error) {
	doc, err := buildDocument(conv, modelName, false, false)
	if err != nil {
		return "", err
	}
	exporter, err := export.New(format, opts)
	if err != nil {
		return "", err
	}
	return export.ExportToFile(doc, exporter, opts)
}
