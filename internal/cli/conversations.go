// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ollamachat/internal/storage"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(opts, false, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			fmt.Fprint(cmd.OutOrStdout(), storage.FormatConversationList(app.Ctrl.Snapshot().Conversations))
			return nil
		},
	}
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show <number|id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
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

			out := cmd.OutOrStdout()
			var render func(string) string
			if !raw && app.Config.UI.Markdown && isTerminalWriter(out) {
				width := GetTerminalWidth()
				render = func(s string) string {
					return renderMarkdown(s, app.Config.UI.Theme, width)
				}
			}
			writeTranscript(out, conv, render)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown source")
	return cmd
}

func newRenameCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <number|id> [title...]",
		Short: "Rename a conversation",
		Long:  `Rename a conversation. A blank title resets it to "New Chat".`,
		Args:  cobra.MinimumNArgs(1),
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
			if err := app.Ctrl.RenameConversation(conv.ID, strings.Join(args[1:], " ")); err != nil {
				return err
			}

			renamed := findConversation(app.Ctrl.Snapshot().Conversations, conv.ID)
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Renamed:"), renamed.Title)
			return nil
		},
	}
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <number|id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
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

			out := cmd.OutOrStdout()
			if !yes {
				fmt.Fprintf(out, "Delete %q? [y/N] ", conv.Title)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			if err := app.Ctrl.DeleteConversation(conv.ID); err != nil {
				return err
			}
			fmt.Fprintln(out, SuccessStyle.Render("Deleted:"), conv.Title)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
