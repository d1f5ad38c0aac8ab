// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ollamachat/internal/ingest"
	"github.com/jeranaias/ollamachat/internal/model"
)

type askOptions struct {
	files  []string
	resume string
	raw    bool
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	ao := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Send one prompt and print the reply",
		Long: `Send one prompt and print the reply.

The prompt is read from the arguments, or from stdin when no arguments are
given. The exchange is saved as a new conversation unless --continue names
an existing one.`,
		Example: `  ollamachat ask "Explain goroutines in one paragraph"
  ollamachat ask -f main.go "Review this file"
  git diff | ollamachat ask --raw
  ollamachat ask --continue 1 "And in Rust?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, ao, args)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&ao.files, "file", "f", nil, "attach a file (repeatable)")
	f.StringVarP(&ao.resume, "continue", "C", "", "continue conversation by number or id")
	f.BoolVar(&ao.raw, "raw", false, "stream plain text instead of rendered markdown")
	return cmd
}

func runAsk(cmd *cobra.Command, opts *globalOptions, ao *askOptions, args []string) error {
	prompt := strings.Join(args, " ")
	if prompt == "" && !isTerminalReader(cmd.InOrStdin()) {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read prompt from stdin: %w", err)
		}
		prompt = string(data)
	}

	files, err := inspectFiles(ao.files)
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" && len(files) == 0 {
		return errors.New("nothing to ask: give a prompt or attach a file")
	}

	app, err := openApp(opts, false, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	if ao.resume != "" {
		conv, err := resolveConversation(app.Ctrl.Snapshot().Conversations, ao.resume)
		if err != nil {
			return err
		}
		if err := app.Ctrl.SelectConversation(conv.ID); err != nil {
			return err
		}
	}

	if _, err := app.RefreshModels(cmd.Context()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	render := !ao.raw && app.Config.UI.Markdown && isTerminalWriter(out)

	var buf bytes.Buffer
	var w io.Writer = out
	if render {
		w = &buf
	}

	res, err := sendPrompt(ctx, app.Ctrl, prompt, files, w)
	if err != nil {
		if errors.Is(err, ErrReplyStopped) {
			fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("[stopped]"))
		}
		return err
	}
	if res.Err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render(res.Reply.Content))
		return res.Err
	}

	if render {
		fmt.Fprintln(out, renderMarkdown(buf.String(), app.Config.UI.Theme, GetTerminalWidth()))
	} else {
		fmt.Fprintln(out)
	}
	if opts.verbose && res.Status != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render(res.Status))
	}
	return nil
}

// inspectFiles turns paths into attachment references.
func inspectFiles(paths []string) ([]model.Attachment, error) {
	files := make([]model.Attachment, 0, len(paths))
	for _, p := range paths {
		att, err := ingest.Inspect(p)
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", p, err)
		}
		files = append(files, att)
	}
	return files, nil
}
