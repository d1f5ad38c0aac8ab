// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ollamachat/internal/config"
	"github.com/jeranaias/ollamachat/internal/export"
	"github.com/jeranaias/ollamachat/internal/ingest"
	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/session"
	"github.com/jeranaias/ollamachat/internal/storage"
)

// historyFileName stores REPL input history in the config directory.
const historyFileName = "chat_history"

func newChatCmd(opts *globalOptions) *cobra.Command {
	var resume string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a line-mode chat session",
		Long: `Start a line-mode chat session with input history.

Type a message and press Enter. Ctrl+C stops a reply in progress; at the
prompt it exits, as does Ctrl+D. Type /help for commands.`,
		Example: `  ollamachat chat
  ollamachat chat --model qwen2.5:7b
  ollamachat chat --resume 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, resume)
		},
	}
	cmd.Flags().StringVarP(&resume, "resume", "r", "", "continue conversation by number or id")
	return cmd
}

func runChat(cmd *cobra.Command, opts *globalOptions, resume string) error {
	app, err := openApp(opts, true, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	if resume != "" {
		conv, err := resolveConversation(app.Ctrl.Snapshot().Conversations, resume)
		if err != nil {
			return err
		}
		if err := app.Ctrl.SelectConversation(conv.ID); err != nil {
			return err
		}
	}

	modelName, err := app.RefreshModels(cmd.Context())
	if err != nil {
		return err
	}

	repl := newREPL(app, cmd.OutOrStdout())
	defer repl.Close()

	fmt.Fprintln(repl.out, TitleStyle.Render("ollamachat")+" "+DimStyle.Render("model "+modelName+", /help for commands"))
	if conv := app.Ctrl.Snapshot().Active(); conv != nil {
		fmt.Fprintln(repl.out, DimStyle.Render(fmt.Sprintf("Resuming %q (%d messages)", conv.Title, len(conv.Messages))))
	}
	return repl.Run(cmd.Context())
}

// =============================================================================
// REPL
// =============================================================================

// repl reads prompts with liner and streams replies through the controller.
type repl struct {
	app         *App
	ctrl        *session.Controller
	out         io.Writer
	line        *liner.State
	historyFile string
	pending     []model.Attachment
}

func newREPL(app *App, out io.Writer) *repl {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile := filepath.Join(os.TempDir(), "ollamachat_"+historyFileName)
	if dir, err := config.Dir(); err == nil {
		historyFile = filepath.Join(dir, historyFileName)
	}

	r := &repl{
		app:         app,
		ctrl:        app.Ctrl,
		out:         out,
		line:        line,
		historyFile: historyFile,
	}
	r.loadHistory()
	return r
}

func (r *repl) loadHistory() {
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
}

func (r *repl) saveHistory() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (r *repl) Close() {
	r.saveHistory()
	r.line.Close()
}

// Run reads lines until EOF, Ctrl+C at the prompt or /quit.
func (r *repl) Run(ctx context.Context) error {
	for {
		input, err := r.line.Prompt(r.prompt())
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin.
			fmt.Fprintln(r.out)
			return nil
		}
		if strings.TrimSpace(input) == "" && len(r.pending) == 0 {
			continue
		}
		r.line.AppendHistory(input)

		trimmed := strings.TrimSpace(input)
		if strings.HasPrefix(trimmed, "/") {
			quit, err := r.command(ctx, trimmed)
			if err != nil {
				fmt.Fprintln(r.out, ErrorStyle.Render("[Error]"), err)
			}
			if quit {
				return nil
			}
			continue
		}

		r.send(ctx, input)
	}
}

func (r *repl) prompt() string {
	if len(r.pending) > 0 {
		return fmt.Sprintf("you (+%d)> ", len(r.pending))
	}
	return "you> "
}

// send streams one reply. Ctrl+C while it streams stops the reply and
// keeps the session.
func (r *repl) send(ctx context.Context, input string) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, AssistantStyle.Render("Assistant"))
	res, err := sendPrompt(turnCtx, r.ctrl, input, r.pending, r.out)
	switch {
	case errors.Is(err, ErrReplyStopped):
		fmt.Fprintln(r.out, "\n"+WarningStyle.Render("[stopped]"))
		r.pending = nil
		return
	case err != nil:
		fmt.Fprintln(r.out, ErrorStyle.Render("[Error]"), describeSubmitError(err))
		return
	}
	r.pending = nil

	if res.Err != nil {
		fmt.Fprintln(r.out, ErrorStyle.Render(res.Reply.Content))
		r.app.componentLogger("chat").Debug("turn failed", "err", res.Err)
		fmt.Fprintln(r.out)
		return
	}
	fmt.Fprintln(r.out)
	if res.Status != "" {
		fmt.Fprintln(r.out, DimStyle.Render(res.Status))
	}
	fmt.Fprintln(r.out)
}

func describeSubmitError(err error) string {
	switch {
	case errors.Is(err, session.ErrNoModel):
		return "no model selected; pull one and run /models"
	case errors.Is(err, session.ErrEmptyPrompt):
		return "type a message or /attach a file"
	}
	return err.Error()
}

// =============================================================================
// REPL COMMANDS
// =============================================================================

const replHelp = `Commands:
  /attach <path>     attach a file to the next message
  /detach            drop pending attachments
  /new               start a new conversation
  /list              list conversations
  /open <n|id>       switch to a conversation
  /rename <title>    rename the current conversation
  /delete            delete the current conversation
  /model [name]      show or select the model
  /models            reload the installed models
  /export [format]   export the last reply (markdown, html, json, yaml, csv)
  /quit              exit`

// command runs a slash command. quit is true when the REPL should exit.
func (r *repl) command(ctx context.Context, input string) (quit bool, err error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	arg = strings.TrimSpace(arg)
	snap := r.ctrl.Snapshot()

	switch strings.ToLower(name) {
	case "help", "h", "?":
		fmt.Fprintln(r.out, replHelp)

	case "quit", "q", "exit":
		return true, nil

	case "attach", "a":
		if arg == "" {
			return false, errors.New("usage: /attach <path>")
		}
		att, err := ingest.Inspect(config.ExpandHome(strings.Trim(arg, `"'`)))
		if err != nil {
			return false, err
		}
		r.pending = append(r.pending, att)
		fmt.Fprintln(r.out, DimStyle.Render("Attached "+att.Name))

	case "detach":
		r.pending = nil
		fmt.Fprintln(r.out, DimStyle.Render("Attachments cleared"))

	case "new", "n":
		r.ctrl.StartNewConversation()
		r.pending = nil
		fmt.Fprintln(r.out, DimStyle.Render("New conversation"))

	case "list", "ls":
		fmt.Fprint(r.out, storage.FormatConversationList(snap.Conversations))

	case "open", "o":
		conv, err := resolveConversation(snap.Conversations, arg)
		if err != nil {
			return false, err
		}
		if err := r.ctrl.SelectConversation(conv.ID); err != nil {
			return false, err
		}
		writeTranscript(r.out, conv, nil)

	case "rename":
		conv := snap.Active()
		if conv == nil {
			return false, errors.New("no active conversation")
		}
		if err := r.ctrl.RenameConversation(conv.ID, arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, DimStyle.Render("Renamed to "+r.ctrl.Snapshot().Active().Title))

	case "delete":
		conv := snap.Active()
		if conv == nil {
			return false, errors.New("no active conversation")
		}
		if err := r.ctrl.DeleteConversation(conv.ID); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, DimStyle.Render("Deleted "+conv.Title))

	case "model", "m":
		if arg == "" {
			fmt.Fprintf(r.out, "Model: %s\nInstalled: %s\n", snap.Model, strings.Join(snap.Models, ", "))
			return false, nil
		}
		if err := r.ctrl.SetModel(arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, DimStyle.Render("Model: "+arg))

	case "models":
		modelName, err := r.app.RefreshModels(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Installed: %s\nSelected: %s\n", strings.Join(r.ctrl.Snapshot().Models, ", "), modelName)

	case "export", "e":
		format := export.FormatMarkdown
		if arg != "" {
			f, err := export.ParseFormat(arg)
			if err != nil {
				return false, err
			}
			format = f
		}
		conv := snap.Active()
		path, err := exportReply(conv, snap.Model, format, export.DefaultOptions())
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Exported to "+path))

	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return false, nil
}
