package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/support-widget/pkg/notify"
	"github.com/go-go-golems/support-widget/pkg/ui"
	"github.com/go-go-golems/support-widget/pkg/upload"
	"github.com/go-go-golems/support-widget/pkg/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant (full-screen UI on a terminal, line mode otherwise)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive() {
				return runTUI(cmd)
			}
			a, err := newApp(cmd, printNotices(os.Stderr))
			if err != nil {
				return err
			}
			defer a.Close()
			return runREPL(cmd.Context(), a.ctrl, os.Stdin, os.Stdout)
		},
	}
}

// runTUI runs the bubbletea program and the notice router side by side.
func runTUI(cmd *cobra.Command) error {
	bus, err := notify.NewBus(log.Logger)
	if err != nil {
		return err
	}
	a, err := newApp(cmd, bus)
	if err != nil {
		return err
	}
	defer a.Close()

	eg, ctx := errgroup.WithContext(cmd.Context())
	p := tea.NewProgram(ui.NewModel(ctx, a.ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	bus.AddHandler("ui-forwarder", ui.NoticeForwardFunc(p))

	eg.Go(func() error { return bus.Run(ctx) })
	eg.Go(func() error {
		defer func() { _ = bus.Close() }()
		<-bus.Running()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	return eg.Wait()
}

// runREPL is the line-mode front-end used when stdin is not a terminal.
func runREPL(ctx context.Context, ctrl *widget.Controller, in io.Reader, out io.Writer) error {
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	st := ctrl.State()
	_, _ = fmt.Fprintf(out, "Hi I'm %s. Type /quit to leave.\n", st.AssistantName)
	seen := printMessages(out, st, 0)

	scanner := bufio.NewScanner(in)
	for {
		if ctrl.State().Escalation != nil {
			_, _ = fmt.Fprint(out, "email> ")
		} else {
			_, _ = fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		if err := replLine(ctx, ctrl, line); err != nil {
			log.Debug().Err(err).Str("line", line).Msg("repl command failed")
			if errors.Is(err, widget.ErrEscalationOpen) {
				_, _ = fmt.Fprintln(out, "Please enter your email address or /cancel.")
			}
		}
		st := ctrl.State()
		if len(st.Messages) < seen {
			seen = 0
		}
		seen = printMessages(out, st, seen)
	}
}

func replLine(ctx context.Context, ctrl *widget.Controller, line string) error {
	open := ctrl.State().Escalation != nil
	switch {
	case open && line == "/cancel":
		return ctrl.CancelTicket()
	case open && !strings.HasPrefix(line, "/"):
		_, err := ctrl.SubmitTicket(ctx, line)
		return err
	case line == "/clear":
		return ctrl.Clear(ctx)
	case strings.HasPrefix(line, "/upload"):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/upload"))
		if path != "" {
			f, err := upload.FileFromPath(path)
			if err != nil {
				return err
			}
			if err := ctrl.BindFile(f); err != nil {
				return err
			}
		}
		_, err := ctrl.Upload(ctx)
		return err
	default:
		_, err := ctrl.Send(ctx, line)
		return err
	}
}
