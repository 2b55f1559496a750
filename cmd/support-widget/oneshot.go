package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-go-golems/support-widget/pkg/upload"
	"github.com/go-go-golems/support-widget/pkg/widget"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newAskCommand() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Send one query and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, printNotices(os.Stderr))
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if err := a.ctrl.Start(ctx); err != nil {
				return err
			}
			from := len(a.ctrl.State().Messages)
			reply, err := a.ctrl.Send(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			from = printMessages(os.Stdout, a.ctrl.State(), from)
			if reply.Escalation == nil {
				return nil
			}
			if email == "" && interactive() {
				if email, err = promptEmail(); err != nil {
					return err
				}
			}
			if email == "" {
				_, _ = fmt.Fprintln(os.Stdout, "Run again with --email to create a support ticket.")
				return a.ctrl.CancelTicket()
			}
			if _, err := a.ctrl.SubmitTicket(ctx, email); err != nil {
				return err
			}
			printMessages(os.Stdout, a.ctrl.State(), from)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Contact email used if the reply opens a support ticket")
	return cmd
}

func newUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.csv>",
		Short: "Upload product data to the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := upload.FileFromPath(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd, printNotices(os.Stderr))
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if err := a.ctrl.Start(ctx); err != nil {
				return err
			}
			if err := a.ctrl.BindFile(f); err != nil {
				return err
			}
			_, err = a.ctrl.Upload(ctx)
			return err
		},
	}
}

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the chat history and start over with a new identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, printNotices(os.Stderr))
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if err := a.ctrl.Start(ctx); err != nil {
				return err
			}
			if err := a.ctrl.Clear(ctx); !errors.Is(err, widget.ErrNothingToClear) {
				return err
			}
			return nil
		},
	}
}
