package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/support-widget/pkg/chatapi"
	"github.com/go-go-golems/support-widget/pkg/config"
	"github.com/go-go-golems/support-widget/pkg/notify"
	"github.com/go-go-golems/support-widget/pkg/persistence/identity"
	"github.com/go-go-golems/support-widget/pkg/transcript"
	"github.com/go-go-golems/support-widget/pkg/widget"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app bundles one controller with the resources backing it.
type app struct {
	settings *config.Settings
	store    identity.Store
	ctrl     *widget.Controller
}

func newApp(cmd *cobra.Command, notifier notify.Notifier) (*app, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	client, err := chatapi.NewClient(s.APIBaseURL,
		chatapi.WithTimeout(s.HTTPTimeout),
		chatapi.WithHeaders(s.Headers),
	)
	if err != nil {
		return nil, err
	}
	store, err := identity.Open(s.Identity)
	if err != nil {
		return nil, errors.Wrap(err, "open identity store")
	}
	log.Debug().
		Str("api_base_url", s.APIBaseURL).
		Str("identity_backend", s.Identity.Backend).
		Msg("support widget configured")

	ctrl := widget.New(client, store, notifier, widget.Config{
		AssistantName:       s.AssistantName,
		Markers:             s.EscalationMarkers(),
		AllowedContentTypes: s.Upload.AllowedContentTypes,
	})
	return &app{settings: s, store: store, ctrl: ctrl}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("closing identity store")
	}
}

func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// printNotices writes notices synchronously; used outside the full-screen UI.
func printNotices(w io.Writer) notify.Notifier {
	return notify.NotifierFunc(func(n notify.Notice) {
		_, _ = fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Text)
	})
}

// printMessages writes the transcript entries from index `from` on.
func printMessages(w io.Writer, st widget.State, from int) int {
	name := st.AssistantName
	if name == "" {
		name = "Assistant"
	}
	for i := from; i < len(st.Messages); i++ {
		m := st.Messages[i]
		switch m.Role {
		case transcript.RoleUser:
			continue
		case transcript.RoleSystem:
			_, _ = fmt.Fprintf(w, "* %s\n", m.Content)
		default:
			_, _ = fmt.Fprintf(w, "%s: %s\n", name, m.Content)
		}
	}
	return len(st.Messages)
}
