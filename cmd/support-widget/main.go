package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-go-golems/support-widget/pkg/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath    string
	logLevel      string
	withCaller    bool
	logFile       string
	apiBaseURL    string
	assistantName string
	identityStore string
}

var flags rootFlags

var rootCmd = &cobra.Command{
	Use:           "support-widget",
	Short:         "Terminal client for the retail support assistant",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Config file (default ~/.support-widget/config.yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.BoolVar(&flags.withCaller, "with-caller", false, "Include caller (file:line) in logs")
	pf.StringVar(&flags.logFile, "log-file", "", "Log file (default ~/.support-widget/widget.log for the interactive UI, stderr otherwise)")
	pf.StringVar(&flags.apiBaseURL, "api-base-url", "", "Chat API base URL")
	pf.StringVar(&flags.assistantName, "assistant-name", "", "Name shown for assistant turns")
	pf.StringVar(&flags.identityStore, "identity-backend", "", "Identity store backend (file, sqlite, redis, memory)")

	rootCmd.AddCommand(newChatCommand(), newAskCommand(), newUploadCommand(), newClearCommand())
}

// initLogging sends logs to a file for the full-screen UI so they do not
// corrupt it, and to stderr otherwise.
func initLogging(cmd *cobra.Command) error {
	lvl, err := zerolog.ParseLevel(flags.logLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid --log-level %q", flags.logLevel)
	}
	zerolog.SetGlobalLevel(lvl)

	path := flags.logFile
	if path == "" && cmd.Name() == "chat" && interactive() {
		dir, err := config.AppDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "widget.log")
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return errors.Wrap(err, "create log directory")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if flags.withCaller {
		log.Logger = log.Logger.With().Caller().Logger()
	}
	return nil
}

// loadSettings applies explicit flags on top of the layered config.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	s, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	pf := cmd.Flags()
	if pf.Changed("api-base-url") {
		s.APIBaseURL = flags.apiBaseURL
	}
	if pf.Changed("assistant-name") {
		s.AssistantName = flags.assistantName
	}
	if pf.Changed("identity-backend") {
		s.Identity.Backend = flags.identityStore
		s.Identity.Path = ""
	}
	if err := s.Finalize(); err != nil {
		return nil, err
	}
	return s, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("support-widget failed")
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
