package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ankittk/missioncontrol/internal/config"
	"github.com/ankittk/missioncontrol/internal/logging"
)

type settingsKey struct{}

// settings is what PersistentPreRunE resolved for the running command.
type settings struct {
	Home   string
	Config config.Config
	Server string // when set, commands go through the HTTP API
	APIKey string
}

func withSettings(ctx context.Context, s *settings) context.Context {
	return context.WithValue(ctx, settingsKey{}, s)
}

func settingsFrom(ctx context.Context) *settings {
	if s, ok := ctx.Value(settingsKey{}).(*settings); ok {
		return s
	}
	panic("missionctl settings missing from context")
}

func NewRootCmd(version string) *cobra.Command {
	var (
		homeOverride string
		server       string
		apiKey       string
		logLevel     string
		logCloser    io.Closer
	)

	cmd := &cobra.Command{
		Use:          "missionctl",
		Short:        "missionctl coordinates AI agents working on planned tasks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.ResolveHome(homeOverride)
			if err != nil {
				return err
			}
			cfg, err := config.Load(home)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logCloser, err = logging.Setup(cfg.Log); err != nil {
				return err
			}
			if apiKey == "" {
				apiKey = cfg.HTTP.APIKey
			}
			ctx := config.WithHome(cmd.Context(), home)
			cmd.SetContext(withSettings(ctx, &settings{Home: home, Config: cfg, Server: server, APIKey: apiKey}))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&homeOverride, "home", "", "Override missionctl home directory (default: ~/.missionctl, env: MISSIONCTL_HOME)")
	cmd.PersistentFlags().StringVar(&server, "server", "", "Talk to a running `missionctl serve` at this URL instead of the local store")
	cmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for --server (default: http.api_key from config)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: log.level from config)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newTaskCmd())
	cmd.AddCommand(newMessageCmd())
	cmd.AddCommand(newPromptCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
