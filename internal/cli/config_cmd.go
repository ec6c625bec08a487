package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ankittk/missioncontrol/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialise missionctl configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigAPIKeyCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config.yaml into the home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			path, err := config.Write(home, config.Default(), force)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (file, env and defaults merged)",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := settingsFrom(cmd.Context()).Config.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func newConfigAPIKeyCmd() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Generate an API key for protecting a server exposed over a network",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := make([]byte, 32)
			if _, err := rand.Read(b); err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			key := hex.EncodeToString(b)

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Generated API key (save it somewhere safe):")
			_, _ = fmt.Fprintln(out)
			_, _ = fmt.Fprintln(out, "  "+key)
			_, _ = fmt.Fprintln(out)

			if save {
				s := settingsFrom(cmd.Context())
				cfg := s.Config
				cfg.HTTP.APIKey = key
				path, err := config.Write(s.Home, cfg, true)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "Saved http.api_key to %s\n", path)
				return nil
			}
			_, _ = fmt.Fprintln(out, "Use it:")
			_, _ = fmt.Fprintln(out, "  1. On the server: export MISSIONCTL_HTTP_API_KEY="+key)
			_, _ = fmt.Fprintln(out, "     or run: missionctl config apikey --save")
			_, _ = fmt.Fprintln(out, "  2. In clients: pass --api-key or send header X-API-Key: <key>")
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Write the key to http.api_key in config.yaml")
	return cmd
}
