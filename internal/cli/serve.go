package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ankittk/missioncontrol/internal/daemon"
)

func newServeCmd() *cobra.Command {
	var (
		detach    bool
		addr      string
		dev       bool
		pprofAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mission over HTTP and keep agents in sync with the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settingsFrom(cmd.Context())
			cfg := s.Config
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if dev {
				cfg.HTTP.Dev = true
			}
			opts := daemon.StartOptions{Home: s.Home, Config: cfg, PprofAddr: pprofAddr}

			if detach {
				pid, err := daemon.StartBackground(cmd.Context(), opts)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "missionctl serve started (pid %d)\n", pid)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving mission control on %s\n", cfg.HTTP.Addr)
			return daemon.StartForeground(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&detach, "detach", false, "Run in the background")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: http.addr from config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable permissive CORS for local dashboards")
	cmd.Flags().StringVar(&pprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a server is running for this home",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := daemon.Status(cmd.Context(), settingsFrom(cmd.Context()).Home)
			if err != nil {
				return err
			}
			if !st.Running {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "missionctl serve not running")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "missionctl serve running (pid %d, addr %s)\n", st.PID, st.Addr)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the server running for this home",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopped, err := daemon.Stop(cmd.Context(), settingsFrom(cmd.Context()).Home)
			if err != nil {
				return err
			}
			if !stopped {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "missionctl serve not running")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
			return nil
		},
	}
}
