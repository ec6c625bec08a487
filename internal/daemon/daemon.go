// Package daemon runs the mission control server process: the HTTP API, the
// session refresh loop and the pid/lock bookkeeping that lets `missionctl
// status` and `missionctl stop` find it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ankittk/missioncontrol/internal/config"
	"github.com/ankittk/missioncontrol/internal/httpapi"
	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/notify"
	"github.com/ankittk/missioncontrol/internal/otel"
	"github.com/ankittk/missioncontrol/internal/retry"
)

const shutdownTimeout = 15 * time.Second

// StartForeground serves the mission until ctx is done. Only one server may
// run per home.
func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	cfg := opts.Config

	if err := os.MkdirAll(runDir(opts.Home), 0o755); err != nil {
		return err
	}
	lock, err := acquireLock(lockPath(opts.Home))
	if err != nil {
		return err
	}
	defer lock.release()

	// Early port check for clearer error.
	if err := checkPortAvailable(cfg.HTTP.Addr); err != nil {
		return err
	}

	if err := os.WriteFile(pidPath(opts.Home), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return err
	}
	_ = os.WriteFile(addrPath(opts.Home), []byte(cfg.HTTP.Addr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(pidPath(opts.Home))
		_ = os.Remove(addrPath(opts.Home))
	}()

	hub := httpapi.NewSSEHub()
	pubs := mission.Publishers{hub}
	fwd := newForwarder(cfg)
	if fwd != nil {
		pubs = append(pubs, fwd)
	}
	mgr, closeMgr, err := OpenManager(ctx, opts.Home, cfg, pubs)
	if err != nil {
		return err
	}
	defer func() { _ = closeMgr() }()

	srvOpts := httpapi.ServerOptions{
		Addr:   cfg.HTTP.Addr,
		Dev:    cfg.HTTP.Dev,
		APIKey: cfg.HTTP.APIKey,
	}
	if cfg.Metrics.Enabled {
		metricsHandler, err := otel.InitMeterProvider(ctx, "missioncontrol")
		if err != nil {
			slog.Warn("otel init failed, serving without metrics", "err", err)
		} else {
			srvOpts.MetricsHandler = metricsHandler
			srvOpts.UseOtelHTTP = true
			if err := otel.InitMetricsWithTaskCount(ctx, taskCounter(mgr.Mission)); err != nil {
				slog.Warn("otel instruments failed", "err", err)
			}
		}
	}
	app := httpapi.NewApp(mgr, hub, srvOpts)

	startPprof(ctx, opts.PprofAddr)

	g, gctx := errgroup.WithContext(ctx)
	// Requests inherit gctx so that /events streams end on shutdown.
	app.Server.BaseContext = func(net.Listener) context.Context { return gctx }

	slog.Info("mission control starting", "addr", cfg.HTTP.Addr, "home", opts.Home,
		"db", cfg.DB.Driver, "gateway", cfg.Gateway.Transport)
	g.Go(func() error {
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return mgr.Run(gctx)
	})
	if fwd != nil {
		fwd.Lookup = mgr.Mission
		g.Go(func() error { return fwd.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.Server.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	slog.Info("mission control stopped", "err", err)
	return err
}

// newForwarder returns nil when no notification channel is configured.
func newForwarder(cfg config.Config) *notify.Forwarder {
	if cfg.Notify.SlackWebhookURL == "" {
		return nil
	}
	reg := notify.NewRegistry()
	reg.Register(notify.SlackWebhook{
		WebhookURL: cfg.Notify.SlackWebhookURL,
		Channel:    cfg.Notify.SlackChannel,
		Username:   cfg.Notify.SlackUsername,
		Exec:       retry.NewExecutor(cfg.Retry, retry.WithObserver(otel.RetryObserver("notify"))),
	})
	return notify.NewForwarder(reg)
}

// taskCounter feeds the tasks-by-status gauge.
func taskCounter(m *mission.Mission) otel.StatusCountFunc {
	return func() map[string]int64 {
		counts := make(map[string]int64)
		for _, t := range m.Tasks() {
			counts[string(t.Status)]++
		}
		return counts
	}
}

// StartBackground re-executes the current binary as `serve` in a new session
// and returns its pid once the pid file shows up.
func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(runDir(opts.Home), 0o755); err != nil {
		return 0, err
	}
	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("missionctl serve already running (pid %d)", st.PID)
	}

	stderr, err := os.OpenFile(logPath(opts.Home), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for the child's lifetime.

	args := []string{"serve", "--home", opts.Home}
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}
	cmd := exec.Command(exe, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	setDaemonSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cmd.Process.Pid, nil
}

// Stop sends SIGTERM to the running server and waits for it to exit. It
// reports false when nothing was running.
func Stop(ctx context.Context, home string) (bool, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, fmt.Errorf("find pid %d: %w", st.PID, err)
	}
	if err := signalTerm(proc); err != nil {
		return false, err
	}

	deadline := time.Now().Add(shutdownTimeout)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, home); !st2.Running {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	_ = proc.Kill()
	return true, nil
}

// Status reads the pid file. A pid file naming a dead process is removed.
func Status(_ context.Context, home string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(home))
	if err != nil {
		return StatusInfo{}, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pb)))
	if err != nil || pid <= 0 {
		return StatusInfo{}, nil
	}
	if !processExists(pid) {
		_ = os.Remove(pidPath(home))
		return StatusInfo{}, nil
	}
	addr := "unknown"
	if ab, err := os.ReadFile(addrPath(home)); err == nil && strings.TrimSpace(string(ab)) != "" {
		addr = strings.TrimSpace(string(ab))
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}

func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use", addr)
	}
	_ = ln.Close()
	return nil
}
