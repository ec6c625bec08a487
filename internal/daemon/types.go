package daemon

import "github.com/ankittk/missioncontrol/internal/config"

// StartOptions configures the server process.
type StartOptions struct {
	Home      string
	Config    config.Config
	PprofAddr string // e.g. 127.0.0.1:6060; empty disables pprof
}

// StatusInfo is the result of Status (running or not, PID, listen addr).
type StatusInfo struct {
	Running bool
	PID     int
	Addr    string
}
