//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

func setDaemonSysProcAttr(cmd *exec.Cmd) {}

// processExists cannot probe without x/sys/windows; a stale pid file shows
// up as a refused connection instead.
func processExists(pid int) bool {
	return pid > 0
}

func signalTerm(proc *os.Process) error {
	return proc.Kill()
}
