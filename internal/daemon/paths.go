package daemon

import (
	"path/filepath"
)

func runDir(home string) string {
	return filepath.Join(home, "run")
}

func pidPath(home string) string {
	return filepath.Join(runDir(home), "missionctl.pid")
}

func lockPath(home string) string {
	return filepath.Join(runDir(home), "missionctl.lock")
}

func addrPath(home string) string {
	return filepath.Join(runDir(home), "missionctl.addr")
}

func logPath(home string) string {
	return filepath.Join(runDir(home), "serve.log")
}
