package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Spawn re-executes the current binary with the "daemon" subcommand as a
// detached session leader, so the daemon outlives the invoking CLI.
func Spawn() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable path: %w", err)
	}

	cmd := exec.Command(exe, "daemon")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	// Detach rather than wait; the daemon reports readiness via its socket.
	cmd.Process.Release()
	return nil
}
