//go:build !windows

package cli

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr detaches the background daemon into its own session so it
// survives the parent terminal closing.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
