package scheduler

import (
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// childProcess tracks the single outstanding post-processing child. The
// process is never Wait()-ed on by this type: reaping happens exclusively
// through the event loop's SIGCHLD handler (onExit), so the two never
// race over the same exit status.
type childProcess struct {
	mu  sync.Mutex
	cmd *exec.Cmd
}

// spawn kills any still-running previous child, then starts command as a
// new child process. An empty command is a no-op.
func (c *childProcess) spawn(command string) error {
	if command == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(syscall.SIGKILL)
	}

	cmd := exec.Command("/bin/sh", "-c", command)
	if err := cmd.Start(); err != nil {
		c.cmd = nil
		return err
	}
	c.cmd = cmd
	return nil
}

// onExit clears the tracked child once the event loop reaps it. Exits of
// any other process (there should be none, since exactly one child is
// ever outstanding) are ignored.
func (c *childProcess) onExit(pid int, _ unix.WaitStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil && c.cmd.Process != nil && c.cmd.Process.Pid == pid {
		c.cmd = nil
	}
}
