//go:build !windows

package runner

import (
	"errors"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
)

func startCmd(cmd, dir string, env []string, usePty bool) (*exec.Cmd, io.ReadCloser, io.ReadCloser, error) {
	c := exec.Command("/bin/sh", "-c", cmd)
	c.Dir = dir
	c.Env = env

	if usePty {
		// pty.Start makes the command a session leader, which also gives it
		// its own process group.
		f, err := pty.Start(c)
		if err != nil {
			return nil, nil, nil, err
		}
		return c, f, io.NopCloser(strings.NewReader("")), nil
	}

	c.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	if err = c.Start(); err != nil {
		return nil, nil, nil, err
	}
	return c, stdout, stderr, nil
}

// killCmd interrupts the process group of cmd and kills it if it is still
// running after delay. done must be closed once the command has exited.
func killCmd(cmd *exec.Cmd, delay time.Duration, done <-chan struct{}) error {
	pid := cmd.Process.Pid
	if delay > 0 {
		if err := syscall.Kill(-pid, syscall.SIGINT); err == nil {
			select {
			case <-done:
				return nil
			case <-time.After(delay):
			}
		}
	}
	// https://stackoverflow.com/questions/22470193/why-wont-go-kill-a-child-process-correctly
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
