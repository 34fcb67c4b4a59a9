package runner

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// startCmd ignores usePty, windows has no pseudo-terminal support.
func startCmd(cmd, dir string, env []string, _ bool) (*exec.Cmd, io.ReadCloser, io.ReadCloser, error) {
	// Use cmd.exe instead of PowerShell for better performance
	c := exec.Command("cmd", "/C", cmd)
	c.Dir = dir
	c.Env = env
	c.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}

	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err = c.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to start command: %w", err)
	}
	return c, stdout, stderr, nil
}

// killCmd terminates the process tree of cmd. Interrupts are not supported on
// windows, so delay is ignored.
func killCmd(cmd *exec.Cmd, _ time.Duration, _ <-chan struct{}) error {
	// /F = Force termination
	// /T = Terminate all child processes
	kill := exec.Command("TASKKILL", "/F", "/T", "/PID", strconv.Itoa(cmd.Process.Pid))
	kill.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}
	return kill.Run()
}
