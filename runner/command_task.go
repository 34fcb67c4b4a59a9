package runner

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"
)

// CommandTask runs a shell command with its own environment.
type CommandTask struct {
	name      string
	command   string
	dir       string
	baseEnv   []string
	usePty    bool
	killDelay time.Duration
	stdout    io.Writer
	stderr    io.Writer

	mu   sync.Mutex
	vars map[string]string
}

// NewCommandTask returns a task running command through the platform shell.
// The command starts from the current process environment.
func NewCommandTask(name, command string) *CommandTask {
	return &CommandTask{
		name:    name,
		command: command,
		baseEnv: os.Environ(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		vars:    make(map[string]string),
	}
}

func (t *CommandTask) Name() string {
	return t.name
}

// Command returns the shell command line.
func (t *CommandTask) Command() string {
	return t.command
}

// SetDir sets the working directory of the command.
func (t *CommandTask) SetDir(dir string) {
	t.dir = dir
}

// SetBaseEnv replaces the environment the command starts from.
func (t *CommandTask) SetBaseEnv(environ []string) {
	t.baseEnv = environ
}

// SetOutput redirects the command's stdout and stderr.
func (t *CommandTask) SetOutput(stdout, stderr io.Writer) {
	t.stdout = stdout
	t.stderr = stderr
}

// Environment sets a variable for the command, overriding the base environment.
func (t *CommandTask) Environment(name, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vars[name] = value
}

// ClearEnvironment drops every variable set through Environment.
func (t *CommandTask) ClearEnvironment() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vars = make(map[string]string)
}

// Variables returns a copy of the variables set through Environment.
func (t *CommandTask) Variables() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	vars := make(map[string]string, len(t.vars))
	for k, v := range t.vars {
		vars[k] = v
	}
	return vars
}

// Env returns the full environment of the command as KEY=value pairs.
func (t *CommandTask) Env() []string {
	env := environToMap(t.baseEnv)
	for k, v := range t.Variables() {
		env[k] = v
	}
	environ := make([]string, 0, len(env))
	for _, k := range sortedKeys(env) {
		environ = append(environ, k+"="+env[k])
	}
	return environ
}

// Run starts the command and waits for it. Cancelling ctx interrupts the
// command, then kills it once killDelay has passed.
func (t *CommandTask) Run(ctx context.Context) error {
	cmd, stdout, stderr, err := startCmd(t.command, t.dir, t.Env(), t.usePty)
	if err != nil {
		return err
	}
	defer func() {
		stdout.Close()
		stderr.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		copyOutput(t.stdout, stdout)
	}()
	go func() {
		defer wg.Done()
		copyOutput(t.stderr, stderr)
	}()

	done := make(chan struct{})
	var waitErr error
	go func() {
		wg.Wait()
		waitErr = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return waitErr
	case <-ctx.Done():
		_ = killCmd(cmd, t.killDelay, done)
		<-done
		return ctx.Err()
	}
}

func copyOutput(dst io.Writer, src io.Reader) {
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		_, _ = dst.Write([]byte(scanner.Text() + "\n"))
	}
}
