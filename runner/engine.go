package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gohugoio/hugo/watcher/filenotify"
	"github.com/joho/godotenv"

	"github.com/air-verse/airenv/envfile"
)

const (
	buildTaskName = "build"
	runTaskName   = "run"
)

// Engine loads the env files, registers the configured commands as tasks and
// runs them with the env file variables injected.
type Engine struct {
	config *Config

	logger    *logger
	debugMode bool
	tasks     *TaskRegistry
	pipeline  []Task
	postTasks []Task
	loaded    bool
	running   atomic.Bool

	watcher       filenotify.FileWatcher
	eventCh       chan string
	watcherStopCh chan bool
	exitCh        chan bool
	stopOnce      sync.Once
	fileChecksums *checksumMap

	mu        sync.RWMutex
	store     *envfile.Store
	extraEnv  map[string]string
	binCancel context.CancelFunc
	binDone   chan struct{}

	stdout io.Writer
	stderr io.Writer

	ll sync.Mutex // lock for logger
}

// NewEngineWithConfig ...
func NewEngineWithConfig(cfg *Config, debugMode bool) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	e := Engine{
		config:        cfg,
		logger:        newLogger(cfg),
		debugMode:     debugMode,
		tasks:         NewTaskRegistry(),
		eventCh:       make(chan string, 1000),
		watcherStopCh: make(chan bool, 1),
		exitCh:        make(chan bool),
		fileChecksums: &checksumMap{m: make(map[string]string)},
		extraEnv:      make(map[string]string),
		stdout:        os.Stdout,
		stderr:        os.Stderr,
	}
	return &e, nil
}

// NewEngine ...
func NewEngine(cfgPath string, args map[string]TomlInfo, debugMode bool) (*Engine, error) {
	cfg, err := InitConfig(cfgPath, args)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(cfg, debugMode)
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// Tasks returns the task registry.
func (e *Engine) Tasks() *TaskRegistry {
	return e.tasks
}

// Store returns the currently loaded env file.
func (e *Engine) Store() *envfile.Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store
}

// Environment returns the variables injected into every command, the env
// file taking precedence over the extra env files.
func (e *Engine) Environment() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	env := make(map[string]string, len(e.extraEnv))
	for k, v := range e.extraEnv {
		env[k] = v
	}
	if e.store != nil {
		for k, v := range e.store.All() {
			env[k] = v
		}
	}
	return env
}

// Load reads the env files and registers the configured tasks. Once the tasks
// are registered, calling it again only reloads the env files.
func (e *Engine) Load() error {
	if e.loaded {
		return e.reloadEnvironment()
	}
	if err := e.loadEnv(); err != nil {
		return err
	}
	e.loaded = true
	// subscribe before registering so every task gets the environment at creation
	e.tasks.All(e.applyEnvironment)
	return e.registerTasks()
}

func (e *Engine) loadEnv() error {
	path := e.config.envFilePath()
	var (
		store *envfile.Store
		err   error
	)
	if e.config.EnvFile == envfile.DefaultFileName {
		store, err = envfile.ForProject(e.config.Root)
	} else {
		store, err = envfile.Open(path)
	}
	if err != nil {
		e.envLog("failed to load %s, error: %s", e.config.rel(path), err.Error())
		return err
	}
	if store.Exists() {
		e.envLog("loaded %d variables from %s", store.Len(), e.config.rel(path))
	} else {
		e.envDebug("%s not found, no variables to inject", e.config.rel(path))
	}

	extra := make(map[string]string)
	for _, f := range e.config.extraEnvFilePaths() {
		vars, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				e.envDebug("%s not found, skipping", e.config.rel(f))
				continue
			}
			e.envLog("failed to load %s, error: %s", e.config.rel(f), err.Error())
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
		for k, v := range vars {
			extra[k] = v
		}
		e.envDebug("loaded %d variables from %s", len(vars), e.config.rel(f))
	}

	e.withLock(func() {
		e.store = store
		e.extraEnv = extra
	})
	return nil
}

func (e *Engine) registerTasks() error {
	register := func(t Task) error {
		if err := e.tasks.Register(t); err != nil {
			return err
		}
		e.mainDebug("registered task %s", t.Name())
		return nil
	}

	if e.config.Example.Enabled {
		t := NewExampleTask(e.config.exampleOutputPath(), e.config.Example.SensitiveValuePatterns, e.Store)
		if err := register(t); err != nil {
			return err
		}
		e.pipeline = append(e.pipeline, t)
	}
	for i, command := range e.config.Build.PreCmd {
		t := e.newCommandTask("pre_cmd:"+strconv.Itoa(i), command)
		if err := register(t); err != nil {
			return err
		}
		e.pipeline = append(e.pipeline, t)
	}
	if e.config.Build.Cmd != "" {
		t := e.newCommandTask(buildTaskName, e.config.Build.Cmd)
		if err := register(t); err != nil {
			return err
		}
		e.pipeline = append(e.pipeline, t)
	}
	if e.config.Build.Bin != "" {
		t := e.newCommandTask(runTaskName, addArgs(e.config.Build.Bin, e.config.Build.ArgsBin))
		if err := register(t); err != nil {
			return err
		}
		e.pipeline = append(e.pipeline, t)
	}
	for i, command := range e.config.Build.PostCmd {
		t := e.newCommandTask("post_cmd:"+strconv.Itoa(i), command)
		if err := register(t); err != nil {
			return err
		}
		e.postTasks = append(e.postTasks, t)
	}
	return nil
}

func (e *Engine) newCommandTask(name, command string) *CommandTask {
	t := NewCommandTask(name, command)
	t.SetDir(e.config.Root)
	t.SetOutput(e.stdout, e.stderr)
	if e.config.Build.IsolateEnv {
		t.SetBaseEnv(nil)
	}
	t.usePty = e.config.Build.Pty
	t.killDelay = e.config.killDelay()
	return t
}

// applyEnvironment is the task observer: every task that spawns a process
// receives the extra env files and then the env file variables.
func (e *Engine) applyEnvironment(t Task) {
	et, ok := t.(EnvironmentTask)
	if !ok {
		return
	}
	var extra, vars map[string]string
	e.mu.RLock()
	extra = e.extraEnv
	if e.store != nil {
		vars = e.store.All()
	}
	e.mu.RUnlock()

	for _, k := range sortedKeys(extra) {
		et.Environment(k, extra[k])
	}
	for _, k := range sortedKeys(vars) {
		et.Environment(k, vars[k])
	}
	e.envDebug("injected %d variables into %s", len(extra)+len(vars), t.Name())
}

// reloadEnvironment rereads the env files and replaces the variables of every
// registered task.
func (e *Engine) reloadEnvironment() error {
	if err := e.loadEnv(); err != nil {
		return err
	}
	e.tasks.Each(func(t Task) {
		if c, ok := t.(interface{ ClearEnvironment() }); ok {
			c.ClearEnvironment()
		}
		e.applyEnvironment(t)
	})
	return nil
}

// GenerateExample writes the example env file once.
func (e *Engine) GenerateExample() error {
	if err := e.loadEnv(); err != nil {
		return err
	}
	t := NewExampleTask(e.config.exampleOutputPath(), e.config.Example.SensitiveValuePatterns, e.Store)
	if err := t.Run(context.Background()); err != nil {
		e.envLog("failed to generate %s, error: %s", e.config.rel(t.OutputFile()), err.Error())
		return err
	}
	e.envLog("generated %s", e.config.rel(t.OutputFile()))
	return nil
}

// Run runs the pipeline. Without watch mode it returns once the commands, and
// bin if configured, have finished or Stop is called. In watch mode it reruns
// the pipeline on every env file change until Stop is called.
func (e *Engine) Run() error {
	e.mainDebug("CWD: %s", e.config.Root)

	if err := e.Load(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-e.exitCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	e.running.Store(true)
	defer e.running.Store(false)

	if !e.config.Watch.Enabled {
		err := e.runPipeline(ctx)
		e.waitBin(ctx)
		e.cleanup()
		if ctx.Err() != nil {
			// stopped by Stop
			return nil
		}
		return err
	}

	var err error
	if e.watcher, err = newWatcher(e.config); err != nil {
		return err
	}
	if err = e.watching(); err != nil {
		return err
	}
	e.start(ctx)
	e.cleanup()
	return nil
}

func (e *Engine) runPipeline(ctx context.Context) error {
	var firstErr error
	for _, t := range e.pipeline {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if t.Name() == runTaskName {
			if firstErr != nil && e.config.Build.StopOnError {
				break
			}
			e.startBin(ctx, t)
			continue
		}
		err := e.runTask(ctx, t)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var genErr *envfile.GenerationError
		if errors.As(err, &genErr) || e.config.Build.StopOnError {
			return err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) runTask(ctx context.Context, t Task) error {
	switch task := t.(type) {
	case *ExampleTask:
		if err := task.Run(ctx); err != nil {
			e.envLog("failed to generate %s, error: %s", e.config.rel(task.OutputFile()), err.Error())
			return err
		}
		e.envLog("generated %s", e.config.rel(task.OutputFile()))
		return nil
	case *CommandTask:
		if task.Name() == buildTaskName {
			e.buildLog("building...")
		} else {
			e.runnerLog("> %s", task.Command())
		}
		if err := task.Run(ctx); err != nil {
			if task.Name() == buildTaskName {
				e.buildLog("failed to build, error: %s", err.Error())
			} else {
				e.runnerLog("failed to execute %s, error: %s", task.Name(), err.Error())
			}
			return err
		}
		return nil
	default:
		return t.Run(ctx)
	}
}

func (e *Engine) startBin(ctx context.Context, t Task) {
	binCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.withLock(func() {
		e.binCancel = cancel
		e.binDone = done
	})

	e.runnerLog("running...")
	go func() {
		defer close(done)
		err := t.Run(binCtx)
		if binCtx.Err() != nil {
			return
		}
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			e.runnerLog("Process Exit with Code 0")
		case errors.As(err, &exitErr):
			e.runnerLog("Process Exit with Code: %v", exitErr.ExitCode())
		default:
			e.runnerLog("failed to run, error: %s", err.Error())
		}
	}()
}

func (e *Engine) stopBin() {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	e.withLock(func() {
		cancel, done = e.binCancel, e.binDone
		e.binCancel, e.binDone = nil, nil
	})
	if cancel == nil {
		return
	}
	e.mainDebug("stopping %s", runTaskName)
	cancel()
	select {
	case <-done:
	case <-time.After(e.config.killDelay() + 5*time.Second):
		e.mainDebug("timed out waiting for process exit")
	}
}

// waitBin blocks until bin exits on its own or ctx is cancelled.
func (e *Engine) waitBin(ctx context.Context) {
	e.mu.RLock()
	done := e.binDone
	e.mu.RUnlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (e *Engine) watchedFiles() []string {
	return append([]string{e.config.envFilePath()}, e.config.extraEnvFilePaths()...)
}

func (e *Engine) watching() error {
	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, f := range e.watchedFiles() {
		f = filepath.Clean(f)
		files[f] = true
		// prime the cache so saving identical contents does not trigger a reload
		_ = e.isModified(f)
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := e.watcher.Add(dir); err != nil {
			e.watcherLog("failed to watch %s, error: %s", dir, err.Error())
			return err
		}
		e.watcherLog("watching %s", e.config.rel(dir))
	}

	go func() {
		for {
			select {
			case <-e.watcherStopCh:
				return
			case ev, ok := <-e.watcher.Events():
				if !ok {
					return
				}
				if !validEvent(ev) || !files[filepath.Clean(ev.Name)] {
					break
				}
				if removeEvent(ev) {
					e.fileChecksums.forget(filepath.Clean(ev.Name))
				}
				e.watcherDebug("%s has changed", e.config.rel(ev.Name))
				e.eventCh <- filepath.Clean(ev.Name)
			case err, ok := <-e.watcher.Errors():
				if !ok {
					return
				}
				e.watcherLog("error: %s", err.Error())
			}
		}
	}()
	return nil
}

func (e *Engine) isModified(filename string) bool {
	newChecksum, err := fileChecksum(filename)
	if err != nil {
		e.watcherDebug("can't determine if file was changed: %v - assuming it did without updating cache", err)
		return true
	}

	if e.fileChecksums.updateFileChecksum(filename, newChecksum) {
		e.watcherDebug("stored checksum for %s: %s", e.config.rel(filename), newChecksum)
		return true
	}

	return false
}

// start reruns the pipeline on env file changes until ctx is done.
func (e *Engine) start(ctx context.Context) {
	e.rerun(ctx)
	for {
		select {
		case <-ctx.Done():
			e.mainDebug("exit in start")
			return
		case filename := <-e.eventCh:
			if !e.isModified(filename) {
				e.mainDebug("skipping %s because contents unchanged", e.config.rel(filename))
				continue
			}

			// multiple write events arrive for a single save
			time.Sleep(e.config.watchDelay())
			e.flushEvents()

			e.mainLog("%s has changed", e.config.rel(filename))
			if err := e.reloadEnvironment(); err != nil {
				e.envLog("keeping the previous variables, error: %s", err.Error())
				continue
			}
			e.rerun(ctx)
		}
	}
}

func (e *Engine) rerun(ctx context.Context) {
	e.stopBin()
	if err := e.runPipeline(ctx); err != nil && ctx.Err() == nil {
		e.mainLog("pipeline failed, error: %s", err.Error())
	}
}

func (e *Engine) flushEvents() {
	for {
		select {
		case <-e.eventCh:
			e.mainDebug("flushing events")
		default:
			return
		}
	}
}

func (e *Engine) runPostCmd() error {
	var errs []error
	for _, t := range e.postTasks {
		if err := e.runTask(context.Background(), t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) cleanup() {
	e.mainLog("cleaning...")
	defer e.mainLog("see you again~")
	defer e.mainDebug("exited")

	e.stopBin()

	if e.watcher != nil {
		e.mainDebug("waiting for close watchers..")
		e.watcherStopCh <- true
		if err := e.watcher.Close(); err != nil {
			e.mainLog("failed to close watcher, error: %s", err.Error())
		}
	}
}

// Stop runs the post commands and makes Run return.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if err := e.runPostCmd(); err != nil {
			e.runnerLog("failed to execute post_cmd, error: %s", err.Error())
		}
		close(e.exitCh)
	})
}
