package runner

import (
	"context"
	"fmt"
	"sync"
)

// Task is a unit of work registered with the engine.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// EnvironmentTask is implemented by tasks that spawn a process and accept
// environment variables for it.
type EnvironmentTask interface {
	Task
	Environment(name, value string)
}

// TaskRegistry keeps tasks in registration order and notifies observers of
// every registered task.
type TaskRegistry struct {
	mu        sync.Mutex
	tasks     []Task
	byName    map[string]Task
	observers []func(Task)
}

// NewTaskRegistry returns an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{byName: make(map[string]Task)}
}

// Register adds t and passes it to every observer. Names must be unique.
func (r *TaskRegistry) Register(t Task) error {
	r.mu.Lock()
	if _, ok := r.byName[t.Name()]; ok {
		r.mu.Unlock()
		return fmt.Errorf("task %q is already registered", t.Name())
	}
	r.tasks = append(r.tasks, t)
	r.byName[t.Name()] = t
	observers := make([]func(Task), len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, fn := range observers {
		fn(t)
	}
	return nil
}

// All calls fn for every task registered so far and for every task
// registered afterwards.
func (r *TaskRegistry) All(fn func(Task)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	tasks := make([]Task, len(r.tasks))
	copy(tasks, r.tasks)
	r.mu.Unlock()

	for _, t := range tasks {
		fn(t)
	}
}

// Each calls fn for the tasks registered so far.
func (r *TaskRegistry) Each(fn func(Task)) {
	for _, t := range r.Tasks() {
		fn(t)
	}
}

// Get returns the task registered under name.
func (r *TaskRegistry) Get(name string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byName[name]
	return t, ok
}

// Tasks returns the registered tasks in registration order.
func (r *TaskRegistry) Tasks() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	tasks := make([]Task, len(r.tasks))
	copy(tasks, r.tasks)
	return tasks
}
