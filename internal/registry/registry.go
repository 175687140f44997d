// Package registry holds the named tasks and fans runs out across their
// resolved servers. It also owns the task-start and task-finish hooks
// that wrap every task run.
package registry

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"drover/internal/errors"
	"drover/internal/exec"
	"drover/internal/logger"
	"drover/internal/server"
	"drover/internal/task"
)

// StartHook runs before a task executes against one server.
type StartHook func(t *task.Task, srv server.Ref) error

// FinishHook runs after a task executed against one server, with the
// run's error (nil on success).
type FinishHook func(t *task.Task, srv server.Ref, err error)

// Registry is the task list: registration, lookup, visible listing, and
// fan-out execution.
type Registry struct {
	mu       sync.RWMutex
	tasks    map[string]*task.Task
	order    []string
	onStart  []StartHook
	onFinish []FinishHook
	log      logger.Logger
}

// New creates an empty registry.
func New(log logger.Logger) *Registry {
	if log == nil {
		log = logger.Default()
	}
	return &Registry{tasks: make(map[string]*task.Task), log: log}
}

// Register adds a task. Names are unique within a registry.
func (r *Registry) Register(t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.Name()]; exists {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("A task named '%s' is already registered", t.Name()),
			"Task names are unique; rename one of them.")
	}
	r.tasks[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get looks a task up by name.
func (r *Registry) Get(name string) (*task.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Names lists registered task names in registration order. Hidden tasks
// are excluded unless includeHidden is set.
func (r *Registry) Names(includeHidden bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if !includeHidden && r.tasks[name].Hidden() {
			continue
		}
		out = append(out, name)
	}
	return out
}

// OnStart registers a hook run before every per-server task run.
func (r *Registry) OnStart(h StartHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStart = append(r.onStart, h)
}

// OnFinish registers a hook run after every per-server task run.
func (r *Registry) OnFinish(h FinishHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinish = append(r.onFinish, h)
}

// Fanout adapts the registry into the run driver's fan-out collaborator.
func (r *Registry) Fanout() task.Fanout {
	return func(rc *task.RunContext, t *task.Task, opts task.RunOptions) ([]any, error) {
		return r.RunAll(rc.Ctx, t, rc.Settings, opts)
	}
}

// RunAll runs the task once per resolved server, bounded by the task's
// parallelism hint. Each per-server run gets its own cloned task and its
// own connection stack; nothing is shared between goroutines. Results
// come back in server order; the first error wins.
func (r *Registry) RunAll(ctx context.Context, t *task.Task, settings task.Settings, opts task.RunOptions) ([]any, error) {
	servers, err := t.Servers(settings.Groups, r.log)
	if err != nil {
		return nil, err
	}

	results := make([]any, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	if n := t.Parallel(); n > 0 {
		g.SetLimit(n)
	}

	for i, srv := range servers {
		g.Go(func() error {
			clone := t.Clone()
			rc := task.NewRunContext(gctx, settings)
			rc.Log = r.log
			rc.Fanout = r.Fanout()

			res, err := r.runOne(rc, clone, srv, opts)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// runOne wraps a single per-server run in the registry's start and
// finish hooks.
func (r *Registry) runOne(rc *task.RunContext, t *task.Task, srv server.Ref, opts task.RunOptions) (any, error) {
	for _, h := range r.onStart {
		if err := h(t, srv); err != nil {
			return nil, err
		}
	}

	res, err := t.Run(rc, srv, opts)

	for _, h := range r.onFinish {
		h(t, srv, err)
	}
	return res, err
}

// Run is the legacy class-level entry point: look a task up by name,
// optionally overwrite its server list, and fan it out.
//
// Deprecated: build a task.RunContext and call Task.Run, or use RunAll.
func (r *Registry) Run(ctx context.Context, taskName string, serverOverride []string, params map[string]any, settings task.Settings) ([]any, error) {
	r.log.Warn("registry.Run is deprecated, use RunAll with an explicit run context")

	t, ok := r.Get(taskName)
	if !ok {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("No task named '%s'", taskName),
			"Check the task name against the registered tasks.")
	}

	if serverOverride != nil {
		refs := make([]server.Ref, len(serverOverride))
		for i, name := range serverOverride {
			refs[i] = server.Named(name)
		}
		if err := t.Modify("server", server.Static(refs...)); err != nil {
			return nil, err
		}
	}

	opts := task.RunOptions{}
	if params != nil {
		opts.Opts = exec.Options(params)
	}
	return r.RunAll(ctx, t, settings, opts)
}
