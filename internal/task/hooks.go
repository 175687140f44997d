package task

import (
	"drover/internal/exec"
	"drover/internal/server"
)

// HookEnv is what before and around hooks see: the task's current target
// and its option/argument bindings. A hook may rebind the run to a
// different server through Rebind; the replacement takes effect for
// everything after the hook returns.
type HookEnv struct {
	task *Task
}

// Server returns the task's current target.
func (e *HookEnv) Server() server.Ref {
	return e.task.current
}

// Opts returns the task's current option bindings. The map is live;
// hooks may adjust options for the rest of the run.
func (e *HookEnv) Opts() exec.Options {
	return e.task.opts
}

// Args returns the task's current positional arguments.
func (e *HookEnv) Args() []string {
	return e.task.args
}

// Rebind replaces the task's current target. The connect that follows a
// before hook, and everything after an around hook, uses the new target.
func (e *HookEnv) Rebind(srv server.Ref) {
	e.task.current = srv
}

// BeforeHook runs before connect. An error aborts the remaining before
// hooks and the run.
type BeforeHook func(env *HookEnv) error

// AroundHook runs twice per connection: once after successful
// authentication (closing=false) and once at disconnect (closing=true).
type AroundHook func(env *HookEnv, closing bool) error

// AfterHook always runs, including when connect failed (authenticated is
// false then) and on task failure.
type AfterHook func(srv server.Ref, authenticated bool, opts exec.Options) error

// runBefore invokes the before hooks in registration order. The first
// error aborts the remainder and propagates.
func (t *Task) runBefore() error {
	env := &HookEnv{task: t}
	for _, h := range t.before {
		if err := h(env); err != nil {
			return err
		}
	}
	return nil
}

// runAround invokes the around hooks in registration order with the
// closing flag. The first error aborts the remainder and propagates.
func (t *Task) runAround(closing bool) error {
	env := &HookEnv{task: t}
	for _, h := range t.around {
		if err := h(env, closing); err != nil {
			return err
		}
	}
	return nil
}

// runAfter invokes the after hooks in registration order. The first
// error aborts the remainder and propagates.
func (t *Task) runAfter(authenticated bool) error {
	for _, h := range t.after {
		if err := h(t.current, authenticated, t.opts); err != nil {
			return err
		}
	}
	return nil
}
