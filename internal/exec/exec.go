// Package exec owns invocation of a task's work function. The executor is
// deliberately thin: it binds the per-call options and arguments into a
// Call, runs the work, and hands the dynamic result back untouched so
// single-value and multi-value semantics survive the trip.
package exec

import (
	"context"
	"strings"

	"drover/internal/conn"
	"drover/internal/errors"
	"drover/internal/logger"
	"drover/internal/server"
)

var errNoTransport = errors.New(errors.ErrExec,
	"No active connection for this call",
	"Connect before executing commands.")

// Options are the per-call option bindings.
type Options map[string]any

// Call is everything a work function can reach: the resolved target, the
// bound options and positional arguments, and the connection frame it is
// running within (nil in direct-call mode before any connect).
type Call struct {
	Server server.Ref
	Opts   Options
	Args   []string
	Frame  *conn.Frame
}

// Exec runs a command on the call's connected host. It fails when the
// call has no frame or the frame has no transport.
func (c *Call) Exec(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	if c.Frame == nil || c.Frame.Transport == nil {
		return nil, nil, -1, errNoTransport
	}
	return c.Frame.Transport.Exec(ctx, cmd)
}

// WorkFunc is a task's body. The any return carries whatever the work
// produces; err is reported and re-raised by the run driver.
type WorkFunc func(ctx context.Context, call *Call) (any, error)

// Executor invokes work functions. Each task owns a fresh one unless
// configured otherwise.
type Executor struct {
	log logger.Logger
}

// New creates an executor.
func New(log logger.Logger) *Executor {
	if log == nil {
		log = logger.Default()
	}
	return &Executor{log: log}
}

// Invoke runs the work function with the bound call. A nil work function
// is a no-op.
func (e *Executor) Invoke(ctx context.Context, work WorkFunc, call *Call) (any, error) {
	if work == nil {
		e.log.Debug("task against %s has no work function, skipping", call.Server.Name())
		return nil, nil
	}
	return work(ctx, call)
}

// interpreterProbe is the command used to check for a usable shell on
// the target.
const interpreterProbe = "command -v sh"

// HasInterpreter reports whether the target has a usable command
// interpreter. A probe that errors counts as missing.
func HasInterpreter(ctx context.Context, tr conn.Transport) bool {
	stdout, _, code, err := tr.Exec(ctx, interpreterProbe)
	if err != nil || code != 0 {
		return false
	}
	return strings.TrimSpace(string(stdout)) != ""
}
