package task

import (
	"context"
	"io"
	"os"
	"time"

	"drover/internal/conn"
	"drover/internal/creds"
	"drover/internal/exec"
	"drover/internal/facts"
	"drover/internal/logger"
	"drover/internal/notify"
	"drover/internal/profile"
	"drover/internal/report"
	"drover/internal/server"
)

// Settings are the externally configured signals a run consumes: the
// default remote transport, fallback credential sets, report type,
// verbosity, and fact collection.
type Settings struct {
	DefaultKind    conn.Kind
	FallbackAuth   []creds.Set
	Groups         server.GroupResolver
	ReportType     string
	Verbosity      int
	CollectFacts   bool
	FactsDir       string
	ConnectTimeout time.Duration
	WorkDir        string

	// Out receives report output; nil means stdout.
	Out io.Writer

	// NewTransport overrides transport construction; nil uses conn.New.
	NewTransport conn.Factory

	// Sink receives deferred notifications; nil logs them.
	Sink notify.Sink
}

// Fanout runs a task once per resolved server and aggregates the
// results. The registry provides it; a nil Fanout falls back to a
// sequential loop.
type Fanout func(rc *RunContext, t *Task, opts RunOptions) ([]any, error)

// RunContext carries one logical executing thread's state through the
// run: its context, its own connection stack, the configured settings,
// and output/logging. Concurrent per-host runs each get their own.
type RunContext struct {
	Ctx      context.Context
	Stack    *conn.Stack
	Settings Settings
	Log      logger.Logger
	Out      io.Writer
	Fanout   Fanout
}

// NewRunContext builds a run context with a fresh connection stack.
func NewRunContext(ctx context.Context, settings Settings) *RunContext {
	return &RunContext{
		Ctx:      ctx,
		Stack:    conn.NewStack(),
		Settings: settings,
		Out:      settings.Out,
	}
}

func (rc *RunContext) log() logger.Logger {
	if rc.Log != nil {
		return rc.Log
	}
	return logger.Default()
}

func (rc *RunContext) out() io.Writer {
	if rc.Out != nil {
		return rc.Out
	}
	return os.Stdout
}

func (rc *RunContext) newTransport(kind conn.Kind, opts conn.Options) (conn.Transport, error) {
	if rc.Settings.NewTransport != nil {
		return rc.Settings.NewTransport(kind, opts)
	}
	return conn.New(kind, opts)
}

// newFrame bundles the per-connection collaborators: a fresh facts
// store, profiler, reporter, and notifier, all released with the frame.
func (rc *RunContext) newFrame(tr conn.Transport, srv server.Ref) *conn.Frame {
	w, err := report.NewWriter(rc.Settings.ReportType, rc.out())
	if err != nil {
		rc.log().Warn("unknown report type '%s', using text", rc.Settings.ReportType)
		w, _ = report.NewWriter("text", rc.out())
	}
	return &conn.Frame{
		Transport: tr,
		Server:    srv,
		Facts:     facts.NewStore(rc.Settings.FactsDir),
		Profiler:  profile.New(),
		Reporter:  report.New(srv.Name(), w),
		Notifier:  notify.New(rc.Settings.Sink, rc.log()),
	}
}

// popFrame removes the current frame, closing its transport when asked.
func (rc *RunContext) popFrame(closeTransport bool) {
	f := rc.Stack.Pop()
	if f == nil {
		return
	}
	if closeTransport && f.Transport != nil {
		if err := f.Transport.Close(); err != nil {
			rc.log().Debug("closing transport to %s: %v", f.Server.Name(), err)
		}
	}
}

// RunOptions bundle the per-call bindings. Nil Opts/Args default to the
// task's bound options and arguments. InTransaction suppresses the
// automatic disconnect, leaving the connection open for a subsequent
// call in the same logical sequence.
type RunOptions struct {
	Opts          exec.Options
	Args          []string
	InTransaction bool
}

// missingInterpreterPause is how long the driver waits after warning
// about a target with no usable shell. A var so tests skip the wait.
var missingInterpreterPause = 1 * time.Second

// Run drives one task execution against a target.
//
// A zero target means "every resolved server": the run is delegated to
// the fan-out collaborator. The "<func>" sentinel is direct-call mode:
// the work runs against the current connection frame with no connect,
// hooks, or caching. Anything else is the normal per-server sequence:
// before hooks, connect (with auth fallback), facts, execute, deferred
// notifications, report, disconnect, after hooks — with the frame popped
// on every exit path.
func (t *Task) Run(rc *RunContext, target server.Ref, ro RunOptions) (any, error) {
	if target.IsZero() {
		return t.runAll(rc, ro)
	}
	if target.IsFunc() {
		return t.runDirect(rc, ro)
	}
	return t.runOn(rc, target, ro)
}

// runAll fans the task out across every resolved server.
func (t *Task) runAll(rc *RunContext, ro RunOptions) (any, error) {
	if rc.Fanout != nil {
		return rc.Fanout(rc, t, ro)
	}

	// No registry attached: run sequentially against each server.
	servers, err := t.Servers(rc.Settings.Groups, rc.log())
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(servers))
	for _, srv := range servers {
		res, err := t.Run(rc, srv, ro)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// runDirect invokes the work against the current frame, skipping
// connect, hooks, and caching.
func (t *Task) runDirect(rc *RunContext, ro RunOptions) (any, error) {
	frame := rc.Stack.Current()
	if frame != nil {
		frame.PushTask(t.name)
		defer frame.PopTask()
	}

	t.bind(ro)
	srv := t.current
	if frame != nil {
		srv = frame.Server
	}
	return t.executor.Invoke(rc.Ctx, t.work, &exec.Call{
		Server: srv,
		Opts:   t.opts,
		Args:   t.args,
		Frame:  frame,
	})
}

// runOn is the normal per-server mode.
func (t *Task) runOn(rc *RunContext, target server.Ref, ro RunOptions) (any, error) {
	start := time.Now()

	t.current = target
	if err := t.runBefore(); err != nil {
		return nil, err
	}
	target = t.current // a before hook may have rebound the target

	if err := t.Connect(rc, target, nil); err != nil {
		if hookErr := t.runAfter(false); hookErr != nil {
			rc.log().Warn("after hook failed: %v", hookErr)
		}
		if !t.exitOnConnectFail {
			rc.log().Warn("skipping %s: %v", target.Name(), err)
			return nil, nil
		}
		return nil, err
	}

	frame := rc.Stack.Current()
	frame.PushTask(t.name)

	var gathered facts.Facts
	if rc.Settings.CollectFacts {
		gathered = t.loadFacts(rc, frame, target)
	}

	if t.execable() && !exec.HasInterpreter(rc.Ctx, frame.Transport) {
		rc.log().Warn("%s has no usable command interpreter, continuing anyway", target.Name())
		time.Sleep(missingInterpreterPause)
	}

	t.bind(ro)

	result, execErr := t.executor.Invoke(rc.Ctx, t.work, &exec.Call{
		Server: target,
		Opts:   t.opts,
		Args:   t.args,
		Frame:  frame,
	})

	if execErr != nil {
		return nil, t.failRun(rc, frame, start, execErr, ro)
	}

	if err := frame.Notifier.Flush(); err != nil {
		rc.log().Warn("delivering deferred notifications: %v", err)
	}

	if rc.Settings.CollectFacts && gathered != nil {
		if err := frame.Facts.Save(target.Name(), gathered); err != nil {
			rc.log().Warn("persisting facts for %s: %v", target.Name(), err)
		}
	}

	frame.Reporter.TaskExecution(t.name, start, time.Now(), false, "")
	if err := frame.Reporter.Flush(); err != nil {
		rc.log().Warn("flushing report: %v", err)
	}

	frame.PopTask()

	if !ro.InTransaction {
		if err := t.Disconnect(rc); err != nil {
			rc.log().Warn("around hook failed during disconnect: %v", err)
		}
	}

	if err := t.runAfter(t.wasAuthenticated); err != nil {
		return result, err
	}
	return result, nil
}

// failRun reports the execution failure, unwinds the frame, runs the
// after hooks, and hands the original error back unmodified. The around
// hooks do not run in closing mode here: disconnect was never called on
// this path.
func (t *Task) failRun(rc *RunContext, frame *conn.Frame, start time.Time, execErr error, ro RunOptions) error {
	frame.Reporter.ResourceFailed(t.name, execErr.Error())
	frame.Reporter.TaskExecution(t.name, start, time.Now(), true, execErr.Error())
	if err := frame.Reporter.Flush(); err != nil {
		rc.log().Warn("flushing failure report: %v", err)
	}

	frame.PopTask()

	if !ro.InTransaction {
		t.invalidate()
		rc.popFrame(true)
	}

	if err := t.runAfter(t.wasAuthenticated); err != nil {
		rc.log().Warn("after hook failed: %v", err)
	}
	return execErr
}

// bind applies the per-call option and argument bindings onto the task;
// nil values keep the task's existing bindings.
func (t *Task) bind(ro RunOptions) {
	if ro.Opts != nil {
		t.opts = ro.Opts
	}
	if ro.Args != nil {
		t.args = ro.Args
	}
}

// execable reports whether the resolved transport can run shell commands
// at all. Fake and HTTP kinds have no interpreter by nature, so the
// missing-interpreter check is skipped for them.
func (t *Task) execable() bool {
	switch t.lastKind {
	case conn.KindFake, conn.KindHTTP, conn.KindHTTPS:
		return false
	default:
		return true
	}
}

// loadFacts returns cached facts for the target, gathering them when the
// cache is empty. Gathering failures are soft: the run continues.
func (t *Task) loadFacts(rc *RunContext, frame *conn.Frame, target server.Ref) facts.Facts {
	cached, ok, err := frame.Facts.Load(target.Name())
	if err != nil {
		rc.log().Warn("loading cached facts for %s: %v", target.Name(), err)
	}
	if ok {
		return cached
	}

	gatherer := &facts.CommandGatherer{}
	gathered, err := gatherer.Gather(rc.Ctx, frame.Transport.Exec)
	if err != nil {
		rc.log().Warn("gathering facts for %s: %v", target.Name(), err)
		return nil
	}
	return gathered
}
