// Package task is the orchestrating entity of the execution core: a named
// unit of work plus its targeting, credential, and hook configuration, and
// the run driver that connects, executes, reports, and cleans up on every
// exit path.
package task

import (
	"fmt"

	"drover/internal/conn"
	"drover/internal/creds"
	"drover/internal/errors"
	"drover/internal/exec"
	"drover/internal/logger"
	"drover/internal/server"
)

// Config carries a task's construction-time fields. Everything except
// Name is optional; an unset Work defaults to a no-op.
type Config struct {
	Name    string
	Desc    string
	Hidden  bool
	Work    exec.WorkFunc
	Servers server.Source

	// Protocol overrides, evaluated in this priority order.
	HTTP    bool
	HTTPS   bool
	OpenSSH bool

	// NoSSH iterates hosts without establishing a transport.
	NoSSH bool

	Auth   creds.Set
	Before []BeforeHook
	After  []AfterHook
	Around []AroundHook

	// Parallel bounds fan-out concurrency. Zero means unbounded.
	Parallel int

	// ExitOnConnectFail defaults to true; nil keeps the default.
	ExitOnConnectFail *bool

	Opts exec.Options
	Args []string

	// Executor defaults to a freshly created one.
	Executor *exec.Executor
}

// Task owns its credential set, hook lists, and option/argument bindings.
// The current target and authentication flag are transient per run; a
// Task is not safe to share across concurrent runs without Clone.
type Task struct {
	name              string
	desc              string
	hidden            bool
	work              exec.WorkFunc
	source            server.Source
	http              bool
	https             bool
	openssh           bool
	noSSH             bool
	creds             creds.Set
	before            []BeforeHook
	after             []AfterHook
	around            []AroundHook
	parallel          int
	exitOnConnectFail bool
	opts              exec.Options
	args              []string
	executor          *exec.Executor

	// Transient per-run state.
	current          server.Ref
	wasAuthenticated bool
	transport        conn.Transport
	lastKind         conn.Kind
}

// New builds a task. A missing name is fatal at construction.
func New(cfg Config) (*Task, error) {
	if cfg.Name == "" {
		return nil, errors.New(errors.ErrConfig,
			"Task has no name",
			"Every task needs a unique name.")
	}

	t := &Task{
		name:              cfg.Name,
		desc:              cfg.Desc,
		hidden:            cfg.Hidden,
		work:              cfg.Work,
		source:            cfg.Servers,
		http:              cfg.HTTP,
		https:             cfg.HTTPS,
		openssh:           cfg.OpenSSH,
		noSSH:             cfg.NoSSH,
		creds:             cfg.Auth,
		before:            append([]BeforeHook(nil), cfg.Before...),
		after:             append([]AfterHook(nil), cfg.After...),
		around:            append([]AroundHook(nil), cfg.Around...),
		parallel:          cfg.Parallel,
		exitOnConnectFail: true,
		opts:              cloneOpts(cfg.Opts),
		args:              append([]string(nil), cfg.Args...),
		executor:          cfg.Executor,
	}
	if cfg.ExitOnConnectFail != nil {
		t.exitOnConnectFail = *cfg.ExitOnConnectFail
	}
	if t.executor == nil {
		t.executor = exec.New(nil)
	}
	if t.opts == nil {
		t.opts = exec.Options{}
	}
	return t, nil
}

// Name returns the task's unique name.
func (t *Task) Name() string { return t.name }

// Desc returns the task's description.
func (t *Task) Desc() string { return t.desc }

// SetDesc replaces the description.
func (t *Task) SetDesc(desc string) { t.desc = desc }

// Hidden reports whether the task is excluded from visible listings.
func (t *Task) Hidden() bool { return t.hidden }

// Creds returns the task-level credential set.
func (t *Task) Creds() creds.Set { return t.creds }

// SetCreds replaces the task-level credential set.
func (t *Task) SetCreds(cs creds.Set) { t.creds = cs }

// SetCred sets a single field of the task-level credential set by name:
// user, password, private_key, public_key, or sudo_password.
func (t *Task) SetCred(field, value string) error {
	switch field {
	case "user":
		t.creds.User = value
	case "password":
		t.creds.Password = value
	case "private_key":
		t.creds.PrivateKey = value
	case "public_key":
		t.creds.PublicKey = value
	case "sudo_password":
		t.creds.SudoPassword = value
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown credential field '%s'", field),
			"Use user, password, private_key, public_key, or sudo_password.")
	}
	return nil
}

// Work returns the task's work function.
func (t *Task) Work() exec.WorkFunc { return t.work }

// SetWork replaces the task's work function.
func (t *Task) SetWork(fn exec.WorkFunc) { t.work = fn }

// Args returns the positional argument bindings.
func (t *Task) Args() []string { return t.args }

// SetArgs replaces the positional argument bindings.
func (t *Task) SetArgs(args []string) { t.args = args }

// Opts returns the option bindings.
func (t *Task) Opts() exec.Options { return t.opts }

// SetOpt binds a single option.
func (t *Task) SetOpt(key string, value any) {
	if t.opts == nil {
		t.opts = exec.Options{}
	}
	t.opts[key] = value
}

// SetOpts replaces the option bindings.
func (t *Task) SetOpts(opts exec.Options) {
	if opts == nil {
		opts = exec.Options{}
	}
	t.opts = opts
}

// Parallel returns the fan-out concurrency hint.
func (t *Task) Parallel() int { return t.parallel }

// SetParallel replaces the fan-out concurrency hint.
func (t *Task) SetParallel(n int) { t.parallel = n }

// ExitOnConnectFail reports whether a connect failure fails the run
// rather than skipping the host.
func (t *Task) ExitOnConnectFail() bool { return t.exitOnConnectFail }

// SetExitOnConnectFail replaces the connect-failure policy.
func (t *Task) SetExitOnConnectFail(v bool) { t.exitOnConnectFail = v }

// Current returns the transiently targeted server, zero outside a run.
func (t *Task) Current() server.Ref { return t.current }

// WasAuthenticated reports whether the last connect authenticated.
func (t *Task) WasAuthenticated() bool { return t.wasAuthenticated }

// IsRemote reports whether this task targets a remote host: either the
// current target is a named host, or a server source is configured.
func (t *Task) IsRemote() bool {
	if !t.current.IsZero() {
		return !t.current.IsLocal()
	}
	return t.source.Configured()
}

// ConnectionKind resolves the transport kind this task would use, given
// the configured default remote kind.
func (t *Task) ConnectionKind(def conn.Kind) conn.Kind {
	return conn.ResolveKind(t.http, t.https, t.IsRemote(), t.openssh, !t.noSSH, def)
}

// MergeAuth computes the effective credential set for a server: the
// server-level set merged under the task-level set, task values winning
// per field.
func (t *Task) MergeAuth(srv server.Ref) creds.Set {
	return creds.Merge(t.creds, srv.Creds)
}

// Servers resolves the configured server source into an ordered list of
// targets. The deprecated trailing credential map, when present, is
// logged and set (not merged) into the task's credentials first.
func (t *Task) Servers(groups server.GroupResolver, log logger.Logger) ([]server.Ref, error) {
	if log == nil {
		log = logger.Default()
	}
	if m, ok := t.source.TakeTrailingCreds(); ok {
		log.Warn("task '%s': trailing credential maps in server lists are deprecated, use the task's auth field", t.name)
		t.creds.Assign(m)
	}
	return t.source.Resolve(groups)
}

// Modify changes one configuration field by name: list-typed fields are
// appended to, everything else is replaced. Any modification invalidates
// the cached transport so the next connect re-resolves the kind and
// re-authenticates.
func (t *Task) Modify(key string, value any) error {
	defer t.invalidate()

	switch key {
	case "desc":
		s, ok := value.(string)
		if !ok {
			return badModify(key, "a string")
		}
		t.desc = s
	case "hidden":
		b, ok := value.(bool)
		if !ok {
			return badModify(key, "a bool")
		}
		t.hidden = b
	case "func":
		fn, ok := value.(exec.WorkFunc)
		if !ok {
			return badModify(key, "a work function")
		}
		t.work = fn
	case "server":
		src, ok := value.(server.Source)
		if !ok {
			return badModify(key, "a server source")
		}
		t.source = src
	case "auth":
		cs, ok := value.(creds.Set)
		if !ok {
			return badModify(key, "a credential set")
		}
		t.creds = cs
	case "before":
		h, ok := value.(BeforeHook)
		if !ok {
			return badModify(key, "a before hook")
		}
		t.before = append(t.before, h)
	case "after":
		h, ok := value.(AfterHook)
		if !ok {
			return badModify(key, "an after hook")
		}
		t.after = append(t.after, h)
	case "around":
		h, ok := value.(AroundHook)
		if !ok {
			return badModify(key, "an around hook")
		}
		t.around = append(t.around, h)
	case "args":
		s, ok := value.(string)
		if !ok {
			return badModify(key, "a string argument")
		}
		t.args = append(t.args, s)
	case "opts":
		m, ok := value.(exec.Options)
		if !ok {
			return badModify(key, "an options map")
		}
		t.opts = m
	case "parallel":
		n, ok := value.(int)
		if !ok {
			return badModify(key, "an int")
		}
		t.parallel = n
	case "no_ssh":
		b, ok := value.(bool)
		if !ok {
			return badModify(key, "a bool")
		}
		t.noSSH = b
	case "exit_on_connect_fail":
		b, ok := value.(bool)
		if !ok {
			return badModify(key, "a bool")
		}
		t.exitOnConnectFail = b
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Task has no modifiable field '%s'", key),
			"Check the field name.")
	}
	return nil
}

func badModify(key, want string) error {
	return errors.New(errors.ErrConfig,
		fmt.Sprintf("Field '%s' needs %s", key, want),
		"Check the value passed to modify.")
}

// invalidate discards the cached transport, forcing the next connect to
// re-resolve the connection kind and re-authenticate. The connection
// stack is untouched.
func (t *Task) invalidate() {
	t.transport = nil
}

// Data snapshots all configuration fields. The snapshot does not alias
// the task's slices or maps.
func (t *Task) Data() Config {
	exitOn := t.exitOnConnectFail
	return Config{
		Name:              t.name,
		Desc:              t.desc,
		Hidden:            t.hidden,
		Work:              t.work,
		Servers:           t.source,
		HTTP:              t.http,
		HTTPS:             t.https,
		OpenSSH:           t.openssh,
		NoSSH:             t.noSSH,
		Auth:              t.creds,
		Before:            append([]BeforeHook(nil), t.before...),
		After:             append([]AfterHook(nil), t.after...),
		Around:            append([]AroundHook(nil), t.around...),
		Parallel:          t.parallel,
		ExitOnConnectFail: &exitOn,
		Opts:              cloneOpts(t.opts),
		Args:              append([]string(nil), t.args...),
		Executor:          t.executor,
	}
}

// Clone builds an independent task from this one's configuration. Later
// mutations of either do not affect the other; use it when fanning the
// same task out across hosts concurrently.
func (t *Task) Clone() *Task {
	cfg := t.Data()
	cfg.Executor = exec.New(nil)
	clone, _ := New(cfg) // the source task always has a name
	return clone
}

func cloneOpts(opts exec.Options) exec.Options {
	out := exec.Options{}
	for k, v := range opts {
		out[k] = v
	}
	return out
}
