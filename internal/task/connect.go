package task

import (
	"fmt"

	"drover/internal/config"
	"drover/internal/conn"
	"drover/internal/creds"
	"drover/internal/errors"
	"drover/internal/server"
)

// Connect binds the server as the task's current target and establishes
// a connection frame for it. The effective credentials are the server's
// merged under the task's unless an override set is supplied, in which
// case the override wins entirely (fallback attempts come in this way).
//
// A reached host that rejects the credentials triggers the configured
// fallback credential sets in order, first success wins; each attempt
// starts from a cleanly popped frame. Override connects never trigger
// fallback themselves.
func (t *Task) Connect(rc *RunContext, srv server.Ref, override *creds.Set) error {
	t.current = srv
	t.wasAuthenticated = false
	t.invalidate()

	effective := t.MergeAuth(srv)
	if override != nil {
		effective = *override
	}
	effective.ResolveKeyPaths(rc.Settings.WorkDir)

	kind := t.ConnectionKind(rc.Settings.DefaultKind)
	t.lastKind = kind
	rc.log().Debug("connecting to %s via %s", srv.Name(), kind)

	tr, err := rc.newTransport(kind, conn.Options{
		Server:  srv,
		Creds:   effective,
		Timeout: rc.Settings.ConnectTimeout,
		WorkDir: rc.Settings.WorkDir,
		Log:     rc.log(),
	})
	if err != nil {
		return err
	}

	frame := rc.newFrame(tr, srv)
	rc.Stack.Push(frame)

	connErr := frame.Profiler.Track("connect", func() error {
		return tr.Connect(rc.Ctx)
	})
	if connErr != nil {
		// The attempt's error is swallowed here; the transport's
		// connected/authenticated flags decide what happens next, and
		// the error is carried along as the cause.
		rc.log().Debug("connect attempt to %s failed: %v", srv.Name(), connErr)
	}

	if !tr.IsConnected() {
		rc.popFrame(true)
		if connErr != nil {
			return connErr
		}
		return errors.New(errors.ErrConn,
			fmt.Sprintf("Can't connect to '%s'", srv.Name()),
			"Check the hostname and that the host is up.")
	}

	if !tr.IsAuthenticated() {
		rc.popFrame(true)
		authErr := t.authError(srv, effective, connErr)
		if override == nil {
			for i := range rc.Settings.FallbackAuth {
				fb := rc.Settings.FallbackAuth[i]
				rc.log().Info("authentication to %s failed, trying fallback credentials %d of %d",
					srv.Name(), i+1, len(rc.Settings.FallbackAuth))
				if err := t.Connect(rc, srv, &fb); err == nil {
					return nil
				}
			}
		}
		return authErr
	}

	t.wasAuthenticated = true
	t.transport = tr
	frame.Raw = tr.Raw()

	if err := t.runAround(false); err != nil {
		t.wasAuthenticated = false
		t.invalidate()
		rc.popFrame(true)
		return err
	}
	return nil
}

// Connection returns the cached transport from the last successful
// connect, connecting first when nothing is cached (any Modify discards
// the cache, so the next call here re-resolves the kind and
// re-authenticates).
func (t *Task) Connection(rc *RunContext) (conn.Transport, error) {
	if t.transport != nil {
		return t.transport, nil
	}

	target := t.current
	if target.IsZero() {
		servers, err := t.Servers(rc.Settings.Groups, rc.log())
		if err != nil {
			return nil, err
		}
		if len(servers) == 0 {
			return nil, errors.New(errors.ErrConfig,
				fmt.Sprintf("Task '%s' resolves no servers", t.name),
				"Check the task's server list, group members, and deferred sources.")
		}
		target = servers[0]
	}

	if err := t.Connect(rc, target, nil); err != nil {
		return nil, err
	}
	return t.transport, nil
}

// Disconnect runs the around hooks in closing mode, closes the transport,
// emits the profiler report when verbosity allows, discards the cached
// transport, and pops the frame. The frame is popped even when a closing
// hook fails; the hook error is returned after cleanup.
func (t *Task) Disconnect(rc *RunContext) error {
	hookErr := t.runAround(true)

	frame := rc.Stack.Current()
	if frame != nil {
		if frame.Transport != nil {
			if err := frame.Transport.Close(); err != nil {
				rc.log().Warn("closing connection to %s: %v", frame.Server.Name(), err)
			}
		}
		if rc.Settings.Verbosity >= config.VerbosityProfile {
			fmt.Fprintln(rc.out(), frame.Profiler.Report())
		}
	}

	t.invalidate()
	rc.Stack.Pop()
	return hookErr
}

// authError builds the host-qualified authentication failure, noting
// specifically when the user is root since servers commonly refuse
// direct root logins.
func (t *Task) authError(srv server.Ref, cs creds.Set, cause error) error {
	msg := fmt.Sprintf("Authentication to '%s' failed", srv.Name())
	suggestion := "Check the user, password, or key configured for this host."
	if cs.User == "root" {
		msg = fmt.Sprintf("Authentication to '%s' as root failed", srv.Name())
		suggestion = "Many servers refuse direct root logins. Try a regular user with sudo instead."
	}
	if cause != nil {
		return errors.WrapWithCode(cause, errors.ErrAuth, msg, suggestion)
	}
	return errors.New(errors.ErrAuth, msg, suggestion)
}
