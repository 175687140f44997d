package conn

import (
	"context"
	"fmt"

	"drover/internal/creds"
	"drover/internal/errors"
	"drover/internal/logger"
	"drover/internal/server"
	"drover/pkg/sshutil"
)

// opensshTransport reaches a host over SSH in two phases: a TCP dial
// (connected) followed by the SSH handshake (authenticated). The split is
// what lets the auth-fallback loop tell "host unreachable" apart from
// "credentials rejected".
type opensshTransport struct {
	srv    server.Ref
	cs     creds.Set
	opts   Options
	log    logger.Logger
	client *sshutil.Client
	dialed bool
	authed bool
}

func newOpenSSH(opts Options) *opensshTransport {
	return &opensshTransport{srv: opts.Server, cs: opts.Creds, opts: opts, log: opts.log()}
}

func (t *opensshTransport) Connect(_ context.Context) error {
	settings := sshutil.Resolve(t.srv.Name(), t.cs)
	timeout := t.opts.timeout()

	netConn, err := settings.Dial(timeout)
	if err != nil {
		t.dialed = false
		return errors.WrapWithCode(err, errors.ErrConn,
			fmt.Sprintf("Can't reach '%s'", settings.Address()),
			"Check the hostname and that the host is up.")
	}
	t.dialed = true
	t.log.Debug("reached %s, starting SSH handshake", settings.Address())

	client, err := settings.Handshake(netConn, t.cs, timeout)
	if err != nil {
		netConn.Close()
		t.authed = false
		if sshutil.IsAuthError(err) {
			return errors.WrapWithCode(err, errors.ErrAuth,
				fmt.Sprintf("Authentication to '%s' failed", settings.Address()),
				"Check the user, password, or key configured for this host.")
		}
		return err
	}

	t.client = client
	t.authed = true
	return nil
}

func (t *opensshTransport) Close() error {
	t.dialed = false
	t.authed = false
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func (t *opensshTransport) IsConnected() bool     { return t.dialed }
func (t *opensshTransport) IsAuthenticated() bool { return t.authed }

// Raw returns the live *sshutil.Client, or nil before authentication.
func (t *opensshTransport) Raw() any {
	if t.client == nil {
		return nil
	}
	return t.client
}

func (t *opensshTransport) Exec(_ context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	if t.client == nil {
		return nil, nil, -1, errors.New(errors.ErrConn,
			fmt.Sprintf("Not connected to '%s'", t.srv.Name()),
			"Connect before running commands.")
	}
	return t.client.Exec(cmd)
}
