package task

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drover/internal/conn"
	"drover/internal/creds"
	"drover/internal/errors"
	"drover/internal/exec"
	"drover/internal/logger"
	"drover/internal/server"
)

// scriptedTransport is a canned transport for driving the connect and
// run state machines without a network.
type scriptedTransport struct {
	opts     conn.Options
	dialFail bool
	authWith string // password that authenticates; "" accepts anything

	connected bool
	authed    bool
	closed    int
	execOut   string
	execCode  int
	execErr   error
	execLog   []string
}

func (t *scriptedTransport) Connect(_ context.Context) error {
	if t.dialFail {
		return errors.New(errors.ErrConn, "host unreachable", "")
	}
	t.connected = true
	if t.authWith != "" && t.opts.Creds.Password != t.authWith {
		return errors.New(errors.ErrAuth, "credentials rejected", "")
	}
	t.authed = true
	return nil
}

func (t *scriptedTransport) Close() error {
	t.closed++
	t.connected = false
	t.authed = false
	return nil
}

func (t *scriptedTransport) IsConnected() bool     { return t.connected }
func (t *scriptedTransport) IsAuthenticated() bool { return t.authed }
func (t *scriptedTransport) Raw() any              { return t }

func (t *scriptedTransport) Exec(_ context.Context, cmd string) ([]byte, []byte, int, error) {
	t.execLog = append(t.execLog, cmd)
	return []byte(t.execOut), nil, t.execCode, t.execErr
}

// transportRecorder builds scripted transports and remembers every one.
type transportRecorder struct {
	built []*scriptedTransport
	next  func(opts conn.Options) *scriptedTransport
}

func (r *transportRecorder) factory(_ conn.Kind, opts conn.Options) (conn.Transport, error) {
	tr := r.next(opts)
	tr.opts = opts
	r.built = append(r.built, tr)
	return tr, nil
}

// shellTransport always dials, auths, and reports a usable shell.
func shellTransport(_ conn.Options) *scriptedTransport {
	return &scriptedTransport{execOut: "/bin/sh\n"}
}

func newTestRC(rec *transportRecorder) *RunContext {
	rc := NewRunContext(context.Background(), Settings{
		DefaultKind:  conn.KindOpenSSH,
		NewTransport: rec.factory,
	})
	rc.Log = logger.Noop()
	rc.Out = io.Discard
	return rc
}

func mustTask(t *testing.T, cfg Config) *Task {
	t.Helper()
	tk, err := New(cfg)
	require.NoError(t, err)
	return tk
}

func TestNew_RequiresName(t *testing.T) {
	_, err := New(Config{Desc: "anonymous"})

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestNew_Defaults(t *testing.T) {
	tk := mustTask(t, Config{Name: "deploy"})

	assert.True(t, tk.ExitOnConnectFail())
	assert.Nil(t, tk.Work())
	assert.NotNil(t, tk.Opts())
	assert.False(t, tk.Hidden())
}

func TestMergeAuth(t *testing.T) {
	tk := mustTask(t, Config{
		Name: "deploy",
		Auth: creds.Set{User: "deployer", PrivateKey: "~/.ssh/deploy"},
	})
	srv := server.Named("web1").WithCreds(creds.Set{User: "ops", Password: "hunter2"})

	got := tk.MergeAuth(srv)

	// Task wins where both are set; server fills the gaps.
	assert.Equal(t, "deployer", got.User)
	assert.Equal(t, "hunter2", got.Password)
	assert.Equal(t, "~/.ssh/deploy", got.PrivateKey)
}

func TestSetCred(t *testing.T) {
	tk := mustTask(t, Config{Name: "deploy", Auth: creds.Set{User: "deployer"}})

	require.NoError(t, tk.SetCred("password", "hunter2"))
	require.NoError(t, tk.SetCred("private_key", "~/.ssh/deploy"))
	require.NoError(t, tk.SetCred("public_key", "~/.ssh/deploy.pub"))
	require.NoError(t, tk.SetCred("sudo_password", "hunter3"))
	require.NoError(t, tk.SetCred("user", "ops"))

	got := tk.Creds()
	assert.Equal(t, "ops", got.User)
	assert.Equal(t, "hunter2", got.Password)
	assert.Equal(t, "~/.ssh/deploy", got.PrivateKey)
	assert.Equal(t, "~/.ssh/deploy.pub", got.PublicKey)
	assert.Equal(t, "hunter3", got.SudoPassword)

	err := tk.SetCred("passphrase", "nope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Equal(t, got, tk.Creds(), "a rejected field leaves the set untouched")
}

func TestServers_NoSourceYieldsLocalSentinel(t *testing.T) {
	tk := mustTask(t, Config{Name: "deploy"})

	refs, err := tk.Servers(nil, logger.Noop())

	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.True(t, refs[0].IsLocal())
}

func TestServers_TrailingCredentialMapIsDeprecated(t *testing.T) {
	src, err := server.ParseList([]any{
		"web1", "web2",
		map[string]string{"user": "legacy", "password": "hunter2"},
	})
	require.NoError(t, err)

	buf := logger.NewBufferLogger()
	tk := mustTask(t, Config{Name: "deploy", Servers: src})

	refs, err := tk.Servers(nil, buf)

	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.True(t, buf.Contains("deprecated"))
	assert.Equal(t, "legacy", tk.Creds().User)
	assert.Equal(t, "hunter2", tk.Creds().Password)

	// The map is consumed once: a second resolve does not warn again.
	buf.Clear()
	_, err = tk.Servers(nil, buf)
	require.NoError(t, err)
	assert.False(t, buf.Contains("deprecated"))
}

func TestConnectionKind(t *testing.T) {
	remoteSrc := server.Static(server.Named("web1"))

	tests := []struct {
		name string
		cfg  Config
		want conn.Kind
	}{
		{name: "no servers is local", cfg: Config{Name: "t"}, want: conn.KindLocal},
		{name: "remote uses default", cfg: Config{Name: "t", Servers: remoteSrc}, want: conn.KindOpenSSH},
		{name: "explicit openssh", cfg: Config{Name: "t", Servers: remoteSrc, OpenSSH: true}, want: conn.KindOpenSSH},
		{name: "http flag wins", cfg: Config{Name: "t", Servers: remoteSrc, HTTP: true, OpenSSH: true}, want: conn.KindHTTP},
		{name: "https flag", cfg: Config{Name: "t", Servers: remoteSrc, HTTPS: true}, want: conn.KindHTTPS},
		{name: "no_ssh remote is fake", cfg: Config{Name: "t", Servers: remoteSrc, NoSSH: true}, want: conn.KindFake},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := mustTask(t, tt.cfg)
			assert.Equal(t, tt.want, tk.ConnectionKind(conn.KindOpenSSH))
		})
	}
}

func TestModify(t *testing.T) {
	first := BeforeHook(func(*HookEnv) error { return nil })
	second := BeforeHook(func(*HookEnv) error { return nil })
	tk := mustTask(t, Config{Name: "deploy", Before: []BeforeHook{first}})

	require.NoError(t, tk.Modify("before", second))
	assert.Len(t, tk.before, 2)

	require.NoError(t, tk.Modify("desc", "redeploys the app"))
	assert.Equal(t, "redeploys the app", tk.Desc())

	require.NoError(t, tk.Modify("args", "v2"))
	assert.Equal(t, []string{"v2"}, tk.Args())

	require.NoError(t, tk.Modify("exit_on_connect_fail", false))
	assert.False(t, tk.ExitOnConnectFail())

	err := tk.Modify("nonsense", 1)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	err = tk.Modify("desc", 42)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestModify_InvalidatesCachedTransport(t *testing.T) {
	rec := &transportRecorder{next: shellTransport}
	rc := newTestRC(rec)
	tk := mustTask(t, Config{Name: "deploy", Servers: server.Static(server.Named("web1"))})

	_, err := tk.Connection(rc)
	require.NoError(t, err)
	_, err = tk.Connection(rc)
	require.NoError(t, err)
	assert.Len(t, rec.built, 1, "second Connection call reuses the cache")

	require.NoError(t, tk.Modify("desc", "changed"))

	_, err = tk.Connection(rc)
	require.NoError(t, err)
	assert.Len(t, rec.built, 2, "modify forces a fresh transport")
}

func TestCloneIsIndependent(t *testing.T) {
	tk := mustTask(t, Config{
		Name:   "deploy",
		Desc:   "deploys the app",
		Auth:   creds.Set{User: "deployer"},
		Opts:   exec.Options{"dry_run": false},
		Args:   []string{"v1"},
		Before: []BeforeHook{func(*HookEnv) error { return nil }},
	})

	clone := tk.Clone()

	orig, copied := tk.Data(), clone.Data()
	assert.Equal(t, orig.Name, copied.Name)
	assert.Equal(t, orig.Desc, copied.Desc)
	assert.Equal(t, orig.Auth, copied.Auth)
	assert.Equal(t, orig.Opts, copied.Opts)
	assert.Equal(t, orig.Args, copied.Args)
	assert.Len(t, copied.Before, 1)

	clone.SetDesc("changed")
	clone.SetOpt("dry_run", true)
	clone.SetArgs([]string{"v2"})
	require.NoError(t, clone.Modify("before", BeforeHook(func(*HookEnv) error { return nil })))

	assert.Equal(t, "deploys the app", tk.Desc())
	assert.Equal(t, false, tk.Opts()["dry_run"])
	assert.Equal(t, []string{"v1"}, tk.Args())
	assert.Len(t, tk.before, 1)
}

func TestData_DoesNotAliasTask(t *testing.T) {
	tk := mustTask(t, Config{Name: "deploy", Args: []string{"v1"}, Opts: exec.Options{"k": "v"}})

	data := tk.Data()
	data.Args[0] = "mutated"
	data.Opts["k"] = "mutated"

	assert.Equal(t, "v1", tk.Args()[0])
	assert.Equal(t, "v", tk.Opts()["k"])
}
