package registry

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drover/internal/conn"
	"drover/internal/errors"
	"drover/internal/exec"
	"drover/internal/logger"
	"drover/internal/server"
	"drover/internal/task"
)

// openTransport always connects and authenticates.
type openTransport struct {
	open bool
}

func (t *openTransport) Connect(_ context.Context) error { t.open = true; return nil }
func (t *openTransport) Close() error                    { t.open = false; return nil }
func (t *openTransport) IsConnected() bool               { return t.open }
func (t *openTransport) IsAuthenticated() bool           { return t.open }
func (t *openTransport) Raw() any                        { return nil }
func (t *openTransport) Exec(_ context.Context, _ string) ([]byte, []byte, int, error) {
	return []byte("/bin/sh\n"), nil, 0, nil
}

func testSettings() task.Settings {
	return task.Settings{
		DefaultKind: conn.KindOpenSSH,
		Out:         io.Discard,
		NewTransport: func(_ conn.Kind, _ conn.Options) (conn.Transport, error) {
			return &openTransport{}, nil
		},
	}
}

func mustTask(t *testing.T, cfg task.Config) *task.Task {
	t.Helper()
	tk, err := task.New(cfg)
	require.NoError(t, err)
	return tk
}

func TestRegister_RejectsDuplicateNames(t *testing.T) {
	r := New(logger.Noop())

	require.NoError(t, r.Register(mustTask(t, task.Config{Name: "deploy"})))
	err := r.Register(mustTask(t, task.Config{Name: "deploy"}))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestGet(t *testing.T) {
	r := New(logger.Noop())
	require.NoError(t, r.Register(mustTask(t, task.Config{Name: "deploy"})))

	got, ok := r.Get("deploy")
	require.True(t, ok)
	assert.Equal(t, "deploy", got.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestNames_HonorsHiddenFlag(t *testing.T) {
	r := New(logger.Noop())
	require.NoError(t, r.Register(mustTask(t, task.Config{Name: "deploy"})))
	require.NoError(t, r.Register(mustTask(t, task.Config{Name: "internal-sync", Hidden: true})))
	require.NoError(t, r.Register(mustTask(t, task.Config{Name: "restart"})))

	assert.Equal(t, []string{"deploy", "restart"}, r.Names(false))
	assert.Equal(t, []string{"deploy", "internal-sync", "restart"}, r.Names(true))
}

func TestRunAll_OnePerServerInOrder(t *testing.T) {
	r := New(logger.Noop())

	var mu sync.Mutex
	var ran []string
	tk := mustTask(t, task.Config{
		Name:     "deploy",
		Servers:  server.Static(server.Named("web1"), server.Named("web2"), server.Named("web3")),
		Parallel: 1,
		Work: func(_ context.Context, call *exec.Call) (any, error) {
			mu.Lock()
			ran = append(ran, call.Server.Name())
			mu.Unlock()
			return call.Server.Name(), nil
		},
	})

	results, err := r.RunAll(context.Background(), tk, testSettings(), task.RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, []any{"web1", "web2", "web3"}, results)
	assert.Equal(t, []string{"web1", "web2", "web3"}, ran, "parallel=1 runs sequentially")
}

func TestRunAll_ClonesKeepTaskMutationsIsolated(t *testing.T) {
	r := New(logger.Noop())

	tk := mustTask(t, task.Config{
		Name:    "deploy",
		Servers: server.Static(server.Named("web1"), server.Named("web2")),
		Opts:    exec.Options{"marker": "original"},
		Work: func(_ context.Context, call *exec.Call) (any, error) {
			// Each goroutine mutates its own clone's bindings.
			call.Opts["marker"] = call.Server.Name()
			return nil, nil
		},
	})

	_, err := r.RunAll(context.Background(), tk, testSettings(), task.RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, "original", tk.Opts()["marker"], "the registered task is untouched")
}

func TestRunAll_FirstErrorWins(t *testing.T) {
	r := New(logger.Noop())
	boom := stderrors.New("web2 is on fire")

	tk := mustTask(t, task.Config{
		Name:     "deploy",
		Servers:  server.Static(server.Named("web1"), server.Named("web2")),
		Parallel: 1,
		Work: func(_ context.Context, call *exec.Call) (any, error) {
			if call.Server.Name() == "web2" {
				return nil, boom
			}
			return "ok", nil
		},
	})

	results, err := r.RunAll(context.Background(), tk, testSettings(), task.RunOptions{})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "ok", results[0], "earlier servers' results survive")
}

func TestStartAndFinishHooksWrapEveryRun(t *testing.T) {
	r := New(logger.Noop())

	var mu sync.Mutex
	var started, finished []string
	r.OnStart(func(_ *task.Task, srv server.Ref) error {
		mu.Lock()
		started = append(started, srv.Name())
		mu.Unlock()
		return nil
	})
	r.OnFinish(func(_ *task.Task, srv server.Ref, _ error) {
		mu.Lock()
		finished = append(finished, srv.Name())
		mu.Unlock()
	})

	tk := mustTask(t, task.Config{
		Name:     "deploy",
		Servers:  server.Static(server.Named("web1"), server.Named("web2")),
		Parallel: 1,
		Work:     func(context.Context, *exec.Call) (any, error) { return nil, nil },
	})

	_, err := r.RunAll(context.Background(), tk, testSettings(), task.RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{"web1", "web2"}, started)
	assert.Equal(t, []string{"web1", "web2"}, finished)
}

func TestStartHookErrorSkipsRun(t *testing.T) {
	r := New(logger.Noop())
	veto := stderrors.New("maintenance window")
	r.OnStart(func(*task.Task, server.Ref) error { return veto })

	var ran bool
	tk := mustTask(t, task.Config{
		Name:    "deploy",
		Servers: server.Static(server.Named("web1")),
		Work: func(context.Context, *exec.Call) (any, error) {
			ran = true
			return nil, nil
		},
	})

	_, err := r.RunAll(context.Background(), tk, testSettings(), task.RunOptions{})

	assert.ErrorIs(t, err, veto)
	assert.False(t, ran)
}

func TestLegacyRun(t *testing.T) {
	buf := logger.NewBufferLogger()
	r := New(buf)

	var mu sync.Mutex
	var ran []string
	tk := mustTask(t, task.Config{
		Name:     "deploy",
		Servers:  server.Static(server.Named("old1")),
		Parallel: 1,
		Work: func(_ context.Context, call *exec.Call) (any, error) {
			mu.Lock()
			ran = append(ran, call.Server.Name())
			mu.Unlock()
			return call.Opts["version"], nil
		},
	})
	require.NoError(t, r.Register(tk))

	results, err := r.Run(context.Background(), "deploy",
		[]string{"new1", "new2"}, map[string]any{"version": "v2"}, testSettings())

	require.NoError(t, err)
	assert.True(t, buf.Contains("deprecated"))
	assert.Equal(t, []string{"new1", "new2"}, ran, "the override replaces the server list")
	assert.Equal(t, []any{"v2", "v2"}, results)
}

func TestLegacyRun_UnknownTask(t *testing.T) {
	r := New(logger.Noop())

	_, err := r.Run(context.Background(), "missing", nil, nil, testSettings())

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
