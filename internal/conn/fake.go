package conn

import (
	"context"

	"drover/internal/server"
)

// fakeTransport records connection metadata without dialing anything.
// Tasks that iterate hosts but hand the actual transport to an external
// collaborator (no_ssh) get one of these; it reports connected and
// authenticated as soon as Connect runs.
type fakeTransport struct {
	srv  server.Ref
	open bool

	// Meta is populated on Connect for collaborators that inspect the
	// would-be connection.
	Meta map[string]string
}

func newFake(opts Options) *fakeTransport {
	return &fakeTransport{srv: opts.Server}
}

func (t *fakeTransport) Connect(_ context.Context) error {
	t.open = true
	t.Meta = map[string]string{
		"server": t.srv.Name(),
		"kind":   KindFake.String(),
	}
	return nil
}

func (t *fakeTransport) Close() error {
	t.open = false
	return nil
}

func (t *fakeTransport) IsConnected() bool     { return t.open }
func (t *fakeTransport) IsAuthenticated() bool { return t.open }
func (t *fakeTransport) Raw() any              { return t.Meta }

// Exec is a no-op: there is no transport to run anything over.
func (t *fakeTransport) Exec(_ context.Context, _ string) (stdout, stderr []byte, exitCode int, err error) {
	return nil, nil, 0, nil
}
