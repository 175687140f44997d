package conn

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"drover/internal/errors"
)

// localTransport runs commands on this machine through the user's shell.
// It is always connected and authenticated; Connect and Close only flip
// the bookkeeping flag.
type localTransport struct {
	workDir string
	open    bool
}

func newLocal(opts Options) *localTransport {
	return &localTransport{workDir: opts.WorkDir}
}

func (t *localTransport) Connect(_ context.Context) error {
	t.open = true
	return nil
}

func (t *localTransport) Close() error {
	t.open = false
	return nil
}

func (t *localTransport) IsConnected() bool     { return t.open }
func (t *localTransport) IsAuthenticated() bool { return t.open }
func (t *localTransport) Raw() any              { return nil }

// Exec runs the command through the shell so pipes and redirects work.
func (t *localTransport) Exec(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	command := exec.CommandContext(ctx, shell, "-c", cmd)
	if t.workDir != "" {
		command.Dir = t.workDir
	}

	var outBuf, errBuf bytes.Buffer
	command.Stdout = &outBuf
	command.Stderr = &errBuf

	runErr := command.Run()
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return outBuf.Bytes(), errBuf.Bytes(), exitErr.ExitCode(), nil
		}
		return outBuf.Bytes(), errBuf.Bytes(), -1, errors.WrapWithCode(runErr, errors.ErrExec,
			"Couldn't run the command locally",
			"Make sure the command exists and is executable.")
	}

	return outBuf.Bytes(), errBuf.Bytes(), 0, nil
}
