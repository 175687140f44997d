package conn

import (
	"context"
	"fmt"
	"time"

	"drover/internal/creds"
	"drover/internal/errors"
	"drover/internal/logger"
	"drover/internal/server"
)

// DefaultConnectTimeout bounds transport establishment when the caller
// does not configure one.
const DefaultConnectTimeout = 10 * time.Second

// Transport is the capability interface every connection kind implements.
// Connect may leave the transport connected but not authenticated (the
// host was reached, credentials were rejected); callers distinguish the
// two through IsConnected and IsAuthenticated.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	IsAuthenticated() bool

	// Raw exposes the underlying handle (e.g. *ssh.Client), or nil when
	// the kind has none.
	Raw() any

	// Exec runs one shell command on the reached host. A nil err with a
	// non-zero exit code means the command ran and failed.
	Exec(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error)
}

// Options configure transport construction. Creds are the effective
// credential set after the task-level merge.
type Options struct {
	Server  server.Ref
	Creds   creds.Set
	Timeout time.Duration
	WorkDir string
	Log     logger.Logger
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultConnectTimeout
}

func (o Options) log() logger.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logger.Default()
}

// New constructs an unconnected transport of the given kind.
func New(kind Kind, opts Options) (Transport, error) {
	switch kind {
	case KindLocal:
		return newLocal(opts), nil
	case KindFake:
		return newFake(opts), nil
	case KindOpenSSH:
		return newOpenSSH(opts), nil
	case KindHTTP:
		return newHTTPX(opts, false), nil
	case KindHTTPS:
		return newHTTPX(opts, true), nil
	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("No transport for kind '%s'", kind),
			"This is a bug in the kind resolver.")
	}
}

// Factory builds transports. The run driver takes one so tests can swap
// in recording transports without touching the resolver.
type Factory func(kind Kind, opts Options) (Transport, error)
