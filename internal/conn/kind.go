// Package conn provides the transport kinds a task can reach a host
// through, the resolver that picks one from task flags, and the
// connection-context stack that tracks active connections per logical
// executing thread.
package conn

import (
	"fmt"

	"drover/internal/errors"
)

// Kind is a closed enumeration of transport kinds.
type Kind int

const (
	// KindLocal runs commands on the local machine through a shell.
	KindLocal Kind = iota
	// KindFake records connection metadata without establishing a
	// transport. Used when a task iterates hosts but delegates the
	// actual transport elsewhere (no_ssh).
	KindFake
	// KindOpenSSH connects over SSH.
	KindOpenSSH
	// KindHTTP probes the host over plain HTTP.
	KindHTTP
	// KindHTTPS probes the host over HTTPS.
	KindHTTPS
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindFake:
		return "fake"
	case KindOpenSSH:
		return "openssh"
	case KindHTTP:
		return "http"
	case KindHTTPS:
		return "https"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a configured transport name to a Kind. Only the kinds a
// config may select as the default remote transport are accepted.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "openssh", "":
		return KindOpenSSH, nil
	case "http":
		return KindHTTP, nil
	case "https":
		return KindHTTPS, nil
	default:
		return KindOpenSSH, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown transport '%s'", name),
			"Use one of: openssh, http, https.")
	}
}

// ResolveKind picks the transport kind for a task, evaluated in priority
// order: the HTTP flag wins over everything, then HTTPS, then an explicit
// OpenSSH request for a remote host that wants a connection, then the
// configured default remote kind, then Fake for remote hosts that do not
// want a connection, and Local otherwise.
func ResolveKind(httpFlag, httpsFlag, remote, openssh, wantConn bool, def Kind) Kind {
	switch {
	case httpFlag:
		return KindHTTP
	case httpsFlag:
		return KindHTTPS
	case remote && openssh && wantConn:
		return KindOpenSSH
	case remote && wantConn:
		return def
	case remote:
		return KindFake
	default:
		return KindLocal
	}
}
