// Package server identifies target hosts. A Ref is either a named remote
// host or the local-execution sentinel; a Source produces an ordered list
// of Refs from static entries, group expressions, or deferred callables.
package server

import "drover/internal/creds"

// LocalName is the display name of the local sentinel.
const LocalName = "localhost"

// FuncSentinel is the literal target that requests direct-call mode:
// the task's work function runs against the current connection frame
// without connecting, hooks, or caching.
const FuncSentinel = "<func>"

// Ref identifies a target host, or local execution when local is set.
// A Ref may carry server-level credentials which are merged under the
// task's credentials at connect time.
type Ref struct {
	name  string
	local bool

	// Creds are server-level credentials (lowest precedence).
	Creds creds.Set
}

// Local returns the local-execution sentinel.
func Local() Ref {
	return Ref{name: LocalName, local: true}
}

// Named returns a reference to a remote host.
func Named(name string) Ref {
	return Ref{name: name}
}

// Func returns the direct-call sentinel reference.
func Func() Ref {
	return Ref{name: FuncSentinel}
}

// WithCreds returns a copy of the reference carrying server-level credentials.
func (r Ref) WithCreds(cs creds.Set) Ref {
	r.Creds = cs
	return r
}

// Name returns the host name, or LocalName for the local sentinel.
func (r Ref) Name() string {
	return r.name
}

// IsLocal reports whether this is the local-execution sentinel.
func (r Ref) IsLocal() bool {
	return r.local
}

// IsFunc reports whether this is the direct-call sentinel.
func (r Ref) IsFunc() bool {
	return r.name == FuncSentinel
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.name == "" && !r.local
}

func (r Ref) String() string {
	return r.name
}
