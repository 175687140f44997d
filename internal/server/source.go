package server

import (
	"fmt"
	"strings"

	"drover/internal/errors"
)

// Deferred produces server references at resolution time.
type Deferred func() []Ref

// GroupResolver expands a group expression into its member servers.
// Typically backed by the `groups` section of the config file.
type GroupResolver interface {
	ExpandGroup(name string) ([]Ref, bool)
}

// GroupPrefix marks a list element as a group expression (e.g. "@web").
const GroupPrefix = "@"

// Entry is one element of a static server list. Exactly one field is set:
// a concrete reference, a group expression, or a deferred callable.
type Entry struct {
	Ref   Ref
	Group string
	Lazy  Deferred
}

// Source is a task's configured server source. The zero value means "no
// servers configured" and resolves to the local sentinel.
type Source struct {
	entries []Entry
	lazy    Deferred

	// trailing holds the deprecated credential map popped off the end of a
	// raw list, if one was supplied. Consumed once by TakeTrailingCreds.
	trailing map[string]string
}

// Static builds a source from concrete references.
func Static(refs ...Ref) Source {
	entries := make([]Entry, len(refs))
	for i, r := range refs {
		entries[i] = Entry{Ref: r}
	}
	return Source{entries: entries}
}

// List builds a source from mixed entries.
func List(entries ...Entry) Source {
	return Source{entries: entries}
}

// Deferred builds a source whose entire server list is produced lazily.
func DeferredSource(fn Deferred) Source {
	return Source{lazy: fn}
}

// ParseList builds a source from a raw heterogeneous list, as produced by
// config decoding or the legacy API. Elements may be:
//   - string: a host name, or a group expression when prefixed with "@"
//   - Ref, Entry, Deferred: passed through
//   - map[string]string as the LAST element: the deprecated trailing
//     credential map, popped off and surfaced via TakeTrailingCreds
func ParseList(raw []any) (Source, error) {
	if len(raw) == 0 {
		return Source{}, nil
	}

	var trailing map[string]string
	if m, ok := credentialMap(raw[len(raw)-1]); ok {
		trailing = m
		raw = raw[:len(raw)-1]
	}

	entries := make([]Entry, 0, len(raw))
	for i, el := range raw {
		switch v := el.(type) {
		case string:
			if strings.HasPrefix(v, GroupPrefix) {
				entries = append(entries, Entry{Group: strings.TrimPrefix(v, GroupPrefix)})
			} else {
				entries = append(entries, Entry{Ref: Named(v)})
			}
		case Ref:
			entries = append(entries, Entry{Ref: v})
		case Entry:
			entries = append(entries, v)
		case Deferred:
			entries = append(entries, Entry{Lazy: v})
		case func() []Ref:
			entries = append(entries, Entry{Lazy: v})
		default:
			return Source{}, errors.New(errors.ErrConfig,
				fmt.Sprintf("Server list element %d has unsupported type %T", i, el),
				"Use host names, @group expressions, server.Ref values, or deferred callables.")
		}
	}

	return Source{entries: entries, trailing: trailing}, nil
}

// credentialMap reports whether a raw list element is a credential map.
func credentialMap(el any) (map[string]string, bool) {
	switch m := el.(type) {
	case map[string]string:
		return m, true
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// Configured reports whether any server source is set.
func (s *Source) Configured() bool {
	return len(s.entries) > 0 || s.lazy != nil
}

// TakeTrailingCreds returns the deprecated trailing credential map, if one
// was attached, and clears it so it is only consumed once.
func (s *Source) TakeTrailingCreds() (map[string]string, bool) {
	if s.trailing == nil {
		return nil, false
	}
	m := s.trailing
	s.trailing = nil
	return m, true
}

// Resolve expands the source into a flat ordered list of references.
// Deferred elements are invoked and spliced in place; group expressions are
// expanded via the resolver; order of surrounding entries is preserved.
// An unconfigured source resolves to exactly one local sentinel.
func (s *Source) Resolve(groups GroupResolver) ([]Ref, error) {
	if s.lazy != nil {
		return s.lazy(), nil
	}

	if len(s.entries) == 0 {
		return []Ref{Local()}, nil
	}

	refs := make([]Ref, 0, len(s.entries))
	for _, e := range s.entries {
		switch {
		case e.Lazy != nil:
			refs = append(refs, e.Lazy()...)
		case e.Group != "":
			if groups == nil {
				return nil, errors.New(errors.ErrConfig,
					fmt.Sprintf("No group resolver available for '%s%s'", GroupPrefix, e.Group),
					"Define groups in the config file or drop the group expression.")
			}
			members, ok := groups.ExpandGroup(e.Group)
			if !ok {
				return nil, errors.New(errors.ErrConfig,
					fmt.Sprintf("Unknown server group '%s%s'", GroupPrefix, e.Group),
					"Check the 'groups' section of your config.")
			}
			refs = append(refs, members...)
		default:
			refs = append(refs, e.Ref)
		}
	}

	return refs, nil
}

// GroupMap is a GroupResolver backed by a plain map of group name to host
// names. Used by tests and as the config-backed default.
type GroupMap map[string][]string

func (g GroupMap) ExpandGroup(name string) ([]Ref, bool) {
	hosts, ok := g[name]
	if !ok {
		return nil, false
	}
	refs := make([]Ref, len(hosts))
	for i, h := range hosts {
		refs[i] = Named(h)
	}
	return refs, true
}
