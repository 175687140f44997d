// Package facts caches gathered host information per server. Gathering
// itself is a collaborator behind the Gatherer interface; this package owns
// the in-memory and on-disk cache consulted on connect and persisted after
// a successful run.
package facts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"drover/internal/errors"
)

// Facts is one host's gathered information.
type Facts map[string]string

// ExecFunc runs a command on the connected host. It decouples gathering
// from any concrete transport type.
type ExecFunc func(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error)

// Gatherer collects facts from a reachable host.
type Gatherer interface {
	Gather(ctx context.Context, run ExecFunc) (Facts, error)
}

// Store caches facts in memory, backed by YAML files under dir when a dir
// is configured. A fresh Store is created per connection frame; the on-disk
// layer is what survives across connections.
type Store struct {
	mu  sync.Mutex
	dir string
	mem map[string]Facts
}

// NewStore creates a store. An empty dir keeps the cache memory-only.
func NewStore(dir string) *Store {
	return &Store{dir: dir, mem: make(map[string]Facts)}
}

// Load returns cached facts for a server, consulting memory first and the
// on-disk layer second.
func (s *Store) Load(server string) (Facts, bool, error) {
	s.mu.Lock()
	if f, ok := s.mem[server]; ok {
		s.mu.Unlock()
		return f, true, nil
	}
	s.mu.Unlock()

	if s.dir == "" {
		return nil, false, nil
	}

	data, err := os.ReadFile(s.path(server))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't read cached facts for '%s'", server),
			"Check permissions on the facts directory.")
	}

	var f Facts
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, false, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Cached facts for '%s' are corrupt", server),
			"Delete the file and let them be regathered.")
	}

	s.mu.Lock()
	s.mem[server] = f
	s.mu.Unlock()
	return f, true, nil
}

// Save caches facts in memory and persists them when a dir is configured.
func (s *Store) Save(server string, f Facts) error {
	s.mu.Lock()
	s.mem[server] = f
	s.mu.Unlock()

	if s.dir == "" {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Can't create facts directory", "Check permissions.")
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't encode facts for '%s'", server), "")
	}

	if err := os.WriteFile(s.path(server), data, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't persist facts for '%s'", server),
			"Check permissions on the facts directory.")
	}
	return nil
}

// path maps a server name to its cache file, flattening path separators.
func (s *Store) path(server string) string {
	safe := strings.NewReplacer("/", "_", string(filepath.Separator), "_", ":", "_").Replace(server)
	return filepath.Join(s.dir, safe+".yaml")
}

// CommandGatherer gathers facts by running shell probes on the host.
// The default set covers kernel, hostname, and architecture.
type CommandGatherer struct {
	// Probes maps fact names to shell commands. Nil uses DefaultProbes.
	Probes map[string]string
}

// DefaultProbes are the standard fact-gathering commands.
var DefaultProbes = map[string]string{
	"kernel":   "uname -s",
	"hostname": "uname -n",
	"arch":     "uname -m",
}

// Gather runs each probe and records trimmed stdout. Probes that fail are
// skipped rather than failing the gather.
func (g *CommandGatherer) Gather(ctx context.Context, run ExecFunc) (Facts, error) {
	probes := g.Probes
	if probes == nil {
		probes = DefaultProbes
	}

	f := make(Facts, len(probes))
	for name, cmd := range probes {
		stdout, _, code, err := run(ctx, cmd)
		if err != nil || code != 0 {
			continue
		}
		f[name] = strings.TrimSpace(string(stdout))
	}
	return f, nil
}
