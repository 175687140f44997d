package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"drover/internal/config"
	"drover/internal/conn"
	"drover/internal/errors"
	"drover/internal/exec"
	"drover/internal/logger"
	"drover/internal/registry"
	"drover/internal/server"
	"drover/internal/task"
	"drover/internal/util"
)

// buildSettings maps the loaded config onto the run driver's settings.
func buildSettings(cfg *config.Config, out io.Writer) (task.Settings, error) {
	def, err := conn.ParseKind(cfg.DefaultTransport)
	if err != nil {
		return task.Settings{}, err
	}
	return task.Settings{
		DefaultKind:    def,
		FallbackAuth:   cfg.FallbackAuth,
		Groups:         server.GroupMap(cfg.Groups),
		ReportType:     cfg.ReportType,
		Verbosity:      cfg.Verbosity,
		CollectFacts:   cfg.CollectFacts,
		FactsDir:       cfg.FactsDir,
		ConnectTimeout: cfg.ConnectTimeout,
		Out:            out,
	}, nil
}

// buildRegistry constructs tasks from every config spec and registers
// them, sorted by name so registration order is stable.
func buildRegistry(cfg *config.Config, out io.Writer, log logger.Logger) (*registry.Registry, error) {
	reg := registry.New(log)

	names := make([]string, 0, len(cfg.Tasks))
	for name := range cfg.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t, err := buildTask(name, cfg.Tasks[name], out)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// buildTask turns one config spec into a runnable task whose work
// executes the spec's command on the connected host.
func buildTask(name string, spec config.TaskSpec, out io.Writer) (*task.Task, error) {
	raw := make([]any, len(spec.Servers))
	for i, s := range spec.Servers {
		raw[i] = s
	}
	src, err := server.ParseList(raw)
	if err != nil {
		return nil, err
	}

	return task.New(task.Config{
		Name:              name,
		Desc:              spec.Description,
		Hidden:            spec.Hidden,
		Work:              commandWork(spec, out),
		Servers:           src,
		HTTP:              spec.HTTP,
		HTTPS:             spec.HTTPS,
		OpenSSH:           spec.OpenSSH,
		NoSSH:             spec.NoSSH,
		Auth:              spec.Auth,
		Parallel:          spec.Parallel,
		ExitOnConnectFail: spec.ExitOnConnectFail,
	})
}

// commandWork builds the work function for a config task: run the
// command (with the spec's environment exported) on the connected host
// and stream its output.
func commandWork(spec config.TaskSpec, out io.Writer) exec.WorkFunc {
	cmd := withEnv(spec.Command, spec.Env)

	return func(ctx context.Context, call *exec.Call) (any, error) {
		stdout, stderr, code, err := call.Exec(ctx, cmd)
		if err != nil {
			return nil, err
		}
		if len(stdout) > 0 {
			fmt.Fprintf(out, "%s", stdout)
		}
		if code != 0 {
			return nil, errors.New(errors.ErrExec,
				fmt.Sprintf("Command failed on '%s' (exit %d)", call.Server.Name(), code),
				strings.TrimSpace(string(stderr)))
		}
		return strings.TrimSpace(string(stdout)), nil
	}
}

// withEnv prefixes a shell command with environment assignments, sorted
// for stable output.
func withEnv(cmd string, env map[string]string) string {
	if len(env) == 0 {
		return cmd
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s ", k, util.ShellQuote(env[k]))
	}
	b.WriteString(cmd)
	return b.String()
}
