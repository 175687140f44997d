package config

import (
	"time"

	"drover/internal/creds"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Verbosity levels consumed by the execution core.
const (
	VerbosityQuiet   = 0
	VerbosityNormal  = 1
	VerbosityVerbose = 2
	// VerbosityProfile is the threshold above which the per-connection
	// profiler report is emitted at disconnect.
	VerbosityProfile = 2
)

// Report type selectors.
const (
	ReportText = "text"
	ReportYAML = "yaml"
	ReportJSON = "json"
)

// Config represents the complete .drover.yaml configuration file.
type Config struct {
	Version int `yaml:"version" mapstructure:"version"`

	// DefaultTransport names the remote transport used when a task wants a
	// connection but no explicit protocol flag is set: "openssh", "http",
	// or "https".
	DefaultTransport string `yaml:"default_transport" mapstructure:"default_transport" validate:"omitempty,oneof=openssh http https"`

	// FallbackAuth is the ordered list of credential sets tried after a
	// primary authentication failure. Bounded: there is no retry beyond
	// this list.
	FallbackAuth []creds.Set `yaml:"fallback_auth" mapstructure:"fallback_auth"`

	// ReportType selects the report writer: "text", "yaml", or "json".
	ReportType string `yaml:"report_type" mapstructure:"report_type" validate:"omitempty,oneof=text yaml json"`

	// Verbosity is the debug-verbosity level (0 quiet, 1 normal, 2 verbose).
	Verbosity int `yaml:"verbosity" mapstructure:"verbosity" validate:"gte=0,lte=2"`

	// CollectFacts enables host-fact gathering and caching per connection.
	CollectFacts bool `yaml:"collect_facts" mapstructure:"collect_facts"`

	// FactsDir is where cached host facts are persisted.
	FactsDir string `yaml:"facts_dir" mapstructure:"facts_dir"`

	// ConnectTimeout bounds transport dial time.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`

	// Groups maps group names (used as "@name" in server lists) to hosts.
	Groups map[string][]string `yaml:"groups" mapstructure:"groups"`

	// Tasks defines named tasks runnable from the CLI.
	Tasks map[string]TaskSpec `yaml:"tasks" mapstructure:"tasks" validate:"dive"`
}

// TaskSpec defines a named task in the config file. The command runs on
// every resolved server through the task's transport.
type TaskSpec struct {
	// Description shown in 'drover tasks'.
	Description string `yaml:"description" mapstructure:"description"`

	// Command to execute on each server.
	Command string `yaml:"command" mapstructure:"command" validate:"required"`

	// Servers lists target hosts; "@group" expressions are expanded.
	Servers []string `yaml:"servers" mapstructure:"servers"`

	// Auth carries task-level credentials (take precedence over
	// server-level credentials per field).
	Auth creds.Set `yaml:"auth" mapstructure:"auth"`

	// Hidden tasks are omitted from listings but still runnable.
	Hidden bool `yaml:"hidden" mapstructure:"hidden"`

	// NoSSH iterates hosts without establishing a transport.
	NoSSH bool `yaml:"no_ssh" mapstructure:"no_ssh"`

	// Protocol overrides, highest priority first: http, https, openssh.
	HTTP    bool `yaml:"http" mapstructure:"http"`
	HTTPS   bool `yaml:"https" mapstructure:"https"`
	OpenSSH bool `yaml:"openssh" mapstructure:"openssh"`

	// Parallel bounds concurrent per-host runs (0 = one goroutine per host).
	Parallel int `yaml:"parallel" mapstructure:"parallel" validate:"gte=0"`

	// ExitOnConnectFail aborts the run when a host cannot be reached.
	// Defaults to true when unset (see Load).
	ExitOnConnectFail *bool `yaml:"exit_on_connect_fail" mapstructure:"exit_on_connect_fail"`

	// Env is exported into the command's environment.
	Env map[string]string `yaml:"env" mapstructure:"env"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:          CurrentConfigVersion,
		DefaultTransport: "openssh",
		ReportType:       ReportText,
		Verbosity:        VerbosityNormal,
		ConnectTimeout:   10 * time.Second,
		Groups:           make(map[string][]string),
		Tasks:            make(map[string]TaskSpec),
	}
}
