// Package cli implements the drover command-line interface.
//
// The package is organized around Cobra commands, each delegating to
// the execution core: config loading (internal/config), task
// construction (buildTask), and the run driver (internal/task) fanned
// out through the registry.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"drover/internal/config"
	"drover/internal/ui"
)

// Global flags available to all subcommands.
var (
	configFlag  string
	verboseFlag bool
	quietFlag   bool
	noColorFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Run named tasks against local and remote hosts",
	Long: `Drover runs named units of work against target hosts: it resolves how
to reach each host, authenticates (falling back through configured
credential sets), runs the task's hook pipeline, executes the work, and
reports the outcome.

Tasks, hosts, groups, and credentials live in .drover.yaml.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColorFlag {
			os.Setenv("NO_COLOR", "1")
		}
		ui.DisableColorIfNeeded()
	},
}

// Execute runs the CLI and is the only entry point main needs.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// ConfigPath returns the --config flag value, which may be empty.
func ConfigPath() string {
	return configFlag
}

// Quiet reports whether --quiet was passed.
func Quiet() bool {
	return quietFlag
}

// Verbosity maps the global flags to the core's verbosity levels.
// --quiet wins over --verbose.
func Verbosity() int {
	switch {
	case quietFlag:
		return config.VerbosityQuiet
	case verboseFlag:
		return config.VerbosityVerbose
	default:
		return config.VerbosityNormal
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file (default: walk up for .drover.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose output (includes the connection profile)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "minimize output")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")

	viper.BindPFlag("verbosity", rootCmd.PersistentFlags().Lookup("verbose"))
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:       "completion [bash|zsh|fish|powershell]",
	Short:     "Generate shell completion script",
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		default:
			return rootCmd.GenPowerShellCompletion(os.Stdout)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
