package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"drover/internal/config"
	"drover/internal/errors"
	"drover/internal/exec"
	"drover/internal/logger"
	"drover/internal/server"
	"drover/internal/task"
	"drover/internal/ui"
)

var (
	runHostFlag    string
	runSetFlags    []string
	runReportFlag  string
	runFactsFlag   bool
	runAskPassFlag bool
)

var runCmd = &cobra.Command{
	Use:   "run <task> [args...]",
	Short: "Run a named task against its configured servers",
	Long: `Run a task from .drover.yaml. Without --host the task runs against
every server it resolves (static entries, @group expressions); with
--host it runs against that single host.

Examples:
  drover run deploy
  drover run deploy --host web1
  drover run deploy --set version=1.4.2
  drover run migrate --ask-pass`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd, args[0], args[1:])
	},
}

func runTask(cmd *cobra.Command, name string, extraArgs []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Verbosity = Verbosity()

	settings, err := buildSettings(cfg, os.Stdout)
	if err != nil {
		return err
	}
	if runReportFlag != "" {
		settings.ReportType = runReportFlag
	}
	if runFactsFlag {
		settings.CollectFacts = true
	}

	log := logger.Default()
	reg, err := buildRegistry(cfg, os.Stdout, log)
	if err != nil {
		return err
	}

	t, ok := reg.Get(name)
	if !ok {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("No task named '%s'", name),
			fmt.Sprintf("Known tasks: %s. Run 'drover tasks' for details.",
				strings.Join(reg.Names(true), ", ")))
	}

	if runAskPassFlag {
		password, err := promptPassword()
		if err != nil {
			return err
		}
		cs := t.Creds()
		cs.Password = password
		t.SetCreds(cs)
	}

	opts := task.RunOptions{Args: extraArgs}
	if len(runSetFlags) > 0 {
		opts.Opts, err = parseSetFlags(runSetFlags)
		if err != nil {
			return err
		}
	}

	if runHostFlag != "" {
		rc := task.NewRunContext(cmd.Context(), settings)
		rc.Log = log
		rc.Fanout = reg.Fanout()
		_, err = t.Clone().Run(rc, server.Named(runHostFlag), opts)
	} else {
		_, err = reg.RunAll(cmd.Context(), t, settings, opts)
	}
	if err != nil {
		return err
	}

	if !Quiet() {
		fmt.Printf("%s task '%s' finished\n", ui.SuccessStyle.Render(ui.SymbolSuccess), name)
	}
	return nil
}

// loadConfig finds and loads the config file; running tasks without one
// is an error.
func loadConfig() (*config.Config, error) {
	path, err := config.Find(ConfigPath())
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.New(errors.ErrConfig,
			"No config file found",
			"Create a .drover.yaml with your tasks, servers, and groups.")
	}
	return config.Load(path)
}

// parseSetFlags turns repeated --set key=value flags into an options map.
func parseSetFlags(flags []string) (exec.Options, error) {
	opts := exec.Options{}
	for _, f := range flags {
		key, value, found := strings.Cut(f, "=")
		if !found || key == "" {
			return nil, errors.New(errors.ErrConfig,
				fmt.Sprintf("'%s' isn't a valid option", f),
				"Use --set key=value.")
		}
		opts[key] = value
	}
	return opts, nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Can't read the password",
			"Run from an interactive terminal, or configure credentials in .drover.yaml.")
	}
	return string(raw), nil
}

func init() {
	runCmd.Flags().StringVar(&runHostFlag, "host", "", "run against a single host instead of the task's servers")
	runCmd.Flags().StringArrayVar(&runSetFlags, "set", nil, "bind a task option (key=value, repeatable)")
	runCmd.Flags().StringVar(&runReportFlag, "report", "", "report format: text, yaml, or json")
	runCmd.Flags().BoolVar(&runFactsFlag, "collect-facts", false, "gather and cache host facts on connect")
	runCmd.Flags().BoolVar(&runAskPassFlag, "ask-pass", false, "prompt for a connection password")

	rootCmd.AddCommand(runCmd)
}
