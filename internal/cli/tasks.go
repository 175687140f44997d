package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"drover/internal/config"
	"drover/internal/logger"
	"drover/internal/ui"
)

var tasksAllFlag bool

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks defined in the config",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Listing works without a config file; it just comes back empty.
		cfg, err := config.LoadOrDefault(ConfigPath())
		if err != nil {
			return err
		}

		reg, err := buildRegistry(cfg, os.Stdout, logger.Default())
		if err != nil {
			return err
		}

		names := reg.Names(tasksAllFlag)
		if len(names) == 0 {
			fmt.Println(ui.MutedStyle.Render("no tasks defined"))
			return nil
		}

		fmt.Println(ui.TitleStyle.Render("Tasks"))
		for _, name := range names {
			t, _ := reg.Get(name)
			line := "  " + name
			if t.Desc() != "" {
				line += "  " + ui.MutedStyle.Render(t.Desc())
			}
			if t.Hidden() {
				line += "  " + ui.WarningStyle.Render("(hidden)")
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	tasksCmd.Flags().BoolVarP(&tasksAllFlag, "all", "a", false, "include hidden tasks")
	rootCmd.AddCommand(tasksCmd)
}
