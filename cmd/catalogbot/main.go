package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "catalogbot",
		Short:         "Study material catalog bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config.toml (env CONFIG_PATH)")
	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newTeacherCommand(),
		newStatsCommand(),
	)
	return root
}
