package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studyshelf/catalogbot/internal/db"
	"github.com/studyshelf/catalogbot/internal/logger"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the embedded schema migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(db.Up), string(db.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}
			dir, err := db.ParseDirection(raw)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			_, closeStore, err := openStore(cmd.Context(), logger.L, cfg.Database, dir, true)
			if err != nil {
				return err
			}
			closeStore()
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", dir)
			return nil
		},
	}
}
