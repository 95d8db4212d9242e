package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/studyshelf/catalogbot/internal/catalog"
	"github.com/studyshelf/catalogbot/internal/config"
	"github.com/studyshelf/catalogbot/internal/conversation"
)

func newStatsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the most downloaded materials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(_ config.Config, log *slog.Logger, store catalog.Store) error {
				hits, err := catalog.NewService(log, store).TopDownloads(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no downloads yet")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), conversation.FormatTop(hits))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", catalog.DefaultTopLimit, "number of entries (max 100)")
	return cmd
}
