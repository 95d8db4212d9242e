package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/studyshelf/catalogbot/internal/access"
	"github.com/studyshelf/catalogbot/internal/catalog"
	"github.com/studyshelf/catalogbot/internal/config"
)

func newTeacherCommand() *cobra.Command {
	teacher := &cobra.Command{
		Use:   "teacher",
		Short: "Manage the teacher role",
	}
	teacher.AddCommand(&cobra.Command{
		Use:   "grant <user_id>",
		Short: "Grant the teacher role without going through the chat owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("user id %q: %w", args[0], access.ErrInvalidTarget)
			}
			return withStore(cmd.Context(), func(cfg config.Config, log *slog.Logger, store catalog.Store) error {
				policy := access.NewPolicy(log, store, cfg.Telegram.OwnerID)
				if err := policy.GrantUnchecked(cmd.Context(), userID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %d is now a teacher\n", userID)
				return nil
			})
		},
	})
	return teacher
}
