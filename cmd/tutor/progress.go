package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/tutor-bot/internal/progress"
	"github.com/p-n-ai/tutor-bot/internal/report"
	"github.com/p-n-ai/tutor-bot/internal/store"
)

func newProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress [user-id]",
		Short: "Show a user's current topic and mastery",
		Long:  "Show one user's current topic and mastery, or with --all list every user.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if all == (len(args) == 1) {
				return errors.New("give either a user id or --all")
			}

			a, err := openApp(cmd.Context(), configFrom(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if all {
				users, err := a.store.ListUsers(ctx)
				if err != nil {
					return err
				}
				return writeUserTable(out, users)
			}

			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}

			topic, ok, err := a.tracker.CurrentTopic(ctx, userID)
			if err != nil {
				return err
			}
			if !ok {
				topic = "(none)"
			}
			fmt.Fprintf(out, "User %d\nCurrent topic: %s\n", userID, topic)

			p, err := a.tracker.Progress(ctx, userID)
			if err != nil {
				return err
			}
			if len(p) == 0 {
				fmt.Fprintln(out, "No completed quizzes.")
			}
			for _, m := range p {
				fmt.Fprintf(out, "  %s: %.1f%% %s (%s)\n",
					m.Topic, m.Score*100, progress.Indicator(m.Score), progress.DifficultyLevel(m.Score))
			}

			path, _ := cmd.Flags().GetString("xlsx")
			if path == "" {
				return nil
			}
			data, err := report.ProgressWorkbook(userID, p)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Fprintf(out, "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "List every user with their last update time")
	cmd.Flags().String("xlsx", "", "Also write the progress spreadsheet to this file")
	return cmd
}

// writeUserTable prints one row per user, in the order given.
func writeUserTable(w io.Writer, users []store.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tCURRENT TOPIC\tTOPICS\tUPDATED")
	for _, u := range users {
		topic := "-"
		if u.CurrentTopic != nil {
			topic = *u.CurrentTopic
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", u.ID, topic, len(u.Progress), u.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
