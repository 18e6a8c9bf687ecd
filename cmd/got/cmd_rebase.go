package main

import (
	"fmt"

	"github.com/odvcencio/got/pkg/repo"
	"github.com/spf13/cobra"
)

func newRebaseCmd() *cobra.Command {
	var fast bool

	cmd := &cobra.Command{
		Use:   "rebase <upstream>",
		Short: "Replay the current branch's commits onto <upstream>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !fast {
				return fmt.Errorf("rebase: only --fast (in-memory, non-interactive) rebase is supported")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			branch, err := r.CurrentBranch()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			report, err := r.FastRebase(args[0], branch)
			if err != nil {
				return err
			}

			if report.ConflictAt != "" {
				fmt.Fprintf(out, "rebase stopped: commit %s conflicted; nothing was changed\n", report.ConflictAt)
				return fmt.Errorf("rebase: conflict replaying commit %s", report.ConflictAt)
			}

			fmt.Fprintf(out, "replayed %d commit", len(report.Replayed))
			if len(report.Replayed) != 1 {
				fmt.Fprint(out, "s")
			}
			fmt.Fprintf(out, " onto %s\n", args[0])
			short := string(report.NewHead)
			if len(short) > 8 {
				short = short[:8]
			}
			fmt.Fprintf(out, "[%s %s] rebase completed cleanly\n", branch, short)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fast, "fast", false, "replay via repeated in-memory merges instead of interactive rebase")

	return cmd
}
