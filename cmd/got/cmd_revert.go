package main

import (
	"strings"

	"github.com/odvcencio/got/pkg/repo"
	"github.com/spf13/cobra"
)

func newRevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <commit>",
		Short: "Revert a commit, undoing the change it introduced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			targetHash, err := resolveCherryPickTarget(r, args[0])
			if err != nil {
				return err
			}

			branch := "HEAD"
			if head, err := r.Head(); err == nil && strings.HasPrefix(head, "refs/heads/") {
				branch = strings.TrimPrefix(head, "refs/heads/")
			}

			report, err := r.Revert(targetHash)
			if err != nil {
				return err
			}
			return printPickReport(cmd.OutOrStdout(), branch, "revert", report)
		},
	}
}
