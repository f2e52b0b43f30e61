package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			st, err := opts.client().Status(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.printStatus(cmd.OutOrStdout(), st)
		},
	}
}

func newResultsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "results JOB_ID",
		Short: "Show the results of a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			st, err := opts.client().Results(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.printStatus(cmd.OutOrStdout(), st)
		},
	}
}
