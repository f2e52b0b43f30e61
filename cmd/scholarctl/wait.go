package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scholarsource/internal/job"
)

func newWaitCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "wait JOB_ID",
		Short: "Poll a job until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return waitAndPrint(cmd, opts, args[0], interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval")
	return cmd
}

// waitAndPrint has no overall deadline; an interrupt stops it.
// A failed job is reported as an error so the exit status is non-zero.
func waitAndPrint(cmd *cobra.Command, opts *rootOptions, id string, interval time.Duration) error {
	c := opts.client()
	st, err := c.Wait(cmd.Context(), id, interval, func(s *job.StatusResponse) {
		if opts.output == "text" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", s.Status, s.StatusMessage)
		}
	})
	if err != nil {
		return err
	}
	if err := opts.printStatus(cmd.OutOrStdout(), st); err != nil {
		return err
	}
	if st.Status == job.StatusFailed {
		return fmt.Errorf("job %s failed", id)
	}
	return nil
}

