package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scholarsource/internal/job"
)

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		in       job.Inputs
		wait     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a discovery job",
		Example: `  scholarctl submit --course-name "Intro to Algorithms" --university MIT
  scholarctl submit --course-url https://ocw.mit.edu/6-006 --type textbook --type video --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c := opts.client()
			resp, err := c.Submit(ctx, in)
			if err != nil {
				return err
			}
			if !wait {
				if opts.output == "json" {
					return opts.printJSON(cmd.OutOrStdout(), resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", resp.JobID, resp.Status, resp.Message)
				return nil
			}
			return waitAndPrint(cmd, opts, resp.JobID, interval)
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.CourseURL, "course-url", "", "Course page URL")
	f.StringVar(&in.CourseName, "course-name", "", "Course name")
	f.StringVar(&in.UniversityName, "university", "", "University name")
	f.StringVar(&in.BookTitle, "book-title", "", "Textbook title")
	f.StringVar(&in.BookAuthor, "book-author", "", "Textbook author")
	f.StringVar(&in.ISBN, "isbn", "", "Textbook ISBN")
	f.StringVar(&in.BookURL, "book-url", "", "Textbook URL")
	f.StringVar(&in.BookPDFPath, "book-pdf", "", "Path to a textbook PDF visible to the engine")
	f.StringVar(&in.TopicsList, "topics", "", "Comma-separated topics to focus on")
	f.StringSliceVar(&in.DesiredResourceTypes, "type", nil, "Desired resource type (repeatable)")
	f.StringVar(&in.Email, "email", "", "Email address to notify on completion")
	f.BoolVar(&in.ForceRefresh, "force-refresh", false, "Bypass cached results")
	f.BoolVar(&wait, "wait", false, "Wait for the job to finish and print its results")
	f.DurationVar(&interval, "interval", 2*time.Second, "Polling interval with --wait")
	return cmd
}
