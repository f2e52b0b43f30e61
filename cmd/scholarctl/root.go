package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"scholarsource/internal/client"
	"scholarsource/internal/job"
)

type rootOptions struct {
	server  string
	timeout time.Duration
	output  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "scholarctl",
		Short:         "Submit and inspect ScholarSource resource discovery jobs.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case "text", "json":
				return nil
			}
			return fmt.Errorf("unknown output format %q (want text or json)", opts.output)
		},
	}

	defaultServer := os.Getenv("SCHOLARSOURCE_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "API base URL (env SCHOLARSOURCE_URL)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per-request timeout")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")

	cmd.AddCommand(
		newSubmitCmd(opts),
		newStatusCmd(opts),
		newResultsCmd(opts),
		newWaitCmd(opts),
		newExportCmd(opts),
	)
	return cmd
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.server, nil)
}

func (o *rootOptions) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printStatus renders a status or results response.
func (o *rootOptions) printStatus(w io.Writer, st *job.StatusResponse) error {
	if o.output == "json" {
		return o.printJSON(w, st)
	}
	fmt.Fprintf(w, "Job:     %s\n", st.JobID)
	fmt.Fprintf(w, "Status:  %s\n", st.Status)
	if st.StatusMessage != "" {
		fmt.Fprintf(w, "Message: %s\n", st.StatusMessage)
	}
	if st.Error != nil {
		fmt.Fprintf(w, "Error:   %s\n", *st.Error)
	}
	if st.SearchTitle != "" {
		fmt.Fprintf(w, "Title:   %s\n", st.SearchTitle)
	}
	if len(st.Results) > 0 {
		fmt.Fprintf(w, "\n%d resources:\n", len(st.Results))
		for i, r := range st.Results {
			kind := r.Type
			if kind == "" {
				kind = "resource"
			}
			fmt.Fprintf(w, "%3d. [%s] %s\n     %s\n", i+1, kind, r.Title, r.URL)
		}
	}
	return nil
}
