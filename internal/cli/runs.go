package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/me/kernsim/pkg/model"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse runs stored on a kernsim server",
	}
	cmd.AddCommand(newRunsListCmd(), newRunsShowCmd(), newRunsDeleteCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var (
		policy string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))
			if policy != "" {
				q.Set("policy", policy)
			}
			resp, err := client.Get("/api/v1/runs/?" + q.Encode())
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			var runs []model.RunSummary
			if err := json.Unmarshal(resp.Data, &runs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWORKLOAD\tPOLICY\tTICKS\tSERVED\tHEAD MOVEMENT\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.Workload, r.Policy,
					humanize.Comma(int64(r.Ticks)), r.Served,
					humanize.Comma(r.TotalHeadMovement), humanize.Time(r.StartedAt))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "Only runs with this disk policy")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many runs")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run_id>",
		Short: "Show the report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/runs/" + url.PathEscape(args[0]))
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			var report model.Report
			if err := json.Unmarshal(resp.Data, &report); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			return writeReport(cmd.OutOrStdout(), &report, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run_id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Delete("/api/v1/runs/" + url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("delete run: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s deleted.\n", args[0])
			return nil
		},
	}
}
