package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/me/kernsim/pkg/model"
	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var (
		builtin string
		policy  string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "submit [workload.yaml]",
		Short: "Run a workload on a kernsim server and store the report there",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			var doc []byte
			switch {
			case len(args) == 1 && builtin != "":
				return fmt.Errorf("give either a workload file or --builtin, not both")
			case len(args) == 1:
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read workload: %w", err)
				}
				doc = data
			case builtin != "":
				q.Set("workload", builtin)
			default:
				return fmt.Errorf("no workload: give a workload file or --builtin")
			}
			if policy != "" {
				q.Set("policy", policy)
			}

			path := "/api/v1/runs/"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			resp, err := client.PostYAML(path, doc)
			if err != nil {
				return fmt.Errorf("submit run: %w", err)
			}

			var report model.Report
			if err := json.Unmarshal(resp.Data, &report); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			out := cmd.OutOrStdout()
			if !asJSON {
				fmt.Fprintf(out, "Run created: %s\n\n", report.ID)
			}
			return writeReport(out, &report, asJSON)
		},
	}

	cmd.Flags().StringVar(&builtin, "builtin", "", "Submit a built-in workload instead of a file")
	cmd.Flags().StringVar(&policy, "policy", "", "Disk scheduling policy (fcfs, sstf, cscan)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")

	return cmd
}
