package cli

import (
	"fmt"

	"github.com/me/kernsim/internal/workload"
	"github.com/me/kernsim/pkg/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List disk scheduling policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, p := range model.Policies {
				mark := " "
				if p == model.DefaultPolicy {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-6s %s\n", mark, p, p.Describe())
			}
			return nil
		},
	}
}

func newWorkloadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workloads",
		Short: "List built-in workloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range workload.BuiltinNames() {
				wl, err := workload.Builtin(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-8s %3d requests  %s\n", name, wl.Requests(), wl.Description)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print a built-in workload as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := workload.Builtin(args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(wl); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}
