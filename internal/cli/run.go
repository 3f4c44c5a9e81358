package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/kernsim/internal/config"
	"github.com/me/kernsim/internal/sim"
	"github.com/me/kernsim/internal/store"
	"github.com/me/kernsim/internal/workload"
	"github.com/me/kernsim/pkg/model"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		builtin    string
		policy     string
		configPath string
		dbPath     string
		save       bool
		asJSON     bool
		quantum    int
		noTrace    bool
	)

	cmd := &cobra.Command{
		Use:   "run [workload.yaml]",
		Short: "Run a workload locally and print the report",
		Long: `Runs a workload on the simulated kernel and prints per-task and disk
statistics. The workload comes from a YAML file or --builtin. The disk policy
is --policy, else the workload's own policy, else the configured one.

With --db or --save the report is stored for later "kernsim runs" queries
against a server sharing that database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := loadWorkload(args, builtin)
			if err != nil {
				return err
			}
			override, err := parsePolicyFlag(policy)
			if err != nil {
				return err
			}

			cfg := config.DefaultSimConfig()
			if configPath != "" {
				if cfg, err = config.LoadSim(configPath); err != nil {
					return err
				}
			}
			if quantum > 0 {
				cfg.Quantum = quantum
			}
			if noTrace {
				cfg.Trace = false
			}
			cfg.Policy = sim.EffectivePolicy(cfg, wl, override)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := sim.Run(ctx, cfg, wl, logger)
			if err != nil {
				return err
			}

			if dbPath != "" || save {
				st, err := store.Open(ctx, dbPath, logger)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.SaveReport(ctx, report); err != nil {
					return fmt.Errorf("save run %s: %w", report.ID, err)
				}
				logger.Info("run stored", "id", report.ID)
			}

			return writeReport(cmd.OutOrStdout(), report, asJSON)
		},
	}

	cmd.Flags().StringVar(&builtin, "builtin", "", "Run a built-in workload instead of a file (see 'kernsim workloads')")
	cmd.Flags().StringVar(&policy, "policy", "", "Disk scheduling policy (fcfs, sstf, cscan)")
	cmd.Flags().StringVar(&configPath, "config", "", "Simulation config YAML")
	cmd.Flags().StringVar(&dbPath, "db", "", "Store the report in this SQLite database")
	cmd.Flags().BoolVar(&save, "save", false, "Store the report in the default database (~/.kernsim/kernsim.db)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	cmd.Flags().IntVar(&quantum, "quantum", 0, "Override the scheduling quantum in ticks")
	cmd.Flags().BoolVar(&noTrace, "no-trace", false, "Do not record the per-request trace")

	return cmd
}

// loadWorkload reads the workload named by exactly one of args[0] or builtin.
func loadWorkload(args []string, builtin string) (*workload.Workload, error) {
	switch {
	case len(args) == 1 && builtin != "":
		return nil, errors.New("give either a workload file or --builtin, not both")
	case len(args) == 1:
		return workload.Load(args[0])
	case builtin != "":
		return workload.Builtin(builtin)
	}
	return nil, errors.New("no workload: give a workload file or --builtin")
}

func parsePolicyFlag(s string) (model.Policy, error) {
	if s == "" {
		return "", nil
	}
	return model.ParsePolicy(s)
}

func writeReport(w io.Writer, r *model.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return sim.PrintSummary(w, r)
}
