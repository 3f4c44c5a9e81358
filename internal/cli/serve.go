package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/me/kernsim/internal/config"
	"github.com/me/kernsim/internal/server"
	"github.com/me/kernsim/internal/store"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		dbPath     string
		maxRuns    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kernsim HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServerConfig()
			if configPath != "" {
				var err error
				if cfg, err = config.LoadServer(configPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := store.Open(ctx, cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := server.New(cfg, st, logger, server.WithMaxRuns(maxRuns))
			return server.ListenAndServe(ctx, cfg.Addr, srv.Handler(), logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Server config YAML")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default ~/.kernsim/kernsim.db)")
	cmd.Flags().IntVar(&maxRuns, "max-runs", server.DefaultMaxRuns, "Concurrent simulations (0 for unlimited)")

	return cmd
}
