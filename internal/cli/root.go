package cli

import (
	"log/slog"
	"os"

	"github.com/me/kernsim/internal/logging"
	"github.com/me/kernsim/internal/server"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking KERNSIM_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("KERNSIM_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the kernsim CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "kernsim",
		Short:   "kernsim: priority scheduler and disk manager simulator",
		Long:    "kernsim runs task workloads on a simulated single-CPU kernel with an aging priority scheduler and a scheduled disk.",
		Version: server.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			level, err := logging.ParseLevel(flagLogLevel)
			if err != nil {
				return err
			}
			logger = logging.NewLoggerWithWriter(level, flagLogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "kernsim server URL (or KERNSIM_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newSubmitCmd(),
		newRunsCmd(),
		newPoliciesCmd(),
		newWorkloadsCmd(),
		newServeCmd(),
	)

	return root
}
