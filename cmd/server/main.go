package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/kernsim/internal/config"
	"github.com/me/kernsim/internal/logging"
	"github.com/me/kernsim/internal/server"
	"github.com/me/kernsim/internal/store"
)

func main() {
	cfg := config.DefaultServerConfig()

	configFile := flag.String("config", "", "Path to server config YAML")
	addr := flag.String("addr", cfg.Addr, "Listen address")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", cfg.LogFormat, "Log format (text, json)")
	dbPath := flag.String("db", cfg.DBPath, "Database path (default ~/.kernsim/kernsim.db)")
	maxRuns := flag.Int("max-runs", server.DefaultMaxRuns, "Concurrent simulations (0 for unlimited)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	if *configFile != "" {
		loaded, err := config.LoadServer(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	// Flags given explicitly override the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "db":
			cfg.DBPath = *dbPath
		}
	})
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.NewLogger(level, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	srv := server.New(cfg, st, logger, server.WithMaxRuns(*maxRuns))
	if err := server.ListenAndServe(ctx, cfg.Addr, srv.Handler(), logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
