package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/observability"
)

var version = "dev"

// cliEnv is the configuration shared by every subcommand. It is filled in by
// the root command's PersistentPreRunE.
type cliEnv struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	env := &cliEnv{v: config.NewViper()}
	env.v.SetDefault("log.level", "warn")
	env.v.SetDefault("log.format", "text")
	// salesctl serves no sessions; --token is forwarded to the forecast service as is.
	env.v.SetDefault("auth.insecure_skip_verify", true)

	root := &cobra.Command{
		Use:   "salesctl",
		Short: "Inspect sales records and forecasts from the command line",
		Long: `salesctl reads the same record sources and forecast service as the
dashboard and prints totals, chart groups, filter options and forecasts.`,
		SilenceUsage:      true,
		PersistentPreRunE: env.init,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&env.cfgFile, "config", "", "config file (default: $CONFIG_FILE)")
	pf.String("source", "", "record source: csv, postgres or sqlite")
	pf.String("csv-file", "", "CSV file for the csv source")
	pf.String("sqlite-path", "", "database file for the sqlite source")
	pf.String("postgres-url", "", "connection URL for the postgres source")
	pf.String("forecast-url", "", "base URL of the forecast service")
	pf.String("log-level", "", "log level (debug, info, warn, error)")

	_ = env.v.BindPFlag("source.driver", pf.Lookup("source"))
	_ = env.v.BindPFlag("source.csv_file", pf.Lookup("csv-file"))
	_ = env.v.BindPFlag("source.sqlite_path", pf.Lookup("sqlite-path"))
	_ = env.v.BindPFlag("source.postgres_url", pf.Lookup("postgres-url"))
	_ = env.v.BindPFlag("forecast.base_url", pf.Lookup("forecast-url"))
	_ = env.v.BindPFlag("log.level", pf.Lookup("log-level"))

	root.AddCommand(reportCmd(env))
	root.AddCommand(optionsCmd(env))
	root.AddCommand(forecastCmd(env))
	root.AddCommand(importCmd(env))
	root.AddCommand(versionCmd())

	return root
}

func (e *cliEnv) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadViper(e.v, e.cfgFile)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = observability.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logger)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "salesctl %s\n", version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
