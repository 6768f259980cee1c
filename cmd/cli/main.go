package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/csv-intake/internal/config"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// errRejected marks a file the pipeline refused; the reason is already printed.
var errRejected = errors.New("file rejected")

type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "csv-intake",
		Short: "Validate and ingest CSV transaction files",
		Long: `csv-intake validates CSV files of financial transactions, reports
field errors and business rule warnings, and stores accepted uploads.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.init,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.String("backend", "", "storage backend (sqlite, bigquery)")
	flags.String("sqlite-path", "", "SQLite database path")
	flags.String("raw-store", "", "raw file store (none, disk, gcs)")
	flags.String("raw-dir", "", "directory of the disk raw store")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	_ = c.v.BindPFlag("backend", flags.Lookup("backend"))
	_ = c.v.BindPFlag("sqlite_path", flags.Lookup("sqlite-path"))
	_ = c.v.BindPFlag("raw_store", flags.Lookup("raw-store"))
	_ = c.v.BindPFlag("raw_dir", flags.Lookup("raw-dir"))
	_ = c.v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(c.validateCmd())
	root.AddCommand(c.ingestCmd())
	root.AddCommand(c.uploadsCmd())
	root.AddCommand(c.cleanupCmd())
	return root
}

func (c *cli) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	// stdout carries command output; logs go to stderr.
	c.log = logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat).
		Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: noColor()})
	cmd.SetContext(logger.WithContext(cmd.Context(), c.log))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
