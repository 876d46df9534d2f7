package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/beekhof/mail-invites/internal/config"
	"github.com/beekhof/mail-invites/internal/invite"
	"github.com/beekhof/mail-invites/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	configFile   string
	verbose      bool
	jsonOutput   bool
	metricsAddr  string
	storeName    string
	addresses    []string
	contactsPath string
	concurrency  int

	cfg           *config.Config
	recorder      *metrics.Recorder
	metricsServer *http.Server
)

var rootCmd = &cobra.Command{
	Use:   "invites",
	Short: "invites - reconcile calendar invitations from mail with your calendar",
	Long: `Reads calendar invitations (iTIP REQUEST, REPLY, CANCEL, COUNTER, REFRESH, ADD)
from mail messages, compares them with the copy in your calendar and applies
them according to their SEQUENCE. Supported calendars: CalDAV, Google Calendar
and a local SQLite database.

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (INVITES_*)
    3. Config file (--config)
    4. Defaults`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		invite.SetVerbose(verbose)

		switch cmd.Name() {
		case "help", "version":
			return nil
		}

		var err error
		cfg, err = config.LoadConfig(configFile, config.Overrides{
			Addresses:    addresses,
			ContactsPath: contactsPath,
			MetricsAddr:  metricsAddr,
			StoreName:    storeName,
			Concurrency:  concurrency,
		})
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		reg := prometheus.NewRegistry()
		recorder = metrics.NewRecorder(reg)
		if cfg.MetricsAddr != "" {
			metricsServer, err = metrics.Serve(cfg.MetricsAddr, reg)
			if err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				log.Printf("Warning: failed to stop metrics server: %v", err)
			}
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to JSON config file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (show DEBUG logs)")
	pf.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides INVITES_METRICS_ADDR)")
	pf.StringVar(&storeName, "store", "", "Use the named store from the config file (overrides INVITES_STORE)")
	pf.StringSliceVar(&addresses, "address", nil, "Your own mail address; repeatable (overrides INVITES_ADDRESSES)")
	pf.StringVar(&contactsPath, "contacts", "", "vCard file or directory used to name senders (overrides INVITES_CONTACTS_PATH)")
	pf.IntVar(&concurrency, "concurrency", 0, "Messages reconciled at once (overrides INVITES_CONCURRENCY)")

	rootCmd.AddCommand(showCmd, reconcileCmd, respondCmd, acceptCounterCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "invites %s\n", Version)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func debugf(format string, args ...any) {
	if verbose {
		log.Printf("DEBUG: "+format, args...)
	}
}
