// Package main is the entry point for the datashare binary.
package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/dataplane-io/datashare/share"
)

var version = "dev"

func main() {
	os.Exit(execute())
}

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "datashare",
		Short:         "Cross-account data share reconciliation",
		Long:          "Reconciles approved and rejected data shares into catalog, resource-share, object-store, role and key policies.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			configureLogging(opts.logLevel)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.metastorePath, "metastore", "datashare.sqlite", "path to the SQLite metastore")
	flags.StringVar(&opts.region, "region", "eu-west-1", "home region for credential and alarm clients")
	flags.StringVar(&opts.delegationRole, "delegation-role", "dataplane-delegation", "name of the per-account delegation role")
	flags.StringVar(&opts.alarmTopicArn, "alarm-topic", "", "SNS topic ARN for failure alarms (disabled when empty)")
	flags.StringVar(&opts.dashboardGroup, "dashboard-group", "dataplane", "dashboard user group granted on shared tables")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newApproveCmd(opts))
	rootCmd.AddCommand(newRejectCmd(opts))
	rootCmd.AddCommand(newWorkerCmd(opts))

	return rootCmd
}

func configureLogging(level string) {
	share.Logger = hclog.New(&hclog.LoggerOptions{
		Name:  "datashare",
		Level: hclog.LevelFromString(level),
	})
}
