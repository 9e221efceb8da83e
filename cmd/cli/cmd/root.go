// Package cmd provides the CLI commands for ocp-cost-aggregator.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ocp-cost-aggregator/internal/config"
	"ocp-cost-aggregator/internal/errors"
	"ocp-cost-aggregator/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ocp-cost-aggregator",
	Short: "Aggregate OpenShift and AWS cost telemetry into daily summaries",
	Long: `ocp-cost-aggregator reads OpenShift pod, volume, and node telemetry
together with AWS cost-and-usage line items from an object store, matches
AWS spend to cluster resources, and loads daily summary tables into the
cost warehouse.

Examples:
  ocp-cost-aggregator run --config config.yaml
  ocp-cost-aggregator run --config config.yaml --truncate`,

	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(errors.ExitConfig)
		}
		config.Set(cfg)
	}

	cfg := config.Get()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ocp-cost-aggregator version 0.1.0")
	},
}
