// Package main is the entry point for the ocp-cost-aggregator CLI.
package main

import (
	"os"

	"ocp-cost-aggregator/cmd/cli/cmd"
	"ocp-cost-aggregator/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.ExitCode(err))
	}
}
