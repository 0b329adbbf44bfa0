// Package cmd provides the compositegw command-line entry points.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paleoapi/compositegw/internal/config"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "compositegw",
		Short: "A federating query gateway for paleontological occurrence data.",
		Long: `compositegw serves a unified HTTP API for fossil-occurrence data,
fanning each request out to the paleobiology and Quaternary-fauna upstream
databases, normalizing their heterogeneous responses into one vocabulary-
selectable record stream.`,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, environment + built-in defaults apply)")
	root.AddCommand(newServeCmd())

	return root
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute is the CLI entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
