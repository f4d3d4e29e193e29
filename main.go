// Package main runs the CIS Del announcement notifier.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cisdel-notifier",
	Short: "CIS Del announcement notifier",
	Long: "cisdel-notifier keeps a session on the CIS Del student portal, polls the announcement " +
		"listing and raises a notification when new announcements appear.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
