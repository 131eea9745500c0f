// Logheal is an automated log-triage and remediation daemon.
//
// It fetches error-level logs, analyzes them with a language model,
// locates the failing code in a local clone, generates a fix, and
// commits it on an isolated branch for review.
//
// Usage:
//
//	# One triage cycle over the configured log source
//	logheal run
//
//	# Start the HTTP server
//	logheal serve
//
//	# Configure via environment
//	LOGHEAL_OPENAI_API_KEY=sk-... LOGHEAL_APP_CODEBASE_PATH=/srv/app logheal run
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "logheal",
	Short: "Automated log triage and code remediation",
	Long: `logheal watches error logs, diagnoses the failing code with a
language model, and proposes fixes as commits on isolated git branches.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("logheal\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
