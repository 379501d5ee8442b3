package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "LifeLink operational co-pilot service",
	Long: `LifeLink copilot is the AI assistant backend for hospital operations.
It serves a chat API with tenant-isolated document retrieval, a tool
layer over the operational backend with confirmation for state-changing
actions, and an MCP server for agent integrations.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "copilot.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
