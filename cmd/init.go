package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lifelink/copilot/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize copilot configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the copilot service and generates a copilot.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
