package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tgrelay",
	Short: "Telegram relay bot for the agent backend",
	Long:  "tgrelay receives Telegram chat events and forwards them to the backend agent API, relaying replies back to the originating chat.",
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
