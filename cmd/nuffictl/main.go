package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL string
	output string
	userID string
)

var rootCmd = &cobra.Command{
	Use:   "nuffictl",
	Short: "Nuffi CLI - workspace installer command line tool",
	Long:  `nuffictl installs workspaces from templates and inspects their progress through the Nuffi API.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "a", "http://localhost:8080", "Nuffi API URL")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "User id sent as X-User-ID")
}
