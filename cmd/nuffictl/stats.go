package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type ToolCountRow struct {
	ToolID string `json:"tool_id"`
	Count  int    `json:"count"`
}

type UserStatsView struct {
	TotalInstallations      int            `json:"total_installations"`
	SuccessfulInstallations int            `json:"successful_installations"`
	FailedInstallations     int            `json:"failed_installations"`
	AverageDurationMinutes  float64        `json:"average_duration_minutes"`
	MostInstalledTools      []ToolCountRow `json:"most_installed_tools"`
}

type GlobalStatsView struct {
	TotalInstallations      int     `json:"total_installations"`
	SuccessfulInstallations int     `json:"successful_installations"`
	FailedInstallations     int     `json:"failed_installations"`
	SuccessRate             float64 `json:"success_rate"`
	ToolTypeBreakdown       []struct {
		ToolType string `json:"tool_type"`
		Count    int    `json:"count"`
	} `json:"tool_type_breakdown"`
	MostPopularTools []struct {
		ToolID        string `json:"tool_id"`
		Installations int    `json:"installations"`
	} `json:"most_popular_tools"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Installation statistics",
}

var statsUserCmd = &cobra.Command{
	Use:   "user [user-id]",
	Short: "Show installation statistics for a user",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := userID
		if len(args) == 1 {
			id = args[0]
		}
		if id == "" {
			id = "default_user"
		}
		var st UserStatsView
		if err := NewClient(apiURL).Get("/v1/users/"+id+"/stats", &st); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(st)
	},
}

var statsGlobalCmd = &cobra.Command{
	Use:   "global",
	Short: "Show installation statistics across all users",
	Run: func(cmd *cobra.Command, args []string) {
		var st GlobalStatsView
		if err := NewClient(apiURL).Get("/v1/installations/stats", &st); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(st)
	},
}

func init() {
	statsCmd.AddCommand(statsUserCmd, statsGlobalCmd)
	rootCmd.AddCommand(statsCmd)
}
