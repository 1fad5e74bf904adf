package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

type TemplateRow struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Slug          string   `json:"slug"`
	Category      string   `json:"category"`
	Description   string   `json:"description"`
	GUITools      []string `json:"gui_tools"`
	CLITools      []string `json:"cli_tools"`
	SetupTime     string   `json:"setup_time"`
	Difficulty    string   `json:"difficulty"`
	Downloads     int      `json:"downloads"`
	RatingAverage float64  `json:"rating_average"`
	IsOfficial    bool     `json:"is_official"`
}

type CategoryList struct {
	Categories []string `json:"categories"`
	Total      int      `json:"total"`
}

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"tpl"},
	Short:   "Workspace template commands",
}

var (
	tplCategory   string
	tplSearch     string
	tplDifficulty string
	tplLimit      int
)

var tplListCmd = &cobra.Command{
	Use:   "list",
	Short: "List public templates",
	Run: func(cmd *cobra.Command, args []string) {
		q := url.Values{}
		if tplCategory != "" {
			q.Set("category", tplCategory)
		}
		if tplSearch != "" {
			q.Set("search", tplSearch)
		}
		if tplDifficulty != "" {
			q.Set("difficulty", tplDifficulty)
		}
		q.Set("limit", strconv.Itoa(tplLimit))

		var rows []TemplateRow
		if err := NewClient(apiURL).Get("/v1/templates?"+q.Encode(), &rows); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(rows)
	},
}

var tplGetCmd = &cobra.Command{
	Use:   "get <template-id>",
	Short: "Get template details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var tpl TemplateRow
		if err := NewClient(apiURL).Get("/v1/templates/"+args[0], &tpl); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(tpl)
	},
}

var tplCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List template categories",
	Run: func(cmd *cobra.Command, args []string) {
		var resp CategoryList
		if err := NewClient(apiURL).Get("/v1/templates/categories", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if output == "json" {
			printResult(resp)
			return
		}
		for _, c := range resp.Categories {
			fmt.Println(c)
		}
	},
}

func init() {
	tplListCmd.Flags().StringVar(&tplCategory, "category", "", "Filter by category")
	tplListCmd.Flags().StringVar(&tplSearch, "search", "", "Search name and description")
	tplListCmd.Flags().StringVar(&tplDifficulty, "difficulty", "", "Filter by difficulty")
	tplListCmd.Flags().IntVar(&tplLimit, "limit", 20, "Maximum templates to list")
	templateCmd.AddCommand(tplListCmd, tplGetCmd, tplCategoriesCmd)
	rootCmd.AddCommand(templateCmd)
}
