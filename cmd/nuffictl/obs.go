package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/spf13/cobra"
)

var obsCmd = &cobra.Command{
	Use:   "obs",
	Short: "Observability commands (query VictoriaMetrics)",
}

var vmsingleURL string

type VMResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Metric map[string]string `json:"metric"`
			Value  []any             `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

var obsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show install and HTTP summary metrics",
	Run: func(cmd *cobra.Command, args []string) {
		printQueries(map[string]string{
			"Install Success Rate": `sum(rate(nuffi_install_runs_total{outcome="active"}[5m])) / sum(rate(nuffi_install_runs_total[5m])) * 100`,
			"Active Installs":      `sum(nuffi_active_install_runs)`,
			"Install P95":          `histogram_quantile(0.95, sum(rate(nuffi_install_run_duration_seconds_bucket[5m])) by (le))`,
			"HTTP Request Rate":    `sum(rate(nuffi_http_requests_total[5m]))`,
			"Active Requests":      `sum(nuffi_active_requests)`,
			"Executor Items":       `sum(nuffi_executor_active_items)`,
		})
	},
}

var obsStepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Show per-step failure rates and latency",
	Run: func(cmd *cobra.Command, args []string) {
		queries := map[string]string{}
		for _, step := range []string{"system_check", "gui_tools", "cli_tools", "packages", "dotfiles", "verification"} {
			queries[step+" failures/5m"] = fmt.Sprintf(`sum(increase(nuffi_step_total{step=%q,status="failed"}[5m]))`, step)
			queries[step+" P95"] = fmt.Sprintf(`histogram_quantile(0.95, sum(rate(nuffi_step_duration_seconds_bucket{step=%q}[5m])) by (le))`, step)
		}
		printQueries(queries)
	},
}

func printQueries(queries map[string]string) {
	names := make([]string, 0, len(queries))
	for name := range queries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, queryVM(vmsingleURL, queries[name]))
	}
}

func queryVM(baseURL, query string) string {
	resp, err := http.Get(baseURL + "/api/v1/query?query=" + url.QueryEscape(query))
	if err != nil {
		return "error: " + err.Error()
	}
	defer resp.Body.Close()

	var vmResp VMResponse
	if err := json.NewDecoder(resp.Body).Decode(&vmResp); err != nil {
		return "parse error"
	}

	if len(vmResp.Data.Result) == 0 {
		return "no data"
	}

	result := vmResp.Data.Result[0]
	if len(result.Value) >= 2 {
		return fmt.Sprintf("%v", result.Value[1])
	}
	return "no value"
}

func init() {
	obsCmd.PersistentFlags().StringVar(&vmsingleURL, "vm-url", "http://localhost:8428", "VictoriaMetrics URL")
	obsCmd.AddCommand(obsSummaryCmd, obsStepsCmd)
	rootCmd.AddCommand(obsCmd)
}
