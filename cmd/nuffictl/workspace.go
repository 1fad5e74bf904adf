package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type WorkspaceRow struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	WorkspaceType string `json:"workspace_type"`
	Status        string `json:"status"`
	Progress      int    `json:"installation_progress"`
	CreatedAt     string `json:"created_at"`
	Template      *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"template,omitempty"`
}

type InstallRef struct {
	WorkspaceID string `json:"workspace_id"`
	Status      string `json:"status"`
	StatusURL   string `json:"status_href"`
}

type LogRow struct {
	Seq          int64   `json:"seq"`
	ToolID       string  `json:"tool_id"`
	ToolType     string  `json:"tool_type"`
	Status       string  `json:"status"`
	Progress     int     `json:"progress"`
	Message      string  `json:"logs"`
	ErrorMessage *string `json:"error_message"`
	StartedAt    string  `json:"started_at"`
}

type StatusView struct {
	WorkspaceID string   `json:"workspace_id"`
	Status      string   `json:"status"`
	Progress    int      `json:"progress"`
	CurrentStep string   `json:"current_step"`
	Logs        []LogRow `json:"logs"`
}

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Workspace management commands",
}

var (
	wsName       string
	wsStatus     string
	wsLogKind    string
	wsLogStatus  string
	wsLogLimit   int
	wsWatchEvery time.Duration
)

var wsInstallCmd = &cobra.Command{
	Use:   "install <template-id>",
	Short: "Install a new workspace from a template",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req := map[string]string{"template_id": args[0]}
		if wsName != "" {
			req["custom_name"] = wsName
		}

		var resp InstallRef
		err := NewClient(apiURL).Do("POST", "/v1/workspaces/install", req, &resp, map[string]string{
			"Idempotency-Key": uuid.New().String(),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Workspace installation started.\n")
		fmt.Printf("Workspace ID: %s\n", resp.WorkspaceID)
		fmt.Printf("Check status: nuffictl workspace watch %s\n", resp.WorkspaceID)
	},
}

var wsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	Run: func(cmd *cobra.Command, args []string) {
		path := "/v1/workspaces"
		if wsStatus != "" {
			path += "?status=" + url.QueryEscape(wsStatus)
		}
		var rows []WorkspaceRow
		if err := NewClient(apiURL).Get(path, &rows); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(rows)
	},
}

var wsGetCmd = &cobra.Command{
	Use:   "get <workspace-id>",
	Short: "Get workspace details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var ws WorkspaceRow
		if err := NewClient(apiURL).Get("/v1/workspaces/"+args[0], &ws); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(ws)
	},
}

var wsStatusCmd = &cobra.Command{
	Use:   "status <workspace-id>",
	Short: "Show installation progress and recent logs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var st StatusView
		if err := NewClient(apiURL).Get("/v1/workspaces/"+args[0]+"/status", &st); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(st)
	},
}

var wsWatchCmd = &cobra.Command{
	Use:   "watch <workspace-id>",
	Short: "Watch an installation until it finishes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		client := NewClient(apiURL)

		var lastSeq int64
		for {
			var st StatusView
			if err := client.Get("/v1/workspaces/"+id+"/status", &st); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			// Logs arrive newest first; print the unseen ones oldest first.
			for i := len(st.Logs) - 1; i >= 0; i-- {
				if l := st.Logs[i]; l.Seq > lastSeq {
					fmt.Printf("  [%s] %s\n", l.ToolID, l.Message)
					lastSeq = l.Seq
				}
			}
			fmt.Printf("%s: %s %d%% (%s)\n", id, st.Status, st.Progress, st.CurrentStep)

			if st.Status != "installing" {
				if st.Status == "error" {
					os.Exit(1)
				}
				break
			}
			time.Sleep(wsWatchEvery)
		}
	},
}

var wsReinstallCmd = &cobra.Command{
	Use:   "reinstall <workspace-id>",
	Short: "Reinstall a workspace from its template",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp InstallRef
		if err := NewClient(apiURL).Post("/v1/workspaces/"+args[0]+"/reinstall", nil, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reinstall started for %s.\n", resp.WorkspaceID)
	},
}

var wsCancelCmd = &cobra.Command{
	Use:   "cancel <workspace-id>",
	Short: "Cancel a running installation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := NewClient(apiURL).Post("/v1/workspaces/"+args[0]+"/cancel", nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cancellation requested for %s.\n", args[0])
	},
}

var wsDeleteCmd = &cobra.Command{
	Use:   "delete <workspace-id>",
	Short: "Delete a workspace and its logs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := NewClient(apiURL).Delete("/v1/workspaces/"+args[0], nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Workspace %s deleted.\n", args[0])
	},
}

var wsLogsCmd = &cobra.Command{
	Use:   "logs <workspace-id>",
	Short: "List installation logs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(wsLogLimit))
		if wsLogKind != "" {
			q.Set("tool_type", wsLogKind)
		}
		if wsLogStatus != "" {
			q.Set("status", wsLogStatus)
		}
		var rows []LogRow
		if err := NewClient(apiURL).Get("/v1/workspaces/"+args[0]+"/logs?"+q.Encode(), &rows); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(rows)
	},
}

var wsRetryFailedCmd = &cobra.Command{
	Use:   "retry-failed <workspace-id>",
	Short: "Mark failed installation logs pending again",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			Message string `json:"message"`
		}
		if err := NewClient(apiURL).Post("/v1/workspaces/"+args[0]+"/retry-failed", nil, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(resp.Message)
	},
}

func init() {
	wsInstallCmd.Flags().StringVar(&wsName, "name", "", "Custom workspace name")
	wsListCmd.Flags().StringVar(&wsStatus, "status", "", "Filter by status")
	wsLogsCmd.Flags().StringVar(&wsLogKind, "tool-type", "", "Filter by tool type")
	wsLogsCmd.Flags().StringVar(&wsLogStatus, "status", "", "Filter by status")
	wsLogsCmd.Flags().IntVar(&wsLogLimit, "limit", 50, "Maximum logs to list")
	wsWatchCmd.Flags().DurationVar(&wsWatchEvery, "interval", time.Second, "Poll interval")
	workspaceCmd.AddCommand(wsInstallCmd, wsListCmd, wsGetCmd, wsStatusCmd, wsWatchCmd,
		wsReinstallCmd, wsCancelCmd, wsDeleteCmd, wsLogsCmd, wsRetryFailedCmd)
	rootCmd.AddCommand(workspaceCmd)
}
