package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

func printResult(v any) {
	if output == "json" {
		json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	printTable(v)
}

func printTable(v any) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch data := v.(type) {
	case []TemplateRow:
		if len(data) == 0 {
			fmt.Println("No templates found.")
			return
		}
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tDIFFICULTY\tDOWNLOADS\tRATING")
		for _, t := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.1f\n", t.ID, truncate(t.Name, 30), t.Category, t.Difficulty, t.Downloads, t.RatingAverage)
		}
	case TemplateRow:
		fmt.Fprintf(w, "ID:\t%s\n", data.ID)
		fmt.Fprintf(w, "Name:\t%s\n", data.Name)
		fmt.Fprintf(w, "Category:\t%s\n", data.Category)
		fmt.Fprintf(w, "Description:\t%s\n", data.Description)
		fmt.Fprintf(w, "GUI tools:\t%s\n", strings.Join(data.GUITools, ", "))
		fmt.Fprintf(w, "CLI tools:\t%s\n", strings.Join(data.CLITools, ", "))
		fmt.Fprintf(w, "Setup time:\t%s\n", data.SetupTime)
		fmt.Fprintf(w, "Difficulty:\t%s\n", data.Difficulty)
	case []WorkspaceRow:
		if len(data) == 0 {
			fmt.Println("No workspaces found.")
			return
		}
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tPROGRESS\tCREATED")
		for _, ws := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%s\n", ws.ID, truncate(ws.Name, 30), ws.WorkspaceType, ws.Status, ws.Progress, ws.CreatedAt)
		}
	case WorkspaceRow:
		fmt.Fprintf(w, "ID:\t%s\n", data.ID)
		fmt.Fprintf(w, "Name:\t%s\n", data.Name)
		fmt.Fprintf(w, "Type:\t%s\n", data.WorkspaceType)
		fmt.Fprintf(w, "Status:\t%s\n", data.Status)
		fmt.Fprintf(w, "Progress:\t%d%%\n", data.Progress)
		if data.Template != nil {
			fmt.Fprintf(w, "Template:\t%s (%s)\n", data.Template.Name, data.Template.ID)
		}
	case StatusView:
		fmt.Fprintf(w, "Workspace:\t%s\n", data.WorkspaceID)
		fmt.Fprintf(w, "Status:\t%s\n", data.Status)
		fmt.Fprintf(w, "Progress:\t%d%%\n", data.Progress)
		fmt.Fprintf(w, "Step:\t%s\n", data.CurrentStep)
		w.Flush()
		printTable(data.Logs)
		return
	case []LogRow:
		if len(data) == 0 {
			fmt.Println("No logs found.")
			return
		}
		fmt.Fprintln(w, "SEQ\tTOOL\tTYPE\tSTATUS\tPROGRESS\tMESSAGE")
		for _, l := range data {
			msg := l.Message
			if l.ErrorMessage != nil {
				msg = *l.ErrorMessage
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d%%\t%s\n", l.Seq, l.ToolID, l.ToolType, l.Status, l.Progress, truncate(msg, 60))
		}
	case UserStatsView:
		fmt.Fprintf(w, "Total:\t%d\n", data.TotalInstallations)
		fmt.Fprintf(w, "Successful:\t%d\n", data.SuccessfulInstallations)
		fmt.Fprintf(w, "Failed:\t%d\n", data.FailedInstallations)
		fmt.Fprintf(w, "Avg duration:\t%.2f min\n", data.AverageDurationMinutes)
		for _, t := range data.MostInstalledTools {
			fmt.Fprintf(w, "  %s\t%d\n", t.ToolID, t.Count)
		}
	case GlobalStatsView:
		fmt.Fprintf(w, "Total:\t%d\n", data.TotalInstallations)
		fmt.Fprintf(w, "Successful:\t%d\n", data.SuccessfulInstallations)
		fmt.Fprintf(w, "Failed:\t%d\n", data.FailedInstallations)
		fmt.Fprintf(w, "Success rate:\t%.2f%%\n", data.SuccessRate)
		for _, k := range data.ToolTypeBreakdown {
			fmt.Fprintf(w, "  %s\t%d\n", k.ToolType, k.Count)
		}
	default:
		json.NewEncoder(os.Stdout).Encode(v)
	}
	w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
