// Package report derives read-side views from installation logs.
package report

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/store"
)

const topN = 10

type ToolCount struct {
	ToolID string `json:"tool_id"`
	Count  int    `json:"count"`
}

type UserStats struct {
	TotalInstallations      int         `json:"total_installations"`
	SuccessfulInstallations int         `json:"successful_installations"`
	FailedInstallations     int         `json:"failed_installations"`
	AverageDurationMinutes  float64     `json:"average_duration_minutes"`
	MostInstalledTools      []ToolCount `json:"most_installed_tools"`
}

type KindCount struct {
	ToolType core.LogKind `json:"tool_type"`
	Count    int          `json:"count"`
}

type PopularTool struct {
	ToolID        string `json:"tool_id"`
	Installations int    `json:"installations"`
}

type GlobalStats struct {
	TotalInstallations      int           `json:"total_installations"`
	SuccessfulInstallations int           `json:"successful_installations"`
	FailedInstallations     int           `json:"failed_installations"`
	SuccessRate             float64       `json:"success_rate"`
	ToolTypeBreakdown       []KindCount   `json:"tool_type_breakdown"`
	MostPopularTools        []PopularTool `json:"most_popular_tools"`
}

type RecentLog struct {
	ID              string         `json:"id"`
	ToolID          string         `json:"tool_id"`
	ToolType        core.LogKind   `json:"tool_type"`
	Status          core.LogStatus `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	DurationSeconds *int           `json:"duration_seconds"`
	WorkspaceName   string         `json:"workspace_name"`
	WorkspaceType   string         `json:"workspace_type"`
}

// Status is what a polling client sees for one workspace.
type Status struct {
	WorkspaceID string                 `json:"workspace_id"`
	Status      core.WorkspaceStatus   `json:"status"`
	Progress    int                    `json:"progress"`
	CurrentStep string                 `json:"current_step"`
	Logs        []core.InstallationLog `json:"logs"`
}

// Summarize computes per-user statistics over logs.
func Summarize(logs []core.InstallationLog) UserStats {
	stats := UserStats{TotalInstallations: len(logs), MostInstalledTools: []ToolCount{}}
	var durations, timed int
	for _, l := range logs {
		switch l.Status {
		case core.LogSuccess:
			stats.SuccessfulInstallations++
		case core.LogFailed:
			stats.FailedInstallations++
		}
		if l.DurationSeconds != nil {
			durations += *l.DurationSeconds
			timed++
		}
	}
	if timed > 0 {
		stats.AverageDurationMinutes = round2(float64(durations) / float64(timed) / 60)
	}
	for _, tc := range successByTool(logs) {
		stats.MostInstalledTools = append(stats.MostInstalledTools, ToolCount{ToolID: tc.ToolID, Count: tc.Count})
	}
	return stats
}

// Global computes statistics across every workspace.
func Global(logs []core.InstallationLog) GlobalStats {
	stats := GlobalStats{
		TotalInstallations: len(logs),
		ToolTypeBreakdown:  []KindCount{},
		MostPopularTools:   []PopularTool{},
	}
	kinds := map[core.LogKind]int{}
	for _, l := range logs {
		switch l.Status {
		case core.LogSuccess:
			stats.SuccessfulInstallations++
			kinds[l.Kind]++
		case core.LogFailed:
			stats.FailedInstallations++
		}
	}
	if stats.TotalInstallations > 0 {
		stats.SuccessRate = round2(float64(stats.SuccessfulInstallations) / float64(stats.TotalInstallations) * 100)
	}
	for kind, n := range kinds {
		stats.ToolTypeBreakdown = append(stats.ToolTypeBreakdown, KindCount{ToolType: kind, Count: n})
	}
	slices.SortFunc(stats.ToolTypeBreakdown, func(a, b KindCount) int { return cmp.Compare(a.ToolType, b.ToolType) })
	for _, tc := range successByTool(logs) {
		stats.MostPopularTools = append(stats.MostPopularTools, PopularTool{ToolID: tc.ToolID, Installations: tc.Count})
	}
	return stats
}

// successByTool ranks tool ids by successful records, ties broken by id.
func successByTool(logs []core.InstallationLog) []ToolCount {
	counts := map[string]int{}
	for _, l := range logs {
		if l.Status == core.LogSuccess {
			counts[l.ToolID]++
		}
	}
	ranked := make([]ToolCount, 0, len(counts))
	for id, n := range counts {
		ranked = append(ranked, ToolCount{ToolID: id, Count: n})
	}
	slices.SortFunc(ranked, func(a, b ToolCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.ToolID, b.ToolID))
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// CurrentStep names the step the newest step record belongs to. logs are newest first.
func CurrentStep(status core.WorkspaceStatus, logs []core.InstallationLog) string {
	switch status {
	case core.WorkspaceActive:
		return "Installation complete"
	case core.WorkspaceError:
		return "Installation failed"
	}
	for _, l := range logs {
		if l.Kind != core.KindStep {
			continue
		}
		if step, ok := core.StepByID(core.StepID(l.ToolID)); ok {
			return step.Label
		}
	}
	return "Preparing installation"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type Reader interface {
	GetWorkspace(ctx context.Context, id, userID string) (*core.Workspace, error)
	ListWorkspaces(ctx context.Context, f store.WorkspaceFilter) ([]core.Workspace, error)
	ListLogs(ctx context.Context, f core.LogFilter) ([]core.InstallationLog, error)
}

type Reporter struct {
	store Reader
}

func New(s Reader) *Reporter {
	return &Reporter{store: s}
}

func (r *Reporter) UserStats(ctx context.Context, userID string) (UserStats, error) {
	workspaces, err := r.store.ListWorkspaces(ctx, store.WorkspaceFilter{UserID: userID})
	if err != nil {
		return UserStats{}, err
	}
	if len(workspaces) == 0 {
		return Summarize(nil), nil
	}
	ids := make([]string, len(workspaces))
	for i, ws := range workspaces {
		ids[i] = ws.ID
	}
	logs, err := r.store.ListLogs(ctx, core.LogFilter{WorkspaceIDs: ids})
	if err != nil {
		return UserStats{}, err
	}
	return Summarize(logs), nil
}

func (r *Reporter) GlobalStats(ctx context.Context) (GlobalStats, error) {
	logs, err := r.store.ListLogs(ctx, core.LogFilter{})
	if err != nil {
		return GlobalStats{}, err
	}
	return Global(logs), nil
}

// Recent lists the newest logs across all workspaces with their workspace names.
func (r *Reporter) Recent(ctx context.Context, limit int, kind core.LogKind) ([]RecentLog, error) {
	logs, err := r.store.ListLogs(ctx, core.LogFilter{Kind: kind, Limit: limit})
	if err != nil {
		return nil, err
	}
	names := map[string]*core.Workspace{}
	out := make([]RecentLog, 0, len(logs))
	for _, l := range logs {
		ws, seen := names[l.WorkspaceID]
		if !seen {
			ws, _ = r.store.GetWorkspace(ctx, l.WorkspaceID, "")
			names[l.WorkspaceID] = ws
		}
		rl := RecentLog{
			ID:              l.ID,
			ToolID:          l.ToolID,
			ToolType:        l.Kind,
			Status:          l.Status,
			StartedAt:       l.StartedAt,
			DurationSeconds: l.DurationSeconds,
			WorkspaceName:   "Unknown",
			WorkspaceType:   "Unknown",
		}
		if ws != nil {
			rl.WorkspaceName, rl.WorkspaceType = ws.Name, ws.WorkspaceType
		}
		out = append(out, rl)
	}
	return out, nil
}

// Status reports a workspace's state with its newest logs.
func (r *Reporter) Status(ctx context.Context, workspaceID, userID string, limit int) (*Status, error) {
	ws, err := r.store.GetWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	logs, err := r.store.ListLogs(ctx, core.LogFilter{WorkspaceID: workspaceID, Limit: limit})
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []core.InstallationLog{}
	}
	return &Status{
		WorkspaceID: ws.ID,
		Status:      ws.Status,
		Progress:    ws.Progress,
		CurrentStep: CurrentStep(ws.Status, logs),
		Logs:        logs,
	}, nil
}
