// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/store"
)

// Run exercises s against the Store contract. s must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	web := &core.Template{
		Name: "Web Development", Slug: "web-dev", Category: "web", Description: "Frontend stack",
		GUITools: []string{"vscode"}, CLITools: []string{"node"},
		Packages:     core.PackageSet{{Manager: "npm", Raw: json.RawMessage(`["typescript","eslint"]`)}},
		Requirements: map[string]any{"difficulty": "beginner"},
		Downloads:    10, IsOfficial: true, IsPublic: true,
	}
	data := &core.Template{
		Name: "Data Science", Slug: "data-sci", Category: "data", Description: "Python notebooks",
		Downloads: 40, IsPublic: true,
	}
	hidden := &core.Template{Name: "Hidden", Slug: "hidden", Category: "web", IsPublic: false}

	t.Run("Templates", func(t *testing.T) {
		for _, tpl := range []*core.Template{web, data, hidden} {
			if err := s.CreateTemplate(ctx, tpl); err != nil {
				t.Fatalf("create %s: %v", tpl.Slug, err)
			}
			if tpl.ID == "" {
				t.Fatalf("create %s: no id assigned", tpl.Slug)
			}
		}

		got, err := s.GetTemplateBySlug(ctx, "web-dev")
		if err != nil {
			t.Fatalf("get by slug: %v", err)
		}
		if n, _ := got.Packages.Total(); got.ID != web.ID || n != 2 || got.Difficulty() != "beginner" {
			t.Errorf("unexpected template %+v", got)
		}
		dup := &core.Template{Name: "Copy", Slug: "web-dev", Category: "web"}
		if err := s.CreateTemplate(ctx, dup); !errors.Is(err, core.ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate slug, got %v", err)
		}
		if _, err := s.GetTemplate(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		list, err := s.ListTemplates(ctx, store.TemplateFilter{PublicOnly: true})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 || list[0].Slug != "data-sci" || list[1].Slug != "web-dev" {
			t.Errorf("expected public templates by downloads desc, got %v", slugs(list))
		}

		official := true
		list, _ = s.ListTemplates(ctx, store.TemplateFilter{PublicOnly: true, Official: &official})
		if len(list) != 1 || list[0].Slug != "web-dev" {
			t.Errorf("official filter: got %v", slugs(list))
		}
		list, _ = s.ListTemplates(ctx, store.TemplateFilter{PublicOnly: true, Search: "notebook"})
		if len(list) != 1 || list[0].Slug != "data-sci" {
			t.Errorf("search filter: got %v", slugs(list))
		}
		list, _ = s.ListTemplates(ctx, store.TemplateFilter{PublicOnly: true, Difficulty: "beginner"})
		if len(list) != 1 || list[0].Slug != "web-dev" {
			t.Errorf("difficulty filter: got %v", slugs(list))
		}
		list, _ = s.ListTemplates(ctx, store.TemplateFilter{PublicOnly: true, Limit: 1, Offset: 1})
		if len(list) != 1 || list[0].Slug != "web-dev" {
			t.Errorf("paging: got %v", slugs(list))
		}

		cats, err := s.ListCategories(ctx)
		if err != nil {
			t.Fatalf("categories: %v", err)
		}
		if len(cats) != 2 || cats[0] != "data" || cats[1] != "web" {
			t.Errorf("categories: got %v", cats)
		}

		if err := s.IncrementDownloads(ctx, web.ID); err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got, _ := s.GetTemplate(ctx, web.ID); got.Downloads != 11 {
			t.Errorf("expected 11 downloads, got %d", got.Downloads)
		}
		if err := s.IncrementDownloads(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		if _, err := s.RateTemplate(ctx, web.ID, 5); err != nil {
			t.Fatalf("rate: %v", err)
		}
		rated, err := s.RateTemplate(ctx, web.ID, 4)
		if err != nil {
			t.Fatalf("rate: %v", err)
		}
		if rated.RatingCount != 2 || rated.RatingAverage != 4.5 {
			t.Errorf("expected 4.5 over 2 ratings, got %v over %d", rated.RatingAverage, rated.RatingCount)
		}
	})

	var ws *core.Workspace
	t.Run("Workspaces", func(t *testing.T) {
		ws = &core.Workspace{
			UserID: "alice", TemplateID: &web.ID, Name: "My Web", WorkspaceType: "web",
			Status: core.WorkspaceInstalling, IdempotencyKey: "key-1", RequestHash: "hash-1",
		}
		if err := s.CreateWorkspace(ctx, ws); err != nil {
			t.Fatalf("create: %v", err)
		}
		other := &core.Workspace{UserID: "bob", Name: "Bob's", WorkspaceType: "data", Status: core.WorkspaceActive}
		if err := s.CreateWorkspace(ctx, other); err != nil {
			t.Fatalf("create: %v", err)
		}

		if _, err := s.GetWorkspace(ctx, ws.ID, "bob"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("expected other user's workspace to be hidden, got %v", err)
		}
		got, err := s.GetWorkspaceByIdempotencyKey(ctx, "alice", "key-1")
		if err != nil || got.ID != ws.ID || got.RequestHash != "hash-1" {
			t.Errorf("idempotency lookup: %v %+v", err, got)
		}

		again := &core.Workspace{
			UserID: "alice", Name: "Again", WorkspaceType: "web",
			Status: core.WorkspaceInstalling, IdempotencyKey: "key-1", RequestHash: "hash-2",
		}
		if err := s.CreateWorkspace(ctx, again); !errors.Is(err, core.ErrConflict) {
			t.Errorf("expected ErrConflict for a reused idempotency key, got %v", err)
		}

		if _, err := s.BeginInstall(ctx, ws.ID, "alice"); !errors.Is(err, core.ErrConflict) {
			t.Errorf("expected ErrConflict while installing, got %v", err)
		}
		if err := s.DeleteWorkspace(ctx, ws.ID, "alice"); !errors.Is(err, core.ErrConflict) {
			t.Errorf("expected ErrConflict deleting an installing workspace, got %v", err)
		}

		if err := s.SetProgress(ctx, ws.ID, 40, core.Inventory{Tools: []string{"vscode"}}); err != nil {
			t.Fatalf("progress: %v", err)
		}
		if err := s.SetProgress(ctx, ws.ID, 65, core.Inventory{Tools: []string{"node"}, Packages: map[string][]string{"npm": {"typescript"}}}); err != nil {
			t.Fatalf("progress: %v", err)
		}
		if err := s.SetProgress(ctx, ws.ID, 30, core.Inventory{}); err == nil {
			t.Error("expected progress regression to be rejected")
		}
		got, _ = s.GetWorkspace(ctx, ws.ID, "")
		if got.Progress != 65 || len(got.Inventory.Tools) != 2 || len(got.Inventory.Packages["npm"]) != 1 {
			t.Errorf("unexpected workspace after progress: %+v", got)
		}

		full := 100
		if err := s.SetStatus(ctx, ws.ID, core.WorkspaceActive, &full); err != nil {
			t.Fatalf("status: %v", err)
		}
		if err := s.SetStatus(ctx, ws.ID, core.WorkspaceError, nil); !errors.Is(err, core.ErrNotInstalling) {
			t.Errorf("expected ErrNotInstalling, got %v", err)
		}
		if err := s.SetProgress(ctx, ws.ID, 100, core.Inventory{}); !errors.Is(err, core.ErrNotInstalling) {
			t.Errorf("expected ErrNotInstalling, got %v", err)
		}

		restarted, err := s.BeginInstall(ctx, ws.ID, "alice")
		if err != nil {
			t.Fatalf("begin install: %v", err)
		}
		if restarted.Status != core.WorkspaceInstalling || restarted.Progress != 0 || !restarted.Inventory.Empty() {
			t.Errorf("expected reset workspace, got %+v", restarted)
		}
		if err := s.SetStatus(ctx, ws.ID, core.WorkspaceArchived, nil); err != nil {
			t.Fatalf("archive: %v", err)
		}
		var verr *core.ValidationError
		if _, err := s.BeginInstall(ctx, ws.ID, "alice"); !errors.As(err, &verr) {
			t.Errorf("expected ValidationError for archived workspace, got %v", err)
		}

		list, err := s.ListWorkspaces(ctx, store.WorkspaceFilter{UserID: "alice"})
		if err != nil || len(list) != 1 || list[0].ID != ws.ID {
			t.Errorf("list by user: %v %+v", err, list)
		}
		list, _ = s.ListWorkspaces(ctx, store.WorkspaceFilter{Status: core.WorkspaceActive})
		if len(list) != 1 || list[0].ID != other.ID {
			t.Errorf("list by status: %+v", list)
		}
	})

	t.Run("Logs", func(t *testing.T) {
		msg := "boom"
		entries := []core.InstallationLog{
			{ToolID: "system_check", Kind: core.KindStep, Status: core.LogInProgress, Message: "Starting"},
			{ToolID: "vscode", Kind: core.KindGUI, Status: core.LogSuccess, Message: "vscode installed"},
			{ToolID: "node", Kind: core.KindCLI, Status: core.LogFailed, Message: "node failed", ErrorMessage: &msg},
		}
		var lastSeq int64
		for i := range entries {
			l := &entries[i]
			l.WorkspaceID, l.UserID, l.Action = ws.ID, "alice", core.ActionInstall
			if err := s.AppendLog(ctx, l); err != nil {
				t.Fatalf("append: %v", err)
			}
			if l.Seq <= lastSeq || l.StartedAt.IsZero() {
				t.Errorf("expected increasing seq and a start time, got %d %v", l.Seq, l.StartedAt)
			}
			lastSeq = l.Seq
		}

		logs, err := s.ListLogs(ctx, core.LogFilter{WorkspaceID: ws.ID})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(logs) != 3 || logs[0].ToolID != "node" || logs[2].ToolID != "system_check" {
			t.Errorf("expected newest first, got %+v", logs)
		}
		logs, _ = s.ListLogs(ctx, core.LogFilter{WorkspaceID: ws.ID, Kind: core.KindGUI})
		if len(logs) != 1 || logs[0].ToolID != "vscode" {
			t.Errorf("kind filter: %+v", logs)
		}
		logs, _ = s.ListLogs(ctx, core.LogFilter{WorkspaceIDs: []string{ws.ID}, Limit: 2})
		if len(logs) != 2 {
			t.Errorf("limit: got %d logs", len(logs))
		}

		n, err := s.ResetFailedLogs(ctx, ws.ID)
		if err != nil || n != 1 {
			t.Fatalf("reset: %d %v", n, err)
		}
		logs, _ = s.ListLogs(ctx, core.LogFilter{WorkspaceID: ws.ID, Status: core.LogPending})
		if len(logs) != 1 || logs[0].ErrorMessage != nil {
			t.Errorf("expected one pending log with no error, got %+v", logs)
		}
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		if err := s.DeleteWorkspace(ctx, ws.ID, "alice"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.GetWorkspace(ctx, ws.ID, ""); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		logs, _ := s.ListLogs(ctx, core.LogFilter{WorkspaceID: ws.ID})
		if len(logs) != 0 {
			t.Errorf("expected logs removed with workspace, got %d", len(logs))
		}
	})
}

func slugs(list []core.Template) []string {
	out := make([]string, len(list))
	for i, tpl := range list {
		out[i] = tpl.Slug
	}
	return out
}
