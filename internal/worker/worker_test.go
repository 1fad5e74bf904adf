package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/catalog"
	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/orchestrator"
	"github.com/nuffi-dev/nuffi/internal/store/memory"
)

// gate blocks every install until released or the run is cancelled.
type gate struct {
	entered chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan string, 16), release: make(chan struct{})}
}

func (g *gate) Install(ctx context.Context, item core.Item) error {
	g.entered <- item.Name
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func setup(t *testing.T, inst orchestrator.Installer, cfg Config) (*Runner, *memory.Store, *core.Template) {
	t.Helper()
	s := memory.New()
	tpl := &core.Template{Name: "Web", Slug: "web", Category: "web", GUITools: []string{"vscode"}}
	if err := s.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatal(err)
	}
	orch := orchestrator.New(s, s, s, nil, inst, orchestrator.Config{Platform: catalog.PlatformLinux}, zap.NewNop())
	return New(s, orch, cfg, zap.NewNop()), s, tpl
}

func waitStatus(t *testing.T, s *memory.Store, id string, want core.WorkspaceStatus) *core.Workspace {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ws, err := s.GetWorkspace(context.Background(), id, "")
		if err == nil && ws.Status == want {
			return ws
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("workspace %s never reached %s", id, want)
	return nil
}

func TestCreateAndInstallRunsToActive(t *testing.T) {
	g := newGate()
	r, s, tpl := setup(t, g, Config{})
	ws := &core.Workspace{UserID: "u1", TemplateID: &tpl.ID, Name: "Web", WorkspaceType: "web"}
	if err := r.CreateAndInstall(context.Background(), ws); err != nil {
		t.Fatal(err)
	}
	<-g.entered
	if !r.Running(ws.ID) {
		t.Error("expected run to be tracked")
	}
	if _, err := r.Reinstall(context.Background(), ws.ID, "u1"); !errors.Is(err, core.ErrConflict) {
		t.Errorf("expected conflict while installing, got %v", err)
	}
	close(g.release)

	got := waitStatus(t, s, ws.ID, core.WorkspaceActive)
	if got.Progress != 100 {
		t.Errorf("expected progress 100, got %d", got.Progress)
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.Active() != 0 {
		t.Errorf("expected no active runs, got %d", r.Active())
	}
}

func TestCancel(t *testing.T) {
	g := newGate()
	r, s, tpl := setup(t, g, Config{})
	ws := &core.Workspace{UserID: "u1", TemplateID: &tpl.ID, Name: "Web", WorkspaceType: "web"}
	if err := r.CreateAndInstall(context.Background(), ws); err != nil {
		t.Fatal(err)
	}
	<-g.entered
	if err := r.Cancel(ws.ID); err != nil {
		t.Fatal(err)
	}
	got := waitStatus(t, s, ws.ID, core.WorkspaceError)
	if got.Progress != 10 {
		t.Errorf("expected progress frozen at 10, got %d", got.Progress)
	}
	logs, _ := s.ListLogs(context.Background(), core.LogFilter{WorkspaceID: ws.ID, Limit: 1})
	if len(logs) != 1 || logs[0].ErrorMessage == nil || *logs[0].ErrorMessage != "step gui_tools: cancelled" {
		t.Errorf("unexpected final record %+v", logs)
	}
	_ = r.Shutdown(context.Background())
	if err := r.Cancel(ws.ID); !errors.Is(err, core.ErrNotInstalling) {
		t.Errorf("expected ErrNotInstalling for finished run, got %v", err)
	}
}

func TestReinstall(t *testing.T) {
	g := newGate()
	close(g.release)
	r, s, tpl := setup(t, g, Config{})
	ws := &core.Workspace{UserID: "u1", TemplateID: &tpl.ID, Name: "Web", WorkspaceType: "web"}
	if err := r.CreateAndInstall(context.Background(), ws); err != nil {
		t.Fatal(err)
	}
	waitStatus(t, s, ws.ID, core.WorkspaceActive)
	for r.Running(ws.ID) {
		time.Sleep(time.Millisecond)
	}

	if _, err := r.Reinstall(context.Background(), ws.ID, "someone-else"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found for another user, got %v", err)
	}
	restarted, err := r.Reinstall(context.Background(), ws.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if restarted.Status != core.WorkspaceInstalling || restarted.Progress != 0 {
		t.Errorf("expected reset workspace, got %+v", restarted)
	}
	waitStatus(t, s, ws.ID, core.WorkspaceActive)
	_ = r.Shutdown(context.Background())
}

func TestRunTimeout(t *testing.T) {
	g := newGate()
	r, s, tpl := setup(t, g, Config{RunTimeout: 20 * time.Millisecond})
	ws := &core.Workspace{UserID: "u1", TemplateID: &tpl.ID, Name: "Web", WorkspaceType: "web"}
	if err := r.CreateAndInstall(context.Background(), ws); err != nil {
		t.Fatal(err)
	}
	waitStatus(t, s, ws.ID, core.WorkspaceError)
	logs, _ := s.ListLogs(context.Background(), core.LogFilter{WorkspaceID: ws.ID, Limit: 1})
	if len(logs) != 1 || logs[0].ErrorMessage == nil || !strings.HasSuffix(*logs[0].ErrorMessage, "installation timed out") {
		t.Errorf("unexpected final record %+v", logs)
	}
	_ = r.Shutdown(context.Background())
}

func TestShutdownCancelsAfterGrace(t *testing.T) {
	g := newGate()
	r, s, tpl := setup(t, g, Config{ShutdownGrace: 10 * time.Millisecond})
	ws := &core.Workspace{UserID: "u1", TemplateID: &tpl.ID, Name: "Web", WorkspaceType: "web"}
	if err := r.CreateAndInstall(context.Background(), ws); err != nil {
		t.Fatal(err)
	}
	<-g.entered
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetWorkspace(context.Background(), ws.ID, "")
	if got.Status != core.WorkspaceError {
		t.Errorf("expected error after shutdown, got %s", got.Status)
	}
	logs, _ := s.ListLogs(context.Background(), core.LogFilter{WorkspaceID: ws.ID, Limit: 1})
	if len(logs) != 1 || logs[0].ErrorMessage == nil || !strings.Contains(*logs[0].ErrorMessage, "cancelled: runner shutting down") {
		t.Errorf("unexpected final record %+v", logs)
	}
	other := &core.Workspace{UserID: "u1", TemplateID: &tpl.ID, Name: "Late", WorkspaceType: "web"}
	if err := r.CreateAndInstall(context.Background(), other); err == nil {
		t.Error("expected runs to be refused after shutdown")
	}
}

func TestRecover(t *testing.T) {
	r, s, tpl := setup(t, newGate(), Config{})
	stale := &core.Workspace{UserID: "u1", TemplateID: &tpl.ID, Name: "Stale", Status: core.WorkspaceInstalling}
	if err := s.CreateWorkspace(context.Background(), stale); err != nil {
		t.Fatal(err)
	}
	n, err := r.Recover(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected one recovered workspace, got %d %v", n, err)
	}
	got, _ := s.GetWorkspace(context.Background(), stale.ID, "")
	if got.Status != core.WorkspaceError {
		t.Errorf("expected error, got %s", got.Status)
	}
}
