package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/catalog"
	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/store/memory"
)

type installFunc func(ctx context.Context, item core.Item) error

func (f installFunc) Install(ctx context.Context, item core.Item) error { return f(ctx, item) }

// recorder captures installer calls and optionally fails named items.
type recorder struct {
	mu    sync.Mutex
	items []core.Item
	fail  map[string]error
}

func (r *recorder) Install(_ context.Context, item core.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return r.fail[item.Name]
}

// progressStore records every committed progress value.
type progressStore struct {
	*memory.Store
	mu        sync.Mutex
	committed []int
}

func (s *progressStore) SetProgress(ctx context.Context, id string, progress int, inv core.Inventory) error {
	s.mu.Lock()
	s.committed = append(s.committed, progress)
	s.mu.Unlock()
	return s.Store.SetProgress(ctx, id, progress, inv)
}

type fixture struct {
	store *progressStore
	ws    *core.Workspace
	tpl   *core.Template
}

func newFixture(t *testing.T, tpl *core.Template) *fixture {
	t.Helper()
	ctx := context.Background()
	s := &progressStore{Store: memory.New()}
	if tpl.Name == "" {
		tpl.Name, tpl.Slug, tpl.Category = "Test", "test", "web"
	}
	if err := s.CreateTemplate(ctx, tpl); err != nil {
		t.Fatal(err)
	}
	ws := &core.Workspace{
		UserID: "u1", TemplateID: &tpl.ID, Name: tpl.Name, WorkspaceType: tpl.Category,
		Status: core.WorkspaceInstalling,
	}
	if err := s.CreateWorkspace(ctx, ws); err != nil {
		t.Fatal(err)
	}
	return &fixture{store: s, ws: ws, tpl: tpl}
}

func (f *fixture) orchestrator(inst Installer, cat Catalog, cfg Config) *Orchestrator {
	if cfg.Platform == "" {
		cfg.Platform = catalog.PlatformLinux
	}
	return New(f.store, f.store, f.store, cat, inst, cfg, zap.NewNop())
}

func (f *fixture) install(ctx context.Context, o *Orchestrator) Outcome {
	return o.Install(ctx, f.ws.ID, f.tpl.ID, f.ws.UserID)
}

// timeline returns the run's logs oldest first.
func (f *fixture) timeline(t *testing.T) []core.InstallationLog {
	t.Helper()
	logs, err := f.store.ListLogs(context.Background(), core.LogFilter{WorkspaceID: f.ws.ID})
	if err != nil {
		t.Fatal(err)
	}
	slices.Reverse(logs)
	return logs
}

func (f *fixture) workspace(t *testing.T) *core.Workspace {
	t.Helper()
	ws, err := f.store.GetWorkspace(context.Background(), f.ws.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

type rec struct {
	tool     string
	kind     core.LogKind
	status   core.LogStatus
	progress int
}

func (r rec) String() string { return fmt.Sprintf("%s/%s/%s/%d", r.tool, r.kind, r.status, r.progress) }

func shape(logs []core.InstallationLog) []rec {
	out := make([]rec, len(logs))
	for i, l := range logs {
		out[i] = rec{l.ToolID, l.Kind, l.Status, l.ItemProgress}
	}
	return out
}

func emptyStep(id core.StepID) []rec {
	return []rec{
		{string(id), core.KindStep, core.LogInProgress, 0},
		{string(id), core.KindInfo, core.LogInProgress, 0},
		{string(id), core.KindStep, core.LogSuccess, 100},
	}
}

func fixedStep(id core.StepID) []rec {
	return []rec{
		{string(id), core.KindStep, core.LogInProgress, 0},
		{string(id), core.KindInfo, core.LogInProgress, 0},
		{string(id), core.KindInfo, core.LogInProgress, 0},
		{string(id), core.KindInfo, core.LogInProgress, 0},
		{string(id), core.KindInfo, core.LogSuccess, 0},
		{string(id), core.KindStep, core.LogSuccess, 100},
	}
}

func TestInstallGUIOnlyTimeline(t *testing.T) {
	f := newFixture(t, &core.Template{GUITools: []string{"A", "B"}})
	inst := &recorder{}
	out := f.install(context.Background(), f.orchestrator(inst, nil, Config{}))

	if out.Status != core.WorkspaceActive || out.Progress != 100 || out.Err != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}

	var want []rec
	want = append(want, fixedStep(core.StepSystemCheck)...)
	want = append(want,
		rec{"gui_tools", core.KindStep, core.LogInProgress, 0},
		rec{"gui_tools", core.KindInfo, core.LogInProgress, 0},
		rec{"A", core.KindGUI, core.LogInProgress, 50},
		rec{"A", core.KindGUI, core.LogSuccess, 50},
		rec{"gui_tools", core.KindInfo, core.LogInProgress, 0},
		rec{"B", core.KindGUI, core.LogInProgress, 100},
		rec{"B", core.KindGUI, core.LogSuccess, 100},
		rec{"gui_tools", core.KindStep, core.LogSuccess, 100},
	)
	want = append(want, emptyStep(core.StepCLITools)...)
	want = append(want, emptyStep(core.StepPackages)...)
	want = append(want, emptyStep(core.StepDotfiles)...)
	want = append(want, fixedStep(core.StepVerification)...)
	want = append(want, rec{"complete", core.KindInfo, core.LogSuccess, 0})

	got := shape(f.timeline(t))
	if !slices.Equal(got, want) {
		t.Fatalf("timeline mismatch\n got: %v\nwant: %v", got, want)
	}

	logs := f.timeline(t)
	if logs[0].Message != "Starting System Compatibility Check..." {
		t.Errorf("unexpected step start message %q", logs[0].Message)
	}
	if msg := logs[len(logs)-2].Message; msg != "Verifying Installation completed successfully" {
		t.Errorf("unexpected step complete message %q", msg)
	}
	for _, l := range logs {
		if l.Kind == core.KindStep && l.Status == core.LogSuccess && (l.CompletedAt == nil || l.DurationSeconds == nil) {
			t.Errorf("step complete %s without completion time", l.ToolID)
		}
	}

	ws := f.workspace(t)
	if ws.Status != core.WorkspaceActive || ws.Progress != 100 {
		t.Errorf("expected active at 100, got %s at %d", ws.Status, ws.Progress)
	}
	if !slices.Equal(ws.Inventory.Tools, []string{"A", "B"}) {
		t.Errorf("unexpected inventory %+v", ws.Inventory)
	}
	if !slices.Equal(f.store.committed, []int{10, 40, 65, 85, 95, 100}) {
		t.Errorf("expected cumulative step weights, got %v", f.store.committed)
	}
}

func TestInstallStartedAtFollowsSeq(t *testing.T) {
	f := newFixture(t, &core.Template{GUITools: []string{"A"}, Dotfiles: []core.Dotfile{{Filename: ".zshrc"}}})
	o := f.orchestrator(&recorder{}, nil, Config{})
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	o.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	if out := f.install(context.Background(), o); out.Err != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	logs := f.timeline(t)
	for i := 1; i < len(logs); i++ {
		if logs[i].StartedAt.Before(logs[i-1].StartedAt) {
			t.Errorf("record %d (%s) started before record %d (%s)", i, logs[i].ToolID, i-1, logs[i-1].ToolID)
		}
	}
	for _, l := range logs {
		if l.ToolID == "A" && l.Status == core.LogSuccess && (l.DurationSeconds == nil || *l.DurationSeconds < 1) {
			t.Errorf("item duration lost: %+v", l.DurationSeconds)
		}
	}
}

func TestInstallEmptyTemplateSucceeds(t *testing.T) {
	f := newFixture(t, &core.Template{})
	inst := &recorder{}
	out := f.install(context.Background(), f.orchestrator(inst, nil, Config{}))
	if out.Status != core.WorkspaceActive || out.Progress != 100 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(inst.items) != 0 {
		t.Errorf("expected no installer calls, got %d", len(inst.items))
	}
	messages := map[string]bool{}
	for _, l := range f.timeline(t) {
		messages[l.Message] = true
	}
	for _, m := range []string{"No GUI tools to install", "No CLI tools to install", "No packages to install", "No dotfiles to configure"} {
		if !messages[m] {
			t.Errorf("missing %q", m)
		}
	}
}

func TestInstallPackagesProgress(t *testing.T) {
	var pkgs core.PackageSet
	if err := json.Unmarshal([]byte(`{"npm": ["left-pad", "react"], "brew": "wget"}`), &pkgs); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, &core.Template{Packages: pkgs})
	inst := &recorder{}
	out := f.install(context.Background(), f.orchestrator(inst, nil, Config{}))
	if out.Status != core.WorkspaceActive {
		t.Fatalf("unexpected outcome %+v", out)
	}

	var progress []int
	for _, l := range f.timeline(t) {
		if l.Kind == core.KindPackages {
			progress = append(progress, l.ItemProgress)
		}
	}
	if !slices.Equal(progress, []int{33, 67}) {
		t.Errorf("expected package progress [33 67], got %v", progress)
	}

	var names []string
	for _, it := range inst.items {
		names = append(names, it.Manager+":"+it.Name)
	}
	if !slices.Equal(names, []string{"npm:left-pad", "npm:react", "brew:wget"}) {
		t.Errorf("unexpected install order %v", names)
	}
	ws := f.workspace(t)
	if !slices.Equal(ws.Inventory.Packages["brew"], []string{"wget"}) || len(ws.Inventory.Packages["npm"]) != 2 {
		t.Errorf("unexpected package inventory %+v", ws.Inventory.Packages)
	}
}

func TestInstallStepFailureFreezesProgress(t *testing.T) {
	boom := errors.New("exit status 1")
	f := newFixture(t, &core.Template{
		GUITools: []string{"A"},
		CLITools: []string{"git", "jq"},
		Dotfiles: []core.Dotfile{{Filename: ".zshrc"}},
	})
	inst := &recorder{fail: map[string]error{"jq": boom}}
	out := f.install(context.Background(), f.orchestrator(inst, nil, Config{}))

	var stepErr *core.StepError
	if !errors.As(out.Err, &stepErr) || stepErr.Step != core.StepCLITools || !errors.Is(out.Err, boom) {
		t.Fatalf("expected cli_tools step error, got %v", out.Err)
	}
	if out.Status != core.WorkspaceError || out.Progress != 40 {
		t.Errorf("unexpected outcome %+v", out)
	}

	ws := f.workspace(t)
	if ws.Status != core.WorkspaceError || ws.Progress != core.WeightBefore(core.StepCLITools) {
		t.Errorf("expected error at %d, got %s at %d", core.WeightBefore(core.StepCLITools), ws.Status, ws.Progress)
	}
	if !slices.Equal(ws.Inventory.Tools, []string{"A"}) {
		t.Errorf("expected only committed steps in inventory, got %v", ws.Inventory.Tools)
	}

	logs := f.timeline(t)
	for _, l := range logs {
		switch l.ToolID {
		case "packages", "dotfiles", "verification", ".zshrc":
			t.Errorf("unexpected log after failure: %s %s", l.ToolID, l.Message)
		}
	}
	stepLog := logs[len(logs)-2]
	if stepLog.ToolID != "cli_tools" || stepLog.Status != core.LogFailed || stepLog.ErrorMessage == nil {
		t.Errorf("expected cli_tools step error record, got %+v", stepLog)
	}
	last := logs[len(logs)-1]
	if last.Kind != core.KindError || !strings.HasPrefix(last.Message, "Installation failed: ") ||
		!strings.Contains(*last.ErrorMessage, "exit status 1") {
		t.Errorf("unexpected final record %+v", last)
	}
}

func TestInstallValidationErrorFailsPackagesStep(t *testing.T) {
	f := newFixture(t, &core.Template{
		Packages: core.PackageSet{{Manager: "npm", Raw: json.RawMessage(`["ok", 7]`)}},
	})
	out := f.install(context.Background(), f.orchestrator(&recorder{}, nil, Config{}))

	var verr *core.ValidationError
	if !errors.As(out.Err, &verr) || verr.Field != "packages.npm" {
		t.Fatalf("expected packages.npm validation error, got %v", out.Err)
	}
	if out.Progress != core.WeightBefore(core.StepPackages) {
		t.Errorf("expected progress %d, got %d", core.WeightBefore(core.StepPackages), out.Progress)
	}
}

func TestInstallResolvesCatalog(t *testing.T) {
	cat, err := catalog.New(
		&catalog.Manifest{ID: "vscode", Name: "VS Code", Type: catalog.ToolGUI, Platforms: map[string]catalog.PlatformConfig{
			catalog.PlatformLinux: {Installer: "snap install code --classic", Version: "1.90"},
		}},
		&catalog.Manifest{ID: "xcode", Name: "Xcode", Type: catalog.ToolGUI, Platforms: map[string]catalog.PlatformConfig{
			catalog.PlatformMacOS: {Installer: "mas install 497799835"},
		}},
	)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("resolved", func(t *testing.T) {
		f := newFixture(t, &core.Template{GUITools: []string{"vscode"}})
		inst := &recorder{}
		out := f.install(context.Background(), f.orchestrator(inst, cat, Config{}))
		if out.Err != nil {
			t.Fatalf("unexpected error %v", out.Err)
		}
		if len(inst.items) != 1 || inst.items[0].Installer != "snap install code --classic" {
			t.Fatalf("expected resolved installer, got %+v", inst.items)
		}
		for _, l := range f.timeline(t) {
			if l.ToolID == "vscode" && l.Status == core.LogSuccess && (l.ToolVersion == nil || *l.ToolVersion != "1.90") {
				t.Errorf("expected tool version on success record, got %+v", l)
			}
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		f := newFixture(t, &core.Template{GUITools: []string{"nope"}})
		out := f.install(context.Background(), f.orchestrator(&recorder{}, cat, Config{}))
		if !errors.Is(out.Err, core.ErrNotFound) || out.Progress != 10 {
			t.Errorf("expected not found at 10, got %+v", out)
		}
	})

	t.Run("platform missing", func(t *testing.T) {
		f := newFixture(t, &core.Template{GUITools: []string{"xcode"}})
		out := f.install(context.Background(), f.orchestrator(&recorder{}, cat, Config{}))
		var verr *core.ValidationError
		if !errors.As(out.Err, &verr) {
			t.Errorf("expected validation error, got %v", out.Err)
		}
	})
}

func TestInstallDotfileNames(t *testing.T) {
	f := newFixture(t, &core.Template{Dotfiles: []core.Dotfile{{Filename: ".gitconfig"}, {Content: "set -o vi"}}})
	inst := &recorder{}
	if out := f.install(context.Background(), f.orchestrator(inst, nil, Config{})); out.Err != nil {
		t.Fatal(out.Err)
	}
	if len(inst.items) != 2 || inst.items[1].Name != "config_1" || inst.items[1].Dotfile.Content != "set -o vi" {
		t.Fatalf("unexpected dotfile items %+v", inst.items)
	}
	if ws := f.workspace(t); !slices.Equal(ws.Inventory.Dotfiles, []string{".gitconfig", "config_1"}) {
		t.Errorf("unexpected dotfile inventory %v", ws.Inventory.Dotfiles)
	}
}

func TestInstallCancelMidStep(t *testing.T) {
	f := newFixture(t, &core.Template{GUITools: []string{"slow", "never"}})
	ctx, cancel := context.WithCancelCause(context.Background())
	started := make(chan struct{})
	inst := installFunc(func(ctx context.Context, item core.Item) error {
		if item.Name == "never" {
			t.Error("installed an item after cancellation")
		}
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	go func() {
		<-started
		cancel(core.ErrCancelled)
	}()

	out := f.install(ctx, f.orchestrator(inst, nil, Config{}))
	if !errors.Is(out.Err, core.ErrCancelled) || out.Status != core.WorkspaceError || out.Progress != 10 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	ws := f.workspace(t)
	if ws.Status != core.WorkspaceError || ws.Progress != 10 {
		t.Errorf("expected error at 10, got %s at %d", ws.Status, ws.Progress)
	}
	for _, l := range f.timeline(t) {
		if l.ToolID == "gui_tools" && l.Kind == core.KindStep && l.Status == core.LogSuccess {
			t.Error("step complete emitted for the cancelled step")
		}
	}
	last := f.timeline(t)
	if final := last[len(last)-1]; final.ErrorMessage == nil || *final.ErrorMessage != "step gui_tools: cancelled" {
		t.Errorf("unexpected final record %+v", final)
	}
}

func TestInstallCancelledBeforeStart(t *testing.T) {
	f := newFixture(t, &core.Template{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := f.install(ctx, f.orchestrator(&recorder{}, nil, Config{}))
	if !errors.Is(out.Err, core.ErrCancelled) || out.Progress != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	logs := f.timeline(t)
	if len(logs) != 1 || logs[0].Kind != core.KindError {
		t.Errorf("expected only the final error record, got %v", shape(logs))
	}
}

func TestInstallItemTimeout(t *testing.T) {
	f := newFixture(t, &core.Template{CLITools: []string{"hang"}})
	inst := installFunc(func(ctx context.Context, _ core.Item) error {
		<-ctx.Done()
		return ctx.Err()
	})
	out := f.install(context.Background(), f.orchestrator(inst, nil, Config{ItemTimeout: 10 * time.Millisecond}))
	if !errors.Is(out.Err, context.DeadlineExceeded) || out.Progress != 40 {
		t.Fatalf("expected item deadline at 40, got %+v", out)
	}
}

func TestInstallRequiresInstallingWorkspace(t *testing.T) {
	f := newFixture(t, &core.Template{})
	full := 100
	if err := f.store.SetStatus(context.Background(), f.ws.ID, core.WorkspaceActive, &full); err != nil {
		t.Fatal(err)
	}
	out := f.install(context.Background(), f.orchestrator(&recorder{}, nil, Config{}))
	if !errors.Is(out.Err, core.ErrNotInstalling) || out.Status != core.WorkspaceActive {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if logs := f.timeline(t); len(logs) != 0 {
		t.Errorf("expected no records, got %d", len(logs))
	}
}

// flakyLoad fails every workspace lookup.
type flakyLoad struct {
	*progressStore
	err error
}

func (s flakyLoad) GetWorkspace(context.Context, string, string) (*core.Workspace, error) {
	return nil, s.err
}

func TestInstallLoadFailureEndsInError(t *testing.T) {
	f := newFixture(t, &core.Template{})
	s := flakyLoad{progressStore: f.store, err: errors.New("connection reset")}
	o := New(s, f.store, f.store, nil, &recorder{}, Config{Platform: catalog.PlatformLinux}, zap.NewNop())

	out := f.install(context.Background(), o)
	if out.Status != core.WorkspaceError || out.Err == nil || !strings.Contains(out.Err.Error(), "connection reset") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if ws := f.workspace(t); ws.Status != core.WorkspaceError {
		t.Errorf("expected error status, got %s", ws.Status)
	}
	logs := f.timeline(t)
	if len(logs) != 1 || logs[0].Kind != core.KindError || !strings.Contains(logs[0].Message, "connection reset") {
		t.Errorf("expected one error record, got %v", shape(logs))
	}

	s.err = core.ErrNotFound
	o = New(s, f.store, f.store, nil, &recorder{}, Config{Platform: catalog.PlatformLinux}, zap.NewNop())
	if out := f.install(context.Background(), o); !errors.Is(out.Err, core.ErrNotFound) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if logs := f.timeline(t); len(logs) != 1 {
		t.Errorf("missing workspace should record nothing, got %d records", len(logs))
	}
}

func TestInstallMissingTemplate(t *testing.T) {
	f := newFixture(t, &core.Template{})
	o := f.orchestrator(&recorder{}, nil, Config{})
	out := o.Install(context.Background(), f.ws.ID, "missing", f.ws.UserID)
	if !errors.Is(out.Err, core.ErrNotFound) || out.Status != core.WorkspaceError {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if ws := f.workspace(t); ws.Status != core.WorkspaceError || ws.Progress != 0 {
		t.Errorf("expected error at 0, got %s at %d", ws.Status, ws.Progress)
	}
}

func TestInstallUnsupportedPlatform(t *testing.T) {
	f := newFixture(t, &core.Template{})
	out := f.install(context.Background(), f.orchestrator(&recorder{}, nil, Config{Platform: "plan9"}))
	var stepErr *core.StepError
	if !errors.As(out.Err, &stepErr) || stepErr.Step != core.StepSystemCheck || out.Progress != 0 {
		t.Fatalf("expected system_check failure, got %+v", out)
	}
}
