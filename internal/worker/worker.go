// Package worker runs installations in the background, one run per workspace.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/orchestrator"
	"github.com/nuffi-dev/nuffi/internal/store"
)

// errShutdown cancels runs still going when Shutdown gives up waiting.
var errShutdown = fmt.Errorf("%w: runner shutting down", core.ErrCancelled)

type Store interface {
	CreateWorkspace(ctx context.Context, ws *core.Workspace) error
	BeginInstall(ctx context.Context, id, userID string) (*core.Workspace, error)
	ListWorkspaces(ctx context.Context, f store.WorkspaceFilter) ([]core.Workspace, error)
	SetStatus(ctx context.Context, id string, status core.WorkspaceStatus, progress *int) error
	AppendLog(ctx context.Context, log *core.InstallationLog) error
}

type Orchestrator interface {
	Install(ctx context.Context, workspaceID, templateID, userID string) orchestrator.Outcome
}

// Runner owns every in-flight run of this process. A workspace id maps to at
// most one run; the store's installing guard covers other processes.
type Runner struct {
	store Store
	orch  Orchestrator
	cfg   Config
	log   *zap.Logger

	base   context.Context
	stop   context.CancelCauseFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
	closed bool
}

func New(s Store, orch Orchestrator, cfg Config, log *zap.Logger) *Runner {
	base, stop := context.WithCancelCause(context.Background())
	return &Runner{
		store:  s,
		orch:   orch,
		cfg:    cfg,
		log:    log,
		base:   base,
		stop:   stop,
		active: make(map[string]context.CancelCauseFunc),
	}
}

// CreateAndInstall persists a new installing workspace and starts its run.
func (r *Runner) CreateAndInstall(ctx context.Context, ws *core.Workspace) error {
	if ws.TemplateID == nil {
		return &core.ValidationError{Field: "template_id", Message: "template required"}
	}
	if ws.ID == "" {
		ws.ID = core.NewID()
	}
	ws.Status = core.WorkspaceInstalling
	ws.Progress = 0
	if err := r.reserve(ws.ID); err != nil {
		return err
	}
	if err := r.store.CreateWorkspace(ctx, ws); err != nil {
		r.release(ws.ID)
		return err
	}
	r.launch(ws.ID, *ws.TemplateID, ws.UserID)
	return nil
}

// Reinstall moves an existing workspace back to installing and starts a fresh run.
func (r *Runner) Reinstall(ctx context.Context, id, userID string) (*core.Workspace, error) {
	if err := r.reserve(id); err != nil {
		return nil, err
	}
	ws, err := r.store.BeginInstall(ctx, id, userID)
	if err != nil {
		r.release(id)
		return nil, err
	}
	if ws.TemplateID == nil {
		r.release(id)
		r.abandon(ctx, ws, "workspace has no template")
		return nil, &core.ValidationError{Field: "template_id", Message: "workspace has no template"}
	}
	r.launch(ws.ID, *ws.TemplateID, ws.UserID)
	return ws, nil
}

// Cancel stops the run of a workspace. The run records the cancellation itself.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	cancel, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("workspace %s: %w", id, core.ErrNotInstalling)
	}
	cancel(core.ErrCancelled)
	return nil
}

func (r *Runner) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Recover fails workspaces left installing by a previous process.
func (r *Runner) Recover(ctx context.Context) (int, error) {
	stale, err := r.store.ListWorkspaces(ctx, store.WorkspaceFilter{Status: core.WorkspaceInstalling})
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range stale {
		ws := &stale[i]
		if r.Running(ws.ID) {
			continue
		}
		if r.abandon(ctx, ws, "installation interrupted by restart") {
			n++
		}
	}
	if n > 0 {
		r.log.Warn("recovered interrupted installations", zap.Int("count", n))
	}
	return n, nil
}

// Shutdown waits for runs up to the grace period or ctx, then cancels the rest.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var grace <-chan time.Time
	if r.cfg.ShutdownGrace > 0 {
		timer := time.NewTimer(r.cfg.ShutdownGrace)
		defer timer.Stop()
		grace = timer.C
	}
	select {
	case <-done:
		return nil
	case <-grace:
	case <-ctx.Done():
	}
	r.log.Warn("cancelling runs at shutdown", zap.Int("active", r.Active()))
	r.stop(errShutdown)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errShutdown
	}
	if _, ok := r.active[id]; ok {
		return fmt.Errorf("workspace %s: %w", id, core.ErrConflict)
	}
	// Placeholder until launch installs the real cancel func.
	r.active[id] = func(error) {}
	return nil
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

func (r *Runner) launch(workspaceID, templateID, userID string) {
	ctx, cancel := context.WithCancelCause(r.base)
	var stopTimer context.CancelFunc = func() {}
	if r.cfg.RunTimeout > 0 {
		ctx, stopTimer = context.WithTimeoutCause(ctx, r.cfg.RunTimeout, core.ErrTimeout)
	}
	r.mu.Lock()
	r.active[workspaceID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel(nil)
		defer stopTimer()
		defer r.release(workspaceID)

		log := r.log.With(zap.String("workspace_id", workspaceID))
		out := r.orch.Install(ctx, workspaceID, templateID, userID)
		if out.Err != nil {
			log.Warn("run finished", zap.String("status", string(out.Status)),
				zap.Int("progress", out.Progress), zap.Error(out.Err))
			return
		}
		log.Info("run finished", zap.String("status", string(out.Status)))
	}()
}

// abandon fails an installing workspace that no run will drive.
func (r *Runner) abandon(ctx context.Context, ws *core.Workspace, reason string) bool {
	if err := r.store.SetStatus(ctx, ws.ID, core.WorkspaceError, nil); err != nil {
		r.log.Warn("abandon workspace", zap.String("workspace_id", ws.ID), zap.Error(err))
		return false
	}
	_ = r.store.AppendLog(ctx, &core.InstallationLog{
		WorkspaceID:  ws.ID,
		UserID:       ws.UserID,
		ToolID:       "error",
		Kind:         core.KindError,
		Action:       core.ActionInstall,
		Status:       core.LogFailed,
		Message:      "Installation failed: " + reason,
		ErrorMessage: &reason,
	})
	return true
}
