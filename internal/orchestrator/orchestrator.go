// Package orchestrator drives a workspace through the weighted install steps.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/catalog"
	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/observability"
)

type WorkspaceStore interface {
	GetWorkspace(ctx context.Context, id, userID string) (*core.Workspace, error)
	SetProgress(ctx context.Context, id string, progress int, inv core.Inventory) error
	SetStatus(ctx context.Context, id string, status core.WorkspaceStatus, progress *int) error
}

type LogSink interface {
	AppendLog(ctx context.Context, log *core.InstallationLog) error
}

type TemplateProvider interface {
	GetTemplate(ctx context.Context, id string) (*core.Template, error)
}

type Catalog interface {
	Resolve(id string, typ catalog.ToolType) (*catalog.Manifest, error)
}

// Installer performs one item install. It blocks until the item is applied
// and returns an error when it was not.
type Installer interface {
	Install(ctx context.Context, item core.Item) error
}

type Config struct {
	// Platform selects manifest entries. Empty means the running OS.
	Platform string
	// ItemTimeout bounds a single Installer call. Zero means no bound.
	ItemTimeout time.Duration
}

type Orchestrator struct {
	workspaces WorkspaceStore
	logs       LogSink
	templates  TemplateProvider
	catalog    Catalog
	installer  Installer
	cfg        Config
	log        *zap.Logger
	now        func() time.Time
}

// New wires an orchestrator. A nil catalog installs tools without resolving manifests.
func New(workspaces WorkspaceStore, logs LogSink, templates TemplateProvider, cat Catalog,
	installer Installer, cfg Config, log *zap.Logger) *Orchestrator {
	if cfg.Platform == "" {
		cfg.Platform = catalog.CurrentPlatform()
	}
	return &Orchestrator{
		workspaces: workspaces,
		logs:       logs,
		templates:  templates,
		catalog:    cat,
		installer:  installer,
		cfg:        cfg,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Outcome is the terminal state of one run. Err is the failure recorded for
// the run and is nil when it succeeded.
type Outcome struct {
	Status   core.WorkspaceStatus
	Progress int
	Err      error
}

// Install runs every step for a workspace that is already installing.
// Failures end the run in the error state; they are recorded, not returned.
// Cancelling ctx stops the run between items and lands it in error with the
// context cause, core.ErrCancelled by default.
func (o *Orchestrator) Install(ctx context.Context, workspaceID, templateID, userID string) Outcome {
	r := &run{
		o:           o,
		workspaceID: workspaceID,
		userID:      userID,
		log:         observability.RunLogger(o.log, workspaceID, templateID, userID),
		started:     o.now(),
	}
	observability.ActiveRuns.Inc()
	defer observability.ActiveRuns.Dec()

	ws, err := o.workspaces.GetWorkspace(ctx, workspaceID, userID)
	if errors.Is(err, core.ErrNotFound) {
		r.log.Error("load workspace", zap.Error(err))
		return Outcome{Status: core.WorkspaceError, Err: err}
	}
	if err != nil {
		if ctx.Err() != nil {
			err = interrupted(ctx)
		}
		return r.fail(ctx, fmt.Errorf("load workspace: %w", err))
	}
	if ws.Status != core.WorkspaceInstalling {
		err := fmt.Errorf("workspace %s is %s: %w", workspaceID, ws.Status, core.ErrNotInstalling)
		r.log.Warn("install skipped", zap.Error(err))
		return Outcome{Status: ws.Status, Progress: ws.Progress, Err: err}
	}
	r.progress = ws.Progress

	tpl, err := o.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("load template %s: %w", templateID, err))
	}
	r.tpl = tpl
	r.log.Info("installation started")

	for _, step := range core.Steps {
		if ctx.Err() != nil {
			return r.fail(ctx, interrupted(ctx))
		}
		if err := r.runStep(ctx, step); err != nil {
			return r.fail(ctx, err)
		}
	}
	return r.succeed(ctx)
}

// run holds the loaded aggregate for one Install call. Progress and inventory
// are committed at step boundaries only.
type run struct {
	o           *Orchestrator
	workspaceID string
	userID      string
	tpl         *core.Template
	log         *zap.Logger
	started     time.Time
	progress    int
	stepInv     core.Inventory
}

func (r *run) runStep(ctx context.Context, step core.Step) error {
	log := r.log.With(zap.String("step", string(step.ID)))
	start := r.o.now()
	r.stepInv = core.Inventory{}
	r.logStepStart(ctx, step)

	err := r.body(ctx, step)
	if err == nil && ctx.Err() != nil {
		err = interrupted(ctx)
	}
	elapsed := r.o.now().Sub(start)
	observability.StepDuration.WithLabelValues(string(step.ID)).Observe(elapsed.Seconds())
	if err != nil {
		if ctx.Err() != nil {
			err = interrupted(ctx)
		}
		observability.StepTotal.WithLabelValues(string(step.ID), string(core.LogFailed)).Inc()
		log.Warn("step failed", zap.Error(err))
		r.logStepError(ctx, step, err, elapsed)
		return &core.StepError{Step: step.ID, Err: err}
	}

	next := r.progress + step.Weight
	if err := r.o.workspaces.SetProgress(ctx, r.workspaceID, next, r.stepInv); err != nil {
		if ctx.Err() != nil {
			err = interrupted(ctx)
		}
		log.Error("commit progress", zap.Error(err))
		r.logStepError(ctx, step, err, elapsed)
		return &core.StepError{Step: step.ID, Err: err}
	}
	r.progress = next
	observability.StepTotal.WithLabelValues(string(step.ID), string(core.LogSuccess)).Inc()
	log.Info("step completed", zap.Int("progress", r.progress), zap.Duration("elapsed", elapsed))
	r.logStepComplete(ctx, step, elapsed)
	return nil
}

func (r *run) body(ctx context.Context, step core.Step) error {
	switch step.ID {
	case core.StepSystemCheck:
		return r.systemCheck(ctx)
	case core.StepGUITools:
		return r.installTools(ctx, core.KindGUI, catalog.ToolGUI, r.tpl.GUITools)
	case core.StepCLITools:
		return r.installTools(ctx, core.KindCLI, catalog.ToolCLI, r.tpl.CLITools)
	case core.StepPackages:
		return r.installPackages(ctx, r.tpl.Packages)
	case core.StepDotfiles:
		return r.configureDotfiles(ctx, r.tpl.Dotfiles)
	case core.StepVerification:
		return r.verify(ctx)
	}
	return fmt.Errorf("unknown step %s", step.ID)
}

func (r *run) succeed(ctx context.Context) Outcome {
	ctx = context.WithoutCancel(ctx)
	full := 100
	if err := r.o.workspaces.SetStatus(ctx, r.workspaceID, core.WorkspaceActive, &full); err != nil {
		r.log.Error("set final status", zap.Error(err))
		return Outcome{Status: core.WorkspaceError, Progress: r.progress, Err: err}
	}
	r.emit(ctx, core.InstallationLog{
		ToolID:  "complete",
		Kind:    core.KindInfo,
		Status:  core.LogSuccess,
		Message: "Workspace installation completed successfully!",
	})
	r.finished(core.WorkspaceActive, "active")
	r.log.Info("installation completed")
	return Outcome{Status: core.WorkspaceActive, Progress: 100}
}

// fail moves the workspace to error, leaving progress at the last committed step.
func (r *run) fail(ctx context.Context, cause error) Outcome {
	ctx = context.WithoutCancel(ctx)
	if err := r.o.workspaces.SetStatus(ctx, r.workspaceID, core.WorkspaceError, nil); err != nil {
		r.log.Error("set final status", zap.Error(err))
	}
	detail := cause.Error()
	r.emit(ctx, core.InstallationLog{
		ToolID:       "error",
		Kind:         core.KindError,
		Status:       core.LogFailed,
		Message:      "Installation failed: " + detail,
		ErrorMessage: &detail,
	})
	outcome := "error"
	if errors.Is(cause, core.ErrCancelled) {
		outcome = "cancelled"
	} else if errors.Is(cause, core.ErrTimeout) {
		outcome = "timeout"
	}
	r.finished(core.WorkspaceError, outcome)
	r.log.Warn("installation failed", zap.Error(cause), zap.Int("progress", r.progress))
	return Outcome{Status: core.WorkspaceError, Progress: r.progress, Err: cause}
}

func (r *run) finished(status core.WorkspaceStatus, outcome string) {
	observability.WorkspaceStateTransitions.WithLabelValues(string(core.WorkspaceInstalling), string(status)).Inc()
	observability.InstallRunsTotal.WithLabelValues(outcome).Inc()
	observability.InstallRunDuration.WithLabelValues(outcome).Observe(r.o.now().Sub(r.started).Seconds())
}

// interrupted names why ctx ended. A bare cancel reads as core.ErrCancelled.
func interrupted(ctx context.Context) error {
	cause := context.Cause(ctx)
	switch {
	case cause == nil, errors.Is(cause, context.Canceled):
		return core.ErrCancelled
	case errors.Is(cause, context.DeadlineExceeded):
		return core.ErrTimeout
	}
	return cause
}
