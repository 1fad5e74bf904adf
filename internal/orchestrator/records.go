package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/core"
)

// emit appends one record stamped with the emission time, so started_at follows
// seq. Append failures are logged and do not stop the run.
func (r *run) emit(ctx context.Context, l core.InstallationLog) {
	l.WorkspaceID = r.workspaceID
	l.UserID = r.userID
	l.Action = core.ActionInstall
	if l.StartedAt.IsZero() {
		l.StartedAt = r.o.now()
	}
	if err := r.o.logs.AppendLog(ctx, &l); err != nil {
		r.log.Warn("append log", zap.String("tool_id", l.ToolID), zap.Error(err))
	}
}

func (r *run) logStepStart(ctx context.Context, step core.Step) {
	r.emit(ctx, core.InstallationLog{
		ToolID:  string(step.ID),
		Kind:    core.KindStep,
		Status:  core.LogInProgress,
		Message: fmt.Sprintf("Starting %s...", step.Label),
	})
}

func (r *run) logStepComplete(ctx context.Context, step core.Step, elapsed time.Duration) {
	l := core.InstallationLog{
		ToolID:       string(step.ID),
		Kind:         core.KindStep,
		Status:       core.LogSuccess,
		ItemProgress: 100,
		Message:      step.Label + " completed successfully",
	}
	r.stamp(&l, elapsed)
	r.emit(ctx, l)
}

func (r *run) logStepError(ctx context.Context, step core.Step, err error, elapsed time.Duration) {
	detail := err.Error()
	l := core.InstallationLog{
		ToolID:       string(step.ID),
		Kind:         core.KindStep,
		Status:       core.LogFailed,
		Message:      step.Label + " failed",
		ErrorMessage: &detail,
	}
	r.stamp(&l, elapsed)
	r.emit(context.WithoutCancel(ctx), l)
}

func (r *run) info(ctx context.Context, stepID, msg string) {
	r.emit(ctx, core.InstallationLog{ToolID: stepID, Kind: core.KindInfo, Status: core.LogInProgress, Message: msg})
}

func (r *run) success(ctx context.Context, stepID, msg string) {
	r.emit(ctx, core.InstallationLog{ToolID: stepID, Kind: core.KindInfo, Status: core.LogSuccess, Message: msg})
}

// itemProgress records step-scoped progress for one item.
func (r *run) itemProgress(ctx context.Context, kind core.LogKind, name string, pct int) {
	r.emit(ctx, core.InstallationLog{
		ToolID:       name,
		Kind:         kind,
		Status:       core.LogInProgress,
		ItemProgress: pct,
		Message:      fmt.Sprintf("%s: %d%% complete", name, pct),
	})
}

func (r *run) itemSuccess(ctx context.Context, kind core.LogKind, name, version string, pct int, msg string, start time.Time) {
	l := core.InstallationLog{
		ToolID:       name,
		Kind:         kind,
		Status:       core.LogSuccess,
		ItemProgress: pct,
		Message:      msg,
	}
	if version != "" {
		l.ToolVersion = &version
	}
	r.stamp(&l, r.o.now().Sub(start))
	r.emit(ctx, l)
}

func (r *run) stamp(l *core.InstallationLog, elapsed time.Duration) {
	done := r.o.now()
	secs := int(math.Round(elapsed.Seconds()))
	l.CompletedAt = &done
	l.DurationSeconds = &secs
}
