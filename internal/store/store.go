// Package store persists templates, workspaces and installation logs.
package store

import (
	"context"
	"fmt"

	"github.com/nuffi-dev/nuffi/internal/core"
)

type TemplateFilter struct {
	Category   string
	Search     string
	Official   *bool
	Difficulty string
	PublicOnly bool
	Limit      int
	Offset     int
}

type WorkspaceFilter struct {
	UserID string
	Status core.WorkspaceStatus
}

// Store is the persistence contract shared by the Postgres and in-memory backends.
//
// Workspace writes made while a run is in flight (SetProgress, SetStatus) are
// guarded on status=installing so that a stale run cannot overwrite a newer one.
type Store interface {
	Ping(ctx context.Context) error

	CreateTemplate(ctx context.Context, tpl *core.Template) error
	GetTemplate(ctx context.Context, id string) (*core.Template, error)
	GetTemplateBySlug(ctx context.Context, slug string) (*core.Template, error)
	ListTemplates(ctx context.Context, f TemplateFilter) ([]core.Template, error)
	ListCategories(ctx context.Context) ([]string, error)
	IncrementDownloads(ctx context.Context, id string) error
	RateTemplate(ctx context.Context, id string, rating int) (*core.Template, error)

	CreateWorkspace(ctx context.Context, ws *core.Workspace) error
	// GetWorkspace scopes the lookup to userID unless it is empty.
	GetWorkspace(ctx context.Context, id, userID string) (*core.Workspace, error)
	GetWorkspaceByIdempotencyKey(ctx context.Context, userID, key string) (*core.Workspace, error)
	ListWorkspaces(ctx context.Context, f WorkspaceFilter) ([]core.Workspace, error)
	// BeginInstall moves a workspace into installing, resetting progress and inventory.
	// It fails with core.ErrConflict when a run is already installing it.
	BeginInstall(ctx context.Context, id, userID string) (*core.Workspace, error)
	// SetProgress raises the progress of an installing workspace and merges inventory.
	SetProgress(ctx context.Context, id string, progress int, inv core.Inventory) error
	// SetStatus moves an installing workspace into a terminal status. A nil progress leaves it as is.
	SetStatus(ctx context.Context, id string, status core.WorkspaceStatus, progress *int) error
	DeleteWorkspace(ctx context.Context, id, userID string) error

	AppendLog(ctx context.Context, log *core.InstallationLog) error
	// ListLogs returns logs newest first.
	ListLogs(ctx context.Context, f core.LogFilter) ([]core.InstallationLog, error)
	// ResetFailedLogs rewrites failed logs of a workspace to pending and clears their error.
	ResetFailedLogs(ctx context.Context, workspaceID string) (int, error)
}

// RefuseInstall is the error BeginInstall returns for a workspace whose status
// does not allow a new run.
func RefuseInstall(ws *core.Workspace) error {
	if ws.Status == core.WorkspaceInstalling {
		return fmt.Errorf("workspace %s: %w", ws.ID, core.ErrConflict)
	}
	return &core.ValidationError{Field: "status", Message: fmt.Sprintf("workspace %s is %s", ws.ID, ws.Status)}
}
