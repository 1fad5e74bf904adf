package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/api/middleware"
	"github.com/nuffi-dev/nuffi/internal/catalog"
	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/report"
	"github.com/nuffi-dev/nuffi/internal/store"
)

// Runs starts and stops background installations.
type Runs interface {
	CreateAndInstall(ctx context.Context, ws *core.Workspace) error
	Reinstall(ctx context.Context, id, userID string) (*core.Workspace, error)
	Cancel(id string) error
}

// ToolCatalog is the read side of the tool catalog.
type ToolCatalog interface {
	List(typ catalog.ToolType) []*catalog.Manifest
	ByCategory(category string) []*catalog.Manifest
	Search(query string) []*catalog.Manifest
}

type API struct {
	store   store.Store
	runs    Runs
	reports *report.Reporter
	tools   ToolCatalog
	log     *zap.Logger
}

// NewAPI wires the handlers. tools may be nil when no catalog is configured.
func NewAPI(s store.Store, runs Runs, tools ToolCatalog, log *zap.Logger) *API {
	return &API{
		store:   s,
		runs:    runs,
		reports: report.New(s),
		tools:   tools,
		log:     log,
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.UserID)
	r.Use(middleware.Metrics)
	r.Use(middleware.Recoverer(a.log))
	r.Use(middleware.Logger(a.log))
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Health endpoints
	r.Get("/healthz", a.HealthHandler)
	r.Get("/readyz", a.ReadyHandler)

	r.Route("/v1", func(r chi.Router) {
		// Templates
		r.Get("/templates", a.ListTemplates)
		r.Get("/templates/categories", a.ListCategories)
		r.Get("/templates/popular", a.PopularTemplates)
		r.Get("/templates/{template_id}", a.GetTemplate)
		r.Post("/templates/{template_id}/rate", a.RateTemplate)

		// Tools
		r.Get("/tools", a.ListTools)

		// Workspaces
		r.Get("/workspaces", a.ListWorkspaces)
		r.Post("/workspaces/install", a.InstallWorkspace)
		r.Get("/workspaces/{workspace_id}", a.GetWorkspace)
		r.Delete("/workspaces/{workspace_id}", a.DeleteWorkspace)
		r.Get("/workspaces/{workspace_id}/status", a.WorkspaceStatus)
		r.Get("/workspaces/{workspace_id}/inventory", a.WorkspaceInventory)
		r.Post("/workspaces/{workspace_id}/reinstall", a.ReinstallWorkspace)
		r.Post("/workspaces/{workspace_id}/cancel", a.CancelWorkspace)

		// Installation logs and reporting
		r.Get("/workspaces/{workspace_id}/logs", a.WorkspaceLogs)
		r.Post("/workspaces/{workspace_id}/retry-failed", a.RetryFailed)
		r.Get("/installations/recent", a.RecentInstallations)
		r.Get("/installations/stats", a.GlobalStats)
		r.Get("/users/{user_id}/stats", a.UserStats)
	})

	return r
}

func parseLimit(s string, defaultVal, maxVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return defaultVal
	}
	if n > maxVal {
		return maxVal
	}
	return n
}

func parseOffset(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// fail writes err as an API error. Unmapped errors are logged and answered with a generic message.
func (a *API) fail(w http.ResponseWriter, op string, err error) {
	appErr := core.AsAppError(err)
	if appErr.Code == core.ErrInternal {
		a.log.Error(op+" failed", zap.Error(err))
		appErr = core.NewAppError(core.ErrInternal, op+" failed")
	}
	WriteError(w, appErr)
}
