package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/api/middleware"
	"github.com/nuffi-dev/nuffi/internal/core"
)

type RetryResponse struct {
	Message      string `json:"message"`
	RetriedCount int    `json:"retried_count"`
}

// WorkspaceLogs lists a workspace's installation logs, newest first.
func (a *API) WorkspaceLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "workspace_id")
	if _, err := a.store.GetWorkspace(ctx, id, middleware.GetUserID(r)); err != nil {
		a.fail(w, "get workspace", err)
		return
	}

	q := r.URL.Query()
	f := core.LogFilter{WorkspaceID: id, Limit: parseLimit(q.Get("limit"), 50, 500)}
	if s := q.Get("tool_type"); s != "" {
		kind, err := core.ParseLogKind(s)
		if err != nil {
			WriteError(w, core.NewAppError(core.ErrBadRequest, err.Error()))
			return
		}
		f.Kind = kind
	}
	if s := q.Get("status"); s != "" {
		status, err := core.ParseLogStatus(s)
		if err != nil {
			WriteError(w, core.NewAppError(core.ErrBadRequest, err.Error()))
			return
		}
		f.Status = status
	}

	logs, err := a.store.ListLogs(ctx, f)
	if err != nil {
		a.fail(w, "list logs", err)
		return
	}
	if logs == nil {
		logs = []core.InstallationLog{}
	}
	WriteJSON(w, http.StatusOK, logs)
}

// RetryFailed marks a workspace's failed logs pending again.
func (a *API) RetryFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "workspace_id")
	if _, err := a.store.GetWorkspace(ctx, id, middleware.GetUserID(r)); err != nil {
		a.fail(w, "get workspace", err)
		return
	}
	n, err := a.store.ResetFailedLogs(ctx, id)
	if err != nil {
		a.fail(w, "retry failed installations", err)
		return
	}
	if n == 0 {
		WriteJSON(w, http.StatusOK, RetryResponse{Message: "No failed installations to retry"})
		return
	}
	a.log.Info("failed installations reset", zap.String("workspace_id", id), zap.Int("count", n))
	WriteJSON(w, http.StatusOK, RetryResponse{
		Message:      fmt.Sprintf("Retrying %d failed installations", n),
		RetriedCount: n,
	})
}

func (a *API) RecentInstallations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var kind core.LogKind
	if s := q.Get("tool_type"); s != "" {
		k, err := core.ParseLogKind(s)
		if err != nil {
			WriteError(w, core.NewAppError(core.ErrBadRequest, err.Error()))
			return
		}
		kind = k
	}
	recent, err := a.reports.Recent(r.Context(), parseLimit(q.Get("limit"), 20, 100), kind)
	if err != nil {
		a.fail(w, "list recent installations", err)
		return
	}
	WriteJSON(w, http.StatusOK, recent)
}

func (a *API) GlobalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.reports.GlobalStats(r.Context())
	if err != nil {
		a.fail(w, "global stats", err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (a *API) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.reports.UserStats(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		a.fail(w, "user stats", err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
