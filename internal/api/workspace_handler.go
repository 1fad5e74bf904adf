package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/api/middleware"
	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/store"
)

const (
	installPath    = "/v1/workspaces/install"
	maxRequestBody = 1 << 20
)

type InstallWorkspaceRequest struct {
	TemplateID     string          `json:"template_id"`
	CustomName     string          `json:"custom_name,omitempty"`
	CustomSettings json.RawMessage `json:"custom_settings,omitempty"`
}

type TemplateRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type WorkspaceResponse struct {
	core.Workspace
	Template *TemplateRef `json:"template,omitempty"`
}

// InstallWorkspace creates a workspace from a template and starts installing it.
// A repeated Idempotency-Key with the same body returns the workspace created first.
func (a *API) InstallWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "failed to read body"))
		return
	}
	var req InstallWorkspaceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}
	if req.TemplateID == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "template_id is required"))
		return
	}
	if settings := bytes.TrimSpace(req.CustomSettings); len(settings) > 0 && settings[0] != '{' && !bytes.Equal(settings, []byte("null")) {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "custom_settings must be an object"))
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	var requestHash string
	if idempotencyKey != "" {
		requestHash = core.ComputeRequestHash(body, http.MethodPost, installPath)
		done, appErr := a.replay(r, userID, idempotencyKey, requestHash)
		if appErr != nil {
			WriteError(w, appErr)
			return
		}
		if done != "" {
			WriteAccepted(w, done)
			return
		}
	}

	tpl, err := a.store.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			WriteError(w, core.NewAppError(core.ErrNotFoundCode, "template not found"))
			return
		}
		a.fail(w, "get template", err)
		return
	}

	ws := &core.Workspace{
		UserID:         userID,
		TemplateID:     &tpl.ID,
		Name:           tpl.Name,
		WorkspaceType:  tpl.Category,
		CustomSettings: req.CustomSettings,
		IdempotencyKey: idempotencyKey,
		RequestHash:    requestHash,
	}
	if req.CustomName != "" {
		ws.Name = req.CustomName
	}
	if err := a.runs.CreateAndInstall(ctx, ws); err != nil {
		// A concurrent request with the same key won the insert.
		if idempotencyKey != "" && errors.Is(err, core.ErrConflict) {
			if done, appErr := a.replay(r, userID, idempotencyKey, requestHash); appErr == nil && done != "" {
				WriteAccepted(w, done)
				return
			}
		}
		a.fail(w, "create workspace", err)
		return
	}

	a.log.Info("workspace install started",
		zap.String("workspace_id", ws.ID),
		zap.String("template_id", tpl.ID),
		zap.String("user_id", userID),
	)
	WriteAccepted(w, ws.ID)
}

// replay returns the workspace id already created under key, or "" when there is none.
func (a *API) replay(r *http.Request, userID, key, requestHash string) (string, *core.AppError) {
	existing, err := a.store.GetWorkspaceByIdempotencyKey(r.Context(), userID, key)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return "", nil
	case err != nil:
		a.log.Error("idempotency lookup failed", zap.Error(err))
		return "", core.NewAppError(core.ErrInternal, "idempotency lookup failed")
	case existing.RequestHash != requestHash:
		return "", core.NewAppError(core.ErrConflictIdempotent, "Idempotency-Key reused with a different request")
	}
	return existing.ID, nil
}

// ListWorkspaces lists the caller's workspaces, newest first.
func (a *API) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := store.WorkspaceFilter{UserID: middleware.GetUserID(r)}
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := core.ParseWorkspaceStatus(s)
		if err != nil {
			WriteError(w, core.NewAppError(core.ErrBadRequest, err.Error()))
			return
		}
		f.Status = status
	}

	workspaces, err := a.store.ListWorkspaces(ctx, f)
	if err != nil {
		a.fail(w, "list workspaces", err)
		return
	}
	refs := map[string]*TemplateRef{}
	resp := make([]WorkspaceResponse, len(workspaces))
	for i := range workspaces {
		resp[i] = a.workspaceToResponse(r, &workspaces[i], refs)
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (a *API) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := a.store.GetWorkspace(r.Context(), chi.URLParam(r, "workspace_id"), middleware.GetUserID(r))
	if err != nil {
		a.fail(w, "get workspace", err)
		return
	}
	WriteJSON(w, http.StatusOK, a.workspaceToResponse(r, ws, nil))
}

// WorkspaceStatus is the polling endpoint: status, progress, current step and the ten newest logs.
func (a *API) WorkspaceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.reports.Status(r.Context(), chi.URLParam(r, "workspace_id"), middleware.GetUserID(r), 10)
	if err != nil {
		a.fail(w, "get status", err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

func (a *API) WorkspaceInventory(w http.ResponseWriter, r *http.Request) {
	ws, err := a.store.GetWorkspace(r.Context(), chi.URLParam(r, "workspace_id"), middleware.GetUserID(r))
	if err != nil {
		a.fail(w, "get workspace", err)
		return
	}
	inv := ws.Inventory
	if inv.Tools == nil {
		inv.Tools = []string{}
	}
	if inv.Packages == nil {
		inv.Packages = map[string][]string{}
	}
	if inv.Dotfiles == nil {
		inv.Dotfiles = []string{}
	}
	WriteJSON(w, http.StatusOK, inv)
}

// ReinstallWorkspace starts a fresh run of a workspace that is not installing or archived.
func (a *API) ReinstallWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := a.runs.Reinstall(r.Context(), chi.URLParam(r, "workspace_id"), middleware.GetUserID(r))
	if err != nil {
		a.fail(w, "reinstall workspace", err)
		return
	}
	WriteAccepted(w, ws.ID)
}

func (a *API) CancelWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspace_id")
	if _, err := a.store.GetWorkspace(r.Context(), id, middleware.GetUserID(r)); err != nil {
		a.fail(w, "get workspace", err)
		return
	}
	if err := a.runs.Cancel(id); err != nil {
		a.fail(w, "cancel installation", err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"workspace_id": id,
		"message":      "Cancellation requested",
	})
}

// DeleteWorkspace removes a workspace and its logs. Installing workspaces are refused.
func (a *API) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspace_id")
	if err := a.store.DeleteWorkspace(r.Context(), id, middleware.GetUserID(r)); err != nil {
		a.fail(w, "delete workspace", err)
		return
	}
	a.log.Info("workspace deleted", zap.String("workspace_id", id))
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Workspace deleted successfully"})
}

// workspaceToResponse attaches the template reference. refs caches lookups across a listing.
func (a *API) workspaceToResponse(r *http.Request, ws *core.Workspace, refs map[string]*TemplateRef) WorkspaceResponse {
	resp := WorkspaceResponse{Workspace: *ws}
	if ws.TemplateID == nil {
		return resp
	}
	id := *ws.TemplateID
	if ref, ok := refs[id]; ok {
		resp.Template = ref
		return resp
	}
	var ref *TemplateRef
	if tpl, err := a.store.GetTemplate(r.Context(), id); err == nil {
		ref = &TemplateRef{ID: tpl.ID, Name: tpl.Name, Category: tpl.Category}
	}
	if refs != nil {
		refs[id] = ref
	}
	resp.Template = ref
	return resp
}
